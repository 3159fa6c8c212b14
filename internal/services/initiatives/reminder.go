package initiatives

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/civicmap/civicmap/internal/domain/initiative"
	"github.com/civicmap/civicmap/internal/mailer"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/pkg/logger"
)

// Reminder emails registered participants the day before an initiative takes
// place. It runs on a cron schedule inside the worker process.
type Reminder struct {
	service *Service
	cron    *cron.Cron
	spec    string
	log     *logger.Logger
}

// NewReminder builds a Reminder. spec is a cron expression; it defaults to
// 08:00 every day.
func NewReminder(service *Service, spec string, log *logger.Logger) *Reminder {
	if spec == "" {
		spec = "0 8 * * *"
	}
	if log == nil {
		log = logger.NewDefault("initiatives.reminder")
	}
	return &Reminder{service: service, spec: spec, log: log}
}

// Start schedules the daily run.
func (r *Reminder) Start() error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := r.service.SendReminders(ctx, time.Now().UTC().AddDate(0, 0, 1)); err != nil {
			r.log.WithError(err).Error("reminder run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}
	r.cron.Start()
	r.log.WithField("spec", r.spec).Info("reminder schedule started")
	return nil
}

// Stop halts the schedule, waiting for an in-flight run.
func (r *Reminder) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// SendReminders emails the creator and the registered participants of every
// visible initiative scheduled on the given day.
func (s *Service) SendReminders(ctx context.Context, day time.Time) error {
	list, err := s.store.ListInitiatives(ctx, storage.InitiativeFilter{
		Statuses: initiative.VisibleStatuses(),
		OnDate:   &day,
	})
	if err != nil {
		return fmt.Errorf("list initiatives for %s: %w", day.Format("2006-01-02"), err)
	}

	for _, ini := range list {
		ids, err := s.store.ListParticipantIDs(ctx, ini.ID)
		if err != nil {
			s.log.WithError(err).WithField("initiative_id", ini.ID).Error("listing participants failed")
			continue
		}
		// The creator gets one reminder even without joining; a creator who
		// also joined is not mailed twice.
		recipients := make([]string, 0, len(ids)+1)
		seen := make(map[string]bool, len(ids)+1)
		for _, userID := range append([]string{ini.CreatorID}, ids...) {
			if userID == "" || seen[userID] {
				continue
			}
			seen[userID] = true
			recipients = append(recipients, userID)
		}
		sent := 0
		for _, userID := range recipients {
			if s.users == nil || s.mail == nil {
				break
			}
			u, err := s.users.GetUser(ctx, userID)
			if err != nil {
				continue
			}
			html, err := mailer.Render(mailer.TemplateInitiativeReminder, map[string]interface{}{
				"Name":      u.Username,
				"Title":     ini.Title,
				"Date":      ini.Date.Format("02/01/2006"),
				"TimeOfDay": ini.TimeOfDay,
				"Location":  ini.Location,
			})
			if err != nil {
				s.log.WithError(err).Error("render reminder")
				continue
			}
			if err := s.mail.Send(ctx, mailer.Message{
				To:      []string{u.Email},
				Subject: "Recordatori: " + ini.Title,
				HTML:    html,
			}); err != nil {
				s.log.WithError(err).Warn("reminder delivery failed")
				continue
			}
			sent++
		}
		s.log.WithField("initiative_id", ini.ID).WithField("sent", sent).Info("reminders dispatched")
	}
	return nil
}
