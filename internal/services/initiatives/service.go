// Package initiatives manages citizen-proposed activities from submission
// through moderation, participation and reminders.
package initiatives

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/civicmap/civicmap/internal/domain/initiative"
	"github.com/civicmap/civicmap/internal/mailer"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/pkg/logger"
)

// Service manages initiatives.
type Service struct {
	store   storage.InitiativeStore
	users   storage.UserStore
	mail    *mailer.Service
	baseURL string
	log     *logger.Logger
}

// New constructs an initiative service. mail may be nil, disabling
// notifications.
func New(store storage.InitiativeStore, users storage.UserStore, mail *mailer.Service, baseURL string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("initiatives")
	}
	return &Service{store: store, users: users, mail: mail, baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

// CreateInput is a citizen's initiative proposal.
type CreateInput struct {
	Title       string
	Description string
	Location    string
	Category    string
	Date        time.Time
	TimeOfDay   string
	ImagePath   string
	CreatorID   string
}

// Create stores a new initiative in pending state. The slug derives from the
// title; collisions get a numeric suffix.
func (s *Service) Create(ctx context.Context, in CreateInput) (initiative.Initiative, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return initiative.Initiative{}, fmt.Errorf("title is required")
	}
	if in.CreatorID == "" {
		return initiative.Initiative{}, fmt.Errorf("creator is required")
	}
	if in.Date.IsZero() {
		return initiative.Initiative{}, fmt.Errorf("date is required")
	}

	slug, err := s.uniqueSlug(ctx, initiative.Slugify(in.Title))
	if err != nil {
		return initiative.Initiative{}, err
	}

	created, err := s.store.CreateInitiative(ctx, initiative.Initiative{
		Title:       in.Title,
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		Category:    strings.TrimSpace(in.Category),
		Date:        in.Date.UTC(),
		TimeOfDay:   strings.TrimSpace(in.TimeOfDay),
		ImagePath:   in.ImagePath,
		Status:      initiative.StatusPending,
		CreatorID:   in.CreatorID,
	})
	if err != nil {
		return initiative.Initiative{}, err
	}

	if s.mail != nil {
		s.notifyAdminSubmitted(ctx, created)
	}
	s.log.WithField("initiative_id", created.ID).WithField("slug", created.Slug).Info("initiative created")
	return created, nil
}

// uniqueSlug appends -2, -3, ... until the slug is free.
func (s *Service) uniqueSlug(ctx context.Context, base string) (string, error) {
	slug := base
	for i := 2; ; i++ {
		exists, err := s.store.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *Service) notifyAdminSubmitted(ctx context.Context, ini initiative.Initiative) {
	creator := ini.CreatorID
	if s.users != nil {
		if u, err := s.users.GetUser(ctx, ini.CreatorID); err == nil {
			creator = u.Username
		}
	}
	html, err := mailer.Render(mailer.TemplateInitiativeSubmitted, map[string]interface{}{
		"Title":   ini.Title,
		"Creator": creator,
		"Date":    ini.Date.Format("02/01/2006"),
	})
	if err != nil {
		s.log.WithError(err).Error("render submission notification")
		return
	}
	if err := s.mail.SendToAdmin(ctx, "Nova iniciativa: "+ini.Title, html); err != nil {
		s.log.WithError(err).Warn("admin notification failed")
	}
}

// ListVisible returns approved and active initiatives, optionally filtered
// to upcoming ones.
func (s *Service) ListVisible(ctx context.Context, category string, upcomingOnly bool) ([]initiative.Initiative, error) {
	filter := storage.InitiativeFilter{
		Statuses: initiative.VisibleStatuses(),
		Category: category,
	}
	if upcomingOnly {
		now := time.Now().UTC()
		filter.UpcomingFrom = &now
	}
	return s.store.ListInitiatives(ctx, filter)
}

// ListPending returns initiatives awaiting moderation.
func (s *Service) ListPending(ctx context.Context) ([]initiative.Initiative, error) {
	return s.store.ListInitiatives(ctx, storage.InitiativeFilter{
		Statuses: []initiative.Status{initiative.StatusPending},
	})
}

// GetBySlug returns one initiative and counts the visit.
func (s *Service) GetBySlug(ctx context.Context, slug string) (initiative.Initiative, error) {
	ini, err := s.store.GetInitiativeBySlug(ctx, slug)
	if err != nil {
		return initiative.Initiative{}, err
	}
	if err := s.store.IncrementInitiativeViews(ctx, ini.ID); err != nil {
		s.log.WithError(err).Warn("view count update failed")
	} else {
		ini.ViewCount++
	}
	return ini, nil
}

// GetByID returns one initiative without counting a visit.
func (s *Service) GetByID(ctx context.Context, id string) (initiative.Initiative, error) {
	return s.store.GetInitiative(ctx, id)
}

// Approve publishes a pending initiative and notifies the creator.
func (s *Service) Approve(ctx context.Context, id string) (initiative.Initiative, error) {
	ini, err := s.store.GetInitiative(ctx, id)
	if err != nil {
		return initiative.Initiative{}, err
	}
	if ini.Status != initiative.StatusPending {
		return initiative.Initiative{}, fmt.Errorf("only pending initiatives can be approved, initiative is %s", ini.Status)
	}
	ini.Status = initiative.StatusApproved

	updated, err := s.store.UpdateInitiative(ctx, ini)
	if err != nil {
		return initiative.Initiative{}, err
	}
	s.notifyCreator(ctx, updated, mailer.TemplateInitiativeApproved, "La teva iniciativa ha estat aprovada", "")
	s.log.WithField("initiative_id", id).Info("initiative approved")
	return updated, nil
}

// Reject declines a pending initiative and notifies the creator.
func (s *Service) Reject(ctx context.Context, id, reason string) (initiative.Initiative, error) {
	ini, err := s.store.GetInitiative(ctx, id)
	if err != nil {
		return initiative.Initiative{}, err
	}
	if ini.Status != initiative.StatusPending {
		return initiative.Initiative{}, fmt.Errorf("only pending initiatives can be rejected, initiative is %s", ini.Status)
	}
	ini.Status = initiative.StatusRejected

	updated, err := s.store.UpdateInitiative(ctx, ini)
	if err != nil {
		return initiative.Initiative{}, err
	}
	s.notifyCreator(ctx, updated, mailer.TemplateInitiativeRejected, "Sobre la teva iniciativa", reason)
	s.log.WithField("initiative_id", id).Info("initiative rejected")
	return updated, nil
}

// Cancel withdraws an initiative. Only the creator or a moderator should
// reach this; the handler enforces that.
func (s *Service) Cancel(ctx context.Context, id string) (initiative.Initiative, error) {
	ini, err := s.store.GetInitiative(ctx, id)
	if err != nil {
		return initiative.Initiative{}, err
	}
	if ini.Status == initiative.StatusCancelled {
		return ini, nil
	}
	ini.Status = initiative.StatusCancelled

	updated, err := s.store.UpdateInitiative(ctx, ini)
	if err != nil {
		return initiative.Initiative{}, err
	}
	s.log.WithField("initiative_id", id).Info("initiative cancelled")
	return updated, nil
}

func (s *Service) notifyCreator(ctx context.Context, ini initiative.Initiative, template, subject, reason string) {
	if s.mail == nil || s.users == nil {
		return
	}
	u, err := s.users.GetUser(ctx, ini.CreatorID)
	if err != nil {
		s.log.WithError(err).Warn("creator lookup failed for notification")
		return
	}
	html, err := mailer.Render(template, map[string]interface{}{
		"Name":   u.Username,
		"Title":  ini.Title,
		"URL":    s.baseURL + "/iniciatives/" + ini.Slug,
		"Reason": reason,
	})
	if err != nil {
		s.log.WithError(err).Error("render creator notification")
		return
	}
	if err := s.mail.Send(ctx, mailer.Message{To: []string{u.Email}, Subject: subject, HTML: html}); err != nil {
		s.log.WithError(err).Warn("creator notification failed")
	}
}

// Join signs a registered user up for an initiative.
func (s *Service) Join(ctx context.Context, initiativeID, userID string) error {
	ini, err := s.store.GetInitiative(ctx, initiativeID)
	if err != nil {
		return err
	}
	if !ini.Visible() {
		return fmt.Errorf("initiative is not open for participation")
	}
	return s.store.AddParticipant(ctx, initiativeID, userID)
}

// Leave withdraws a registered user from an initiative.
func (s *Service) Leave(ctx context.Context, initiativeID, userID string) error {
	return s.store.RemoveParticipant(ctx, initiativeID, userID)
}

// Participate records an anonymous participant and confirms the signup by
// email when an address was given.
func (s *Service) Participate(ctx context.Context, initiativeID, name, email, phone string) (initiative.Participation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return initiative.Participation{}, fmt.Errorf("name is required")
	}
	ini, err := s.store.GetInitiative(ctx, initiativeID)
	if err != nil {
		return initiative.Participation{}, err
	}
	if !ini.Visible() {
		return initiative.Participation{}, fmt.Errorf("initiative is not open for participation")
	}
	p, err := s.store.CreateParticipation(ctx, initiative.Participation{
		InitiativeID: initiativeID,
		Name:         name,
		Email:        strings.TrimSpace(email),
		Phone:        strings.TrimSpace(phone),
	})
	if err != nil {
		return initiative.Participation{}, err
	}
	s.confirmParticipation(ctx, ini, p)
	return p, nil
}

// confirmParticipation emails the participant. Delivery failures are logged,
// never surfaced; the participation is already recorded.
func (s *Service) confirmParticipation(ctx context.Context, ini initiative.Initiative, p initiative.Participation) {
	if s.mail == nil || p.Email == "" {
		return
	}
	html, err := mailer.Render(mailer.TemplateInitiativeParticipant, map[string]interface{}{
		"Name":      p.Name,
		"Title":     ini.Title,
		"Date":      ini.Date.Format("02/01/2006"),
		"TimeOfDay": ini.TimeOfDay,
		"Location":  ini.Location,
	})
	if err != nil {
		s.log.WithError(err).Error("render participation confirmation")
		return
	}
	if err := s.mail.Send(ctx, mailer.Message{
		To:      []string{p.Email},
		Subject: "T'has apuntat a " + ini.Title,
		HTML:    html,
	}); err != nil {
		s.log.WithError(err).WithField("initiative_id", ini.ID).Warn("participation confirmation failed")
	}
}

// ParticipantCount returns the number of registered plus anonymous
// participants.
func (s *Service) ParticipantCount(ctx context.Context, initiativeID string) (int, error) {
	ids, err := s.store.ListParticipantIDs(ctx, initiativeID)
	if err != nil {
		return 0, err
	}
	anon, err := s.store.ListParticipations(ctx, initiativeID)
	if err != nil {
		return 0, err
	}
	return len(ids) + len(anon), nil
}

// AddComment attaches a registered user's comment.
func (s *Service) AddComment(ctx context.Context, initiativeID, userID, content string) (initiative.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return initiative.Comment{}, fmt.Errorf("comment is empty")
	}
	if _, err := s.store.GetInitiative(ctx, initiativeID); err != nil {
		return initiative.Comment{}, err
	}
	return s.store.CreateComment(ctx, initiative.Comment{
		InitiativeID: initiativeID,
		UserID:       userID,
		Content:      content,
	})
}

// Comments lists an initiative's comments oldest first.
func (s *Service) Comments(ctx context.Context, initiativeID string) ([]initiative.Comment, error) {
	return s.store.ListComments(ctx, initiativeID)
}

// DeleteComment removes a comment.
func (s *Service) DeleteComment(ctx context.Context, id string) error {
	return s.store.DeleteComment(ctx, id)
}
