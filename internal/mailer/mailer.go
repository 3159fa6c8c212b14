// Package mailer renders and delivers notification email. Messages normally
// travel through the Redis queue to the worker process; when enqueueing
// fails the message is delivered synchronously so notifications are not
// lost while the broker is down.
package mailer

import (
	"context"
	"fmt"

	"github.com/civicmap/civicmap/pkg/logger"
)

// Message is one outbound email.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// Provider delivers a rendered message.
type Provider interface {
	Send(ctx context.Context, from string, msg Message) error
}

// Enqueuer hands a message to the queue. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, job interface{}) error
}

// Service dispatches messages, preferring the queue.
type Service struct {
	provider Provider
	queue    Enqueuer
	sender   string
	admin    string
	logger   *logger.Logger
}

// New builds a Service. queue may be nil, in which case every message is
// delivered synchronously.
func New(provider Provider, queue Enqueuer, sender, admin string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("mailer")
	}
	return &Service{provider: provider, queue: queue, sender: sender, admin: admin, logger: log}
}

// Send queues the message for the worker, delivering synchronously when no
// queue is configured or the enqueue fails.
func (s *Service) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, msg); err == nil {
			s.logger.WithField("subject", msg.Subject).Debug("email queued")
			return nil
		} else {
			s.logger.WithError(err).Warn("enqueue failed, delivering synchronously")
		}
	}
	return s.Deliver(ctx, msg)
}

// Deliver sends the message immediately through the provider.
func (s *Service) Deliver(ctx context.Context, msg Message) error {
	if err := s.provider.Send(ctx, s.sender, msg); err != nil {
		s.logger.WithError(err).WithField("subject", msg.Subject).Error("email delivery failed")
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"subject":    msg.Subject,
		"recipients": len(msg.To),
	}).Info("email delivered")
	return nil
}

// SendToAdmin sends the message to the configured administrator address. It
// is a no-op when no admin address is set.
func (s *Service) SendToAdmin(ctx context.Context, subject, html string) error {
	if s.admin == "" {
		return nil
	}
	return s.Send(ctx, Message{To: []string{s.admin}, Subject: subject, HTML: html})
}
