package mailer

import (
	"context"
	"errors"
	"time"

	"github.com/civicmap/civicmap/internal/queue"
	"github.com/civicmap/civicmap/pkg/logger"
)

// Worker drains the email queue and delivers each message through the
// provider. It runs until the context is cancelled.
type Worker struct {
	queue    *queue.Queue
	provider Provider
	sender   string
	wait     time.Duration
	logger   *logger.Logger
}

// NewWorker builds a Worker. wait bounds each blocking pop so shutdown is
// responsive.
func NewWorker(q *queue.Queue, provider Provider, sender string, wait time.Duration, log *logger.Logger) *Worker {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("mailer.worker")
	}
	return &Worker{queue: q, provider: provider, sender: sender, wait: wait, logger: log}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("email worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("email worker stopping")
			return ctx.Err()
		default:
		}

		var msg Message
		err := w.queue.Dequeue(ctx, w.wait, &msg)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.WithError(err).Error("dequeue failed")
			// Back off so a broken broker does not spin the loop.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.wait):
			}
			continue
		}

		if err := w.provider.Send(ctx, w.sender, msg); err != nil {
			w.logger.WithError(err).WithField("subject", msg.Subject).Error("delivery failed")
			continue
		}
		w.logger.WithField("subject", msg.Subject).Info("email delivered")
	}
}
