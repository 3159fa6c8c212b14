// Package main runs the background worker: it drains the email queue and
// fires the daily initiative reminders.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicmap/civicmap/internal/app"
	"github.com/civicmap/civicmap/internal/config"
	"github.com/civicmap/civicmap/internal/mailer"
	"github.com/civicmap/civicmap/internal/queue"
	"github.com/civicmap/civicmap/internal/services/initiatives"
	"github.com/civicmap/civicmap/internal/storage/postgres"
	"github.com/civicmap/civicmap/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required for the worker")
	}

	log := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "worker",
	})

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	store := postgres.New(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.New(ctx, cfg.Redis.URL, cfg.Redis.QueueName)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer q.Close()

	application, err := app.New(cfg, app.Stores{
		Users:       store,
		Inventory:   store,
		Initiatives: store,
		Geo:         store,
		Containers:  store,
		Donations:   store,
		Analytics:   store,
	}, app.Options{Queue: q}, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	provider := app.NewMailProvider(cfg.Mail, log)
	worker := mailer.NewWorker(q, provider, cfg.Mail.DefaultSender, 5*time.Second, log)

	reminder := initiatives.NewReminder(application.Initiatives, cfg.Worker.ReminderCron, log)
	if err := reminder.Start(); err != nil {
		return fmt.Errorf("start reminders: %w", err)
	}
	defer reminder.Stop()

	log.Info("worker running")
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("email worker: %w", err)
	}
	return nil
}
