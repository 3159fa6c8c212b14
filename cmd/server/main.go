// Package main runs the HTTP API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/civicmap/civicmap/internal/app"
	"github.com/civicmap/civicmap/internal/config"
	"github.com/civicmap/civicmap/internal/httpapi"
	"github.com/civicmap/civicmap/internal/metrics"
	"github.com/civicmap/civicmap/internal/queue"
	"github.com/civicmap/civicmap/internal/storage/postgres"
	"github.com/civicmap/civicmap/internal/storage/postgres/migrations"
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

	log := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "server",
	})

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := migrations.Up(db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	store := postgres.New(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var q *queue.Queue
	if cfg.Redis.URL != "" {
		q, err = queue.New(ctx, cfg.Redis.URL, cfg.Redis.QueueName)
		if err != nil {
			log.WithError(err).Warn("queue unavailable; email delivery is synchronous")
			q = nil
		} else {
			defer q.Close()
		}
	}

	m := metrics.New()

	application, err := app.New(cfg, app.Stores{
		Users:       store,
		Inventory:   store,
		Initiatives: store,
		Geo:         store,
		Containers:  store,
		Donations:   store,
		Analytics:   store,
	}, app.Options{Queue: q, Metrics: m}, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := application.Stop(shutdownCtx); err != nil {
			log.WithError(err).Error("application shutdown")
		}
	}()

	router := httpapi.NewRouter(httpapi.Services{
		Users:       application.Users,
		Inventory:   application.Inventory,
		Initiatives: application.Initiatives,
		Sections:    application.Sections,
		Containers:  application.Containers,
		Donations:   application.Donations,
		Analytics:   application.Analytics,
	}, httpapi.Config{
		WebhookSecret:  cfg.Payment.WebhookSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimitRPS,
		RateBurst:      cfg.Server.RateLimitBurst,
	}, m, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
