// Package app wires stores, external providers and domain services into one
// application object with a managed lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/civicmap/civicmap/internal/config"
	"github.com/civicmap/civicmap/internal/mailer"
	"github.com/civicmap/civicmap/internal/metrics"
	"github.com/civicmap/civicmap/internal/payments"
	"github.com/civicmap/civicmap/internal/queue"
	"github.com/civicmap/civicmap/internal/services/analytics"
	"github.com/civicmap/civicmap/internal/services/containers"
	"github.com/civicmap/civicmap/internal/services/donations"
	"github.com/civicmap/civicmap/internal/services/initiatives"
	"github.com/civicmap/civicmap/internal/services/inventoryops"
	"github.com/civicmap/civicmap/internal/services/sections"
	"github.com/civicmap/civicmap/internal/services/users"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/internal/storage/memory"
	"github.com/civicmap/civicmap/internal/system"
	"github.com/civicmap/civicmap/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users       storage.UserStore
	Inventory   storage.InventoryStore
	Initiatives storage.InitiativeStore
	Geo         storage.GeoStore
	Containers  storage.ContainerStore
	Donations   storage.DonationStore
	Analytics   storage.AnalyticsStore
}

// Options carries external providers the application cannot build from
// configuration alone. Nil fields fall back to sensible defaults.
type Options struct {
	// Queue is the email job queue. Nil keeps email delivery synchronous.
	Queue *queue.Queue
	// MailProvider overrides the provider derived from configuration.
	MailProvider mailer.Provider
	// Checkout overrides the payment client derived from configuration.
	Checkout donations.Checkouter
	// Metrics is the shared registry; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Users       *users.Service
	Inventory   *inventoryops.Service
	Initiatives *initiatives.Service
	Sections    *sections.Service
	Containers  *containers.Service
	Donations   *donations.Service
	Analytics   *analytics.Service
	Mailer      *mailer.Service
	Metrics     *metrics.Metrics
}

// New builds a fully initialised application with the provided stores.
func New(cfg *config.Config, stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Inventory == nil {
		stores.Inventory = mem
	}
	if stores.Initiatives == nil {
		stores.Initiatives = mem
	}
	if stores.Geo == nil {
		stores.Geo = mem
	}
	if stores.Containers == nil {
		stores.Containers = mem
	}
	if stores.Donations == nil {
		stores.Donations = mem
	}
	if stores.Analytics == nil {
		stores.Analytics = mem
	}

	manager := system.NewManager()

	provider := opts.MailProvider
	if provider == nil {
		provider = NewMailProvider(cfg.Mail, log)
	}
	var enqueuer mailer.Enqueuer
	if opts.Queue != nil {
		enqueuer = opts.Queue
	}
	mailService := mailer.New(provider, enqueuer, cfg.Mail.DefaultSender, cfg.Mail.AdminEmail, log)

	userService := users.New(stores.Users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, mailService, cfg.Server.BaseURL, log)

	sectionService := sections.New(stores.Geo, sections.Bounds{
		MinLat: cfg.Inventory.FallbackBounds[0],
		MaxLat: cfg.Inventory.FallbackBounds[1],
		MinLng: cfg.Inventory.FallbackBounds[2],
		MaxLng: cfg.Inventory.FallbackBounds[3],
	}, log)

	inventoryService := inventoryops.New(stores.Inventory, stores.Users, sectionService, mailService, cfg.Inventory.AutoResolveThreshold, log)
	initiativeService := initiatives.New(stores.Initiatives, stores.Users, mailService, cfg.Server.BaseURL, log)
	containerService := containers.New(stores.Containers, sectionService, cfg.Inventory.ContainerOverflowThreshold, log)

	checkout := opts.Checkout
	if checkout == nil {
		checkout = payments.NewClient(cfg.Payment.APIBaseURL, cfg.Payment.SecretKey, 10*time.Second)
	}
	donationService := donations.New(stores.Donations, checkout, mailService, donations.Config{
		Currency:   cfg.Payment.Currency,
		SuccessURL: cfg.Payment.SuccessURL,
		CancelURL:  cfg.Payment.CancelURL,
		BaseURL:    cfg.Server.BaseURL,
	}, log)

	analyticsService := analytics.New(stores.Analytics, stores.Inventory, log)

	for _, name := range []string{"users", "inventory", "initiatives", "sections", "containers", "donations", "analytics"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:     manager,
		log:         log,
		Users:       userService,
		Inventory:   inventoryService,
		Initiatives: initiativeService,
		Sections:    sectionService,
		Containers:  containerService,
		Donations:   donationService,
		Analytics:   analyticsService,
		Mailer:      mailService,
		Metrics:     opts.Metrics,
	}, nil
}

// NewMailProvider derives a mail provider from configuration. The worker
// binary uses it to deliver queued messages.
func NewMailProvider(cfg config.MailConfig, log *logger.Logger) mailer.Provider {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "console", "":
		return &mailer.ConsoleProvider{Logger: log}
	case "smtp":
		return &mailer.SMTPProvider{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			UseTLS:   cfg.UseTLS,
			Timeout:  cfg.Timeout,
		}
	default:
		log.WithField("provider", cfg.Provider).Warn("unknown mail provider; using console")
		return &mailer.ConsoleProvider{Logger: log}
	}
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
