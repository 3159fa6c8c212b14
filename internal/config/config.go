// Package config loads service configuration from the environment. A local
// .env file is honored when present so development does not need exported
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	BaseURL         string
	AllowedOrigins  []string
	// RateLimitRPS throttles requests per client IP; zero disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the queue broker settings. An empty URL disables the
// queue and email sending becomes synchronous.
type RedisConfig struct {
	URL       string
	QueueName string
}

// MailConfig holds SMTP delivery settings.
type MailConfig struct {
	Provider      string // "smtp" or "console"
	Host          string
	Port          int
	Username      string
	Password      string
	DefaultSender string
	AdminEmail    string
	UseTLS        bool
	Timeout       time.Duration
}

// PaymentConfig holds checkout provider credentials.
type PaymentConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	APIBaseURL     string
	Currency       string
	SuccessURL     string
	CancelURL      string
}

// InventoryConfig holds issue-report tuning.
type InventoryConfig struct {
	AutoResolveThreshold int
	// ContainerOverflowThreshold is the number of resident reports that
	// flips a container point to overflow.
	ContainerOverflowThreshold int
	// FallbackBounds validates coordinates when no city boundary has been
	// imported yet: MinLat, MaxLat, MinLng, MaxLng.
	FallbackBounds [4]float64
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// ReminderCron overrides the initiative reminder schedule. Empty keeps
	// the default daily run.
	ReminderCron string
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// LoggingConfig mirrors pkg/logger's knobs.
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Config is the root configuration for all binaries.
type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Mail      MailConfig
	Payment   PaymentConfig
	Inventory InventoryConfig
	Worker    WorkerConfig
	Auth      AuthConfig
	Logging   LoggingConfig
}

// Load reads configuration from the environment, loading .env first when it
// exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getString("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getString("HTTP_HOST", "0.0.0.0"),
			Port:            getInt("HTTP_PORT", 8080),
			ReadTimeout:     getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			BaseURL:         getString("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:  getList("CORS_ALLOWED_ORIGINS", "*"),
			RateLimitRPS:    getFloat("HTTP_RATE_LIMIT_RPS", 0),
			RateLimitBurst:  getInt("HTTP_RATE_LIMIT_BURST", 0),
		},
		Database: DatabaseConfig{
			DSN:             normalizeDSN(getString("DATABASE_URL", "")),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:       getString("REDIS_URL", ""),
			QueueName: getString("EMAIL_QUEUE_NAME", "emails"),
		},
		Mail: MailConfig{
			Provider:      getString("EMAIL_PROVIDER", "smtp"),
			Host:          getString("MAIL_SERVER", "smtp.hostinger.com"),
			Port:          getInt("MAIL_PORT", 465),
			Username:      getString("MAIL_USERNAME", ""),
			Password:      getString("MAIL_PASSWORD", ""),
			DefaultSender: getString("MAIL_DEFAULT_SENDER", "CivicMap <hola@civicmap.local>"),
			AdminEmail:    getString("ADMIN_EMAIL", ""),
			UseTLS:        getBool("MAIL_USE_TLS", true),
			Timeout:       getDuration("MAIL_TIMEOUT", 10*time.Second),
		},
		Payment: PaymentConfig{
			SecretKey:      getString("STRIPE_SECRET_KEY", ""),
			PublishableKey: getString("STRIPE_PUBLISHABLE_KEY", ""),
			WebhookSecret:  getString("STRIPE_WEBHOOK_SECRET", ""),
			APIBaseURL:     getString("STRIPE_API_BASE_URL", "https://api.stripe.com"),
			Currency:       getString("PAYMENT_CURRENCY", "eur"),
			SuccessURL:     getString("PAYMENT_SUCCESS_URL", ""),
			CancelURL:      getString("PAYMENT_CANCEL_URL", ""),
		},
		Inventory: InventoryConfig{
			AutoResolveThreshold:       getInt("INVENTORY_AUTO_RESOLVE_THRESHOLD", 3),
			ContainerOverflowThreshold: getInt("CONTAINER_OVERFLOW_THRESHOLD", 1),
			FallbackBounds: [4]float64{
				getFloat("CITY_MIN_LAT", 40.5),
				getFloat("CITY_MAX_LAT", 41.5),
				getFloat("CITY_MIN_LNG", 0.5),
				getFloat("CITY_MAX_LNG", 2.0),
			},
		},
		Worker: WorkerConfig{
			ReminderCron: getString("REMINDER_CRON", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getString("JWT_SECRET", ""),
			TokenTTL:  getDuration("JWT_TOKEN_TTL", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getString("LOG_LEVEL", "info"),
			Format: getString("LOG_FORMAT", "text"),
			Output: getString("LOG_OUTPUT", "stdout"),
		},
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" && cfg.Env == "production" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}
	return cfg, nil
}

// normalizeDSN rewrites the postgres:// scheme some platforms hand out to
// the postgresql:// form lib/pq accepts either way; kept for parity with
// DATABASE_URL values seen in deployment environments.
func normalizeDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(dsn, "postgres://")
	}
	return dsn
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getList(key, fallback string) []string {
	raw := getString(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
