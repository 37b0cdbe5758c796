// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App         AppConfig
	Log         LogConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Auth        AuthConfig
	Idempotency IdempotencyConfig
	Outbox      OutboxConfig
}

// AppConfig holds application-specific settings.
type AppConfig struct {
	Name    string
	Env     string
	Port    string
	Version string
}

// Development reports whether APP_ENV is "development".
func (a AppConfig) Development() bool {
	return a.Env == "development"
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string // debug, info, warn, error
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	URL              string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
	MigrateOnStart   bool
}

// RedisConfig holds the report cache settings. An empty URL disables caching.
type RedisConfig struct {
	URL            string
	ReportCacheTTL time.Duration
}

// KafkaConfig holds the outbox sink settings. No brokers means events are
// only logged.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// IdempotencyConfig holds X-Idempotency-Key settings.
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

// OutboxConfig holds relay settings for the worker.
type OutboxConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	MaxRetries      int
	RetryBackoff    time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
	// MetricsPort serves /metrics of the worker process; empty disables it.
	MetricsPort string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "clientregistry")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_STATEMENT_TIMEOUT", "30s")
	v.SetDefault("MIGRATE_ON_START", false)

	v.SetDefault("REPORT_CACHE_TTL", "5m")

	v.SetDefault("KAFKA_TOPIC", "clientregistry.client-events")

	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_ISSUER", "clientregistry")
	v.SetDefault("JWT_TTL", "15m")

	v.SetDefault("IDEMPOTENCY_ENABLED", false)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")

	v.SetDefault("OUTBOX_POLL_INTERVAL", "1s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_MAX_RETRIES", 5)
	v.SetDefault("OUTBOX_RETRY_BACKOFF", "1m")
	v.SetDefault("OUTBOX_RETENTION", "168h")
	v.SetDefault("OUTBOX_CLEANUP_INTERVAL", "1h")
	v.SetDefault("WORKER_METRICS_PORT", "9091")
}

// Load reads .env files (if present) and the environment.
// Priority (highest to lowest):
// 1. Process environment
// 2. Files passed in envFiles, or ".env" when none are given
// 3. Built-in defaults
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("APP_NAME"),
			Env:     v.GetString("APP_ENV"),
			Port:    v.GetString("APP_PORT"),
			Version: v.GetString("APP_VERSION"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			URL:              v.GetString("DATABASE_URL"),
			MaxConns:         v.GetInt32("DB_MAX_CONNS"),
			MinConns:         v.GetInt32("DB_MIN_CONNS"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
			MigrateOnStart:   v.GetBool("MIGRATE_ON_START"),
		},
		Redis: RedisConfig{
			URL:            v.GetString("REDIS_URL"),
			ReportCacheTTL: v.GetDuration("REPORT_CACHE_TTL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Auth: AuthConfig{
			Enabled:   v.GetBool("AUTH_ENABLED"),
			JWTSecret: v.GetString("JWT_SECRET"),
			Issuer:    v.GetString("JWT_ISSUER"),
			TokenTTL:  v.GetDuration("JWT_TTL"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("IDEMPOTENCY_ENABLED"),
			TTL:     v.GetDuration("IDEMPOTENCY_TTL"),
		},
		Outbox: OutboxConfig{
			PollInterval:    v.GetDuration("OUTBOX_POLL_INTERVAL"),
			BatchSize:       v.GetInt("OUTBOX_BATCH_SIZE"),
			MaxRetries:      v.GetInt("OUTBOX_MAX_RETRIES"),
			RetryBackoff:    v.GetDuration("OUTBOX_RETRY_BACKOFF"),
			Retention:       v.GetDuration("OUTBOX_RETENTION"),
			CleanupInterval: v.GetDuration("OUTBOX_CLEANUP_INTERVAL"),
			MetricsPort:     v.GetString("WORKER_METRICS_PORT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Auth.Enabled && len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET of at least 16 characters is required when AUTH_ENABLED=true"))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, errors.New("DB_MAX_CONNS must be positive"))
	}
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.Outbox.PollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
