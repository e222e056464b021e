// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq task queue and the
// periodic background sweeps.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetDailyRecalcInterval() time.Duration
	GetQualificationSweepInterval() time.Duration
}

// EmailConfig provides settings for SMTP email delivery.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// EnrichmentConfig provides settings for the external enrichment provider.
type EnrichmentConfig interface {
	GetEnrichmentBaseURL() string
	GetEnrichmentAPIKey() string
	GetEnrichmentRatePerSecond() float64
	IsEnrichmentEnabled() bool
}

// ScoringConfig provides tunables for the scoring engine.
type ScoringConfig interface {
	GetBulkConcurrency() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env         string
	HTTPAddr    string
	DatabaseURL string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	RedisURL                   string
	RedisTLSInsecure           bool
	AsynqQueueName             string
	AsynqConcurrency           int
	DailyRecalcInterval        time.Duration
	QualificationSweepInterval time.Duration

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	EnrichmentBaseURL       string
	EnrichmentAPIKey        string
	EnrichmentRatePerSecond float64

	BulkConcurrency int
}

// Load reads configuration from the environment, optionally seeded from a
// .env file in development.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments use environment variables.
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		CORSAllowAll:   getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:    splitEnv("CORS_ORIGINS"),
		CORSAllowCreds: getBoolEnv("CORS_ALLOW_CREDENTIALS", false),

		RedisURL:                   os.Getenv("REDIS_URL"),
		RedisTLSInsecure:           getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:             getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:           getIntEnv("ASYNQ_CONCURRENCY", 10),
		DailyRecalcInterval:        getDurationEnv("DAILY_RECALC_INTERVAL", 24*time.Hour),
		QualificationSweepInterval: getDurationEnv("QUALIFICATION_SWEEP_INTERVAL", 15*time.Minute),

		EmailEnabled:     getBoolEnv("EMAIL_ENABLED", false),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "CRM"),
		EmailFromAddress: os.Getenv("EMAIL_FROM_ADDRESS"),

		EnrichmentBaseURL:       os.Getenv("ENRICHMENT_BASE_URL"),
		EnrichmentAPIKey:        os.Getenv("ENRICHMENT_API_KEY"),
		EnrichmentRatePerSecond: getFloatEnv("ENRICHMENT_RATE_PER_SECOND", 5),

		BulkConcurrency: getIntEnv("SCORING_BULK_CONCURRENCY", 8),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EmailEnabled && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required when EMAIL_ENABLED=true")
	}

	return cfg, nil
}

// Interface implementations.

func (c *Config) GetDatabaseURL() string  { return c.DatabaseURL }
func (c *Config) GetHTTPAddr() string     { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool   { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string {
	return c.CORSOrigins
}
func (c *Config) GetCORSAllowCreds() bool { return c.CORSAllowCreds }

func (c *Config) GetRedisURL() string          { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool    { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string    { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int     { return c.AsynqConcurrency }
func (c *Config) GetDailyRecalcInterval() time.Duration {
	return c.DailyRecalcInterval
}
func (c *Config) GetQualificationSweepInterval() time.Duration {
	return c.QualificationSweepInterval
}

func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

func (c *Config) GetEnrichmentBaseURL() string { return c.EnrichmentBaseURL }
func (c *Config) GetEnrichmentAPIKey() string  { return c.EnrichmentAPIKey }
func (c *Config) GetEnrichmentRatePerSecond() float64 {
	return c.EnrichmentRatePerSecond
}
func (c *Config) IsEnrichmentEnabled() bool { return c.EnrichmentBaseURL != "" }

func (c *Config) GetBulkConcurrency() int { return c.BulkConcurrency }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
