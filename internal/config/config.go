package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration resolved from the environment.
type Config struct {
	Environment string
	HTTPAddr    string
	DatabaseDSN string

	// PaymentWebhookSecret authenticates payment confirmation callbacks.
	PaymentWebhookSecret string

	// GenerationWebhookSecret authenticates draft-generation callbacks.
	GenerationWebhookSecret string

	// SessionTTL bounds how long issued sessions stay valid.
	SessionTTL time.Duration

	// SubmitRateLimit caps letter submissions per user per window.
	SubmitRateLimit  int
	SubmitRateWindow time.Duration

	Bootstrap Bootstrap
}

// Bootstrap controls startup seeding for self-hosted deployments.
type Bootstrap struct {
	EnsureDefaultAdmin bool
	EnsurePlans        bool
	AdminEmail         string
	AdminPassword      string
}

// IsProduction reports whether the process runs with production hardening.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load resolves configuration from the environment, reading .env when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:             envOr("LETTERFLOW_ENV", "development"),
		HTTPAddr:                envOr("LETTERFLOW_HTTP_ADDR", ":8080"),
		DatabaseDSN:             envOr("LETTERFLOW_DATABASE_DSN", "host=localhost user=letterflow dbname=letterflow sslmode=disable"),
		PaymentWebhookSecret:    os.Getenv("LETTERFLOW_PAYMENT_WEBHOOK_SECRET"),
		GenerationWebhookSecret: os.Getenv("LETTERFLOW_GENERATION_WEBHOOK_SECRET"),
		SessionTTL:              envDurationOr("LETTERFLOW_SESSION_TTL", 24*time.Hour),
		SubmitRateLimit:         envIntOr("LETTERFLOW_SUBMIT_RATE_LIMIT", 10),
		SubmitRateWindow:        envDurationOr("LETTERFLOW_SUBMIT_RATE_WINDOW", time.Minute),
		Bootstrap: Bootstrap{
			EnsureDefaultAdmin: envBoolOr("LETTERFLOW_BOOTSTRAP_ADMIN", true),
			EnsurePlans:        envBoolOr("LETTERFLOW_BOOTSTRAP_PLANS", true),
			AdminEmail:         envOr("LETTERFLOW_ADMIN_EMAIL", "admin@letterflow.local"),
			AdminPassword:      os.Getenv("LETTERFLOW_ADMIN_PASSWORD"),
		},
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOr(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBoolOr(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
