package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("VENUE_TIMEZONE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.VenueTimezone != "Asia/Ho_Chi_Minh" {
		t.Fatalf("expected default venue timezone, got %s", cfg.VenueTimezone)
	}
	if cfg.AssistantLanguage != "vi" {
		t.Fatalf("expected vietnamese assistant by default, got %s", cfg.AssistantLanguage)
	}
	if cfg.ReminderPollInterval != time.Minute {
		t.Fatalf("expected default reminder poll interval, got %s", cfg.ReminderPollInterval)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.IsProduction() {
		t.Fatalf("expected development env")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("REMINDER_POLL_INTERVAL", "45s")
	t.Setenv("REMINDER_MAX_ATTEMPTS", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("unexpected database url %s", cfg.DatabaseURL)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.ReminderPollInterval != 45*time.Second {
		t.Fatalf("expected 45s poll interval, got %s", cfg.ReminderPollInterval)
	}
	if cfg.ReminderMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.ReminderMaxAttempts)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("REMINDER_BATCH_SIZE", "lots")
	t.Setenv("MIN_BOOKING_NOTICE", "soon")
	cfg := Load()
	if cfg.ReminderBatchSize != 50 {
		t.Fatalf("expected fallback batch size, got %d", cfg.ReminderBatchSize)
	}
	if cfg.MinBookingNotice != 30*time.Minute {
		t.Fatalf("expected fallback notice, got %s", cfg.MinBookingNotice)
	}
}
