package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %s, want development", cfg.Env)
	}
	if cfg.DB.Host != "localhost" || cfg.DB.Port != 5432 {
		t.Errorf("DB defaults = %s:%d, want localhost:5432", cfg.DB.Host, cfg.DB.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %s, want localhost:6379", cfg.Redis.Addr)
	}
	if cfg.SOS.LocationTimeout != 5*time.Second {
		t.Errorf("SOS.LocationTimeout = %v, want 5s", cfg.SOS.LocationTimeout)
	}
	if cfg.SOS.AllowEscalatedClosure {
		t.Error("AllowEscalatedClosure must default to false")
	}
	if cfg.Worker.MaxRetries != 3 {
		t.Errorf("Worker.MaxRetries = %d, want 3", cfg.Worker.MaxRetries)
	}
	if cfg.Worker.PollInterval != 5*time.Second {
		t.Errorf("Worker.PollInterval = %v, want 5s", cfg.Worker.PollInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("ENV", "production")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("SOS_LOCATION_TIMEOUT", "2s")
	t.Setenv("SOS_ALLOW_ESCALATED_CLOSURE", "true")
	t.Setenv("WORKER_BATCH_SIZE", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "9999" {
		t.Errorf("Port = %s, want 9999", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("Env = %s, want production", cfg.Env)
	}
	if cfg.DB.Port != 5433 {
		t.Errorf("DB.Port = %d, want 5433", cfg.DB.Port)
	}
	if cfg.SOS.LocationTimeout != 2*time.Second {
		t.Errorf("SOS.LocationTimeout = %v, want 2s", cfg.SOS.LocationTimeout)
	}
	if !cfg.SOS.AllowEscalatedClosure {
		t.Error("AllowEscalatedClosure should be enabled")
	}
	if cfg.Worker.BatchSize != 25 {
		t.Errorf("Worker.BatchSize = %d, want 25", cfg.Worker.BatchSize)
	}
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("SOS_LOCATION_TIMEOUT", "sometime")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DB.Port != 5432 {
		t.Errorf("DB.Port = %d, want fallback 5432", cfg.DB.Port)
	}
	if cfg.SOS.LocationTimeout != 5*time.Second {
		t.Errorf("SOS.LocationTimeout = %v, want fallback 5s", cfg.SOS.LocationTimeout)
	}
}

func TestLoadRejectsInvalidRateLimit(t *testing.T) {
	t.Setenv("SOS_RATE_LIMIT", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative rate limit")
	}
}
