package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCHEDULE_TIMEZONE", "America/Chicago")
	t.Setenv("WORKER_POOL_SIZE", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DirectionsTimeout != 8*time.Second || cfg.TravelCacheTTL != 24*time.Hour {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.BufferMinutes != 15 || cfg.WorkdayStart != "08:00" || cfg.DirectionsRPS != 10 {
		t.Fatalf("unexpected schedule defaults: %+v", cfg)
	}
	if cfg.WorkerPoolSize != 3 {
		t.Fatalf("expected env override, got %d", cfg.WorkerPoolSize)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "America/Chicago" {
		t.Fatalf("unexpected location %v %v", loc, err)
	}
}

func TestLoadRejectsNegativeBuffer(t *testing.T) {
	t.Setenv("SCHEDULE_BUFFER_MINUTES", "-5")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for negative buffer")
	}
}
