package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Pricing.SurgeMode != SurgeModeFlat {
		t.Errorf("expected flat surge by default, got %s", cfg.Pricing.SurgeMode)
	}
	if cfg.Matching.RadiusKm != 5.0 || cfg.Matching.MinCandidates != 1 {
		t.Errorf("unexpected matching defaults: %+v", cfg.Matching)
	}
	if cfg.RabbitMQ.URL != "" {
		t.Errorf("broker should be disabled by default, got %s", cfg.RabbitMQ.URL)
	}
	if !cfg.Database.Migrate {
		t.Error("expected migrations on by default")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MATCHING_RADIUS_KM", "3.5")
	t.Setenv("MATCHING_LOCK_TTL", "45s")
	t.Setenv("PRICING_SURGE_MODE", SurgeModeDemand)
	t.Setenv("RECONCILE_BATCH_SIZE", "25")
	t.Setenv("NEW_RELIC_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Matching.RadiusKm != 3.5 || cfg.Matching.LockTTL != 45*time.Second {
		t.Errorf("unexpected matching config: %+v", cfg.Matching)
	}
	if cfg.Pricing.SurgeMode != SurgeModeDemand {
		t.Errorf("expected demand surge, got %s", cfg.Pricing.SurgeMode)
	}
	if cfg.Reconcile.BatchSize != 25 {
		t.Errorf("expected batch size 25, got %d", cfg.Reconcile.BatchSize)
	}
	if !cfg.NewRelic.Enabled || cfg.Log.Level != "debug" {
		t.Errorf("unexpected config: %+v %+v", cfg.NewRelic, cfg.Log)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "two")
	t.Setenv("MATCHING_RADIUS_KM", "far")
	t.Setenv("RECONCILE_INTERVAL", "soon")

	cfg := Load()

	if cfg.Redis.DB != 0 {
		t.Errorf("expected default redis db, got %d", cfg.Redis.DB)
	}
	if cfg.Matching.RadiusKm != 5.0 {
		t.Errorf("expected default radius, got %v", cfg.Matching.RadiusKm)
	}
	if cfg.Reconcile.Interval != 10*time.Second {
		t.Errorf("expected default interval, got %v", cfg.Reconcile.Interval)
	}
}
