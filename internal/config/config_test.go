package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.DefaultProvider != "local" {
		t.Errorf("expected default provider local, got %s", cfg.DefaultProvider)
	}
	if cfg.Strategy != StrategyRoundRobin {
		t.Errorf("expected round-robin strategy, got %s", cfg.Strategy)
	}
	if !cfg.FailoverEnabled {
		t.Error("expected failover enabled by default")
	}
	if cfg.IdleSessionTimeout != time.Hour {
		t.Errorf("expected 1h idle timeout, got %v", cfg.IdleSessionTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NIMBUS_PORT", "9999")
	t.Setenv("NIMBUS_DEFAULT_PROVIDER", "workspace")
	t.Setenv("NIMBUS_FALLBACK_PROVIDER", "local")
	t.Setenv("NIMBUS_LOAD_BALANCING", "true")
	t.Setenv("NIMBUS_LB_STRATEGY", "least-loaded")
	t.Setenv("NIMBUS_IDLE_SESSION_TIMEOUT", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.DefaultProvider != "workspace" {
		t.Errorf("expected provider workspace, got %s", cfg.DefaultProvider)
	}
	if cfg.FallbackProvider != "local" {
		t.Errorf("expected fallback local, got %s", cfg.FallbackProvider)
	}
	if !cfg.LoadBalancing {
		t.Error("expected load balancing enabled")
	}
	if cfg.Strategy != StrategyLeastLoaded {
		t.Errorf("expected least-loaded, got %s", cfg.Strategy)
	}
	if cfg.IdleSessionTimeout != 30*time.Minute {
		t.Errorf("expected 30m idle timeout, got %v", cfg.IdleSessionTimeout)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("NIMBUS_PORT", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestLoadInvalidStrategy(t *testing.T) {
	t.Setenv("NIMBUS_LB_STRATEGY", "fastest")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid strategy, got nil")
	}
}
