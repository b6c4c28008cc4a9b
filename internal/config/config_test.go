package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Search.DefaultTopK != 20 {
		t.Errorf("DefaultTopK = %d, want 20", cfg.Search.DefaultTopK)
	}
	if cfg.Search.FtsWeight != 0.7 || cfg.Search.VectorWeight != 0.3 {
		t.Errorf("fusion weights = %v/%v, want 0.7/0.3", cfg.Search.FtsWeight, cfg.Search.VectorWeight)
	}
	if cfg.Provider.MaxCacheAge != 30*time.Minute {
		t.Errorf("MaxCacheAge = %v, want 30m", cfg.Provider.MaxCacheAge)
	}
	if cfg.Provider.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %v, want 5m", cfg.Provider.SweepInterval)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Errorf("queue MaxRetries = %d, want 3", cfg.Queue.MaxRetries)
	}
	if cfg.Bus.MaxInFlight != 10 {
		t.Errorf("MaxInFlight = %d, want 10", cfg.Bus.MaxInFlight)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
search:
  default_top_k: 50
  fallback_strategy: phrase
queue:
  batch_size: 25
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Search.DefaultTopK != 50 {
		t.Errorf("DefaultTopK = %d, want 50", cfg.Search.DefaultTopK)
	}
	if cfg.Search.FallbackStrategy != "phrase" {
		t.Errorf("FallbackStrategy = %s, want phrase", cfg.Search.FallbackStrategy)
	}
	if cfg.Queue.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.Queue.BatchSize)
	}
	// Untouched values keep their defaults.
	if cfg.Queue.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", cfg.Queue.MaxRetries)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SABLE_DEFAULT_TOP_K", "7")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.Search.DefaultTopK != 7 {
		t.Errorf("DefaultTopK = %d, want env override 7", cfg.Search.DefaultTopK)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad fallback strategy", func(c *Config) { c.Search.FallbackStrategy = "semantic" }},
		{"zero top k", func(c *Config) { c.Search.DefaultTopK = 0 }},
		{"negative fusion weight", func(c *Config) { c.Search.FtsWeight = -1 }},
		{"zero cache age", func(c *Config) { c.Provider.MaxCacheAge = 0 }},
		{"zero batch size", func(c *Config) { c.Queue.BatchSize = 0 }},
		{"bad diversification", func(c *Config) { c.Optimizer.Diversification = "magic" }},
		{"bad profile type", func(c *Config) { c.Profiles.Type = "dynamo" }},
		{"bad bus type", func(c *Config) { c.Bus.Type = "nats" }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"empty storage path", func(c *Config) { c.Storage.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
