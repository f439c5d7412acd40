package memory

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.RecencyTTL != 7*24*time.Hour || cfg.MaxRecentEntries != 50 || cfg.RelevanceThreshold != 0.3 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad weights", func(c *Config) { c.Weights.Relevance = 0.9 }},
		{"no entries", func(c *Config) { c.MaxRecentEntries = 0 }},
		{"threshold", func(c *Config) { c.RelevanceThreshold = 1.5 }},
		{"overlap", func(c *Config) { c.ChunkOverlap = c.ChunkSize }},
		{"ttl", func(c *Config) { c.RecencyTTL = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := (&Config{MaxRecentEntries: 10}).withDefaults()
	if cfg.MaxRecentEntries != 10 {
		t.Errorf("explicit value overwritten: %d", cfg.MaxRecentEntries)
	}
	if cfg.ChunkSize != 10 || cfg.ChunkOverlap != 2 || cfg.Weights != DefaultWeights {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.RelevanceThreshold != 0 {
		t.Errorf("threshold 0 is a valid explicit choice, got %f", cfg.RelevanceThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("filled config invalid: %v", err)
	}
}
