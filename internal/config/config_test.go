package config

import (
	"math"
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}

	if cfg.Mode != ModeHybrid {
		t.Errorf("Mode = %q, want hybrid", cfg.Mode)
	}
	if cfg.MinConfidence != 0.85 || cfg.NeedsMLFloor != 0.3 {
		t.Errorf("decision thresholds = %v/%v, want 0.85/0.3", cfg.MinConfidence, cfg.NeedsMLFloor)
	}
	if cfg.FusionStrategy != "weighted" {
		t.Errorf("FusionStrategy = %q, want weighted", cfg.FusionStrategy)
	}
	wantOrder := []string{"hash", "icon", "number", "text"}
	if len(cfg.MatcherOrder) != len(wantOrder) {
		t.Fatalf("MatcherOrder = %v, want %v", cfg.MatcherOrder, wantOrder)
	}
	for i, m := range wantOrder {
		if cfg.MatcherOrder[i] != m {
			t.Errorf("MatcherOrder[%d] = %q, want %q", i, cfg.MatcherOrder[i], m)
		}
	}
	var weightSum float64
	for _, w := range cfg.MethodWeights {
		weightSum += w
	}
	if math.Abs(weightSum-1.0) > 1e-9 {
		t.Errorf("method weights sum to %v, want 1.0", weightSum)
	}
	if cfg.CacheTTL != 15*time.Minute || cfg.CacheCapacity != 1024 {
		t.Errorf("cache = %v/%d, want 15m/1024", cfg.CacheTTL, cfg.CacheCapacity)
	}
	if cfg.HashMaxDistance != 12 || cfg.HashMaxResults != 5 {
		t.Errorf("hash limits = %d/%d, want 12/5", cfg.HashMaxDistance, cfg.HashMaxResults)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("OPERATING_MODE", "local")
	t.Setenv("FUSION_STRATEGY", "consensus")
	t.Setenv("MIN_CONFIDENCE", "0.9")
	t.Setenv("NEEDS_ML_FLOOR", "0.2")
	t.Setenv("MATCHER_ORDER", "icon, hash")
	t.Setenv("CACHE_TTL", "1h")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}

	if cfg.Mode != ModeLocal {
		t.Errorf("Mode = %q, want local", cfg.Mode)
	}
	if cfg.FusionStrategy != "consensus" {
		t.Errorf("FusionStrategy = %q, want consensus", cfg.FusionStrategy)
	}
	if cfg.MinConfidence != 0.9 || cfg.NeedsMLFloor != 0.2 {
		t.Errorf("thresholds = %v/%v, want 0.9/0.2", cfg.MinConfidence, cfg.NeedsMLFloor)
	}
	if len(cfg.MatcherOrder) != 2 || cfg.MatcherOrder[0] != "icon" || cfg.MatcherOrder[1] != "hash" {
		t.Errorf("MatcherOrder = %v, want [icon hash]", cfg.MatcherOrder)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", cfg.CacheTTL)
	}
}

func TestLoadFromEnvValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"Invalid operating mode", "OPERATING_MODE", "turbo"},
		{"Invalid fusion strategy", "FUSION_STRATEGY", "median"},
		{"Min confidence above one", "MIN_CONFIDENCE", "1.5"},
		{"ML floor above min confidence", "NEEDS_ML_FLOOR", "0.95"},
		{"Hash distance above 64", "HASH_MAX_DISTANCE", "90"},
		{"Negative cache capacity", "CACHE_CAPACITY", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadFromEnv(); err == nil {
				t.Errorf("LoadFromEnv() accepted %s=%s", tt.key, tt.value)
			}
		})
	}
}
