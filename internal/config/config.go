package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// OperatingMode selects the decision policy applied to fused confidences.
type OperatingMode string

const (
	ModeLocal  OperatingMode = "local"
	ModeML     OperatingMode = "ml"
	ModeHybrid OperatingMode = "hybrid"
)

type Config struct {
	// Stores
	ManifestPath string
	IndexPath    string

	// Enrichment (disabled when empty)
	CardDBPath      string
	PriceServiceURL string

	// Decision policy
	Mode          OperatingMode
	MinConfidence float64
	NeedsMLFloor  float64

	// Fusion
	FusionStrategy string
	MatcherOrder   []string
	MethodWeights  map[string]float64

	// Hash matcher
	HashEarlyExit   float64
	HashMaxDistance int
	HashMaxResults  int

	// Icon matcher
	IconEarlyExit float64
	IconScales    []float64
	IconDir       string
	IconThreshold float64

	// Synthesizer gates
	SetGate    float64
	NumberGate float64
	NameGate   float64

	// Result cache
	CacheTTL      time.Duration
	CacheCapacity int

	// OCR
	OCRLanguage string
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		ManifestPath:    getEnvOrDefault("MANIFEST_PATH", "templates.toml"),
		IndexPath:       getEnvOrDefault("INDEX_PATH", "reference_index.db"),
		CardDBPath:      os.Getenv("CARD_DB_PATH"),
		PriceServiceURL: os.Getenv("PRICE_SERVICE_URL"),
		Mode:            OperatingMode(getEnvOrDefault("OPERATING_MODE", "hybrid")),
		MinConfidence:   parseFloatOrDefault("MIN_CONFIDENCE", 0.85),
		NeedsMLFloor:    parseFloatOrDefault("NEEDS_ML_FLOOR", 0.3),
		FusionStrategy:  getEnvOrDefault("FUSION_STRATEGY", "weighted"),
		MatcherOrder:    parseListOrDefault("MATCHER_ORDER", []string{"hash", "icon", "number", "text"}),
		HashEarlyExit:   parseFloatOrDefault("HASH_EARLY_EXIT", 0.95),
		HashMaxDistance: parseIntOrDefault("HASH_MAX_DISTANCE", 12),
		HashMaxResults:  parseIntOrDefault("HASH_MAX_RESULTS", 5),
		IconEarlyExit:   parseFloatOrDefault("ICON_EARLY_EXIT", 0.90),
		IconScales:      []float64{0.8, 1.0, 1.2},
		IconDir:         getEnvOrDefault("ICON_DIR", "set_icons"),
		IconThreshold:   parseFloatOrDefault("ICON_THRESHOLD", 0.80),
		SetGate:         parseFloatOrDefault("SYNTH_SET_GATE", 0.60),
		NumberGate:      parseFloatOrDefault("SYNTH_NUMBER_GATE", 0.60),
		NameGate:        parseFloatOrDefault("SYNTH_NAME_GATE", 0.70),
		CacheTTL:        parseDurationOrDefault("CACHE_TTL", 15*time.Minute),
		CacheCapacity:   parseIntOrDefault("CACHE_CAPACITY", 1024),
		OCRLanguage:     getEnvOrDefault("OCR_LANGUAGE", "eng"),
		MethodWeights: map[string]float64{
			"hash":   0.35,
			"icon":   0.35,
			"number": 0.20,
			"text":   0.10,
		},
	}

	switch cfg.Mode {
	case ModeLocal, ModeML, ModeHybrid:
	default:
		return nil, fmt.Errorf("invalid OPERATING_MODE: %q", cfg.Mode)
	}
	switch cfg.FusionStrategy {
	case "weighted", "max", "consensus":
	default:
		return nil, fmt.Errorf("invalid FUSION_STRATEGY: %q", cfg.FusionStrategy)
	}
	if cfg.MinConfidence <= 0 || cfg.MinConfidence > 1 {
		return nil, fmt.Errorf("MIN_CONFIDENCE must be in (0,1] (got %v)", cfg.MinConfidence)
	}
	if cfg.NeedsMLFloor < 0 || cfg.NeedsMLFloor >= cfg.MinConfidence {
		return nil, fmt.Errorf("NEEDS_ML_FLOOR must be in [0, MIN_CONFIDENCE) (got %v)", cfg.NeedsMLFloor)
	}
	if cfg.HashMaxDistance < 0 || cfg.HashMaxDistance > 64 {
		return nil, fmt.Errorf("HASH_MAX_DISTANCE must be in [0,64] (got %d)", cfg.HashMaxDistance)
	}
	if cfg.CacheTTL <= 0 || cfg.CacheCapacity <= 0 {
		return nil, fmt.Errorf("cache settings must be > 0 (got ttl=%s, capacity=%d)",
			cfg.CacheTTL, cfg.CacheCapacity)
	}
	if len(cfg.MatcherOrder) == 0 {
		return nil, fmt.Errorf("MATCHER_ORDER must name at least one matcher")
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
