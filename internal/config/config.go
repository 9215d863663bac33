// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is immutable after Load.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Compliance provider (risk scoring + transaction monitoring)
	APIBaseURL string
	APIKey     string

	// Risk screening
	MaxRiskScore    int  // scores above this fail the compliance check
	SanctionsCheck  bool // per-category enable flags
	LaunderingCheck bool
	FraudCheck      bool
	CacheEnabled    bool
	CacheDuration   time.Duration

	// Transaction monitoring
	FlushDelay          time.Duration
	HighValueThresholds map[string]string // asset -> decimal amount, e.g. "SOL=100"

	// Database (optional, uses in-memory audit stores if not set)
	DatabaseURL string

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultMaxRiskScore  = 75
	DefaultCacheDuration = 10 * time.Minute
	DefaultFlushDelay    = 30 * time.Second
)

// DefaultThresholds are the per-asset high-value thresholds applied when
// COMPLIANCE_HIGH_VALUE_THRESHOLDS is not set. Amounts are decimal strings
// in the asset's native unit.
var DefaultThresholds = map[string]string{
	"SOL":  "100",
	"USDC": "10000",
	"USDT": "10000",
	"ETH":  "10",
}

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		APIBaseURL:          os.Getenv("COMPLIANCE_API_URL"), // Required, no default
		APIKey:              os.Getenv("COMPLIANCE_API_KEY"), // Required, no default
		MaxRiskScore:        getEnvInt("MAX_RISK_SCORE", DefaultMaxRiskScore),
		SanctionsCheck:      getEnvBool("SANCTIONS_CHECK", true),
		LaunderingCheck:     getEnvBool("LAUNDERING_CHECK", true),
		FraudCheck:          getEnvBool("FRAUD_CHECK", true),
		CacheEnabled:        getEnvBool("RISK_CACHE_ENABLED", true),
		CacheDuration:       getEnvDuration("RISK_CACHE_DURATION", DefaultCacheDuration),
		FlushDelay:          getEnvDuration("MONITOR_FLUSH_DELAY", DefaultFlushDelay),
		HighValueThresholds: parseThresholds(os.Getenv("COMPLIANCE_HIGH_VALUE_THRESHOLDS")),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("COMPLIANCE_API_KEY is required")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("COMPLIANCE_API_URL is required")
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("COMPLIANCE_API_URL must be an absolute URL")
	}
	if c.MaxRiskScore < 0 || c.MaxRiskScore > 100 {
		return fmt.Errorf("MAX_RISK_SCORE must be between 0 and 100")
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// parseThresholds parses "SOL=100,USDC=10000" into a threshold table.
// Empty or malformed input falls back to DefaultThresholds.
func parseThresholds(s string) map[string]string {
	if s == "" {
		return DefaultThresholds
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[strings.ToUpper(k)] = v
	}
	if len(out) == 0 {
		return DefaultThresholds
	}
	return out
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
