// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Risk scoring
	RiskImpactFactor float64 // How much a maximal risk score can discount revenue (0-1)

	// Early-warning thresholds
	StagnationThresholdDays   int
	ActivityDropThresholdDays int
	RiskAccelerationDelta     float64
	RiskAccelerationWindow    time.Duration
	SweepInterval             time.Duration // 0 disables the background sweeper

	// AI detector
	OpenAIAPIKey  string // Optional; rule-only evaluation when unset
	OpenAIModel   string
	AICallTimeout time.Duration

	// Rollup concurrency
	EvalConcurrency int // Max concurrent per-opportunity evaluations in rollups

	// Security
	AdminSecret  string // Admin API secret for catalog/quota management
	RateLimitRPM int

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort                   = "8080"
	DefaultEnv                    = "development"
	DefaultLogLevel               = "info"
	DefaultRiskImpactFactor       = 0.5
	DefaultStagnationDays         = 14
	DefaultActivityDropDays       = 10
	DefaultRiskAccelerationDelta  = 0.15
	DefaultRiskAccelerationWindow = 7 * 24 * time.Hour
	DefaultAICallTimeout          = 8 * time.Second
	DefaultEvalConcurrency        = 8
	DefaultRateLimitRPM           = 120
	DefaultOpenAIModel            = "gpt-4o-mini"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                      getEnv("PORT", DefaultPort),
		Env:                       getEnv("ENV", DefaultEnv),
		LogLevel:                  getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:               os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RiskImpactFactor:          getEnvFloat("RISK_IMPACT_FACTOR", DefaultRiskImpactFactor),
		StagnationThresholdDays:   getEnvInt("STAGNATION_THRESHOLD_DAYS", DefaultStagnationDays),
		ActivityDropThresholdDays: getEnvInt("ACTIVITY_DROP_THRESHOLD_DAYS", DefaultActivityDropDays),
		RiskAccelerationDelta:     getEnvFloat("RISK_ACCELERATION_DELTA", DefaultRiskAccelerationDelta),
		RiskAccelerationWindow:    time.Duration(getEnvInt("RISK_ACCELERATION_WINDOW_DAYS", 7)) * 24 * time.Hour,
		SweepInterval:             time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 0)) * time.Second,
		OpenAIAPIKey:              os.Getenv("OPENAI_API_KEY"), // Optional, rule-only detection if not set
		OpenAIModel:               getEnv("OPENAI_MODEL", DefaultOpenAIModel),
		AICallTimeout:             time.Duration(getEnvInt("AI_CALL_TIMEOUT_MS", int(DefaultAICallTimeout/time.Millisecond))) * time.Millisecond,
		EvalConcurrency:           getEnvInt("EVAL_CONCURRENCY", DefaultEvalConcurrency),
		AdminSecret:               os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:              getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		OTLPEndpoint:              os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all configuration values are usable
func (c *Config) Validate() error {
	if c.RiskImpactFactor < 0 || c.RiskImpactFactor > 1 {
		return fmt.Errorf("RISK_IMPACT_FACTOR must be in [0,1], got %v", c.RiskImpactFactor)
	}
	if c.StagnationThresholdDays <= 0 {
		return fmt.Errorf("STAGNATION_THRESHOLD_DAYS must be positive")
	}
	if c.ActivityDropThresholdDays <= 0 {
		return fmt.Errorf("ACTIVITY_DROP_THRESHOLD_DAYS must be positive")
	}
	if c.RiskAccelerationDelta <= 0 || c.RiskAccelerationDelta > 1 {
		return fmt.Errorf("RISK_ACCELERATION_DELTA must be in (0,1]")
	}
	if c.EvalConcurrency < 1 {
		return fmt.Errorf("EVAL_CONCURRENCY must be at least 1")
	}
	if c.AICallTimeout <= 0 {
		return fmt.Errorf("AI_CALL_TIMEOUT_MS must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AIEnabled reports whether the AI-assisted detector can be constructed.
func (c *Config) AIEnabled() bool {
	return c.OpenAIAPIKey != ""
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
