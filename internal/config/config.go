// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Upstream market-data provider
	AlphaVantageAPIKey string
	RequestsPerMinute  int           // Provider quota: requests allowed per window
	QuotaWindow        time.Duration // Quota window length
	FetchMaxAttempts   int
	FetchBackoffBase   time.Duration

	// Analytics
	RiskFreeRate float64 // Annual risk-free rate as a decimal (0.02 = 2%)

	// Optional YAML file seeding portfolios on first boot
	PortfolioSeedFile string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("QUANTLENS_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("PORT", 8010),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		RequestsPerMinute:  getEnvAsInt("PROVIDER_REQUESTS_PER_MINUTE", 8),
		QuotaWindow:        time.Minute,
		FetchMaxAttempts:   getEnvAsInt("FETCH_MAX_ATTEMPTS", 3),
		FetchBackoffBase:   time.Duration(getEnvAsInt("FETCH_BACKOFF_BASE_MS", 500)) * time.Millisecond,
		RiskFreeRate:       getEnvAsFloat("RISK_FREE_RATE", 0.02),
		PortfolioSeedFile:  getEnv("PORTFOLIO_SEED_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("PROVIDER_REQUESTS_PER_MINUTE must be positive, got %d", c.RequestsPerMinute)
	}
	if c.FetchMaxAttempts <= 0 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be positive, got %d", c.FetchMaxAttempts)
	}
	// Provider API key is optional: without it the service still serves
	// metrics from persisted price history.
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
