// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the history database (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Allocation
	RiskFreeRate           float64
	OptimizerMaxIterations int
	OptimizerTolerance     float64
	OptimizerTimeout       time.Duration
	MinDisplayWeight       float64 // Holdings below this share are hidden from summaries

	// Clustering
	ClusterCount           int
	ClusterSeed            uint64
	DiagnosticRiskFreeRate float64

	// Default request window
	DefaultSymbols []string
	LookbackDays   int

	// Cron schedule (with seconds) for history database maintenance; empty disables it
	MaintenanceSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FRONTIER_DATA_DIR", "")
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
		DataDir:                absDataDir,
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		Port:                   getEnvAsInt("PORT", 8080),
		DevMode:                getEnvAsBool("DEV_MODE", false),
		RiskFreeRate:           getEnvAsFloat("RISK_FREE_RATE", 0.0),
		OptimizerMaxIterations: getEnvAsInt("OPTIMIZER_MAX_ITERATIONS", 5000),
		OptimizerTolerance:     getEnvAsFloat("OPTIMIZER_TOLERANCE", 1e-10),
		OptimizerTimeout:       time.Duration(getEnvAsInt("OPTIMIZER_TIMEOUT_SECONDS", 30)) * time.Second,
		MinDisplayWeight:       getEnvAsFloat("MIN_DISPLAY_WEIGHT", 0.01),
		ClusterCount:           getEnvAsInt("CLUSTER_COUNT", 3),
		ClusterSeed:            uint64(getEnvAsInt("CLUSTER_SEED", 42)),
		DiagnosticRiskFreeRate: getEnvAsFloat("DIAGNOSTIC_RISK_FREE_RATE", 0.05),
		DefaultSymbols:         getEnvAsList("DEFAULT_SYMBOLS"),
		LookbackDays:           getEnvAsInt("LOOKBACK_DAYS", 3*365),
		MaintenanceSchedule:    getEnv("MAINTENANCE_SCHEDULE", "0 0 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HistoryDBPath returns the location of the price history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// Validate rejects values the services cannot work with
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if math.IsNaN(c.RiskFreeRate) || math.IsInf(c.RiskFreeRate, 0) {
		return fmt.Errorf("invalid RISK_FREE_RATE %v", c.RiskFreeRate)
	}
	if math.IsNaN(c.DiagnosticRiskFreeRate) || math.IsInf(c.DiagnosticRiskFreeRate, 0) {
		return fmt.Errorf("invalid DIAGNOSTIC_RISK_FREE_RATE %v", c.DiagnosticRiskFreeRate)
	}
	if c.OptimizerMaxIterations < 1 {
		return fmt.Errorf("OPTIMIZER_MAX_ITERATIONS must be positive, got %d", c.OptimizerMaxIterations)
	}
	if !(c.OptimizerTolerance > 0) {
		return fmt.Errorf("OPTIMIZER_TOLERANCE must be positive, got %v", c.OptimizerTolerance)
	}
	if c.OptimizerTimeout < 0 {
		return fmt.Errorf("OPTIMIZER_TIMEOUT_SECONDS must not be negative")
	}
	if c.MinDisplayWeight < 0 || c.MinDisplayWeight >= 1 {
		return fmt.Errorf("MIN_DISPLAY_WEIGHT must be in [0, 1), got %v", c.MinDisplayWeight)
	}
	if c.ClusterCount < 1 {
		return fmt.Errorf("CLUSTER_COUNT must be at least 1, got %d", c.ClusterCount)
	}
	if c.LookbackDays < 2 {
		return fmt.Errorf("LOOKBACK_DAYS must be at least 2, got %d", c.LookbackDays)
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, strings.ToUpper(s))
		}
	}
	return out
}
