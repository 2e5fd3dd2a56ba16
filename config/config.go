package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"hypertrader/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
//
// Exchange API credentials deliberately do NOT appear here: they live
// encrypted in the keystore and are unlocked per request.
type Config struct {
	// Exchange
	IsTestnet       bool
	RequestsPerSec  int           // Client-side API rate limit
	CallTimeout     time.Duration // Per-call timeout for exchange operations
	RetryMaxElapsed time.Duration // Retry budget for market-data reads

	// Risk
	RiskTolerance float64 // Accepted relative deviation between realized and requested risk
	DefaultWallet string  // Wallet ID used when a request names none

	// Storage
	DBPath      string
	KeystoreDir string

	// Observability
	LogLevel    logger.LogLevel
	MetricsAddr string // e.g. ":9090"; empty disables the metrics endpoint
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	cfg.RequestsPerSec = getEnvAsInt("REQUESTS_PER_SEC", 5)
	if cfg.RequestsPerSec <= 0 {
		errs = append(errs, "REQUESTS_PER_SEC must be positive")
	}

	callTimeoutSeconds := getEnvAsInt("CALL_TIMEOUT_SECONDS", 10)
	if callTimeoutSeconds <= 0 {
		errs = append(errs, "CALL_TIMEOUT_SECONDS must be positive")
	}
	cfg.CallTimeout = time.Duration(callTimeoutSeconds) * time.Second

	retryMaxSeconds := getEnvAsInt("RETRY_MAX_ELAPSED_SECONDS", 15)
	if retryMaxSeconds <= 0 {
		errs = append(errs, "RETRY_MAX_ELAPSED_SECONDS must be positive")
	}
	cfg.RetryMaxElapsed = time.Duration(retryMaxSeconds) * time.Second

	cfg.RiskTolerance, err = getEnvAsFloatRequired("RISK_TOLERANCE", 0.10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_TOLERANCE: %v", err))
	} else if cfg.RiskTolerance < 0 || cfg.RiskTolerance >= 1.0 {
		errs = append(errs, "RISK_TOLERANCE must be in [0.0, 1.0)")
	}

	cfg.DefaultWallet = getEnv("DEFAULT_WALLET", "default")

	cfg.DBPath = getEnv("DB_PATH", "./data/hypertrader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.KeystoreDir = getEnv("KEYSTORE_DIR", "./data/wallets")
	if cfg.KeystoreDir == "" {
		errs = append(errs, "KEYSTORE_DIR must be set")
	}

	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
