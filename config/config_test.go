package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypertrader/internal/adapters/logger"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"IS_TESTNET", "REQUESTS_PER_SEC", "CALL_TIMEOUT_SECONDS", "RETRY_MAX_ELAPSED_SECONDS",
		"RISK_TOLERANCE", "DEFAULT_WALLET", "DB_PATH", "KEYSTORE_DIR", "LOG_LEVEL", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsTestnet, "must default to testnet")
	assert.Equal(t, 5, cfg.RequestsPerSec)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, 0.10, cfg.RiskTolerance)
	assert.Equal(t, "default", cfg.DefaultWallet)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("IS_TESTNET", "false")
	t.Setenv("RISK_TOLERANCE", "0.05")
	t.Setenv("CALL_TIMEOUT_SECONDS", "3")
	t.Setenv("DEFAULT_WALLET", "main")
	t.Setenv("METRICS_ADDR", ":9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.IsTestnet)
	assert.Equal(t, 0.05, cfg.RiskTolerance)
	assert.Equal(t, 3*time.Second, cfg.CallTimeout)
	assert.Equal(t, "main", cfg.DefaultWallet)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoadConfig_InvalidRiskTolerance(t *testing.T) {
	tests := []string{"1.0", "1.5", "-0.1", "not-a-number"}
	for _, val := range tests {
		t.Run(val, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("RISK_TOLERANCE", val)
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "RISK_TOLERANCE")
		})
	}
}
