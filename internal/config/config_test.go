package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.DB.MaxOpenConns)
	assert.Equal(t, "migrations", cfg.DB.MigrationsDir)
	assert.Equal(t, 60*time.Second, cfg.Pricing.Interval)
	assert.Equal(t, 5, cfg.Pricing.MaxRetries)
	assert.Equal(t, 30, cfg.Pricing.APIPermitsPerMin)
	assert.Equal(t, 30*time.Second, cfg.Classify.Interval)
	assert.Equal(t, 10, cfg.Sync.RetryBaseMinutes)
	assert.Equal(t, 240, cfg.Sync.RetryMaxMinutes)
	assert.Equal(t, "avco", cfg.Recalc.ConsumerGroup)
	assert.Equal(t, 3, cfg.Recalc.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Recalc.RetryBase)
	assert.Equal(t, 8080, cfg.Server.HealthPort)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PRICING_MAX_RETRIES", "7")
	t.Setenv("PRICE_API_PERMITS_PER_MIN", "10")
	t.Setenv("CLASSIFY_INTERVAL_SEC", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Pricing.MaxRetries)
	assert.Equal(t, 10, cfg.Pricing.APIPermitsPerMin)
	assert.Equal(t, 5*time.Second, cfg.Classify.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PRICING_MAX_RETRIES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Pricing.MaxRetries)
}

func TestLoad_ValidationRejectsBadRetries(t *testing.T) {
	t.Setenv("PRICING_MAX_RETRIES", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "PRICING_MAX_RETRIES")
}
