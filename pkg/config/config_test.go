package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "resilience-core", cfg.App.Name)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.BackoffMultiplier)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Jitter)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Breaker.ResetTimeout)
	assert.Equal(t, 3, cfg.Breaker.SuccessThresholdToClose)
	assert.Equal(t, 10, cfg.Checkpoint.MaxCheckpoints)
	assert.Equal(t, 5*time.Minute, cfg.Recovery.HealthWindow)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "2")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("CHECKPOINT_MAX_CHECKPOINTS", "5")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2, cfg.Breaker.FailureThreshold)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr())
	assert.Equal(t, 5, cfg.Checkpoint.MaxCheckpoints)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
retry:
  max_attempts: 4
  base_delay: 250ms
breaker:
  reset_timeout: 10s
checkpoint:
  key_prefix: snapshots
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resilience.yaml"), content, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, "snapshots", cfg.Checkpoint.KeyPrefix)
	// Untouched keys keep defaults.
	assert.Equal(t, 3, cfg.Breaker.SuccessThresholdToClose)
}

func TestLoad_InvalidConfig(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Recovery.MaxRetries)
	assert.Equal(t, 100, cfg.Notifications.MaxPerSourcePerHour)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"multiplier below one", func(c *Config) { c.Retry.BackoffMultiplier = 0.5 }},
		{"max delay below base", func(c *Config) { c.Retry.MaxDelay = c.Retry.BaseDelay / 2 }},
		{"zero failure threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }},
		{"zero reset timeout", func(c *Config) { c.Breaker.ResetTimeout = 0 }},
		{"zero success threshold", func(c *Config) { c.Breaker.SuccessThresholdToClose = 0 }},
		{"zero max retries", func(c *Config) { c.Recovery.MaxRetries = 0 }},
		{"zero health window", func(c *Config) { c.Recovery.HealthWindow = 0 }},
		{"zero max checkpoints", func(c *Config) { c.Checkpoint.MaxCheckpoints = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
