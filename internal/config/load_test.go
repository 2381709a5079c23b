package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck-api/internal/config"
)

// setRequiredEnv populates the settings that have no defaults.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TASKDECK_DATABASE_URL", "postgres://localhost:5432/taskdeck_test")
	t.Setenv("TASKDECK_AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 100, cfg.Queue.Size)
	assert.Equal(t, 30*time.Second, cfg.Queue.SweepInterval)
	assert.Equal(t, 2, cfg.Worker.Count)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Worker.AttemptTimeout)
	assert.Equal(t, time.Hour, cfg.Scanner.Interval)
	assert.Equal(t, 100, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.True(t, cfg.RateLimit.FailOpen)
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TASKDECK_SERVER_PORT", "9090")
	t.Setenv("TASKDECK_SERVER_LOG_LEVEL", "debug")
	t.Setenv("TASKDECK_SCANNER_INTERVAL", "15m")
	t.Setenv("TASKDECK_RATE_LIMIT_LIMIT", "10")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.Scanner.Interval)
	assert.Equal(t, 10, cfg.RateLimit.Limit)
}

func TestLoadMissingSecrets(t *testing.T) {
	t.Setenv("TASKDECK_DATABASE_URL", "")
	t.Setenv("TASKDECK_AUTH_JWT_SECRET", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TASKDECK_SERVER_LOG_LEVEL", "loud")

	_, err := config.Load()
	assert.Error(t, err)
}
