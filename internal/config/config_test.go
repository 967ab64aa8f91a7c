package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/facility")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Port)
	assert.Equal(t, 10*time.Second, cfg.Jobs.PollInterval)
	assert.Equal(t, 3, cfg.Jobs.MaxConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.CacheTTL)
	assert.Equal(t, time.Hour, cfg.Alerts.DedupWindow)
	assert.Equal(t, "@every 1m", cfg.Alerts.SweepSchedule)
	assert.Equal(t, 230.0, cfg.Limits.NominalVoltage)
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestLoadRejectsNonPositiveConcurrency(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/facility")
	t.Setenv("JOB_MAX_CONCURRENCY", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOB_MAX_CONCURRENCY")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/facility")
	t.Setenv("JOB_MAX_CONCURRENCY", "7")
	t.Setenv("JOB_POLL_INTERVAL", "2s")
	t.Setenv("ALERT_DEDUP_WINDOW", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Jobs.MaxConcurrency)
	assert.Equal(t, 2*time.Second, cfg.Jobs.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Alerts.DedupWindow)
}
