package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  env: prod
  log_level: debug
  http_addr: ":9000"
  report_timezone: Europe/London
store:
  path: /tmp/tp.db
  op_timeout_seconds: 3
  retry_attempts: 5
  retry_backoff_ms: 50
ingest:
  rate_per_second: 10
  rate_burst: 15
reconcile:
  enabled: true
  interval_seconds: 60
  staleness_seconds: 90
  quote_max_age_seconds: 300
  confidence: 0.4
  run_immediately: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, ":9000", cfg.App.HTTPAddr)
	assert.Equal(t, "Europe/London", cfg.App.ReportTimezone)
	assert.Equal(t, 3*time.Second, cfg.Store.OpTimeout())
	assert.Equal(t, 50*time.Millisecond, cfg.Store.RetryBackoff())
	assert.Equal(t, 5, cfg.Store.RetryAttempts)
	assert.Equal(t, 10.0, cfg.Ingest.RatePerSecond)
	assert.True(t, cfg.Reconcile.Enabled)
	assert.Equal(t, time.Minute, cfg.Reconcile.Interval())
	assert.Equal(t, 90*time.Second, cfg.Reconcile.Staleness())
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.QuoteMaxAge())
	assert.Equal(t, 0.4, cfg.Reconcile.Confidence)
	assert.True(t, cfg.Reconcile.RunImmediately)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  env: dev
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":8097", cfg.App.HTTPAddr)
	assert.Equal(t, "America/New_York", cfg.App.ReportTimezone)
	assert.Equal(t, "data/tradepulse.db", cfg.Store.Path)
	assert.Equal(t, 5*time.Second, cfg.Store.OpTimeout())
	assert.Equal(t, 3, cfg.Store.RetryAttempts)
	assert.Equal(t, 20.0, cfg.Ingest.RatePerSecond)
	assert.Equal(t, 40, cfg.Ingest.RateBurst)
	assert.Equal(t, 2*time.Minute, cfg.Reconcile.Interval())
	assert.Equal(t, 2*time.Minute, cfg.Reconcile.Staleness())
	assert.Equal(t, 0.5, cfg.Reconcile.Confidence)
	assert.False(t, cfg.Reconcile.Enabled)
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	path := writeConfig(t, `
app:
  report_timezone: Mars/Olympus_Mons
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "report_timezone")
}

func TestLoadRejectsTinyIntervals(t *testing.T) {
	path := writeConfig(t, `
reconcile:
  interval_seconds: 1
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "interval_seconds")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}
