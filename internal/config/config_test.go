package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.Validation.StopLossPct)
	assert.Equal(t, 20, cfg.Mining.MinSamples)
	assert.Equal(t, time.Hour, cfg.Mining.CrossTFWindow)
	assert.Equal(t, "binance", cfg.Exchanges.Priority[0])
	assert.Equal(t, ":8093", cfg.HTTP.ListenAddr)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
validation:
  stop_loss_pct: 3.5
  max_workers: 4
mining:
  min_accuracy: 70
cache:
  candle_ttl: 5m
`)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3.5, cfg.Validation.StopLossPct)
	assert.Equal(t, 4, cfg.Validation.MaxWorkers)
	assert.Equal(t, 70.0, cfg.Mining.MinAccuracy)
	assert.Equal(t, 5*time.Minute, cfg.Cache.CandleTTL)
	// untouched keys keep their defaults
	assert.Equal(t, 0.1, cfg.Validation.MinProfitPct)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("SIGVET_PG_DSN", "postgres://env/sigvet")
	t.Setenv("SIGVET_REDIS_ADDR", "localhost:6380")
	t.Setenv("SIGVET_REDIS_PASSWORD", "hunter2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/sigvet", cfg.Database.DSN)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
