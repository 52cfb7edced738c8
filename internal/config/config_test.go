package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Window.MaxSamples)
	assert.Equal(t, 2*time.Hour, cfg.Window.MaxAge)
	assert.Equal(t, 80.0, cfg.Scoring.SpeedHighKmh)
	assert.Equal(t, 60*time.Second, cfg.Training.Interval)
	assert.Equal(t, 10, cfg.Training.MinSamples)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.True(t, cfg.Training.OnStart)
	assert.Equal(t, 5*time.Minute, cfg.Assessment.AlertCooldown)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TRAIN_INTERVAL", "5m")
	t.Setenv("WINDOW_MAX_SAMPLES", "20")
	t.Setenv("TRAIN_ON_START", "false")
	t.Setenv("SPEED_HIGH_KMH", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Training.Interval)
	assert.Equal(t, 20, cfg.Window.MaxSamples)
	assert.False(t, cfg.Training.OnStart)
	// unparsable values fall back to the default
	assert.Equal(t, 80.0, cfg.Scoring.SpeedHighKmh)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
redis:
  addr: localhost:6379
training:
  interval: 30s
  trees: 50
scoring:
  speed_medium_kmh: 30
  speed_high_kmh: 70
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Training.Interval)
	assert.Equal(t, 50, cfg.Training.Trees)
	assert.Equal(t, 30.0, cfg.Scoring.SpeedMediumKmh)
	// untouched keys keep env defaults
	assert.Equal(t, 256, cfg.Training.SampleSize)
}

func TestValidate(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)

	bad := *cfg
	bad.Scoring.SpeedMediumKmh = 90
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Training.Interval = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Window.MaxSamples = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.TimeZone = "Mars/Olympus"
	assert.Error(t, bad.Validate())
}
