package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Engine.BatchSize)
	require.Equal(t, 50, cfg.Engine.DirectionsMaxWaypoints)
	require.Equal(t, "next-first", cfg.Engine.AnchorStrategy)
	require.Equal(t, "driving-car", cfg.ORS.Profile)
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
port: "9090"
engine:
  batch_size: 10
  dwell_minutes: 3.5
  anchor_strategy: next-centroid
geocoder:
  cache_ttl: 1h
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("BATCH_SIZE", "12")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, 12, cfg.Engine.BatchSize)
	require.Equal(t, 3.5, cfg.Engine.DwellMinutes)
	require.Equal(t, "next-centroid", cfg.Engine.AnchorStrategy)
	require.Equal(t, time.Hour, cfg.Geocoder.CacheTTL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")

	t.Setenv("BATCH_SIZE", "zero")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("BATCH_SIZE", "0")
	_, err = Load()
	require.ErrorContains(t, err, "batch size")

	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("ANCHOR_STRATEGY", "random")
	_, err = Load()
	require.ErrorContains(t, err, "anchor strategy")
}
