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
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 72, cfg.Auth.TokenTTLHours)
	assert.Equal(t, "admin", cfg.Auth.AdminUsername)
	assert.Equal(t, "data", cfg.Eggs.DataDir)
	assert.Equal(t, "images", cfg.Eggs.ImagesDir)
	assert.Equal(t, "processed", cfg.Eggs.ProcessedDir)
	assert.Equal(t, 10, cfg.Eggs.DebounceSecs)
	assert.Equal(t, 10, cfg.Eggs.BoxJumpThreshold)
	assert.Equal(t, 30, cfg.Eggs.MaxRawImages)
	assert.Equal(t, -3, cfg.Eggs.TZOffsetHours)
	assert.Equal(t, "http://localhost:8600", cfg.Detector.BaseURL)
	assert.Equal(t, 30, cfg.Detector.TimeoutSecs)
	assert.InDelta(t, 2.0, cfg.Ingest.RatePerSec, 0.001)
	assert.Equal(t, 5, cfg.Ingest.Burst)
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 24, cfg.Retention.IntervalHours)
	assert.Equal(t, 30, cfg.Retention.MaxAgeDays)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
server:
  port: 9090
log:
  level: debug
  format: console
eggs:
  debounce_secs: 5
  box_jump_threshold: 6
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Eggs.DebounceSecs)
	assert.Equal(t, 6, cfg.Eggs.BoxJumpThreshold)

	// Unset keys keep their defaults.
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 30, cfg.Eggs.MaxRawImages)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SABRINATOR_SERVER_PORT", "8123")
	t.Setenv("SABRINATOR_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestEggsHelpers(t *testing.T) {
	cfg := EggsConfig{DebounceSecs: 10, TZOffsetHours: -3}

	assert.Equal(t, 10*time.Second, cfg.Debounce())

	_, offset := time.Now().In(cfg.Timezone()).Zone()
	assert.Equal(t, -3*3600, offset)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}
