package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EduardoMirandaz/sabrinator/internal/config"
	"github.com/EduardoMirandaz/sabrinator/internal/eventlog"
	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

func testSweeper(t *testing.T) (*Sweeper, *eventlog.Log, config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Eggs: config.EggsConfig{
			DataDir:      dir,
			ProcessedDir: filepath.Join(dir, "processed"),
		},
		Retention: config.RetentionConfig{MaxAgeDays: 30},
	}
	require.NoError(t, os.MkdirAll(cfg.Eggs.ProcessedDir, 0o755))

	log := eventlog.New(cfg.Eggs.DataDir)
	s := New(log, cfg)
	s.now = func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return s, log, cfg
}

func writeAged(t *testing.T, dir, name string, age time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))
	mtime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestSweepRemovesOldUnreferenced(t *testing.T) {
	s, log, cfg := testSweeper(t)

	writeAged(t, cfg.Eggs.ProcessedDir, "old_unreferenced.jpg", 40*24*time.Hour)
	writeAged(t, cfg.Eggs.ProcessedDir, "old_referenced.jpg", 40*24*time.Hour)
	writeAged(t, cfg.Eggs.ProcessedDir, "recent.jpg", 2*24*time.Hour)

	require.NoError(t, log.Append(model.ChangeEvent{
		BoxID: 1,
		After: model.Snapshot{
			Count:     5,
			Timestamp: "2025-01-01T08:00:00.000000-03:00",
			ImagePath: model.StringPtr("processed/old_referenced.jpg"),
		},
	}))

	removed, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(cfg.Eggs.ProcessedDir, "old_unreferenced.jpg"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(cfg.Eggs.ProcessedDir, "old_referenced.jpg"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Eggs.ProcessedDir, "recent.jpg"))
	assert.NoError(t, err)
}

func TestSweepIgnoresNonImages(t *testing.T) {
	s, _, cfg := testSweeper(t)

	writeAged(t, cfg.Eggs.ProcessedDir, "notes.txt", 40*24*time.Hour)

	removed, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = os.Stat(filepath.Join(cfg.Eggs.ProcessedDir, "notes.txt"))
	assert.NoError(t, err)
}

func TestSweepMissingDir(t *testing.T) {
	s, _, cfg := testSweeper(t)
	require.NoError(t, os.RemoveAll(cfg.Eggs.ProcessedDir))

	removed, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
