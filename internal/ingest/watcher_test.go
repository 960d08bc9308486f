package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsJPEG(t *testing.T) {
	assert.True(t, isJPEG("frame.jpg"))
	assert.True(t, isJPEG("frame.JPG"))
	assert.True(t, isJPEG("frame.jpeg"))
	assert.False(t, isJPEG("frame.png"))
	assert.False(t, isJPEG("frame"))
}

func TestWatcherDrainsExistingFiles(t *testing.T) {
	det := &fakeDetector{count: 5}
	p, cfg := newPipeline(t, det)

	spool := filepath.Join(t.TempDir(), "spool")
	require.NoError(t, os.MkdirAll(spool, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(spool, "frame.jpg"), []byte("jpeg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(spool, "notes.txt"), []byte("skip"), 0o644))

	w := NewWatcher(p, spool)
	w.settle = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The pre-existing frame is ingested and removed from the spool.
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(spool, "frame.jpg"))
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	// Non-images are left alone.
	_, err := os.Stat(filepath.Join(spool, "notes.txt"))
	assert.NoError(t, err)

	entries, err := os.ReadDir(cfg.ImagesDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherIngestsNewFiles(t *testing.T) {
	det := &fakeDetector{count: 5}
	p, cfg := newPipeline(t, det)

	spool := filepath.Join(t.TempDir(), "spool")
	w := NewWatcher(p, spool)
	w.settle = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register before dropping the file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(spool, "frame.jpg"), []byte("jpeg"), 0o644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(spool, "frame.jpg"))
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	entries, err := os.ReadDir(cfg.ImagesDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	cancel()
	require.NoError(t, <-done)
}
