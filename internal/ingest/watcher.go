package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Watcher feeds frames dropped into a spool directory through the pipeline,
// for cameras that write to a mount instead of POSTing. Each file is
// ingested once and then removed from the spool.
type Watcher struct {
	pipeline *Pipeline
	dir      string
	// settle gives the camera time to finish writing before we read.
	settle time.Duration
}

// NewWatcher creates a spool watcher over dir.
func NewWatcher(pipeline *Pipeline, dir string) *Watcher {
	return &Watcher{pipeline: pipeline, dir: dir, settle: 200 * time.Millisecond}
}

// Run watches the spool until ctx is cancelled. Files already present at
// startup are ingested first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return eris.Wrap(err, "ingest: create spool dir")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "ingest: create watcher")
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return eris.Wrapf(err, "ingest: watch %s", w.dir)
	}

	w.drainExisting(ctx)

	zap.L().Info("watching spool", zap.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isJPEG(event.Name) {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.settle):
			}
			w.ingestFile(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("spool watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) drainExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if !e.IsDir() && isJPEG(e.Name()) {
			w.ingestFile(ctx, filepath.Join(w.dir, e.Name()))
		}
	}
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		zap.L().Warn("spool read failed", zap.String("file", path), zap.Error(err))
		return
	}
	if _, err := w.pipeline.HandleFrame(ctx, data); err != nil {
		zap.L().Error("spool ingest failed", zap.String("file", path), zap.Error(err))
		return
	}
	if err := os.Remove(path); err != nil {
		zap.L().Warn("spool cleanup failed", zap.String("file", path), zap.Error(err))
	}
}

func isJPEG(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jpg" || ext == ".jpeg"
}
