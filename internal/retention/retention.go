// Package retention prunes processed snapshots that no event references.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/EduardoMirandaz/sabrinator/internal/config"
	"github.com/EduardoMirandaz/sabrinator/internal/eventlog"
)

// Sweeper removes processed images past the retention age, except the ones
// the event log still points at. Raw frames are already capped by the
// ingest pipeline.
type Sweeper struct {
	log *eventlog.Log
	cfg config.Config
	now func() time.Time
}

// New builds a Sweeper.
func New(log *eventlog.Log, cfg config.Config) *Sweeper {
	return &Sweeper{log: log, cfg: cfg, now: time.Now}
}

// Sweep performs one pass and returns the number of files removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	events, err := s.log.Read()
	if err != nil {
		return 0, eris.Wrap(err, "retention: read log")
	}

	referenced := map[string]bool{}
	for _, ev := range events {
		for _, p := range []*string{ev.Before.ImagePath, ev.After.ImagePath} {
			if p != nil && *p != "" {
				referenced[filepath.Base(*p)] = true
			}
		}
	}

	cutoff := s.now().Add(-time.Duration(s.cfg.Retention.MaxAgeDays) * 24 * time.Hour)
	entries, err := os.ReadDir(s.cfg.Eggs.ProcessedDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "retention: read processed dir")
	}

	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}
		if referenced[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.Eggs.ProcessedDir, e.Name())); err != nil {
			zap.L().Warn("retention remove failed", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// RunPeriodic sweeps on the configured interval until ctx is cancelled.
// Failures are logged, never fatal.
func (s *Sweeper) RunPeriodic(ctx context.Context) error {
	interval := time.Duration(s.cfg.Retention.IntervalHours) * time.Hour
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				zap.L().Warn("retention sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				zap.L().Info("retention sweep", zap.Int("removed", removed))
			}
		}
	}
}
