// Package ingest turns uploaded camera frames into observations for the
// tracker. Detection failures are soft: the frame is kept, the observation
// is dropped, and the next upload resumes against the unchanged baseline.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/EduardoMirandaz/sabrinator/internal/config"
	"github.com/EduardoMirandaz/sabrinator/internal/model"
	"github.com/EduardoMirandaz/sabrinator/internal/tracker"
)

// Counter is the piece of the detection adapter the ingress needs.
type Counter interface {
	Count(ctx context.Context, path string) (int, error)
}

// Result reports what happened to one frame.
type Result struct {
	File  string
	Bytes int
	Count int
	// Observed is false when detection failed and the frame was dropped
	// from the state machine.
	Observed bool
	// Event is non-nil when this frame confirmed a change.
	Event *model.ChangeEvent
}

// Pipeline saves frames, counts eggs and feeds the tracker.
type Pipeline struct {
	det Counter
	tr  *tracker.Tracker
	cfg config.EggsConfig
	now func() time.Time
}

// New builds the ingest pipeline.
func New(det Counter, tr *tracker.Tracker, cfg config.EggsConfig) *Pipeline {
	return &Pipeline{
		det: det,
		tr:  tr,
		cfg: cfg,
		now: func() time.Time { return time.Now().In(cfg.Timezone()) },
	}
}

// HandleFrame persists one uploaded frame and runs it through detection and
// the change detector. Only the save is a hard failure; everything after is
// best-effort from the uploader's point of view.
func (p *Pipeline) HandleFrame(ctx context.Context, data []byte) (*Result, error) {
	now := p.now()
	name := frameName(now)
	rawPath := filepath.Join(p.cfg.ImagesDir, name)

	if err := os.MkdirAll(p.cfg.ImagesDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "ingest: create images dir")
	}
	if err := os.WriteFile(rawPath, data, 0o644); err != nil {
		return nil, eris.Wrapf(err, "ingest: save frame %s", rawPath)
	}

	res := &Result{File: rawPath, Bytes: len(data)}

	count, err := p.det.Count(ctx, rawPath)
	if err != nil {
		zap.L().Warn("detection failed, dropping observation",
			zap.String("frame", rawPath),
			zap.Error(err),
		)
	} else {
		res.Count = count
		res.Observed = true
		ev, err := p.tr.Observe(ctx, tracker.Observation{
			Time:          now,
			Count:         count,
			RawPath:       rawPath,
			ProcessedPath: filepath.Join(p.cfg.ProcessedDir, name),
		})
		if err != nil {
			zap.L().Error("observation failed", zap.String("frame", rawPath), zap.Error(err))
		}
		res.Event = ev
	}

	p.pruneRaw()
	return res, nil
}

// pruneRaw keeps only the newest MaxRawImages frames. Filenames start with
// a chronological timestamp, so an ascending name sort is oldest-first.
func (p *Pipeline) pruneRaw() {
	if p.cfg.MaxRawImages <= 0 {
		return
	}
	entries, err := os.ReadDir(p.cfg.ImagesDir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= p.cfg.MaxRawImages {
		return
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-p.cfg.MaxRawImages] {
		if err := os.Remove(filepath.Join(p.cfg.ImagesDir, name)); err != nil {
			zap.L().Debug("prune failed", zap.String("frame", name), zap.Error(err))
		}
	}
}

// frameName builds the sortable timestamped filename shared by raw and
// processed snapshots.
func frameName(t time.Time) string {
	return fmt.Sprintf("%s_%06d.jpg", t.Format("20060102_150405"), t.Nanosecond()/1000)
}
