// Package tracker holds the change-detection and confirmation state
// machine. It consumes per-upload observations, debounces noisy counts and
// appends confirmed change events to the log.
package tracker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/EduardoMirandaz/sabrinator/internal/config"
	"github.com/EduardoMirandaz/sabrinator/internal/eventlog"
	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

// Snapshotter produces the annotated confirmation snapshot for an
// observation. The tracker only asks for one when an event is actually
// written.
type Snapshotter interface {
	Process(ctx context.Context, src, dst string) (int, error)
}

// Observation is one (timestamp, count, image) sample from the ingress.
type Observation struct {
	Time          time.Time
	Count         int
	RawPath       string
	ProcessedPath string
}

type baseline struct {
	count int
	time  time.Time
	image *string
}

type pendingChange struct {
	newCount  int
	firstSeen time.Time
	prevCount int
	prevImage *string
}

// Tracker owns the baseline and the single pending change. All of Observe
// runs inside one mutex, including the log append, so concurrent uploads
// cannot race the baseline against the persisted log.
type Tracker struct {
	mu    sync.Mutex
	log   *eventlog.Log
	snaps Snapshotter
	cfg   config.EggsConfig

	baseline      *baseline
	pending       *pendingChange
	boxID         int
	boxInsertedAt time.Time
	takerName     string
}

// New returns a Tracker with no baseline; the first observation seeds it
// from the log or synthesizes the initial event.
func New(log *eventlog.Log, snaps Snapshotter, cfg config.EggsConfig) *Tracker {
	return &Tracker{
		log:       log,
		snaps:     snaps,
		cfg:       cfg,
		boxID:     1,
		takerName: "unknown",
	}
}

// Observe runs one observation through the state machine. It returns the
// confirmed event when one was appended, nil otherwise.
func (t *Tracker) Observe(ctx context.Context, obs Observation) (*model.ChangeEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.baseline == nil {
		return t.coldStart(ctx, obs)
	}

	// Count equal to baseline is noise; drop any pending change.
	if obs.Count == t.baseline.count {
		t.pending = nil
		return nil, nil
	}

	// No candidate yet, or the observed value itself moved: (re)open the
	// debounce window against the unchanged baseline.
	if t.pending == nil || obs.Count != t.pending.newCount {
		t.pending = &pendingChange{
			newCount:  obs.Count,
			firstSeen: obs.Time,
			prevCount: t.baseline.count,
			prevImage: t.baseline.image,
		}
		return nil, nil
	}

	if obs.Time.Sub(t.pending.firstSeen) < t.cfg.Debounce() {
		return nil, nil
	}
	return t.confirm(ctx, obs)
}

// coldStart seeds the baseline. If the log already has a confirmed event its
// after side becomes the baseline and nothing is written. An empty log with
// no processed snapshots synthesizes the initial 0 -> count event.
func (t *Tracker) coldStart(ctx context.Context, obs Observation) (*model.ChangeEvent, error) {
	last, err := t.lastConfirmed()
	if err != nil {
		return nil, err
	}
	if last != nil {
		t.baseline = &baseline{count: last.count, time: last.time, image: last.image}
		t.boxID = last.boxID
		t.boxInsertedAt = last.time
		return nil, nil
	}

	hasProcessed := hasJPEG(t.cfg.ProcessedDir)
	var ev *model.ChangeEvent
	var image *string
	if !hasProcessed {
		if _, err := t.snaps.Process(ctx, obs.RawPath, obs.ProcessedPath); err != nil {
			zap.L().Warn("initial snapshot failed", zap.String("image", obs.RawPath), zap.Error(err))
		}
		image = model.StringPtr(obs.ProcessedPath)
		initial := t.buildEvent(0, obs.Count, obs.Time, obs.Time, nil, image)
		if err := t.log.Append(initial); err != nil {
			return nil, eris.Wrap(err, "tracker: append initial event")
		}
		ev = &initial
	}

	t.baseline = &baseline{count: obs.Count, time: obs.Time, image: image}
	if t.boxInsertedAt.IsZero() {
		t.boxInsertedAt = obs.Time
	}
	return ev, nil
}

// confirm writes the event for a pending change that survived the debounce
// window. The baseline moves only after the append succeeds, so a storage
// failure leaves the pending change armed for the next observation.
func (t *Tracker) confirm(ctx context.Context, obs Observation) (*model.ChangeEvent, error) {
	p := t.pending

	// Jumps past the threshold mean the box was replaced, not that eggs
	// were taken or added; attribution resets with a fresh box id.
	if p.newCount-t.baseline.count > t.cfg.BoxJumpThreshold {
		t.boxID++
		t.boxInsertedAt = obs.Time
	}

	if _, err := t.snaps.Process(ctx, obs.RawPath, obs.ProcessedPath); err != nil {
		zap.L().Warn("confirmation snapshot failed", zap.String("image", obs.RawPath), zap.Error(err))
	}
	after := model.StringPtr(obs.ProcessedPath)

	ev := t.buildEvent(p.prevCount, p.newCount, t.baseline.time, obs.Time, p.prevImage, after)
	if err := t.log.Append(ev); err != nil {
		return nil, eris.Wrap(err, "tracker: append change event")
	}

	t.baseline = &baseline{count: p.newCount, time: obs.Time, image: after}
	t.pending = nil

	zap.L().Info("change confirmed",
		zap.Int("before", ev.Before.Count),
		zap.Int("after", ev.After.Count),
		zap.Int("delta", ev.Delta),
		zap.Int("box_id", ev.BoxID),
	)
	return &ev, nil
}

func (t *Tracker) buildEvent(beforeCount, afterCount int, beforeTime, afterTime time.Time, beforeImage, afterImage *string) model.ChangeEvent {
	taker := t.takerName
	insertedAt := t.boxInsertedAt
	if insertedAt.IsZero() {
		insertedAt = afterTime
	}
	return model.ChangeEvent{
		Before: model.Snapshot{
			Count:     beforeCount,
			Timestamp: eventlog.FormatTimestamp(beforeTime),
			ImagePath: beforeImage,
		},
		After: model.Snapshot{
			Count:     afterCount,
			Timestamp: eventlog.FormatTimestamp(afterTime),
			ImagePath: afterImage,
		},
		ConfirmedDelaySeconds: t.cfg.DebounceSecs,
		Delta:                 afterCount - beforeCount,
		BoxID:                 t.boxID,
		Box: &model.Box{
			ID:         t.boxID,
			InsertedAt: eventlog.FormatTimestamp(insertedAt),
			PayerName:  t.cfg.PayerName,
			PayerPix:   t.cfg.PayerPix,
		},
		TakerName: model.StringPtr(taker),
	}
}

type lastConfirmed struct {
	count int
	time  time.Time
	image *string
	boxID int
}

// lastConfirmed reads the baseline out of the final log entry. Entries with
// unparsable timestamps are treated as absent, same as an empty log.
func (t *Tracker) lastConfirmed() (*lastConfirmed, error) {
	events, err := t.log.Read()
	if err != nil {
		return nil, eris.Wrap(err, "tracker: seed baseline")
	}
	if len(events) == 0 {
		return nil, nil
	}
	last := events[len(events)-1]
	ts, err := eventlog.ParseTimestamp(last.After.Timestamp, t.cfg.Timezone())
	if err != nil {
		return nil, nil
	}
	boxID := last.BoxID
	if boxID == 0 {
		boxID = 1
	}
	return &lastConfirmed{
		count: last.After.Count,
		time:  ts,
		image: last.After.ImagePath,
		boxID: boxID,
	}, nil
}

func hasJPEG(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			return true
		}
	}
	return false
}
