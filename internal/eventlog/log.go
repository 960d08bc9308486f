// Package eventlog owns the append-only change-event log and the takers
// audit trail, both persisted as human-inspectable JSON arrays.
package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

const (
	changesFile = "egg_changes.json"
	takersFile  = "takers_history.json"
)

// ErrNotFound is returned when no stored event matches a requested id.
var ErrNotFound = eris.New("eventlog: event not found")

// Log is a whole-file JSON store. Every mutation is a read-modify-write of
// the backing array, so a single mutex serializes append, confirm and
// mistake operations. Single-writer-process assumption: nothing guards
// against out-of-process writers.
type Log struct {
	mu         sync.Mutex
	path       string
	takersPath string
}

// New returns a Log rooted at dir. Files are created lazily on first write.
func New(dir string) *Log {
	return &Log{
		path:       filepath.Join(dir, changesFile),
		takersPath: filepath.Join(dir, takersFile),
	}
}

// Read returns all persisted change events, decoded. An absent backing file
// yields an empty slice; a corrupt one is a hard error.
func (l *Log) Read() ([]model.ChangeEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raws, err := l.readRawLocked()
	if err != nil {
		return nil, err
	}
	events := make([]model.ChangeEvent, 0, len(raws))
	for i, raw := range raws {
		var ev model.ChangeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, eris.Wrapf(err, "eventlog: decode entry %d", i)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Append adds one event to the end of the log.
func (l *Log) Append(ev model.ChangeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raws, err := l.readRawLocked()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "eventlog: marshal event")
	}
	raws = append(raws, raw)
	return l.writeLocked(l.path, raws)
}

// UpdateByID resolves id against the stored records (stored event_id, then
// legacy full-record hash, then stable signature hash), normalizes the match
// and hands it to fn. If fn returns nil the mutated event is merged back
// into the raw record, keeping any legacy keys the struct does not model,
// and the whole file is rewritten. The updated, normalized event is
// returned.
func (l *Log) UpdateByID(id string, fn func(*model.ChangeEvent) error) (*model.ChangeEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raws, err := l.readRawLocked()
	if err != nil {
		return nil, err
	}
	idx, ev, ok := resolveIndex(raws, id)
	if !ok {
		return nil, ErrNotFound
	}

	norm := Normalize(ev)
	if err := fn(&norm); err != nil {
		return nil, err
	}

	merged, err := mergeRaw(raws[idx], norm)
	if err != nil {
		return nil, err
	}
	raws[idx] = merged
	if err := l.writeLocked(l.path, raws); err != nil {
		return nil, err
	}
	return &norm, nil
}

// AppendTaker adds one row to the takers audit trail. A corrupt takers file
// is discarded rather than blocking the audit append, matching how the
// trail has always behaved.
func (l *Log) AppendTaker(entry model.TakerHistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []model.TakerHistoryEntry
	if data, err := os.ReadFile(l.takersPath); err == nil {
		if err := json.Unmarshal(data, &entries); err != nil {
			entries = nil
		}
	}
	entries = append(entries, entry)

	raw, err := json.Marshal(entries)
	if err != nil {
		return eris.Wrap(err, "eventlog: marshal takers history")
	}
	return l.writeFileLocked(l.takersPath, raw)
}

// ReadTakers returns the full takers history.
func (l *Log) ReadTakers() ([]model.TakerHistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.takersPath)
	if os.IsNotExist(err) {
		return []model.TakerHistoryEntry{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "eventlog: read takers history")
	}
	var entries []model.TakerHistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrap(err, "eventlog: decode takers history")
	}
	return entries, nil
}

// TakersFor returns the audit rows for one event, ascending by timestamp.
func (l *Log) TakersFor(eventID string) ([]model.TakerHistoryEntry, error) {
	entries, err := l.ReadTakers()
	if err != nil {
		return nil, err
	}
	out := make([]model.TakerHistoryEntry, 0)
	for _, e := range entries {
		if e.EventID == eventID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (l *Log) readRawLocked() ([]json.RawMessage, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "eventlog: read log")
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, eris.Wrap(err, "eventlog: decode log")
	}
	return raws, nil
}

func (l *Log) writeLocked(path string, raws []json.RawMessage) error {
	data, err := json.MarshalIndent(raws, "", "  ")
	if err != nil {
		return eris.Wrap(err, "eventlog: encode log")
	}
	return l.writeFileLocked(path, data)
}

// writeFileLocked writes via a temp file and rename so a crash mid-write
// never truncates the log.
func (l *Log) writeFileLocked(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "eventlog: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "eventlog: create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrap(err, "eventlog: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "eventlog: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "eventlog: rename into %s", path)
	}
	return nil
}

// mergeRaw overlays the struct's fields onto the stored record, preserving
// keys written by earlier versions that the struct does not model.
func mergeRaw(raw json.RawMessage, ev model.ChangeEvent) (json.RawMessage, error) {
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		m = map[string]any{}
	}
	evb, err := json.Marshal(ev)
	if err != nil {
		return nil, eris.Wrap(err, "eventlog: marshal updated event")
	}
	var em map[string]any
	if err := json.Unmarshal(evb, &em); err != nil {
		return nil, eris.Wrap(err, "eventlog: remarshal updated event")
	}
	for k, v := range em {
		m[k] = v
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrap(err, "eventlog: merge event")
	}
	return out, nil
}

// resolveIndex finds the record matching id. Resolution order: stored
// event_id field, legacy full-record hash, stable signature hash. First
// match wins so records persisted before the stable scheme stay
// addressable.
func resolveIndex(raws []json.RawMessage, id string) (int, model.ChangeEvent, bool) {
	for i, raw := range raws {
		var ev model.ChangeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		if ev.EventID != "" && ev.EventID == id {
			return i, ev, true
		}
		if LegacyEventID(raw) == id {
			return i, ev, true
		}
		if StableEventID(ev) == id {
			return i, ev, true
		}
	}
	return 0, model.ChangeEvent{}, false
}
