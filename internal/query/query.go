// Package query serves the read side of the event log: history views and
// the current-state summary.
package query

import (
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/EduardoMirandaz/sabrinator/internal/eventlog"
	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

// ErrNoData is returned by Current when the log is empty.
var ErrNoData = eris.New("query: no events recorded")

// Service reads and normalizes the event log.
type Service struct {
	log *eventlog.Log
	tz  *time.Location
}

// New returns a query Service interpreting offset-less filter bounds in tz.
func New(log *eventlog.Log, tz *time.Location) *Service {
	return &Service{log: log, tz: tz}
}

// HistoryFilter restricts the history listing. Zero values mean "no bound".
type HistoryFilter struct {
	DateFrom string
	DateTo   string
	BoxID    *int
}

// History returns normalized events, newest first. The date range is
// inclusive over each event's after timestamp (before as fallback); events
// whose timestamps do not parse pass the filter rather than vanish from the
// audit trail.
func (s *Service) History(filter HistoryFilter) ([]model.ChangeEvent, error) {
	events, err := s.log.Read()
	if err != nil {
		return nil, err
	}

	from := s.parse(filter.DateFrom)
	to := s.parse(filter.DateTo)

	out := make([]model.ChangeEvent, 0, len(events))
	for _, ev := range events {
		ev = eventlog.Normalize(ev)
		if filter.BoxID != nil && ev.BoxID != *filter.BoxID {
			continue
		}
		if !s.withinRange(ev, from, to) {
			continue
		}
		out = append(out, ev)
	}

	// Same-format ISO-8601 strings order chronologically, so a plain string
	// sort suffices; events without a timestamp sink to the bottom.
	sort.SliceStable(out, func(i, j int) bool {
		return sortKey(out[i]) > sortKey(out[j])
	})
	return out, nil
}

// Current summarizes the newest event.
func (s *Service) Current() (*model.CurrentState, error) {
	events, err := s.History(HistoryFilter{})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoData
	}
	latest := events[0]

	lastUpdated := latest.After.Timestamp
	if lastUpdated == "" {
		lastUpdated = latest.Before.Timestamp
	}
	return &model.CurrentState{
		BoxID:            strconv.Itoa(latest.BoxID),
		CurrentCount:     latest.After.Count,
		PreviousCount:    latest.Before.Count,
		LastUpdated:      lastUpdated,
		LastImageURL:     latest.After.ImageURL,
		PreviousImageURL: latest.Before.ImageURL,
	}, nil
}

// TakersHistory returns the audit rows for one event, oldest first.
func (s *Service) TakersHistory(eventID string) ([]model.TakerHistoryEntry, error) {
	return s.log.TakersFor(eventID)
}

func (s *Service) parse(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := eventlog.ParseTimestamp(v, s.tz)
	if err != nil {
		return nil
	}
	return &t
}

func (s *Service) withinRange(ev model.ChangeEvent, from, to *time.Time) bool {
	key := sortKey(ev)
	if key == "" {
		return true
	}
	ts, err := eventlog.ParseTimestamp(key, s.tz)
	if err != nil {
		return true
	}
	if from != nil && ts.Before(*from) {
		return false
	}
	if to != nil && ts.After(*to) {
		return false
	}
	return true
}

func sortKey(ev model.ChangeEvent) string {
	if ev.After.Timestamp != "" {
		return ev.After.Timestamp
	}
	return ev.Before.Timestamp
}
