// Package taker implements the confirm/mistake workflow over the event log.
package taker

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/EduardoMirandaz/sabrinator/internal/eventlog"
	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

// Workflow precondition and authorization failures. The HTTP layer maps
// these onto 409 and 403.
var (
	ErrAlreadyVerified = eris.New("taker: event already verified")
	ErrNotVerified     = eris.New("taker: event not verified")
	ErrNotTaker        = eris.New("taker: actor is not the event taker")
)

// Actor identifies the authenticated user performing the action.
type Actor struct {
	ID       string
	Username string
}

// nameOrID prefers the username, falling back to the id the way the
// historical records do.
func (a Actor) nameOrID() string {
	if a.Username != "" {
		return a.Username
	}
	return a.ID
}

// Service mutates audit fields on stored events and appends the matching
// takers-history rows.
type Service struct {
	log *eventlog.Log
	tz  *time.Location
	now func() time.Time
}

// New returns a Service stamping timestamps in tz.
func New(log *eventlog.Log, tz *time.Location) *Service {
	s := &Service{log: log, tz: tz}
	s.now = func() time.Time { return time.Now().In(tz) }
	return s
}

// Confirm claims an event for actor. Fails with eventlog.ErrNotFound when
// the id resolves to nothing and ErrAlreadyVerified when someone already
// claimed it. The event id never changes: it is derived from the immutable
// fields only.
func (s *Service) Confirm(eventID string, actor Actor) (*model.ChangeEvent, error) {
	now := eventlog.FormatTimestamp(s.now())

	ev, err := s.log.UpdateByID(eventID, func(ev *model.ChangeEvent) error {
		if ev.EggTakerVerified {
			return ErrAlreadyVerified
		}
		taker := actor.Username
		if taker == "" {
			taker = "unknown"
		}
		ev.EggTakerVerified = true
		ev.VerifiedByUser = model.StringPtr(actor.nameOrID())
		ev.VerificationTimestamp = model.StringPtr(now)
		ev.TakerName = model.StringPtr(taker)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.log.AppendTaker(model.TakerHistoryEntry{
		EventID:   ev.EventID,
		Action:    model.TakerActionConfirm,
		By:        derefOr(ev.TakerName, "unknown"),
		Timestamp: now,
		BoxID:     ev.BoxID,
		Delta:     ev.Delta,
	}); err != nil {
		return nil, eris.Wrap(err, "taker: append confirm history")
	}
	return ev, nil
}

// Mistake retracts a verification. Only the current taker or the user who
// verified may report one, and only against a verified event. The event
// becomes claimable again afterwards; re-confirmation is guarded solely by
// the verified flag.
func (s *Service) Mistake(eventID string, actor Actor) (*model.ChangeEvent, error) {
	ev, err := s.log.UpdateByID(eventID, func(ev *model.ChangeEvent) error {
		if !ev.EggTakerVerified {
			return ErrNotVerified
		}
		allowed := equalsFold(ev.TakerName, actor.Username) ||
			equalsFold(ev.VerifiedByUser, actor.Username) ||
			(ev.VerifiedByUser != nil && actor.ID != "" && *ev.VerifiedByUser == actor.ID)
		if !allowed {
			return ErrNotTaker
		}
		ev.MistakeFlag = true
		ev.EggTakerVerified = false
		ev.TakerName = nil
		ev.VerifiedByUser = nil
		ev.VerificationTimestamp = nil
		ev.MistakeReportedBy = model.StringPtr(actor.nameOrID())
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.log.AppendTaker(model.TakerHistoryEntry{
		EventID:   ev.EventID,
		Action:    model.TakerActionMistake,
		By:        actor.nameOrID(),
		Timestamp: eventlog.FormatTimestamp(s.now()),
		BoxID:     ev.BoxID,
		Delta:     ev.Delta,
	}); err != nil {
		return nil, eris.Wrap(err, "taker: append mistake history")
	}
	return ev, nil
}

var folder = cases.Fold()

// equalsFold compares trimmed, case-folded values; nil never matches.
func equalsFold(a *string, b string) bool {
	if a == nil || b == "" {
		return false
	}
	return folder.String(strings.TrimSpace(*a)) == folder.String(strings.TrimSpace(b))
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
