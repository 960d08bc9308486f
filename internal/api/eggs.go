package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/EduardoMirandaz/sabrinator/internal/query"
	"github.com/EduardoMirandaz/sabrinator/internal/taker"
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter := query.HistoryFilter{
		DateFrom: r.URL.Query().Get("date_from"),
		DateTo:   r.URL.Query().Get("date_to"),
	}
	if v := r.URL.Query().Get("box_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_box_id")
			return
		}
		filter.BoxID = &id
	}

	events, err := s.query.History(filter)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	state, err := s.query.Current()
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleTakersHistory(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "event_id_required")
		return
	}
	entries, err := s.query.TakersHistory(eventID)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

type eventIDRequest struct {
	EventID string `json:"event_id"`
}

func (s *Server) handleConfirmTaker(w http.ResponseWriter, r *http.Request) {
	var req eventIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == "" {
		respondError(w, http.StatusBadRequest, "event_id_required")
		return
	}
	user := userFrom(r.Context())

	ev, err := s.taker.Confirm(req.EventID, taker.Actor{ID: user.ID, Username: user.Username})
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

func (s *Server) handleMistake(w http.ResponseWriter, r *http.Request) {
	var req eventIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == "" {
		respondError(w, http.StatusBadRequest, "event_id_required")
		return
	}
	user := userFrom(r.Context())

	ev, err := s.taker.Mistake(req.EventID, taker.Actor{ID: user.ID, Username: user.Username})
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}
