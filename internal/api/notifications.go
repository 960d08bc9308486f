package api

import (
	"encoding/json"
	"net/http"

	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

// Push delivery happens outside this service; these handlers only maintain
// the subscription registry.

func (s *Server) handleRegisterSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string                 `json:"endpoint"`
		Keys     model.SubscriptionKeys `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Endpoint == "" || req.Keys.P256DH == "" || req.Keys.Auth == "" {
		respondError(w, http.StatusBadRequest, "invalid_subscription")
		return
	}

	user := userFrom(r.Context())
	createdBy := user.Username
	if createdBy == "" {
		createdBy = user.ID
	}

	err := s.store.SaveSubscription(r.Context(), model.PushSubscription{
		Endpoint:  req.Endpoint,
		Keys:      req.Keys,
		CreatedBy: createdBy,
	})
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUnregisterSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		respondError(w, http.StatusBadRequest, "endpoint_required")
		return
	}

	if err := s.store.DeleteSubscription(r.Context(), req.Endpoint); err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
