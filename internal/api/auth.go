package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/EduardoMirandaz/sabrinator/internal/auth"
	"github.com/EduardoMirandaz/sabrinator/internal/authstore"
	"github.com/EduardoMirandaz/sabrinator/internal/eventlog"
	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "credentials_required")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviteToken string `json:"invite_token"`
		Username    string `json:"username"`
		Name        string `json:"name"`
		Phone       string `json:"phone"`
		Password    string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InviteToken == "" || req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.auth.Register(r.Context(), req.InviteToken, req.Username, req.Name, req.Phone, req.Password)
	if err != nil {
		if eris.Is(err, auth.ErrInvalidInvite) || eris.Is(err, authstore.ErrDuplicateUser) {
			respondError(w, http.StatusBadRequest, "invalid_invite_or_username")
			return
		}
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleValidateInvite(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	valid, expiresAt := s.auth.ValidateInvite(r.Context(), token)

	resp := map[string]any{"valid": valid, "expiresAt": nil}
	if expiresAt != nil {
		resp["expiresAt"] = eventlog.FormatTimestamp(*expiresAt)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxUses      int `json:"max_uses"`
		ExpiresHours int `json:"expires_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	inv, err := s.auth.CreateInvite(r.Context(), req.MaxUses, req.ExpiresHours)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := s.store.ListInvites(r.Context())
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	if invites == nil {
		invites = []model.Invite{}
	}
	respondJSON(w, http.StatusOK, invites)
}

func (s *Server) handleRevokeInvite(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := s.store.RevokeInvite(r.Context(), token); err != nil {
		if eris.Is(err, authstore.ErrInviteNotFound) {
			respondError(w, http.StatusNotFound, "not_found")
			return
		}
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBootstrapAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := s.auth.EnsureAdmin(r.Context())
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"admin":  map[string]string{"id": admin.ID, "username": admin.Username},
	})
}
