// Package api exposes the HTTP surface: upload ingress, egg event queries,
// the taker workflow, auth and push-subscription registration.
package api

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/EduardoMirandaz/sabrinator/internal/auth"
	"github.com/EduardoMirandaz/sabrinator/internal/authstore"
	"github.com/EduardoMirandaz/sabrinator/internal/config"
	"github.com/EduardoMirandaz/sabrinator/internal/ingest"
	"github.com/EduardoMirandaz/sabrinator/internal/query"
	"github.com/EduardoMirandaz/sabrinator/internal/taker"
)

// Server wires the handlers to their services.
type Server struct {
	query   *query.Service
	taker   *taker.Service
	ingest  *ingest.Pipeline
	auth    *auth.Service
	store   authstore.Store
	cfg     *config.Config
	limiter *rate.Limiter
}

// New builds a Server.
func New(q *query.Service, t *taker.Service, in *ingest.Pipeline, a *auth.Service, st authstore.Store, cfg *config.Config) *Server {
	return &Server{
		query:   q,
		taker:   t,
		ingest:  in,
		auth:    a,
		store:   st,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.Ingest.RatePerSec), cfg.Ingest.Burst),
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Camera ingress; the device cannot carry a bearer token.
	r.Post("/upload", s.handleUpload)

	// Processed snapshots.
	r.Get("/images/{name}", s.handleImage)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Get("/validate-invite/{token}", s.handleValidateInvite)
		r.With(s.requireUser).Get("/me", s.handleMe)
	})

	r.Route("/eggs", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/history", s.handleHistory)
		r.Get("/current", s.handleCurrent)
		r.Get("/takers-history", s.handleTakersHistory)
		r.Post("/confirm-taker", s.handleConfirmTaker)
		r.Post("/mistake", s.handleMistake)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/register-push-subscription", s.handleRegisterSubscription)
		r.Delete("/unregister-push-subscription", s.handleUnregisterSubscription)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireUser, s.requireAdmin)
		r.Post("/invite/create", s.handleCreateInvite)
		r.Get("/invites", s.handleListInvites)
		r.Delete("/invites/{token}", s.handleRevokeInvite)
		r.Post("/bootstrap-admin", s.handleBootstrapAdmin)
	})

	return r
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "name"))
	if name == "." || name == "/" {
		respondError(w, http.StatusBadRequest, "invalid_image_name")
		return
	}
	http.ServeFile(w, r, filepath.Join(s.cfg.Eggs.ProcessedDir, name))
}
