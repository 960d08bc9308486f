package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/EduardoMirandaz/sabrinator/internal/eventlog"
	"github.com/EduardoMirandaz/sabrinator/internal/query"
	"github.com/EduardoMirandaz/sabrinator/internal/taker"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"error": detail})
}

// respondWorkflowError maps the error taxonomy onto HTTP statuses with the
// detail strings existing clients match on.
func respondWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, eventlog.ErrNotFound):
		respondError(w, http.StatusNotFound, "event_not_found")
	case eris.Is(err, taker.ErrAlreadyVerified):
		respondError(w, http.StatusConflict, "already_verified")
	case eris.Is(err, taker.ErrNotVerified):
		respondError(w, http.StatusConflict, "not_verified")
	case eris.Is(err, taker.ErrNotTaker):
		respondError(w, http.StatusForbidden, "not_event_taker")
	case eris.Is(err, query.ErrNoData):
		respondError(w, http.StatusNotFound, "no_data")
	default:
		zap.L().Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

// requestLogger logs method, path, status and latency for every request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
