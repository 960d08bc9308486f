package api

import (
	"io"
	"net/http"
	"strings"
)

// maxUploadBytes caps a single frame; the camera produces well under this.
const maxUploadBytes = 16 << 20

// handleUpload accepts either multipart/form-data with field "file" or a
// raw image body. The response always reports success once the frame is
// saved; detection problems are deliberately invisible to the camera.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		respondError(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	data, err := readFrame(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload")
		return
	}

	res, err := s.ingest.HandleFrame(r.Context(), data)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"file":   res.File,
		"bytes":  res.Bytes,
	})
}

func readFrame(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(r.Body)
}
