package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sensei/internal/analytics"
	"github.com/MikeSquared-Agency/sensei/internal/conversation"
)

// syncSessions handles POST /api/v1/sessions/sync
func (s *Server) syncSessions(w http.ResponseWriter, r *http.Request) {
	res, err := s.syncer.Synchronize(r.Context())
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// classifySessions handles POST /api/v1/sessions/classify. Individual session
// failures still yield 200 with their count left out of sessionsClassified.
func (s *Server) classifySessions(w http.ResponseWriter, r *http.Request) {
	res, err := s.batches.RunBatch(r.Context())
	if err != nil {
		s.logger.Error("classification failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// overview handles GET /api/v1/analytics/overview
func (s *Server) overview(w http.ResponseWriter, r *http.Request) {
	out, err := analytics.ComputeOverview(r.Context(), s.gw, s.logger, s.now())
	if err != nil {
		s.logger.Error("overview failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type markReadRequest struct {
	ResolvedBy string `json:"resolvedBy"`
}

// markRead handles POST /api/v1/sessions/{id}/read. The body is optional.
func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	flags, err := conversation.MarkRead(r.Context(), s.gw, id, req.ResolvedBy)
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, conversation.ErrNotClassified):
		writeError(w, http.StatusConflict, "session not classified")
		return
	case err != nil:
		s.logger.Error("mark read failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": id,
		"flags":     flags,
	})
}
