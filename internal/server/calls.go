package server

import (
	"errors"
	"net/http"

	"github.com/ringguard/ringguard/internal/engine"
)

// handleSummary serves the accumulated risk view of one call.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")

	summary, err := s.processor.CallSummary(callID)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownCall) {
			writeError(w, http.StatusNotFound, "unknown call")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading call summary failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleEndCall tears down per-call state. Idempotent: ending an unknown or
// already-ended call still returns 204 so bridges can fire it blindly.
func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	s.processor.EndCall(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}
