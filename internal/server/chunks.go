package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ringguard/ringguard/internal/pipeline"
	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/types"
)

// chunkResponse is the synchronous verdict returned for one uploaded chunk.
type chunkResponse struct {
	CallID             string          `json:"call_id"`
	ChunkSequence      int             `json:"chunk_sequence"`
	RiskLevel          types.RiskLevel `json:"risk_level"`
	Degraded           bool            `json:"degraded"`
	Partial            bool            `json:"partial,omitempty"`
	Evidence           []string        `json:"evidence"`
	RecommendedActions []string        `json:"recommended_actions"`
	ScamType           string          `json:"scam_type,omitempty"`
	ProcessingTime     float64         `json:"processing_time"`
}

// errorResponse is the JSON error body for all non-2xx replies.
type errorResponse struct {
	Error string `json:"error"`
}

// handleChunk ingests one audio chunk as multipart form data (fields:
// call_id, sequence, optional encoding; file part: audio) and blocks until
// the verdict is ready.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	if err := r.ParseMultipartForm(s.maxBody); err != nil {
		writeError(w, http.StatusBadRequest, "malformed multipart request")
		return
	}

	callID := r.FormValue("call_id")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}
	sequence, err := strconv.Atoi(r.FormValue("sequence"))
	if err != nil || sequence < 0 {
		writeError(w, http.StatusBadRequest, "sequence must be a non-negative integer")
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file part is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading audio part failed")
		return
	}

	chunk := types.AudioChunk{
		CallID:     callID,
		Sequence:   sequence,
		Data:       data,
		Encoding:   r.FormValue("encoding"),
		CapturedAt: time.Now(),
	}

	verdict, err := s.processor.ProcessChunk(r.Context(), chunk)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RecordChunk(r.Context(), "rejected", elapsed.Seconds())
		switch {
		case errors.Is(err, audio.ErrDecode), errors.Is(err, audio.ErrEmptyAudio):
			writeError(w, http.StatusBadRequest, "audio chunk could not be decoded")
		case errors.Is(err, pipeline.ErrAllStagesFailed):
			writeError(w, http.StatusBadGateway, "all analysis stages failed")
		default:
			slog.Error("chunk processing failed",
				"call_id", callID,
				"sequence", sequence,
				"error", err)
			writeError(w, http.StatusInternalServerError, "chunk processing failed")
		}
		return
	}

	s.metrics.RecordChunk(r.Context(), "ok", elapsed.Seconds())
	s.metrics.RecordVerdict(r.Context(), verdict.Level.String(), verdict.Degraded)

	writeJSON(w, http.StatusOK, chunkResponse{
		CallID:             verdict.CallID,
		ChunkSequence:      verdict.ChunkSequence,
		RiskLevel:          verdict.Level,
		Degraded:           verdict.Degraded,
		Evidence:           verdict.Evidence,
		RecommendedActions: verdict.RecommendedActions,
		ScamType:           verdict.ScamType,
		ProcessingTime:     elapsed.Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
