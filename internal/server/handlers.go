package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/jetstream"
	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/storage"
	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": APITitle + " is running",
		"version": APIVersion,
		"status":  "healthy",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	difyHealthy := s.dify.HealthCheck(r.Context())

	status := "healthy"
	difyStatus := "healthy"
	if !difyHealthy {
		status = "degraded"
		difyStatus = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"services": map[string]string{
			"dify_api":      difyStatus,
			"sse_processor": "healthy",
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleDify executes the workflow upstream and answers with a
// text/event-stream body carrying exactly one data: record — the simplified
// result or an error result. Failures past this point live inside the stream;
// the HTTP status is already committed.
func (s *Server) handleDify(w http.ResponseWriter, r *http.Request) {
	var req WorkflowExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}
	if strings.TrimSpace(req.UserQuery) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_query is required"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	requestID := uuid.New()
	start := time.Now()
	logger := log.With().Str("request_id", requestID.String()).Logger()
	logger.Info().Str("query", truncate(req.UserQuery, 50)).Msg("received workflow request")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	outcome := s.runWorkflow(r.Context(), req.UserQuery, w, flusher, logger)

	if err := writeDataFrame(w, flusher, outcome.Payload()); err != nil {
		logger.Error().Err(err).Msg("failed to write result frame")
		writeErrorFrame(w, flusher)
	}

	s.publishRun(requestID, start, req.UserQuery, outcome)

	logger.Info().
		Bool("success", outcome.OK()).
		Int("records", outcome.Records).
		Dur("duration", time.Since(start)).
		Msg("workflow request finished")
}

// runWorkflow opens the upstream stream and drives it to its terminal
// record. Connection failures are folded into the same single-output
// contract as in-stream failures.
func (s *Server) runWorkflow(ctx context.Context, query string, w io.Writer, flusher http.Flusher, logger zerolog.Logger) stream.Outcome {
	body, err := s.dify.ExecuteWorkflowStream(ctx, query)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open upstream stream")
		return stream.Outcome{Err: stream.NewErrorResult("Stream processing error: "+err.Error(), "", "")}
	}
	defer body.Close()

	heartbeat := func() {
		if _, err := io.WriteString(w, ": keepalive\n\n"); err == nil {
			flusher.Flush()
		}
	}

	orch := stream.NewOrchestrator(time.Duration(s.cfg.KeepaliveTimeout)*time.Second, logger)
	return orch.Run(ctx, body, heartbeat)
}

func (s *Server) publishRun(id uuid.UUID, start time.Time, query string, outcome stream.Outcome) {
	if s.js == nil {
		return
	}

	rec := storage.RunRecord{
		ID:         id,
		Timestamp:  start,
		Query:      truncate(query, 500),
		Success:    outcome.OK(),
		DurationMs: int(time.Since(start).Milliseconds()),
		Records:    outcome.Records,
	}
	if outcome.OK() {
		rec.Status = outcome.Result.Status
		rec.WorkflowRunID = outcome.Result.WorkflowRunID
		rec.TaskID = outcome.Result.TaskID
	} else {
		rec.Status = "error"
		rec.ErrorMessage = outcome.Err.Error
		rec.WorkflowRunID = outcome.Err.WorkflowRunID
		rec.TaskID = outcome.Err.TaskID
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if _, err := s.js.Publish(jetstream.RunSubject(id.String()), payload); err != nil {
		log.Warn().Err(err).Msg("failed to publish run outcome")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
