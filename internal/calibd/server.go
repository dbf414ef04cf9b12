package calibd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chromaflow/calibration-core/pkg/config"
	"github.com/chromaflow/calibration-core/pkg/logger"
)

// HTTPServer exposes the calibration job API
type HTTPServer struct {
	mux     *http.ServeMux
	store   *JobStore
	Service *Service
}

func NewHTTPServer(store *JobStore, service *Service) *HTTPServer {
	s := &HTTPServer{
		mux:     http.NewServeMux(),
		store:   store,
		Service: service,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/calibrations", s.handleCalibrations)
	s.mux.HandleFunc("/v1/calibrations/", s.handleCalibrationByID)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// handleCalibrations handles /v1/calibrations
func (s *HTTPServer) handleCalibrations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreate(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCalibrationByID handles /v1/calibrations/{id} and related endpoints
func (s *HTTPServer) handleCalibrationByID(w http.ResponseWriter, r *http.Request) {
	// Parse path: /v1/calibrations/{id}, {id}:start, {id}:cancel,
	// {id}/history, {id}/best, {id}/export, or {id}/events
	path := strings.TrimPrefix(r.URL.Path, "/v1/calibrations/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "calibration ID is required")
		return
	}

	if jobID, ok := strings.CutSuffix(path, ":start"); ok {
		s.requirePost(w, r, func() { s.handleStart(w, jobID) })
		return
	}
	if jobID, ok := strings.CutSuffix(path, ":cancel"); ok {
		s.requirePost(w, r, func() { s.handleCancel(w, jobID) })
		return
	}
	if jobID, ok := strings.CutSuffix(path, "/history"); ok {
		s.requireGet(w, r, func() { s.handleHistory(w, r, jobID) })
		return
	}
	if jobID, ok := strings.CutSuffix(path, "/best"); ok {
		s.requireGet(w, r, func() { s.handleBest(w, jobID) })
		return
	}
	if jobID, ok := strings.CutSuffix(path, "/export"); ok {
		s.requireGet(w, r, func() { s.handleExport(w, jobID) })
		return
	}
	if jobID, ok := strings.CutSuffix(path, "/events"); ok {
		s.requireGet(w, r, func() { s.handleEvents(w, r, jobID) })
		return
	}

	s.requireGet(w, r, func() { s.handleGet(w, path) })
}

func (s *HTTPServer) requirePost(w http.ResponseWriter, r *http.Request, fn func()) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fn()
}

func (s *HTTPServer) requireGet(w http.ResponseWriter, r *http.Request, fn func()) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fn()
}

// handleCreate handles POST /v1/calibrations
func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID      string `json:"job_id,omitempty"`
		ConfigYAML string `json:"config_yaml"`
		Start      bool   `json:"start,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ConfigYAML == "" {
		s.writeError(w, http.StatusBadRequest, "config_yaml is required")
		return
	}

	cfg, err := config.ParseCalibrationYAMLString(req.ConfigYAML)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.Create(req.JobID, req.ConfigYAML, cfg)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			s.writeError(w, http.StatusConflict, err.Error())
		} else {
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if req.Start {
		rec, err = s.Service.Start(rec.ID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	logger.Info("calibration created (HTTP)", "job_id", rec.ID, "started", req.Start)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"calibration": jobJSON(rec),
	})
}

// handleList handles GET /v1/calibrations with pagination and filtering
func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var statusFilter Status
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		statusFilter = Status(strings.ToLower(statusStr))
	}

	jobs := s.store.ListFiltered(limit, offset, statusFilter)

	jobsJSON := make([]map[string]any, 0, len(jobs))
	for _, rec := range jobs {
		jobsJSON = append(jobsJSON, jobJSON(rec))
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"calibrations": jobsJSON,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(jobs),
		},
	})
}

// handleGet handles GET /v1/calibrations/{id}
func (s *HTTPServer) handleGet(w http.ResponseWriter, jobID string) {
	rec, ok := s.store.Get(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "calibration not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"calibration": jobJSON(rec),
	})
}

// handleStart handles POST /v1/calibrations/{id}:start
func (s *HTTPServer) handleStart(w http.ResponseWriter, jobID string) {
	rec, err := s.Service.Start(jobID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	logger.Info("calibration started (HTTP)", "job_id", jobID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"calibration": jobJSON(rec),
	})
}

// handleCancel handles POST /v1/calibrations/{id}:cancel
func (s *HTTPServer) handleCancel(w http.ResponseWriter, jobID string) {
	rec, err := s.Service.Stop(jobID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	logger.Info("calibration cancelled (HTTP)", "job_id", jobID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"calibration": jobJSON(rec),
	})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrJobIDMissing):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrJobTerminal):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleHistory handles GET /v1/calibrations/{id}/history
func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, jobID string) {
	rec, ok := s.store.Get(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "calibration not found")
		return
	}
	if rec.Snapshot == nil {
		s.writeError(w, http.StatusPreconditionFailed, "history not available")
		return
	}

	records := rec.Snapshot.Records
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	if offset > len(records) {
		offset = len(records)
	}
	records = records[offset:]

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed < len(records) {
			records = records[:parsed]
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id":  jobID,
		"total":   len(rec.Snapshot.Records),
		"offset":  offset,
		"records": records,
	})
}

// handleBest handles GET /v1/calibrations/{id}/best
func (s *HTTPServer) handleBest(w http.ResponseWriter, jobID string) {
	rec, ok := s.store.Get(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "calibration not found")
		return
	}
	if rec.Snapshot == nil || rec.Snapshot.Best == nil {
		s.writeError(w, http.StatusPreconditionFailed, "no result available yet")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"best":   rec.Snapshot.Best,
	})
}

// handleExport handles GET /v1/calibrations/{id}/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, jobID string) {
	rec, ok := s.store.Get(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "calibration not found")
		return
	}

	export := map[string]any{
		"calibration": jobJSON(rec),
		"config_yaml": rec.ConfigYAML,
	}
	if rec.Snapshot != nil {
		export["run"] = rec.Snapshot
	}

	s.writeJSON(w, http.StatusOK, export)
}

// handleEvents handles GET /v1/calibrations/{id}/events (SSE)
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request, jobID string) {
	rec, ok := s.store.Get(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "calibration not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	interval := 1 * time.Second
	if intervalStr := r.URL.Query().Get("interval_ms"); intervalStr != "" {
		if intervalMs, err := strconv.ParseInt(intervalStr, 10, 64); err == nil && intervalMs > 0 {
			interval = time.Duration(intervalMs) * time.Millisecond
		}
	}

	previousStatus := rec.Status
	previousIterations := -1
	s.sendSSEEvent(w, "status_change", map[string]any{
		"status": string(rec.Status),
	})
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	if rec.Status.Terminal() {
		s.sendSSEEvent(w, "complete", map[string]any{
			"status": string(rec.Status),
		})
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return
		case <-ticker.C:
			rec, ok := s.store.Get(jobID)
			if !ok {
				s.sendSSEEvent(w, "error", map[string]any{
					"error": "calibration not found",
				})
				return
			}

			if rec.Snapshot != nil && rec.Snapshot.Iterations != previousIterations {
				progress := map[string]any{
					"iterations": rec.Snapshot.Iterations,
					"records":    len(rec.Snapshot.Records),
				}
				if rec.Snapshot.Best != nil {
					progress["best_cost"] = rec.Snapshot.Best.Cost
					progress["best_iteration"] = rec.Snapshot.Best.Iteration
				}
				s.sendSSEEvent(w, "progress", progress)
				previousIterations = rec.Snapshot.Iterations
			}

			if rec.Status != previousStatus {
				s.sendSSEEvent(w, "status_change", map[string]any{
					"status": string(rec.Status),
				})
				previousStatus = rec.Status

				if rec.Status.Terminal() {
					s.sendSSEEvent(w, "complete", map[string]any{
						"status": string(rec.Status),
					})
					return
				}
			}

			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data map[string]any) {
	// Format: event: <type>\ndata: <json>\n\n
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}

	// Errors are logged but not returned as SSE streams are best-effort
	if _, err := w.Write([]byte("event: " + eventType + "\n")); err != nil {
		logger.Error("failed to write SSE event header", "error", err)
		return
	}
	if _, err := w.Write([]byte("data: " + string(jsonData) + "\n\n")); err != nil {
		logger.Error("failed to write SSE event data", "error", err)
		return
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

func jobJSON(rec *JobRecord) map[string]any {
	out := map[string]any{
		"id":                 rec.ID,
		"status":             string(rec.Status),
		"created_at_unix_ms": rec.CreatedAtUnixMs,
		"started_at_unix_ms": rec.StartedAtUnixMs,
		"ended_at_unix_ms":   rec.EndedAtUnixMs,
		"error":              rec.Error,
	}
	if rec.Snapshot != nil {
		out["iterations"] = rec.Snapshot.Iterations
		if rec.Snapshot.Best != nil {
			out["best"] = rec.Snapshot.Best
		}
		if rec.Snapshot.Reason != "" {
			out["reason"] = rec.Snapshot.Reason
		}
	}
	return out
}
