package calibd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chromaflow/calibration-core/internal/calibration"
	"github.com/chromaflow/calibration-core/pkg/config"
	"github.com/chromaflow/calibration-core/pkg/logger"
	"github.com/chromaflow/calibration-core/pkg/utils"
)

const defaultNotifyAttempts = 3

// NotificationPayload is the JSON body posted to the webhook URL when a
// calibration reaches a terminal state.
type NotificationPayload struct {
	JobID           string            `json:"job_id"`
	Status          Status            `json:"status"`
	Error           string            `json:"error,omitempty"`
	Iterations      int               `json:"iterations"`
	Best            *calibration.Best `json:"best,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	CreatedAtUnixMs int64             `json:"created_at_unix_ms"`
	StartedAtUnixMs int64             `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64             `json:"ended_at_unix_ms,omitempty"`
	Timestamp       int64             `json:"timestamp"` // when the notification was sent
}

// Notifier delivers terminal-state webhooks with retries
type Notifier struct {
	httpClient *http.Client
}

func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify sends a notification to the webhook URL asynchronously.
// This method returns immediately and performs the delivery in a goroutine.
func (n *Notifier) Notify(hook *config.Webhook, rec *JobRecord) {
	if hook == nil || hook.URL == "" || rec == nil {
		return
	}

	// Replace {job_id} template in the URL if present
	finalURL := strings.ReplaceAll(hook.URL, "{job_id}", rec.ID)

	payload := NotificationPayload{
		JobID:           rec.ID,
		Status:          rec.Status,
		Error:           rec.Error,
		CreatedAtUnixMs: rec.CreatedAtUnixMs,
		StartedAtUnixMs: rec.StartedAtUnixMs,
		EndedAtUnixMs:   rec.EndedAtUnixMs,
		Timestamp:       time.Now().UTC().UnixMilli(),
	}
	if rec.Snapshot != nil {
		payload.Iterations = rec.Snapshot.Iterations
		payload.Best = rec.Snapshot.Best
		payload.Reason = rec.Snapshot.Reason
	}

	go n.send(hook, finalURL, payload)
}

// send performs the HTTP POST with backoff between attempts
func (n *Notifier) send(hook *config.Webhook, url string, payload NotificationPayload) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload",
			"url", url,
			"job_id", payload.JobID,
			"error", err)
		return
	}

	maxAttempts := hook.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultNotifyAttempts
	}
	baseMs := hook.BackoffBaseMs
	if baseMs <= 0 {
		baseMs = 1000
	}
	backoff := utils.NewBackoff(hook.Backoff, baseMs, hook.BackoffMaxMs)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff.Delay(attempt - 1)
			logger.Debug("retrying notification",
				"url", url,
				"job_id", payload.JobID,
				"attempt", attempt,
				"delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payloadJSON))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "calibration-core/1.0")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"url", url,
				"job_id", payload.JobID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		responseBody := string(body)
		if len(responseBody) > 200 {
			responseBody = responseBody[:200] + "..."
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent",
				"job_id", payload.JobID,
				"status", string(payload.Status),
				"status_code", resp.StatusCode)
			return
		}

		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"url", url,
			"job_id", payload.JobID,
			"status_code", resp.StatusCode,
			"response_body", responseBody,
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"url", url,
		"job_id", payload.JobID,
		"max_attempts", maxAttempts,
		"last_error", lastErr)
}
