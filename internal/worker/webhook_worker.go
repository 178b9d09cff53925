package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/separator/internal/model"
)

// WebhookWorker delivers terminal job statuses to callback URLs.
// asynq retries failed deliveries with its own backoff.
type WebhookWorker struct {
	httpClient *http.Client
}

// NewWebhookWorker creates a new webhook worker
func NewWebhookWorker() *WebhookWorker {
	return &WebhookWorker{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ProcessTask handles one webhook delivery
func (w *WebhookWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task model.WebhookTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}

	body, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w: %w", err, asynq.SkipRetry)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Separator-Event", "job."+string(task.Payload.Snapshot.Status))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook for %s: %w", task.Payload.JobID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		log.Printf("[Webhook] delivered %s for job %s", task.Payload.Snapshot.Status, task.Payload.JobID)
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		// the receiver refuses it; retrying won't help
		return fmt.Errorf("webhook for %s rejected with status %d: %w", task.Payload.JobID, resp.StatusCode, asynq.SkipRetry)
	default:
		return fmt.Errorf("webhook for %s failed with status %d", task.Payload.JobID, resp.StatusCode)
	}
}
