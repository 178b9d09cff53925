package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/separator/internal/model"
)

// TaskEnqueuer is satisfied by *asynq.Client
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// WebhookNotifier queues a callback delivery when a job with a callback
// URL reaches a terminal status
type WebhookNotifier struct {
	enqueuer TaskEnqueuer
}

func NewWebhookNotifier(enqueuer TaskEnqueuer) *WebhookNotifier {
	return &WebhookNotifier{enqueuer: enqueuer}
}

// NewWebhookTask builds the asynq task for one delivery
func NewWebhookTask(url string, payload model.WebhookPayload) (*asynq.Task, error) {
	data, err := json.Marshal(model.WebhookTask{URL: url, Payload: payload})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(model.TaskTypeWebhook, data), nil
}

// OnStatus implements scheduler.StatusListener
func (n *WebhookNotifier) OnStatus(ctx context.Context, snap *model.StatusSnapshot, job *model.Job) {
	if job == nil || job.CallbackURL == "" || !snap.Status.IsTerminal() {
		return
	}

	task, err := NewWebhookTask(job.CallbackURL, model.WebhookPayload{
		JobID:    snap.JobID,
		UserID:   job.UserID,
		Snapshot: snap,
	})
	if err != nil {
		log.Printf("[Webhook] failed to build task for %s: %v", snap.JobID, err)
		return
	}

	_, err = n.enqueuer.Enqueue(task,
		asynq.Queue("webhooks"),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		log.Printf("[Webhook] failed to enqueue delivery for %s: %v", snap.JobID, err)
	}
}
