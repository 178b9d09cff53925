package model

// TaskTypeWebhook is the asynq task that delivers a job's final status
const TaskTypeWebhook = "separation:webhook"

// WebhookPayload is POSTed to a job's callback URL on a terminal status
type WebhookPayload struct {
	JobID    string          `json:"jobId"`
	UserID   string          `json:"userId"`
	Snapshot *StatusSnapshot `json:"snapshot"`
}

// WebhookTask is the asynq task body
type WebhookTask struct {
	URL     string         `json:"url"`
	Payload WebhookPayload `json:"payload"`
}
