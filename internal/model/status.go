package model

import "time"

// JobError describes why a job stopped
type JobError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// StatusSnapshot is the latest observable state of a job
type StatusSnapshot struct {
	JobID         string            `json:"jobId"`
	Status        JobStatus         `json:"status"`
	Priority      Priority          `json:"priority,omitempty"`
	Position      *int              `json:"position,omitempty"`
	EstimatedWait *int              `json:"estimatedWait,omitempty"` // seconds
	Progress      int               `json:"progress"`
	RetryCount    int               `json:"retryCount"`
	RetryDelay    *int              `json:"retryDelay,omitempty"` // seconds
	RetryAt       *time.Time        `json:"retryAt,omitempty"`
	RemoteJobID   *string           `json:"remoteJobId,omitempty"`
	Outputs       map[string]string `json:"outputs,omitempty"`
	Error         *JobError         `json:"error,omitempty"`
	StartedAt     *time.Time        `json:"startedAt,omitempty"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Rejection is returned by admission when a job is refused
type Rejection struct {
	Reason  JobStatus   `json:"reason"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (r *Rejection) Error() string {
	return string(r.Reason) + ": " + r.Message
}

// Admission is the outcome of submitting a job
type Admission struct {
	Accepted  bool            `json:"accepted"`
	Rejection *Rejection      `json:"rejection,omitempty"`
	Snapshot  *StatusSnapshot `json:"snapshot"`
}
