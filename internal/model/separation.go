package model

import "time"

// SeparateRequest is the body of POST /api/separate
type SeparateRequest struct {
	JobID       string `json:"jobId,omitempty" validate:"omitempty,max=64"`
	URL         string `json:"url" validate:"required,url"`
	SizeHint    *int64 `json:"sizeHint,omitempty" validate:"omitempty,min=0"`
	CallbackURL string `json:"callbackUrl,omitempty" validate:"omitempty,url"`
}

// SeparateResponse is returned when a job was accepted
type SeparateResponse struct {
	JobID         string    `json:"jobId"`
	Status        JobStatus `json:"status"`
	Priority      Priority  `json:"priority"`
	Position      int       `json:"position"`
	EstimatedWait int       `json:"estimatedWait"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CancelResponse is returned by the cancel endpoint
type CancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}
