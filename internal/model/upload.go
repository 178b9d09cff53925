package model

import "time"

// UploadResponse describes a stored input file and the job created for it
type UploadResponse struct {
	JobID     string    `json:"jobId"`
	FileURL   string    `json:"fileUrl"`
	Size      int64     `json:"size"`
	Status    JobStatus `json:"status"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`
}
