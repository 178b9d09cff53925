package model

import "time"

// Priority is the queue class a job is admitted into
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// StorageKind describes where the job input lives
type StorageKind string

const (
	StorageUpload StorageKind = "upload" // file uploaded to our storage
	StorageURL    StorageKind = "url"    // remote URL supplied by the caller
)

// AnonymousUser is the quota bucket for unauthenticated callers
const AnonymousUser = "anonymous"

// PriorityFor derives the admission priority from the storage kind
func PriorityFor(kind StorageKind) Priority {
	if kind == StorageUpload {
		return PriorityHigh
	}
	return PriorityNormal
}

// Job is a separation request as it moves through the scheduler.
// It lives in exactly one of: a priority list, the retry list,
// the processing set, or (terminal) only in the status store.
type Job struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	StorageKind StorageKind `json:"storageKind"`
	Priority    Priority    `json:"priority"`
	Payload     string      `json:"payload"`
	SizeHint    *int64      `json:"sizeHint,omitempty"`
	CallbackURL string      `json:"callbackUrl,omitempty"`

	RetryCount int        `json:"retryCount"`
	RetryAt    *time.Time `json:"retryAt,omitempty"`
	LastError  string     `json:"lastError,omitempty"`

	EnqueuedAt  time.Time  `json:"enqueuedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	RemoteJobID *string    `json:"remoteJobId,omitempty"`
}

// Clone returns a deep copy so callers can't mutate shared pointers
func (j *Job) Clone() *Job {
	c := *j
	if j.SizeHint != nil {
		v := *j.SizeHint
		c.SizeHint = &v
	}
	if j.RetryAt != nil {
		v := *j.RetryAt
		c.RetryAt = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		c.StartedAt = &v
	}
	if j.RemoteJobID != nil {
		v := *j.RemoteJobID
		c.RemoteJobID = &v
	}
	return &c
}

// SizeBucket maps the size hint onto one of four buckets (0 = smallest).
// A missing hint falls into the largest bucket.
func (j *Job) SizeBucket() int {
	if j.SizeHint == nil {
		return len(SizeBucketLimits)
	}
	for i, limit := range SizeBucketLimits {
		if *j.SizeHint < limit {
			return i
		}
	}
	return len(SizeBucketLimits)
}

// SizeBucketLimits are the exclusive upper bounds of the first three buckets
var SizeBucketLimits = []int64{
	10 << 20,  // 10MB
	50 << 20,  // 50MB
	150 << 20, // 150MB
}

// SubmitTimeouts is the per-bucket remote submission timeout
var SubmitTimeouts = [4]time.Duration{
	30 * time.Second,
	60 * time.Second,
	90 * time.Second,
	120 * time.Second,
}

// SubmitTimeout returns the remote submission timeout for the job's size bucket
func (j *Job) SubmitTimeout() time.Duration {
	return SubmitTimeouts[j.SizeBucket()]
}
