package model

// JobStatus is what pollers observe for a job
type JobStatus string

const (
	JobStatusQueued             JobStatus = "QUEUED"
	JobStatusProcessing         JobStatus = "PROCESSING"
	JobStatusComplete           JobStatus = "COMPLETE"
	JobStatusFailed             JobStatus = "FAILED"
	JobStatusTimeout            JobStatus = "TIMEOUT"
	JobStatusCancelled          JobStatus = "CANCELLED"
	JobStatusRetryScheduled     JobStatus = "RETRY_SCHEDULED"
	JobStatusRateLimited        JobStatus = "RATE_LIMITED"
	JobStatusServiceUnavailable JobStatus = "SERVICE_UNAVAILABLE"
	JobStatusQueueFull          JobStatus = "QUEUE_FULL"
	JobStatusInvalid            JobStatus = "INVALID_JOB"
)

// IsTerminal reports whether no further transition can happen
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusComplete, JobStatusFailed, JobStatusTimeout, JobStatusCancelled,
		JobStatusRateLimited, JobStatusServiceUnavailable, JobStatusQueueFull, JobStatusInvalid:
		return true
	}
	return false
}

// IsAdmissionRejection reports whether the job was turned away before it
// was ever queued
func (s JobStatus) IsAdmissionRejection() bool {
	switch s {
	case JobStatusRateLimited, JobStatusServiceUnavailable, JobStatusQueueFull, JobStatusInvalid:
		return true
	}
	return false
}

// Error codes carried on failed snapshots
const (
	ErrorCodeInvalidJob         = "INVALID_JOB"
	ErrorCodeRateLimited        = "RATE_LIMITED"
	ErrorCodeQueueFull          = "QUEUE_FULL"
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrorCodeSubmissionFailure  = "SUBMISSION_FAILURE"
	ErrorCodeProcessingFailure  = "PROCESSING_FAILURE"
	ErrorCodeTimeout            = "TIMEOUT"
)

// BreakerState of the remote API circuit breaker
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// RemoteState is the lifecycle reported by the remote worker
type RemoteState string

const (
	RemoteQueued    RemoteState = "QUEUED"
	RemoteRunning   RemoteState = "RUNNING"
	RemoteSucceeded RemoteState = "SUCCEEDED"
	RemoteFailed    RemoteState = "FAILED"
)
