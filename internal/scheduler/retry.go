package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/internal/store"
)

// RetryDelay is the backoff before re-admitting a job that has already
// been retried retryCount times: base * 2^retryCount
func RetryDelay(base time.Duration, retryCount int) time.Duration {
	return base << uint(retryCount)
}

// scheduleRetry parks a failed submission on the RETRY list
func (s *Scheduler) scheduleRetry(ctx context.Context, job *model.Job) {
	delay := RetryDelay(s.cfg.RetryBaseDelay, job.RetryCount)
	retryAt := s.now().Add(delay)
	job.RetryCount++
	job.RetryAt = &retryAt
	job.StartedAt = nil

	if _, err := s.queues.Push(ctx, store.ListRetry, job); err != nil {
		log.Printf("[Retry] failed to park %s: %v", job.ID, err)
		s.stats.failed.Add(1)
		s.publish(ctx, &model.StatusSnapshot{
			JobID:       job.ID,
			Status:      model.JobStatusFailed,
			Priority:    job.Priority,
			RetryCount:  job.RetryCount,
			CompletedAt: timePtr(s.now()),
			Error: &model.JobError{
				Code:    model.ErrorCodeSubmissionFailure,
				Message: "the separation service did not accept the job",
				Details: details{"lastError": job.LastError},
			},
		}, job)
		return
	}
	s.stats.retried.Add(1)

	s.publish(ctx, &model.StatusSnapshot{
		JobID:      job.ID,
		Status:     model.JobStatusRetryScheduled,
		Priority:   job.Priority,
		RetryCount: job.RetryCount,
		RetryDelay: intPtr(int(delay / time.Second)),
		RetryAt:    &retryAt,
		Error: &model.JobError{
			Code:    model.ErrorCodeSubmissionFailure,
			Message: job.LastError,
		},
	}, job)
	log.Printf("[Retry] job %s retry %d/%d in %v", job.ID, job.RetryCount, s.cfg.MaxRetries, delay)
}

// RetryTick looks at the oldest RETRY entry. A due job goes back through
// admission; one that is not due yet goes to the tail unchanged.
func (s *Scheduler) RetryTick(ctx context.Context) {
	if !s.retryMu.TryLock() {
		return
	}
	defer s.retryMu.Unlock()

	job, err := s.queues.Pop(ctx, store.ListRetry)
	if err != nil {
		log.Printf("[Retry] failed to pop retry queue: %v", err)
		return
	}
	if job == nil {
		return
	}

	if job.RetryAt != nil && s.now().Before(*job.RetryAt) {
		if _, err := s.queues.Push(ctx, store.ListRetry, job); err != nil {
			log.Printf("[Retry] failed to return %s to the retry queue: %v", job.ID, err)
		}
		return
	}

	job.RetryAt = nil
	adm, err := s.admit(ctx, job, true)
	if err != nil {
		log.Printf("[Retry] re-admission of %s failed: %v", job.ID, err)
		// keep it parked, the next tick tries again
		if _, err := s.queues.Push(ctx, store.ListRetry, job); err != nil {
			log.Printf("[Retry] failed to return %s to the retry queue: %v", job.ID, err)
		}
		return
	}
	if !adm.Accepted {
		log.Printf("[Retry] job %s not re-admitted: %s", job.ID, adm.Rejection.Reason)
	}
}
