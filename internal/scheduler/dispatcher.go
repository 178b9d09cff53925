package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/makeasinger/separator/internal/client"
	"github.com/makeasinger/separator/internal/metrics"
	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/internal/store"
)

// DispatchTick pops at most one job of the given class and submits it to
// the remote worker. Overlapping ticks of the same class are skipped.
func (s *Scheduler) DispatchTick(ctx context.Context, p model.Priority) {
	mu := &s.normalMu
	if p == model.PriorityHigh {
		mu = &s.highMu
	}
	if !mu.TryLock() {
		return
	}
	defer mu.Unlock()

	job := s.claim(ctx, p)
	if job == nil {
		return
	}
	s.submit(ctx, job)
}

// claim runs the dispatch gates and moves one job from its list into the
// processing set
func (s *Scheduler) claim(ctx context.Context, p model.Priority) *model.Job {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	total, high := s.processingCounts()
	if total >= s.cfg.MaxConcurrent {
		return nil
	}
	if p == model.PriorityHigh && high >= s.cfg.HighPrioritySlots {
		return nil
	}
	if !s.limiter.Allow() {
		s.stats.throttled.Add(1)
		metrics.DispatchThrottled.Inc()
		return nil
	}
	if !s.breaker.AllowDispatch() {
		return nil
	}

	job, err := s.queues.Pop(ctx, store.ListFor(p))
	if err != nil {
		log.Printf("[Dispatcher] failed to pop %s queue: %v", p, err)
		s.breaker.CancelProbe()
		return nil
	}
	if job == nil {
		s.breaker.CancelProbe()
		return nil
	}

	job.StartedAt = timePtr(s.now())
	s.mu.Lock()
	s.processing[job.ID] = &inflight{job: job.Clone()}
	n := len(s.processing)
	s.mu.Unlock()

	s.limiter.Record()
	s.stats.observeConcurrency(n)
	metrics.Processing.Set(float64(n))
	return job
}

// submit forwards a claimed job to the remote worker
func (s *Scheduler) submit(ctx context.Context, job *model.Job) {
	submitCtx, cancel := context.WithTimeout(ctx, job.SubmitTimeout())
	defer cancel()

	resp, err := s.remote.Submit(submitCtx, &client.SubmitRequest{
		AudioURL:    job.Payload,
		TimeoutHint: int(job.SubmitTimeout() / time.Second),
		Reference:   job.ID,
	})
	if err != nil {
		s.submitFailed(ctx, job, err)
		return
	}

	s.breaker.RecordSuccess()
	metrics.Dispatches.WithLabelValues(string(job.Priority), "accepted").Inc()
	remoteID := resp.RemoteJobID
	job.RemoteJobID = &remoteID

	// PROCESSING is written before the remote id becomes visible to the
	// monitor and to Cancel, so neither can be overwritten by it
	s.publish(ctx, &model.StatusSnapshot{
		JobID:       job.ID,
		Status:      model.JobStatusProcessing,
		Priority:    job.Priority,
		RetryCount:  job.RetryCount,
		RemoteJobID: &remoteID,
		StartedAt:   job.StartedAt,
	}, job)

	s.mu.Lock()
	entry, ok := s.processing[job.ID]
	cancelled := ok && entry.cancelRequested
	if ok && !cancelled {
		entry.job.RemoteJobID = &remoteID
	}
	s.mu.Unlock()

	if cancelled {
		s.removeProcessing(job.ID)
		if err := s.remote.Cancel(ctx, remoteID); err != nil {
			log.Printf("[Dispatcher] failed to cancel remote job %s: %v", remoteID, err)
		}
		s.releaseQuota(ctx, job.UserID)
		s.publishCancelled(ctx, job)
		log.Printf("[Dispatcher] job %s cancelled during submission", job.ID)
		return
	}
	log.Printf("[Dispatcher] job %s submitted as %s", job.ID, remoteID)
}

// submitFailed feeds the breaker and either schedules a retry or fails the job
func (s *Scheduler) submitFailed(ctx context.Context, job *model.Job, err error) {
	if client.IsServiceLevel(err) {
		s.breaker.RecordFailure()
	} else if !errors.Is(err, context.Canceled) {
		s.breaker.RecordSuccess()
	} else {
		s.breaker.CancelProbe()
	}
	metrics.Dispatches.WithLabelValues(string(job.Priority), "failed").Inc()
	log.Printf("[Dispatcher] submission of %s failed: %v", job.ID, err)

	entry, ok := s.removeProcessing(job.ID)
	if !ok {
		return
	}
	if ctx.Err() != nil && !entry.cancelRequested {
		// shutting down: put the job back, it keeps its quota slot
		s.requeue(context.WithoutCancel(ctx), job)
		return
	}
	s.releaseQuota(ctx, job.UserID)
	if entry.cancelRequested {
		s.publishCancelled(ctx, job)
		return
	}

	job.LastError = err.Error()
	if client.IsRetryable(err) && job.RetryCount < s.cfg.MaxRetries {
		s.scheduleRetry(ctx, job)
		return
	}

	s.stats.failed.Add(1)
	metrics.JobsFinished.WithLabelValues(string(model.JobStatusFailed)).Inc()
	s.publish(ctx, &model.StatusSnapshot{
		JobID:       job.ID,
		Status:      model.JobStatusFailed,
		Priority:    job.Priority,
		RetryCount:  job.RetryCount,
		StartedAt:   job.StartedAt,
		CompletedAt: timePtr(s.now()),
		Error: &model.JobError{
			Code:    model.ErrorCodeSubmissionFailure,
			Message: "the separation service did not accept the job",
			Details: details{"lastError": job.LastError, "attempts": job.RetryCount + 1},
		},
	}, job)
}

func (s *Scheduler) requeue(ctx context.Context, job *model.Job) {
	job.StartedAt = nil
	if _, err := s.queues.Push(ctx, store.ListFor(job.Priority), job); err != nil {
		log.Printf("[Dispatcher] failed to requeue %s: %v", job.ID, err)
		return
	}
	s.publish(ctx, &model.StatusSnapshot{
		JobID:      job.ID,
		Status:     model.JobStatusQueued,
		Priority:   job.Priority,
		RetryCount: job.RetryCount,
	}, job)
}
