package scheduler

import (
	"context"
	"log"

	"github.com/makeasinger/separator/internal/metrics"
	"github.com/makeasinger/separator/internal/model"
)

// maxEstimatedProgress caps the time-based progress guess
const maxEstimatedProgress = 95

// MonitorTick polls the remote worker once for every submitted job
func (s *Scheduler) MonitorTick(ctx context.Context) {
	if !s.monitorMu.TryLock() {
		return
	}
	defer s.monitorMu.Unlock()

	for _, job := range s.inFlight() {
		if job.RemoteJobID == nil {
			continue
		}
		if err := s.pollLimiter.Wait(ctx); err != nil {
			return
		}
		s.check(ctx, job)
	}
}

// check polls one job and applies the state machine
func (s *Scheduler) check(ctx context.Context, job *model.Job) {
	remote, err := s.remote.Status(ctx, *job.RemoteJobID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[Monitor] status poll for %s failed: %v", job.ID, err)
		if s.overdue(job) {
			s.timeout(ctx, job)
		}
		return
	}

	switch remote.State {
	case model.RemoteSucceeded:
		s.complete(ctx, job, remote.Outputs)
	case model.RemoteFailed:
		s.fail(ctx, job, remote.Error)
	default:
		if s.overdue(job) {
			s.timeout(ctx, job)
			return
		}
		s.progress(ctx, job, remote.State, remote.Progress)
	}
}

func (s *Scheduler) overdue(job *model.Job) bool {
	return job.StartedAt != nil && s.now().Sub(*job.StartedAt) > s.cfg.JobTimeout
}

func (s *Scheduler) complete(ctx context.Context, job *model.Job, outputs map[string]string) {
	if _, ok := s.removeProcessing(job.ID); !ok {
		return
	}
	s.releaseQuota(ctx, job.UserID)

	now := s.now()
	if job.StartedAt != nil {
		took := now.Sub(*job.StartedAt)
		s.stats.observeProcessing(took)
		metrics.ProcessingSeconds.Observe(took.Seconds())
	}
	s.stats.processed.Add(1)
	metrics.JobsFinished.WithLabelValues(string(model.JobStatusComplete)).Inc()

	s.publish(ctx, &model.StatusSnapshot{
		JobID:       job.ID,
		Status:      model.JobStatusComplete,
		Priority:    job.Priority,
		Progress:    100,
		RetryCount:  job.RetryCount,
		RemoteJobID: job.RemoteJobID,
		Outputs:     outputs,
		StartedAt:   job.StartedAt,
		CompletedAt: &now,
	}, job)
	log.Printf("[Monitor] job %s complete", job.ID)
}

// fail is terminal: a processing failure on the remote side is not retried
func (s *Scheduler) fail(ctx context.Context, job *model.Job, reason string) {
	if _, ok := s.removeProcessing(job.ID); !ok {
		return
	}
	s.releaseQuota(ctx, job.UserID)
	s.stats.failed.Add(1)
	metrics.JobsFinished.WithLabelValues(string(model.JobStatusFailed)).Inc()

	if reason == "" {
		reason = "separation failed"
	}
	job.LastError = reason
	s.publish(ctx, &model.StatusSnapshot{
		JobID:       job.ID,
		Status:      model.JobStatusFailed,
		Priority:    job.Priority,
		RetryCount:  job.RetryCount,
		RemoteJobID: job.RemoteJobID,
		StartedAt:   job.StartedAt,
		CompletedAt: timePtr(s.now()),
		Error:       &model.JobError{Code: model.ErrorCodeProcessingFailure, Message: reason},
	}, job)
	log.Printf("[Monitor] job %s failed: %s", job.ID, reason)
}

// timeout force-finishes a job past the wall-clock ceiling
func (s *Scheduler) timeout(ctx context.Context, job *model.Job) {
	if _, ok := s.removeProcessing(job.ID); !ok {
		return
	}
	if err := s.remote.Cancel(ctx, *job.RemoteJobID); err != nil {
		log.Printf("[Monitor] failed to cancel remote job %s: %v", *job.RemoteJobID, err)
	}
	s.releaseQuota(ctx, job.UserID)
	s.stats.timedOut.Add(1)
	metrics.JobsFinished.WithLabelValues(string(model.JobStatusTimeout)).Inc()

	s.publish(ctx, &model.StatusSnapshot{
		JobID:       job.ID,
		Status:      model.JobStatusTimeout,
		Priority:    job.Priority,
		RetryCount:  job.RetryCount,
		RemoteJobID: job.RemoteJobID,
		StartedAt:   job.StartedAt,
		CompletedAt: timePtr(s.now()),
		Error: &model.JobError{
			Code:    model.ErrorCodeTimeout,
			Message: "the job did not finish within " + s.cfg.JobTimeout.String(),
		},
	}, job)
	log.Printf("[Monitor] job %s timed out", job.ID)
}

// progress refreshes the snapshot of a still-running job. Without a
// remote figure the progress is estimated from the average duration.
func (s *Scheduler) progress(ctx context.Context, job *model.Job, state model.RemoteState, remoteProgress int) {
	p := remoteProgress
	if p <= 0 && state == model.RemoteRunning && job.StartedAt != nil {
		avg := s.stats.AvgProcessing()
		if avg > 0 {
			p = int(100 * s.now().Sub(*job.StartedAt) / avg)
		}
	}
	if p > maxEstimatedProgress {
		p = maxEstimatedProgress
	}
	if p < 0 {
		p = 0
	}

	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()
	if !s.IsProcessing(job.ID) {
		return
	}
	s.publish(ctx, &model.StatusSnapshot{
		JobID:       job.ID,
		Status:      model.JobStatusProcessing,
		Priority:    job.Priority,
		Progress:    p,
		RetryCount:  job.RetryCount,
		RemoteJobID: job.RemoteJobID,
		StartedAt:   job.StartedAt,
	}, job)
}
