package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/internal/store"
)

// cancelLookups bounds how often Cancel searches again for a job that is
// between two places, e.g. popped by the retry manager and not yet pushed
const cancelLookups = 3

// Cancel stops a job wherever it currently is. A submitted job is
// cancelled at the remote worker; a waiting one is filtered out of its
// list. Both paths give the user's concurrent slot back.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (*model.StatusSnapshot, error) {
	var snap *model.StatusSnapshot
	for attempt := 0; attempt < cancelLookups; attempt++ {
		found, err := s.cancelLocated(ctx, jobID)
		if err != nil || found != nil {
			return found, err
		}

		snap, err = s.statuses.Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrJobNotFound
			}
			return nil, fmt.Errorf("failed to read status: %w", err)
		}
		if snap.Status.IsTerminal() {
			return snap, ErrAlreadyTerminal
		}
	}
	log.Printf("[Scheduler] job %s is %s but in no queue, cancel again shortly", jobID, snap.Status)
	return snap, ErrJobInTransit
}

// cancelLocated cancels the job if it is in the processing set or in one
// of the lists, and returns nil when it is in neither. Claims move a job
// from its list into the processing set under dispatchMu, so both lookups
// happen under it.
func (s *Scheduler) cancelLocated(ctx context.Context, jobID string) (*model.StatusSnapshot, error) {
	s.dispatchMu.Lock()
	s.mu.Lock()
	entry, ok := s.processing[jobID]
	var job *model.Job
	if ok {
		if entry.job.RemoteJobID == nil {
			// the dispatcher finishes the cancellation once the submit returns
			entry.cancelRequested = true
		}
		job = entry.job.Clone()
	}
	s.mu.Unlock()

	if ok {
		s.dispatchMu.Unlock()
		if job.RemoteJobID == nil {
			log.Printf("[Scheduler] cancellation of %s requested during submission", jobID)
			return s.cancelledSnapshot(job), nil
		}
		return s.cancelSubmitted(ctx, job), nil
	}

	for _, list := range store.Lists {
		job, err := s.queues.Remove(ctx, list, jobID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		s.dispatchMu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("failed to remove job from queue: %w", err)
		}
		// a parked retry already gave its slot back
		if list != store.ListRetry {
			s.releaseQuota(ctx, job.UserID)
		}
		log.Printf("[Scheduler] job %s removed from %s", jobID, list)
		return s.publishCancelled(ctx, job), nil
	}
	s.dispatchMu.Unlock()
	return nil, nil
}

func (s *Scheduler) cancelSubmitted(ctx context.Context, job *model.Job) *model.StatusSnapshot {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	if _, ok := s.removeProcessing(job.ID); !ok {
		// the monitor finished it first
		if snap, err := s.statuses.Get(ctx, job.ID); err == nil {
			return snap
		}
		return s.cancelledSnapshot(job)
	}
	if err := s.remote.Cancel(ctx, *job.RemoteJobID); err != nil {
		log.Printf("[Scheduler] failed to cancel remote job %s: %v", *job.RemoteJobID, err)
	}
	s.releaseQuota(ctx, job.UserID)
	return s.publishCancelled(ctx, job)
}

func (s *Scheduler) publishCancelled(ctx context.Context, job *model.Job) *model.StatusSnapshot {
	snap := s.cancelledSnapshot(job)
	s.publish(ctx, snap, job)
	return snap
}

func (s *Scheduler) cancelledSnapshot(job *model.Job) *model.StatusSnapshot {
	return &model.StatusSnapshot{
		JobID:       job.ID,
		Status:      model.JobStatusCancelled,
		Priority:    job.Priority,
		RetryCount:  job.RetryCount,
		RemoteJobID: job.RemoteJobID,
		StartedAt:   job.StartedAt,
		CompletedAt: timePtr(s.now()),
		UpdatedAt:   s.now(),
	}
}
