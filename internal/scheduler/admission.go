package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/makeasinger/separator/internal/metrics"
	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/internal/store"
)

// Submit runs a new job through admission. A refused job is reported as a
// non-accepted Admission, not as an error; errors mean the store failed.
func (s *Scheduler) Submit(ctx context.Context, job *model.Job) (*model.Admission, error) {
	return s.admit(ctx, job, false)
}

// admit checks, in order: id ownership, required fields, user quota,
// breaker, queue capacity. readmit is set by the retry manager; such jobs
// already own their id and their hourly admission is already counted.
func (s *Scheduler) admit(ctx context.Context, job *model.Job, readmit bool) (*model.Admission, error) {
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" {
		// nothing to key a status record on
		rej := &model.Rejection{Reason: model.JobStatusInvalid, Message: "id and payload are required"}
		metrics.JobsRejected.WithLabelValues(string(rej.Reason)).Inc()
		return &model.Admission{Rejection: rej, Snapshot: &model.StatusSnapshot{Status: rej.Reason, UpdatedAt: s.now()}}, nil
	}
	if job.UserID == "" {
		job.UserID = model.AnonymousUser
	}
	if job.StorageKind == "" {
		job.StorageKind = model.StorageURL
	}
	job.Priority = model.PriorityFor(job.StorageKind)

	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	if !readmit {
		taken, err := s.idTaken(ctx, job)
		if err != nil {
			return nil, err
		}
		if taken {
			// the existing job's record stays untouched
			metrics.JobsRejected.WithLabelValues(string(model.JobStatusInvalid)).Inc()
			return &model.Admission{
				Rejection: &model.Rejection{Reason: model.JobStatusInvalid, Message: "a job with this id already exists"},
				Snapshot:  &model.StatusSnapshot{JobID: job.ID, Status: model.JobStatusInvalid, UpdatedAt: s.now()},
			}, nil
		}
	}

	if strings.TrimSpace(job.Payload) == "" {
		return s.reject(ctx, job, &model.Rejection{Reason: model.JobStatusInvalid, Message: "id and payload are required"}), nil
	}

	now := s.now()
	quota, err := s.quotas.Get(ctx, job.UserID, now)
	if err != nil {
		return nil, err
	}
	if quota.Concurrent >= s.cfg.UserMaxConcurrent {
		s.stats.rateLimited.Add(1)
		return s.reject(ctx, job, &model.Rejection{
			Reason:  model.JobStatusRateLimited,
			Message: fmt.Sprintf("you already have %d jobs queued or processing", quota.Concurrent),
			Details: quotaDetails(quota, s.cfg.UserMaxConcurrent, s.cfg.UserMaxHourly),
		}), nil
	}
	if quota.HourlyCount >= s.cfg.UserMaxHourly {
		s.stats.rateLimited.Add(1)
		return s.reject(ctx, job, &model.Rejection{
			Reason:  model.JobStatusRateLimited,
			Message: fmt.Sprintf("hourly limit of %d jobs reached", s.cfg.UserMaxHourly),
			Details: quotaDetails(quota, s.cfg.UserMaxConcurrent, s.cfg.UserMaxHourly),
		}), nil
	}

	if s.breaker.State() == model.BreakerOpen {
		return s.reject(ctx, job, &model.Rejection{
			Reason:  model.JobStatusServiceUnavailable,
			Message: "separation service is temporarily unavailable, try again in a minute",
		}), nil
	}

	depths, err := s.queues.Depths(ctx)
	if err != nil {
		return nil, err
	}
	if depths.Total() >= int64(s.cfg.QueueCapacity) {
		s.stats.queueFull.Add(1)
		return s.reject(ctx, job, &model.Rejection{
			Reason:  model.JobStatusQueueFull,
			Message: "the queue is full, try again later",
			Details: details{"queueDepth": depths.Total(), "capacity": s.cfg.QueueCapacity},
		}), nil
	}

	job.EnqueuedAt = now
	job.StartedAt = nil
	job.RemoteJobID = nil
	position, err := s.queues.Push(ctx, store.ListFor(job.Priority), job)
	if err != nil {
		return nil, err
	}
	if _, err := s.quotas.Acquire(ctx, job.UserID, now, !readmit); err != nil {
		// undo the push so the job is not left without quota accounting
		if _, rmErr := s.queues.Remove(ctx, store.ListFor(job.Priority), job.ID); rmErr != nil {
			log.Printf("[Admission] failed to roll back %s: %v", job.ID, rmErr)
		}
		return nil, err
	}
	metrics.JobsAdmitted.WithLabelValues(string(job.Priority)).Inc()

	snap := &model.StatusSnapshot{
		JobID:         job.ID,
		Status:        model.JobStatusQueued,
		Priority:      job.Priority,
		Position:      intPtr(int(position)),
		EstimatedWait: intPtr(s.estimateWait(job.Priority, int(position))),
		RetryCount:    job.RetryCount,
	}
	s.publish(ctx, snap, job)

	log.Printf("[Admission] job %s queued (%s, position %d, user %s)", job.ID, job.Priority, position, job.UserID)
	return &model.Admission{Accepted: true, Snapshot: snap}, nil
}

// details is a short alias for structured rejection details
type details = map[string]interface{}

func quotaDetails(q *model.UserQuota, maxConcurrent, maxHourly int) details {
	return details{
		"concurrent":    q.Concurrent,
		"maxConcurrent": maxConcurrent,
		"hourlyCount":   q.HourlyCount,
		"maxHourly":     maxHourly,
	}
}

// reject writes a terminal status for a refused job
func (s *Scheduler) reject(ctx context.Context, job *model.Job, rej *model.Rejection) *model.Admission {
	metrics.JobsRejected.WithLabelValues(string(rej.Reason)).Inc()
	log.Printf("[Admission] job %s rejected: %s", job.ID, rej.Error())

	snap := &model.StatusSnapshot{
		JobID:      job.ID,
		Status:     rej.Reason,
		Priority:   job.Priority,
		RetryCount: job.RetryCount,
		Error:      &model.JobError{Code: string(rej.Reason), Message: rej.Message, Details: rej.Details},
	}
	s.publish(ctx, snap, job)
	return &model.Admission{Rejection: rej, Snapshot: snap}
}

// idTaken reports whether the id already belongs to a job. Only the same
// user's earlier admission-time rejection may be replaced: that job never
// ran and the caller is expected to resubmit it later.
func (s *Scheduler) idTaken(ctx context.Context, job *model.Job) (bool, error) {
	if s.IsProcessing(job.ID) {
		return true, nil
	}
	if _, ok, err := s.queues.Contains(ctx, job.ID); err != nil || ok {
		return ok, err
	}

	rec, err := s.statuses.GetRecord(ctx, job.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read status: %w", err)
	}
	owner := ""
	if rec.Job != nil {
		owner = rec.Job.UserID
	}
	return !(rec.Snapshot.Status.IsAdmissionRejection() && owner == job.UserID), nil
}

// estimateWait is the seconds until a job at position starts, assuming
// the class's slots drain at the average processing time
func (s *Scheduler) estimateWait(p model.Priority, position int) int {
	slots := s.cfg.HighPrioritySlots
	if p == model.PriorityNormal {
		slots = s.cfg.MaxConcurrent - s.cfg.HighPrioritySlots
	}
	if slots < 1 {
		slots = 1
	}
	rounds := math.Ceil(float64(position) / float64(slots))
	return int(rounds * s.stats.AvgProcessing().Seconds())
}
