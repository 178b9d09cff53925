package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/separator/internal/model"
)

// ErrNotFound is returned when a key is missing or expired
var ErrNotFound = errors.New("not found")

const statusKeyPrefix = "status:"

// StatusRecord is what gets persisted per job: the public snapshot plus
// the job itself so the processing set can be rebuilt after a restart.
type StatusRecord struct {
	Snapshot *model.StatusSnapshot `json:"snapshot"`
	Job      *model.Job            `json:"job,omitempty"`
}

// StatusStore keeps the latest status snapshot of every job with a TTL
type StatusStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStatusStore(redisClient *redis.Client, ttl time.Duration) *StatusStore {
	return &StatusStore{redis: redisClient, ttl: ttl}
}

// Save upserts the snapshot for a job. job may be nil for rejections.
func (s *StatusStore) Save(ctx context.Context, snap *model.StatusSnapshot, job *model.Job) error {
	data, err := json.Marshal(&StatusRecord{Snapshot: snap, Job: job})
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return s.redis.Set(ctx, statusKey(snap.JobID), data, s.ttl).Err()
}

// Get returns the latest snapshot or ErrNotFound
func (s *StatusStore) Get(ctx context.Context, jobID string) (*model.StatusSnapshot, error) {
	rec, err := s.GetRecord(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return rec.Snapshot, nil
}

// GetRecord returns the snapshot together with the stored job
func (s *StatusStore) GetRecord(ctx context.Context, jobID string) (*StatusRecord, error) {
	data, err := s.redis.Get(ctx, statusKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rec StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	if rec.Snapshot == nil {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// ListProcessing scans every status record and returns the jobs whose
// latest snapshot is PROCESSING. Used to rebuild the processing set.
func (s *StatusStore) ListProcessing(ctx context.Context) ([]*model.Job, error) {
	var jobs []*model.Job

	iter := s.redis.Scan(ctx, 0, statusKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		data, err := s.redis.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between SCAN and GET
			}
			return nil, err
		}

		var rec StatusRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.Snapshot == nil || rec.Job == nil || rec.Snapshot.Status != model.JobStatusProcessing {
			continue
		}
		jobs = append(jobs, rec.Job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan status keys: %w", err)
	}

	return jobs, nil
}

// Ping reports whether Redis is reachable
func (s *StatusStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func statusKey(jobID string) string {
	return statusKeyPrefix + jobID
}
