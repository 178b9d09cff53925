package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/separator/internal/model"
)

// List names one of the durable FIFO lists
type List string

const (
	ListHigh   List = "queue:high"
	ListNormal List = "queue:normal"
	ListRetry  List = "queue:retry"
)

// Lists in the order they are searched
var Lists = []List{ListHigh, ListNormal, ListRetry}

// ListFor returns the priority list for a priority class
func ListFor(p model.Priority) List {
	if p == model.PriorityHigh {
		return ListHigh
	}
	return ListNormal
}

// Depths are the current lengths of the three lists
type Depths struct {
	High   int64
	Normal int64
	Retry  int64
}

// Total is HIGH + NORMAL + RETRY
func (d Depths) Total() int64 {
	return d.High + d.Normal + d.Retry
}

// QueueStore is a set of FIFO lists of JSON encoded jobs.
// Push appends at the tail, Pop takes from the head; both are single
// Redis commands so a job can never be popped twice.
type QueueStore struct {
	redis *redis.Client
}

func NewQueueStore(redisClient *redis.Client) *QueueStore {
	return &QueueStore{redis: redisClient}
}

// Push appends a job and returns its 1-based position
func (q *QueueStore) Push(ctx context.Context, list List, job *model.Job) (int64, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal job: %w", err)
	}
	n, err := q.redis.RPush(ctx, string(list), data).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to push to %s: %w", list, err)
	}
	return n, nil
}

// Pop removes the oldest job. Returns nil, nil when the list is empty.
func (q *QueueStore) Pop(ctx context.Context, list List) (*model.Job, error) {
	data, err := q.redis.LPop(ctx, string(list)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from %s: %w", list, err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job from %s: %w", list, err)
	}
	return &job, nil
}

// Len returns the length of one list
func (q *QueueStore) Len(ctx context.Context, list List) (int64, error) {
	return q.redis.LLen(ctx, string(list)).Result()
}

// Depths reads all three lengths in one round trip
func (q *QueueStore) Depths(ctx context.Context) (Depths, error) {
	var high, normal, retry *redis.IntCmd
	_, err := q.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		high = p.LLen(ctx, string(ListHigh))
		normal = p.LLen(ctx, string(ListNormal))
		retry = p.LLen(ctx, string(ListRetry))
		return nil
	})
	if err != nil {
		return Depths{}, fmt.Errorf("failed to read queue depths: %w", err)
	}
	return Depths{High: high.Val(), Normal: normal.Val(), Retry: retry.Val()}, nil
}

// Remove deletes the job with the given id from a list. It is a linear
// scan, fine for lists bounded by the queue capacity.
func (q *QueueStore) Remove(ctx context.Context, list List, jobID string) (*model.Job, error) {
	entries, err := q.redis.LRange(ctx, string(list), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", list, err)
	}

	for _, raw := range entries {
		var job model.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		if job.ID != jobID {
			continue
		}
		removed, err := q.redis.LRem(ctx, string(list), 1, raw).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to remove from %s: %w", list, err)
		}
		if removed == 0 {
			// popped concurrently by a dispatcher tick
			return nil, ErrNotFound
		}
		return &job, nil
	}

	return nil, ErrNotFound
}

// Contains reports which list, if any, holds the job
func (q *QueueStore) Contains(ctx context.Context, jobID string) (List, bool, error) {
	for _, list := range Lists {
		entries, err := q.redis.LRange(ctx, string(list), 0, -1).Result()
		if err != nil {
			return "", false, err
		}
		for _, raw := range entries {
			var job model.Job
			if err := json.Unmarshal([]byte(raw), &job); err == nil && job.ID == jobID {
				return list, true, nil
			}
		}
	}
	return "", false, nil
}
