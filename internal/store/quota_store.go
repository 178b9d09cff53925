package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/separator/internal/model"
)

const quotaKeyPrefix = "quota:"

// HourlyWindow is the length of the per-user admission window
const HourlyWindow = time.Hour

// acquireScript resets the hourly window when it has elapsed, then bumps
// the concurrent counter (and optionally the hourly counter) atomically.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local countHourly = tonumber(ARGV[4])

local start = tonumber(redis.call('HGET', key, 'window_start') or '0')
if start == 0 or now - start >= window then
	redis.call('HSET', key, 'window_start', now, 'hourly_count', 0)
end

local concurrent = redis.call('HINCRBY', key, 'concurrent', 1)
local hourly = tonumber(redis.call('HGET', key, 'hourly_count') or '0')
if countHourly == 1 then
	hourly = redis.call('HINCRBY', key, 'hourly_count', 1)
end

redis.call('PEXPIRE', key, ttl)
return {concurrent, hourly}
`)

// releaseScript decrements the concurrent counter without going below zero
var releaseScript = redis.NewScript(`
local key = KEYS[1]
local concurrent = redis.call('HINCRBY', key, 'concurrent', -1)
if concurrent < 0 then
	redis.call('HSET', key, 'concurrent', 0)
	concurrent = 0
end
redis.call('PEXPIRE', key, tonumber(ARGV[1]))
return concurrent
`)

// QuotaStore holds per-user counters in a Redis hash that expires when idle
type QuotaStore struct {
	redis   *redis.Client
	idleTTL time.Duration
}

func NewQuotaStore(redisClient *redis.Client, idleTTL time.Duration) *QuotaStore {
	return &QuotaStore{redis: redisClient, idleTTL: idleTTL}
}

// Get returns the user's quota as seen at now. An elapsed hourly window
// reads as zero even before the next Acquire resets it.
func (s *QuotaStore) Get(ctx context.Context, userID string, now time.Time) (*model.UserQuota, error) {
	vals, err := s.redis.HGetAll(ctx, quotaKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read quota: %w", err)
	}

	q := &model.UserQuota{UserID: userID}
	q.Concurrent, _ = strconv.Atoi(vals["concurrent"])
	q.HourlyCount, _ = strconv.Atoi(vals["hourly_count"])
	if ms, err := strconv.ParseInt(vals["window_start"], 10, 64); err == nil && ms > 0 {
		q.HourlyWindowStart = time.UnixMilli(ms)
	}

	if q.HourlyWindowStart.IsZero() || now.Sub(q.HourlyWindowStart) >= HourlyWindow {
		q.HourlyCount = 0
		q.HourlyWindowStart = now
	}
	if q.Concurrent < 0 {
		q.Concurrent = 0
	}
	return q, nil
}

// Acquire takes a concurrent slot. countHourly is false for re-admitted
// retries, which were already counted when first submitted.
func (s *QuotaStore) Acquire(ctx context.Context, userID string, now time.Time, countHourly bool) (*model.UserQuota, error) {
	flag := 0
	if countHourly {
		flag = 1
	}
	res, err := acquireScript.Run(ctx, s.redis, []string{quotaKey(userID)},
		now.UnixMilli(), HourlyWindow.Milliseconds(), s.idleTTL.Milliseconds(), flag,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire quota: %w", err)
	}
	return &model.UserQuota{
		UserID:      userID,
		Concurrent:  int(res[0]),
		HourlyCount: int(res[1]),
	}, nil
}

// Release gives a concurrent slot back
func (s *QuotaStore) Release(ctx context.Context, userID string) (int, error) {
	n, err := releaseScript.Run(ctx, s.redis, []string{quotaKey(userID)}, s.idleTTL.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to release quota: %w", err)
	}
	return n, nil
}

func quotaKey(userID string) string {
	return quotaKeyPrefix + userID
}
