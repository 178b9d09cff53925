package scheduler

import (
	"sync"
	"time"
)

// RateLimiter is a process-local sliding-window counter bounding how many
// dispatches may reach the remote API per window. Stale timestamps are
// dropped lazily on every call.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{limit: limit, window: window, now: now}
}

// Remaining returns how many dispatches the current window still allows
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(r.now())
	if n := r.limit - len(r.stamps); n > 0 {
		return n
	}
	return 0
}

// Allow reports whether one more dispatch fits the window
func (r *RateLimiter) Allow() bool {
	return r.Remaining() > 0
}

// Record stamps a dispatch attempt
func (r *RateLimiter) Record() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.prune(now)
	r.stamps = append(r.stamps, now)
}

// InWindow returns the number of attempts inside the trailing window
func (r *RateLimiter) InWindow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(r.now())
	return len(r.stamps)
}

// Limit is the configured per-window ceiling
func (r *RateLimiter) Limit() int {
	return r.limit
}

func (r *RateLimiter) prune(now time.Time) {
	cut := now.Add(-r.window)
	i := 0
	for ; i < len(r.stamps); i++ {
		if r.stamps[i].After(cut) {
			break
		}
	}
	if i > 0 {
		r.stamps = append([]time.Time{}, r.stamps[i:]...)
	}
}
