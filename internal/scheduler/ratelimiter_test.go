package scheduler

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(3, time.Minute, clock.Now)

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("attempt %d: expected allow", i+1)
		}
		rl.Record()
		clock.Advance(time.Second)
	}
	if rl.Allow() {
		t.Error("expected 4th attempt inside the window to be refused")
	}
	if got := rl.InWindow(); got != 3 {
		t.Errorf("expected 3 in window, got %d", got)
	}
}

func TestRateLimiter_SlidesWithTime(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(2, time.Minute, clock.Now)

	rl.Record()
	clock.Advance(30 * time.Second)
	rl.Record()
	if rl.Allow() {
		t.Fatal("expected window to be full")
	}

	// first stamp leaves the window
	clock.Advance(31 * time.Second)
	if got := rl.Remaining(); got != 1 {
		t.Errorf("expected 1 remaining, got %d", got)
	}

	clock.Advance(30 * time.Second)
	if got := rl.Remaining(); got != 2 {
		t.Errorf("expected 2 remaining, got %d", got)
	}
}

func TestRateLimiter_NeverExceedsLimitInAnyWindow(t *testing.T) {
	for _, limit := range []int{1, 5, 30} {
		clock := newFakeClock()
		rl := NewRateLimiter(limit, time.Minute, clock.Now)
		var stamps []time.Time

		for i := 0; i < 600; i++ {
			if rl.Allow() {
				rl.Record()
				stamps = append(stamps, clock.Now())
			}
			clock.Advance(700 * time.Millisecond)
		}

		for i := range stamps {
			n := 0
			for j := i; j < len(stamps) && stamps[j].Sub(stamps[i]) < time.Minute; j++ {
				n++
			}
			if n > limit {
				t.Fatalf("limit %d: %d attempts within a minute starting at %v", limit, n, stamps[i])
			}
		}
	}
}
