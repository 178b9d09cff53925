package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/makeasinger/separator/internal/model"
)

// CircuitBreaker halts dispatch to the remote API after repeated
// service-level failures. OPEN turns into HALF_OPEN after the cool-down;
// in HALF_OPEN exactly one probe dispatch is let through.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        model.BreakerState
	failures     int
	firstFailure time.Time
	openedAt     time.Time
	probing      bool

	threshold int
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time
	onTrip    func()
}

func NewCircuitBreaker(threshold int, window, cooldown time.Duration, now func() time.Time, onTrip func()) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		state:     model.BreakerClosed,
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		now:       now,
		onTrip:    onTrip,
	}
}

// State returns the current state, moving OPEN to HALF_OPEN once the
// cool-down has elapsed
func (b *CircuitBreaker) State() model.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// AllowDispatch reports whether a dispatch may proceed. In HALF_OPEN the
// first caller gets the probe; everyone else waits for its outcome.
func (b *CircuitBreaker) AllowDispatch() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	switch b.state {
	case model.BreakerClosed:
		return true
	case model.BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// CancelProbe hands back a probe that was granted but never used
func (b *CircuitBreaker) CancelProbe() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

// RecordSuccess notes that the remote answered. A probe success closes
// the breaker; while CLOSED, failures already in the window still count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	// a late answer from before the trip doesn't cut the cool-down short
	if b.state != model.BreakerHalfOpen {
		return
	}
	log.Printf("[Breaker] probe succeeded, closing")
	b.state = model.BreakerClosed
	b.failures = 0
	b.probing = false
}

// RecordFailure counts a service-level failure
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	now := b.now()
	switch b.state {
	case model.BreakerHalfOpen:
		log.Printf("[Breaker] probe failed, reopening")
		b.trip(now)
	case model.BreakerClosed:
		if b.failures == 0 || now.Sub(b.firstFailure) > b.window {
			b.failures = 0
			b.firstFailure = now
		}
		b.failures++
		if b.failures >= b.threshold {
			log.Printf("[Breaker] %d service-level failures within %v, opening", b.failures, b.window)
			b.trip(now)
		}
	}
}

// Failures returns the rolling failure count
func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *CircuitBreaker) trip(now time.Time) {
	b.state = model.BreakerOpen
	b.openedAt = now
	b.failures = 0
	b.probing = false
	if b.onTrip != nil {
		b.onTrip()
	}
}

func (b *CircuitBreaker) advance() {
	if b.state == model.BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = model.BreakerHalfOpen
		b.probing = false
	}
}
