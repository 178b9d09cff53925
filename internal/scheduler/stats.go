package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/makeasinger/separator/internal/model"
)

// emaAlpha weighs the newest processing time in the running average
const emaAlpha = 0.2

// defaultAvgProcessing seeds the average before any job has completed
const defaultAvgProcessing = 3 * time.Minute

// Stats are process-lifetime counters; they are not persisted
type Stats struct {
	processed    atomic.Int64
	failed       atomic.Int64
	timedOut     atomic.Int64
	retried      atomic.Int64
	queueFull    atomic.Int64
	rateLimited  atomic.Int64
	throttled    atomic.Int64
	breakerTrips atomic.Int64
	peak         atomic.Int64

	mu  sync.Mutex
	avg time.Duration
}

func newStats() *Stats {
	return &Stats{avg: defaultAvgProcessing}
}

// observeProcessing folds a completed job's duration into the moving average
func (s *Stats) observeProcessing(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avg = time.Duration(emaAlpha*float64(d) + (1-emaAlpha)*float64(s.avg))
}

// AvgProcessing returns the exponential moving average processing time
func (s *Stats) AvgProcessing() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avg
}

func (s *Stats) observeConcurrency(n int) {
	for {
		cur := s.peak.Load()
		if int64(n) <= cur || s.peak.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

// Totals returns a copy of the counters
func (s *Stats) Totals() model.Totals {
	return model.Totals{
		Processed:         s.processed.Load(),
		Failed:            s.failed.Load(),
		TimedOut:          s.timedOut.Load(),
		Retried:           s.retried.Load(),
		QueueFull:         s.queueFull.Load(),
		RateLimited:       s.rateLimited.Load(),
		DispatchThrottled: s.throttled.Load(),
		BreakerTrips:      s.breakerTrips.Load(),
		PeakConcurrent:    s.peak.Load(),
	}
}
