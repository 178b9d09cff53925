package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/makeasinger/separator/internal/client"
	"github.com/makeasinger/separator/internal/config"
	"github.com/makeasinger/separator/internal/metrics"
	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/internal/store"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrAlreadyTerminal = errors.New("job already finished")
	ErrJobInTransit    = errors.New("job is moving between queues")
)

// StatusListener is told about every status write, after it is persisted
type StatusListener interface {
	OnStatus(ctx context.Context, snap *model.StatusSnapshot, job *model.Job)
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithListener registers a status listener
func WithListener(l StatusListener) Option {
	return func(s *Scheduler) { s.listeners = append(s.listeners, l) }
}

// inflight is an entry of the processing set
type inflight struct {
	job             *model.Job
	cancelRequested bool
}

// Scheduler owns the admission controller, the dispatcher, the job
// monitor and the retry manager. The processing set is only inserted
// into by the dispatcher and only removed from via finish paths.
type Scheduler struct {
	cfg      config.SchedulerConfig
	now      func() time.Time
	statuses *store.StatusStore
	queues   *store.QueueStore
	quotas   *store.QuotaStore
	remote   client.SeparationAPI

	limiter     *RateLimiter
	breaker     *CircuitBreaker
	pollLimiter *rate.Limiter
	stats       *Stats
	listeners   []StatusListener

	admitMu    sync.Mutex // serializes quota/capacity checks with the enqueue
	dispatchMu sync.Mutex // guards claim: ceiling checks, pop, insert
	highMu     sync.Mutex // single-flight HIGH ticks
	normalMu   sync.Mutex // single-flight NORMAL ticks
	monitorMu  sync.Mutex
	retryMu    sync.Mutex

	// orders progress writes against a concurrent cancellation
	transitionMu sync.Mutex

	mu         sync.Mutex
	processing map[string]*inflight
}

func New(
	cfg config.SchedulerConfig,
	statuses *store.StatusStore,
	queues *store.QueueStore,
	quotas *store.QuotaStore,
	remote client.SeparationAPI,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		cfg:        cfg,
		now:        time.Now,
		statuses:   statuses,
		queues:     queues,
		quotas:     quotas,
		remote:     remote,
		stats:      newStats(),
		processing: make(map[string]*inflight),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.limiter = NewRateLimiter(cfg.RequestsPerMinute, time.Minute, s.now)
	s.breaker = NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerWindow, cfg.BreakerCooldown, s.now, func() {
		s.stats.breakerTrips.Add(1)
		metrics.BreakerTrips.Inc()
	})

	pollRate := rate.Limit(cfg.PollRate)
	if cfg.PollRate <= 0 {
		pollRate = rate.Inf
	}
	s.pollLimiter = rate.NewLimiter(pollRate, 1)

	return s
}

// Breaker exposes the circuit breaker
func (s *Scheduler) Breaker() *CircuitBreaker {
	return s.breaker
}

// Limiter exposes the dispatch rate limiter
func (s *Scheduler) Limiter() *RateLimiter {
	return s.limiter
}

// Stats exposes the process counters
func (s *Scheduler) Stats() *Stats {
	return s.stats
}

// Run rebuilds the processing set and then drives the periodic tasks
// until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Recover(ctx); err != nil {
		log.Printf("[Scheduler] recovery failed: %v", err)
	}

	var wg sync.WaitGroup
	loops := []struct {
		name     string
		interval time.Duration
		tick     func(context.Context)
	}{
		{"dispatch-high", s.cfg.HighTick, func(ctx context.Context) { s.DispatchTick(ctx, model.PriorityHigh) }},
		{"dispatch-normal", s.cfg.NormalTick, func(ctx context.Context) { s.DispatchTick(ctx, model.PriorityNormal) }},
		{"monitor", s.cfg.MonitorInterval, s.MonitorTick},
		{"retry", s.cfg.RetryInterval, s.RetryTick},
	}

	for _, l := range loops {
		wg.Add(1)
		go func(name string, interval time.Duration, tick func(context.Context)) {
			defer wg.Done()
			s.every(ctx, name, interval, tick)
		}(l.name, l.interval, l.tick)
	}

	log.Printf("[Scheduler] started (max concurrent %d, %d req/min)", s.cfg.MaxConcurrent, s.cfg.RequestsPerMinute)
	wg.Wait()
	log.Printf("[Scheduler] stopped")
	return nil
}

func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeTick(ctx, name, tick)
		case <-ctx.Done():
			return
		}
	}
}

// safeTick keeps one bad iteration from taking the process down
func (s *Scheduler) safeTick(ctx context.Context, name string, tick func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scheduler] %s tick panicked: %v", name, r)
		}
	}()
	tick(ctx)
}

// Recover reloads jobs persisted as PROCESSING into the processing set so
// the monitor keeps polling them after a restart
func (s *Scheduler) Recover(ctx context.Context) error {
	jobs, err := s.statuses.ListProcessing(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	restored := 0
	for _, job := range jobs {
		if job.RemoteJobID == nil {
			continue
		}
		if _, ok := s.processing[job.ID]; ok {
			continue
		}
		s.processing[job.ID] = &inflight{job: job}
		restored++
	}
	if restored > 0 {
		log.Printf("[Scheduler] restored %d in-flight jobs", restored)
	}
	metrics.Processing.Set(float64(len(s.processing)))
	s.stats.observeConcurrency(len(s.processing))
	return nil
}

// GetStatus returns the latest snapshot for a job
func (s *Scheduler) GetStatus(ctx context.Context, jobID string) (*model.StatusSnapshot, error) {
	snap, err := s.statuses.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	return snap, nil
}

// Statistics assembles the point-in-time queue statistics
func (s *Scheduler) Statistics(ctx context.Context) (*model.QueueStatistics, error) {
	depths, err := s.queues.Depths(ctx)
	if err != nil {
		return nil, err
	}
	s.exportDepths(depths)

	total, high := s.processingCounts()
	return &model.QueueStatistics{
		HighDepth:        depths.High,
		NormalDepth:      depths.Normal,
		RetryDepth:       depths.Retry,
		TotalDepth:       depths.Total(),
		QueueCapacity:    s.cfg.QueueCapacity,
		Processing:       total,
		ProcessingHigh:   high,
		MaxConcurrent:    s.cfg.MaxConcurrent,
		BreakerState:     s.breaker.State(),
		RateWindowUsed:   s.limiter.InWindow(),
		RateWindowLimit:  s.limiter.Limit(),
		AvgProcessingSec: s.stats.AvgProcessing().Seconds(),
		Totals:           s.stats.Totals(),
	}, nil
}

// HealthCheck is healthy when the store answers, the breaker is not OPEN
// and the queues are below capacity
func (s *Scheduler) HealthCheck(ctx context.Context) *model.Health {
	h := &model.Health{
		BreakerState: s.breaker.State(),
	}
	h.ProcessingCount, _ = s.processingCounts()

	if err := s.statuses.Ping(ctx); err != nil {
		log.Printf("[Scheduler] health: store unreachable: %v", err)
		return h
	}
	h.StoreReachable = true

	depths, err := s.queues.Depths(ctx)
	if err != nil {
		h.StoreReachable = false
		return h
	}
	h.QueueDepth = depths.Total()
	h.Healthy = h.BreakerState != model.BreakerOpen && h.QueueDepth < int64(s.cfg.QueueCapacity)
	return h
}

// publish persists a snapshot and fans it out to listeners. Store errors
// are logged; the next transition will overwrite the record anyway.
func (s *Scheduler) publish(ctx context.Context, snap *model.StatusSnapshot, job *model.Job) {
	snap.UpdatedAt = s.now()
	if err := s.statuses.Save(ctx, snap, job); err != nil {
		log.Printf("[Scheduler] failed to save status for %s: %v", snap.JobID, err)
	}
	for _, l := range s.listeners {
		l.OnStatus(ctx, snap, job)
	}
}

// releaseQuota gives the user's concurrent slot back
func (s *Scheduler) releaseQuota(ctx context.Context, userID string) {
	if _, err := s.quotas.Release(ctx, userID); err != nil {
		log.Printf("[Scheduler] failed to release quota for %s: %v", userID, err)
	}
}

// removeProcessing takes a job out of the processing set. Only the caller
// that gets true may write the job's next status.
func (s *Scheduler) removeProcessing(jobID string) (*inflight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.processing[jobID]
	if ok {
		delete(s.processing, jobID)
		metrics.Processing.Set(float64(len(s.processing)))
	}
	return entry, ok
}

// processingCounts returns the total and HIGH-priority in-flight counts
func (s *Scheduler) processingCounts() (total, high int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.processing {
		if e.job.Priority == model.PriorityHigh {
			high++
		}
	}
	return len(s.processing), high
}

// inFlight returns copies of the jobs being tracked
func (s *Scheduler) inFlight() []*model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*model.Job, 0, len(s.processing))
	for _, e := range s.processing {
		jobs = append(jobs, e.job.Clone())
	}
	return jobs
}

// IsProcessing reports whether the job is in the processing set
func (s *Scheduler) IsProcessing(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processing[jobID]
	return ok
}

func (s *Scheduler) exportDepths(d store.Depths) {
	metrics.QueueDepth.WithLabelValues("high").Set(float64(d.High))
	metrics.QueueDepth.WithLabelValues("normal").Set(float64(d.Normal))
	metrics.QueueDepth.WithLabelValues("retry").Set(float64(d.Retry))
}

func intPtr(v int) *int {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
