package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	JobsAdmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "separator_jobs_admitted_total", Help: "Jobs accepted onto a priority queue"},
		[]string{"priority"},
	)
	JobsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "separator_jobs_rejected_total", Help: "Jobs refused at admission"},
		[]string{"reason"},
	)
	JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "separator_jobs_finished_total", Help: "Jobs that reached a terminal state after dispatch"},
		[]string{"status"},
	)
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "separator_dispatch_total", Help: "Remote submission attempts"},
		[]string{"priority", "result"},
	)
	DispatchThrottled = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "separator_dispatch_throttled_total", Help: "Dispatch ticks skipped by the rate limiter"},
	)
	BreakerTrips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "separator_breaker_trips_total", Help: "Circuit breaker CLOSED/HALF_OPEN to OPEN transitions"},
	)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "separator_queue_depth", Help: "Jobs waiting per list"},
		[]string{"list"},
	)
	Processing = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "separator_processing", Help: "Jobs in flight at the remote worker"},
	)
	ProcessingSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "separator_processing_seconds",
			Help:    "Time from dispatch to remote completion",
			Buckets: []float64{15, 30, 60, 120, 300, 600, 1200, 2700},
		},
	)
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		JobsAdmitted, JobsRejected, JobsFinished, Dispatches, DispatchThrottled,
		BreakerTrips, QueueDepth, Processing, ProcessingSeconds,
	}
}
