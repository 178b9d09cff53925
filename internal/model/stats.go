package model

// QueueStatistics is assembled on demand for operators
type QueueStatistics struct {
	HighDepth        int64        `json:"highDepth"`
	NormalDepth      int64        `json:"normalDepth"`
	RetryDepth       int64        `json:"retryDepth"`
	TotalDepth       int64        `json:"totalDepth"`
	QueueCapacity    int          `json:"queueCapacity"`
	Processing       int          `json:"processing"`
	ProcessingHigh   int          `json:"processingHigh"`
	MaxConcurrent    int          `json:"maxConcurrent"`
	BreakerState     BreakerState `json:"breakerState"`
	RateWindowUsed   int          `json:"rateWindowUsed"`
	RateWindowLimit  int          `json:"rateWindowLimit"`
	AvgProcessingSec float64      `json:"avgProcessingSeconds"`
	Totals           Totals       `json:"totals"`
}

// Totals are process-lifetime counters, reset on restart
type Totals struct {
	Processed         int64 `json:"processed"`
	Failed            int64 `json:"failed"`
	TimedOut          int64 `json:"timedOut"`
	Retried           int64 `json:"retried"`
	QueueFull         int64 `json:"queueFull"`
	RateLimited       int64 `json:"rateLimited"`
	DispatchThrottled int64 `json:"dispatchThrottled"`
	BreakerTrips      int64 `json:"breakerTrips"`
	PeakConcurrent    int64 `json:"peakConcurrent"`
}

// Health is the operator health-check answer
type Health struct {
	Healthy         bool         `json:"healthy"`
	BreakerState    BreakerState `json:"breakerState"`
	QueueDepth      int64        `json:"queueDepth"`
	ProcessingCount int          `json:"processingCount"`
	StoreReachable  bool         `json:"storeReachable"`
}
