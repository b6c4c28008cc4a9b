// Package metrics tracks pipeline counters and latency histograms,
// fed directly or through bus events.
package metrics

// Metrics holds the pipeline's metric set.
type Metrics struct {
	// Search.
	SearchRequests *Counter
	SearchDegraded *Counter
	SearchErrors   *CounterVec
	SearchLatency  *Histogram
	SearchResults  *Histogram

	// Ingest.
	IngestedDocuments *Counter
	RemovedDocuments  *Counter

	// Embedding queue.
	QueueProcessed *Counter
	QueueFailed    *Counter
	QueueDepth     *Gauge

	// Feedback.
	FeedbackEvents *Counter
}

// New creates the metric set.
func New() *Metrics {
	return &Metrics{
		SearchRequests: NewCounter("search_requests_total"),
		SearchDegraded: NewCounter("search_degraded_total"),
		SearchErrors:   NewCounterVec("search_errors_total", "kind"),
		SearchLatency:  NewHistogram("search_latency_ms", nil),
		SearchResults:  NewHistogram("search_results", []float64{0, 1, 5, 10, 25, 50, 100, 250}),

		IngestedDocuments: NewCounter("ingested_documents_total"),
		RemovedDocuments:  NewCounter("removed_documents_total"),

		QueueProcessed: NewCounter("queue_processed_total"),
		QueueFailed:    NewCounter("queue_failed_total"),
		QueueDepth:     NewGauge("queue_depth"),

		FeedbackEvents: NewCounter("feedback_events_total"),
	}
}

// RecordSearch records one search outcome.
func (m *Metrics) RecordSearch(latencyMs int64, resultCount int, degraded bool, errKind string) {
	m.SearchRequests.Inc()
	if errKind != "" {
		m.SearchErrors.WithLabels(errKind).Inc()
		return
	}
	m.SearchLatency.Observe(float64(latencyMs))
	m.SearchResults.Observe(float64(resultCount))
	if degraded {
		m.SearchDegraded.Inc()
	}
}

// Snapshot is a point-in-time export of the metric set.
type Snapshot struct {
	SearchRequests  int64            `json:"search_requests"`
	SearchDegraded  int64            `json:"search_degraded"`
	SearchErrors    map[string]int64 `json:"search_errors,omitempty"`
	SearchLatencyMs float64          `json:"search_latency_ms_avg"`
	SearchResults   float64          `json:"search_results_avg"`

	IngestedDocuments int64 `json:"ingested_documents"`
	RemovedDocuments  int64 `json:"removed_documents"`

	QueueProcessed int64   `json:"queue_processed"`
	QueueFailed    int64   `json:"queue_failed"`
	QueueDepth     float64 `json:"queue_depth"`

	FeedbackEvents int64 `json:"feedback_events"`
}

// Snapshot exports current values.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		SearchRequests:  m.SearchRequests.Value(),
		SearchDegraded:  m.SearchDegraded.Value(),
		SearchLatencyMs: m.SearchLatency.Mean(),
		SearchResults:   m.SearchResults.Mean(),

		IngestedDocuments: m.IngestedDocuments.Value(),
		RemovedDocuments:  m.RemovedDocuments.Value(),

		QueueProcessed: m.QueueProcessed.Value(),
		QueueFailed:    m.QueueFailed.Value(),
		QueueDepth:     m.QueueDepth.Value(),

		FeedbackEvents: m.FeedbackEvents.Value(),
	}
	if errs := m.SearchErrors.Values(); len(errs) > 0 {
		s.SearchErrors = errs
	}
	return s
}
