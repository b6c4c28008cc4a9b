package metrics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

func floatBits(v float64) uint64 { return math.Float64bits(v) }
func bitsFloat(b uint64) float64 { return math.Float64frombits(b) }

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	value atomic.Int64
}

// NewCounter creates a counter.
func NewCounter(name string) *Counter {
	return &Counter{name: name}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds delta to the counter. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta < 0 {
		return
	}
	c.value.Add(delta)
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.value.Load() }

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Gauge is a value that can move in both directions.
type Gauge struct {
	name string
	bits atomic.Uint64
}

// NewGauge creates a gauge.
func NewGauge(name string) *Gauge {
	return &Gauge{name: name}
}

// Set stores the gauge value.
func (g *Gauge) Set(value float64) { g.bits.Store(floatBits(value)) }

// Value returns the current gauge value.
func (g *Gauge) Value() float64 { return bitsFloat(g.bits.Load()) }

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Histogram accumulates observations into cumulative buckets.
type Histogram struct {
	name    string
	buckets []float64

	mu     sync.Mutex
	counts []int64
	sum    float64
	count  int64
}

// defaultBuckets are latency buckets in milliseconds.
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// NewHistogram creates a histogram. Nil buckets take latency defaults.
func NewHistogram(name string, buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	buckets = append([]float64(nil), buckets...)
	sort.Float64s(buckets)
	return &Histogram{
		name:    name,
		buckets: buckets,
		counts:  make([]int64, len(buckets)+1),
	}
}

// Observe records one observation.
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.count++

	idx := len(h.buckets)
	for i, bound := range h.buckets {
		if value <= bound {
			idx = i
			break
		}
	}
	for i := idx; i < len(h.counts); i++ {
		h.counts[i]++
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Mean returns the average observation, or 0 with no data.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// BucketCounts returns the cumulative count per bucket, the last entry
// covering +Inf.
func (h *Histogram) BucketCounts() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.counts...)
}

// Name returns the metric name.
func (h *Histogram) Name() string { return h.name }

// CounterVec is a family of counters keyed by label values.
type CounterVec struct {
	name       string
	labelNames []string

	mu       sync.RWMutex
	counters map[string]*Counter
}

// NewCounterVec creates a counter family.
func NewCounterVec(name string, labelNames ...string) *CounterVec {
	return &CounterVec{
		name:       name,
		labelNames: labelNames,
		counters:   make(map[string]*Counter),
	}
}

// WithLabels returns the counter for the given label values, creating
// it on first use. The value count must match the label names.
func (cv *CounterVec) WithLabels(values ...string) *Counter {
	key := strings.Join(values, "\x1f")

	cv.mu.RLock()
	c, ok := cv.counters[key]
	cv.mu.RUnlock()
	if ok {
		return c
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()
	if c, ok := cv.counters[key]; ok {
		return c
	}
	c = NewCounter(cv.name)
	cv.counters[key] = c
	return c
}

// Values returns the count per label key.
func (cv *CounterVec) Values() map[string]int64 {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	out := make(map[string]int64, len(cv.counters))
	for key, c := range cv.counters {
		out[key] = c.Value()
	}
	return out
}

// Name returns the metric name.
func (cv *CounterVec) Name() string { return cv.name }
