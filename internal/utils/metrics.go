// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metric names recorded by the HTTP layer.
const (
	MetricRequestsTotal        = "api_requests_total"
	MetricUsersCreated         = "users_created"
	MetricWorldsCreated        = "worlds_created"
	MetricSessionsCreated      = "sessions_created"
	MetricSessionsWithoutWorld = "sessions_without_world"
	MetricTurnsProcessed       = "turns_processed"
	MetricTurnsSessionNotFound = "turns_session_not_found"
	MetricStoreFailures        = "store_failures"
	MetricTurnLatency          = "turn_latency_ms"
	MetricRequestLatency       = "api_response_time_ms"
	MetricLiveSubscribers      = "live_transcript_subscribers"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram metric (simple implementation tracking count, sum, min, max)
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// value returns the cell for name, creating it under the write lock when missing.
func (m *MetricsCollector) value(set map[string]*int64, name string) *int64 {
	// First try with read lock (fast path for existing metrics)
	m.mu.RLock()
	v, exists := set[name]
	m.mu.RUnlock()
	if exists {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check after acquiring write lock
	if v, exists = set[name]; !exists {
		v = new(int64)
		set[name] = v
	}
	return v
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.value(m.counters, name), 1)
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	v, exists := m.counters[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(v)
}

// IncGauge increments a gauge metric
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.value(m.gauges, name), 1)
}

// DecGauge decrements a gauge metric
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.value(m.gauges, name), -1)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	v, exists := m.gauges[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(v)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}

	// histograms still need their own mutex for min/max consistency
	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{
			"count": h.count,
			"sum":   h.sum,
			"min":   h.min,
			"max":   h.max,
		}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// APIMetrics records request level metrics and logs them at debug level.
type APIMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewAPIMetrics creates a new API metrics instance
func NewAPIMetrics(collector *MetricsCollector) *APIMetrics {
	if collector == nil {
		collector = GetMetricsCollector()
	}
	return &APIMetrics{
		metrics: collector,
		logger:  GetLogger(),
	}
}

// Collector exposes the underlying collector.
func (am *APIMetrics) Collector() *MetricsCollector {
	return am.metrics
}

// RecordAPIRequest records metrics for an API request
func (am *APIMetrics) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	am.metrics.IncrementCounter(MetricRequestsTotal)
	am.metrics.IncrementCounter("api_requests_" + method + "_" + route)
	am.metrics.IncrementCounter(statusClass(statusCode))
	am.metrics.RecordHistogram(MetricRequestLatency, duration.Milliseconds())

	am.logger.Debug("API request completed", map[string]interface{}{
		"route":    route,
		"method":   method,
		"status":   statusCode,
		"duration": duration.Milliseconds(),
	})
}

// RecordTurn records a processed narrative turn.
func (am *APIMetrics) RecordTurn(duration time.Duration) {
	am.metrics.IncrementCounter(MetricTurnsProcessed)
	am.metrics.RecordHistogram(MetricTurnLatency, duration.Milliseconds())
}

// Increment bumps a named counter.
func (am *APIMetrics) Increment(name string) {
	am.metrics.IncrementCounter(name)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "api_responses_5xx"
	case status >= 400:
		return "api_responses_4xx"
	case status >= 300:
		return "api_responses_3xx"
	default:
		return "api_responses_2xx"
	}
}
