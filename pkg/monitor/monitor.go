// Package monitor aggregates named numeric metrics across all sessions.
// Samples are held in memory for exact summaries and mirrored into
// Prometheus for scraping.
package monitor

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sampleObservations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ideaforge_metric_samples",
			Help:    "Raw samples recorded under each metric name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"metric"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ideaforge_operation_duration_seconds",
			Help:    "Measured operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	engineTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideaforge_engine_turns_total",
			Help: "Total engine turns by trigger",
		},
		[]string{"trigger"},
	)

	registerOnce sync.Once
)

// InitMetrics registers the Prometheus collectors. Safe to call repeatedly.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sampleObservations,
			operationDuration,
			engineTurnsTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus scraping.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordEngineTurn counts one engine turn for a trigger label.
func RecordEngineTurn(trigger string) {
	engineTurnsTotal.WithLabelValues(trigger).Inc()
}

// Stats summarizes all samples recorded under one metric name.
type Stats struct {
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Monitor accumulates named sample series. Safe for concurrent use from
// multiple sessions.
type Monitor struct {
	mu     sync.RWMutex
	series map[string][]float64
	// maxSamples bounds retention per series; 0 means unbounded.
	maxSamples int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRetention caps the number of samples kept per metric name. The oldest
// samples are discarded first.
func WithRetention(maxSamples int) Option {
	return func(m *Monitor) {
		m.maxSamples = maxSamples
	}
}

// New creates a monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{series: make(map[string][]float64)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordMetric appends a sample under name.
func (m *Monitor) RecordMetric(name string, value float64) {
	m.mu.Lock()
	samples := append(m.series[name], value)
	if m.maxSamples > 0 && len(samples) > m.maxSamples {
		samples = samples[len(samples)-m.maxSamples:]
	}
	m.series[name] = samples
	m.mu.Unlock()

	sampleObservations.WithLabelValues(name).Observe(value)
}

// GetAverage returns the mean of all samples recorded under name, or 0 when
// none exist.
func (m *Monitor) GetAverage(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	samples := m.series[name]
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// GetSummary returns per-name aggregates over all recorded samples.
func (m *Monitor) GetSummary() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Stats, len(m.series))
	for name, samples := range m.series {
		if len(samples) == 0 {
			continue
		}
		st := Stats{Min: samples[0], Max: samples[0], Count: len(samples)}
		var sum float64
		for _, v := range samples {
			sum += v
			if v < st.Min {
				st.Min = v
			}
			if v > st.Max {
				st.Max = v
			}
		}
		st.Avg = sum / float64(len(samples))
		out[name] = st
	}
	return out
}

// MeasureOperation runs fn and records its wall-clock duration in
// milliseconds under "<name>_duration_ms" on success or
// "<name>_error_duration_ms" on failure. The original error is returned
// unchanged after recording.
func (m *Monitor) MeasureOperation(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if err != nil {
		m.RecordMetric(name+"_error_duration_ms", float64(elapsed.Milliseconds()))
		operationDuration.WithLabelValues(name, "error").Observe(elapsed.Seconds())
		return err
	}
	m.RecordMetric(name+"_duration_ms", float64(elapsed.Milliseconds()))
	operationDuration.WithLabelValues(name, "success").Observe(elapsed.Seconds())
	return nil
}
