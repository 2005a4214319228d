// Package metrics provides Prometheus metrics for gateway calls and the DID cache.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains gateway call, breaker and cache metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec   // Calls by provider, operation and outcome
	RequestDuration *prometheus.HistogramVec // Call latency by provider and operation
	BreakerState    *prometheus.GaugeVec     // 0 closed, 1 open, 2 half-open
	BreakerOpened   *prometheus.CounterVec   // Transitions into open

	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	CacheErrorsTotal   prometheus.Counter
	CacheLookupLatency prometheus.Histogram
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upandup_gateway_requests_total",
			Help: "Total number of gateway calls by provider, operation and outcome",
		}, []string{"provider", "operation", "outcome"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upandup_gateway_request_duration_seconds",
			Help:    "Duration of gateway calls by provider and operation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "operation"}),

		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "upandup_gateway_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 open, 2 half-open)",
		}, []string{"provider"}),

		BreakerOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upandup_gateway_breaker_opened_total",
			Help: "Total number of times the provider circuit breaker opened",
		}, []string{"provider"}),

		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upandup_did_cache_hits_total",
			Help: "Total number of DID resolution cache hits",
		}),

		CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upandup_did_cache_misses_total",
			Help: "Total number of DID resolution cache misses",
		}),

		CacheErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upandup_did_cache_errors_total",
			Help: "Total number of DID resolution cache read or write failures",
		}),

		CacheLookupLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upandup_did_cache_lookup_duration_seconds",
			Help:    "Duration of DID cache lookups",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		}),
	}
}

// ObserveRequest records the outcome and latency of one call.
func (m *Metrics) ObserveRequest(provider, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	m.RequestDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// SetBreakerState records the current breaker state.
func (m *Metrics) SetBreakerState(provider string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(provider).Set(state)
}

// IncBreakerOpened counts a transition into the open state.
func (m *Metrics) IncBreakerOpened(provider string) {
	if m == nil {
		return
	}
	m.BreakerOpened.WithLabelValues(provider).Inc()
}

// RecordCacheHit records a DID cache hit.
func (m *Metrics) RecordCacheHit(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
	m.CacheLookupLatency.Observe(elapsed.Seconds())
}

// RecordCacheMiss records a DID cache miss.
func (m *Metrics) RecordCacheMiss(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
	m.CacheLookupLatency.Observe(elapsed.Seconds())
}

// IncCacheError counts a failed cache read or write.
func (m *Metrics) IncCacheError() {
	if m == nil {
		return
	}
	m.CacheErrorsTotal.Inc()
}
