// Package metrics exposes Prometheus collectors for the ledger event log
// consumer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks events read back from Kafka into the ledger_events table.
type Metrics struct {
	EventsStored    *prometheus.CounterVec
	EventsMalformed prometheus.Counter
	PersistDuration prometheus.Histogram
	PersistFailures prometheus.Counter
}

// New registers the event log collectors with the default registry.
func New() *Metrics {
	return &Metrics{
		EventsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upandup_event_log_stored_total",
			Help: "Ledger events written to the event log, by event type",
		}, []string{"event_type"}),
		EventsMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upandup_event_log_malformed_total",
			Help: "Messages skipped because they could not be decoded as ledger events",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upandup_event_log_persist_duration_seconds",
			Help:    "Time taken to persist a ledger event to the event log",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upandup_event_log_persist_failures_total",
			Help: "Event log writes that failed and will be retried",
		}),
	}
}

func (m *Metrics) IncStored(eventType string) {
	m.EventsStored.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncMalformed() {
	m.EventsMalformed.Inc()
}

// ObservePersistDuration records the store write latency.
func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}
