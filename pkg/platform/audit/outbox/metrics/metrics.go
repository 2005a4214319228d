// Package metrics exposes Prometheus collectors for the ledger event relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure stages reported by the relay.
const (
	StageFetch   = "fetch"
	StagePublish = "publish"
	StageMark    = "mark_processed"
)

// Metrics tracks how far the Kafka relay lags behind the ledger.
type Metrics struct {
	PendingDepth     prometheus.Gauge
	OldestPendingAge prometheus.Gauge

	Relayed      *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	RelayLatency prometheus.Histogram
	BatchSize    prometheus.Histogram
	PollDuration prometheus.Histogram
}

// New registers the relay collectors with the default registry.
func New() *Metrics {
	return &Metrics{
		PendingDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "upandup_ledger_events_pending",
			Help: "Ledger events recorded but not yet relayed to Kafka",
		}),
		OldestPendingAge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "upandup_ledger_events_oldest_pending_seconds",
			Help: "Age of the oldest ledger event waiting to be relayed",
		}),
		Relayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upandup_ledger_events_relayed_total",
			Help: "Ledger events relayed to Kafka, by event type",
		}, []string{"event_type"}),
		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upandup_ledger_events_relay_failures_total",
			Help: "Relay failures by stage",
		}, []string{"stage"}),
		RelayLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upandup_ledger_events_relay_latency_seconds",
			Help:    "Time from recording a ledger event to its broker acknowledgement",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upandup_ledger_events_batch_size",
			Help:    "Ledger events fetched per relay poll",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		PollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upandup_ledger_events_poll_duration_seconds",
			Help:    "Duration of one relay poll cycle",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) SetPendingDepth(count int64) {
	m.PendingDepth.Set(float64(count))
}

func (m *Metrics) SetOldestPendingAge(ageSeconds float64) {
	m.OldestPendingAge.Set(ageSeconds)
}

// IncRelayed counts one acknowledged event of the given type.
func (m *Metrics) IncRelayed(eventType string) {
	m.Relayed.WithLabelValues(eventType).Inc()
}

// IncFailure counts a failure at one of the Stage* stages.
func (m *Metrics) IncFailure(stage string) {
	m.Failures.WithLabelValues(stage).Inc()
}

// ObserveRelayLatency records end-to-end latency from event creation.
func (m *Metrics) ObserveRelayLatency(seconds float64) {
	m.RelayLatency.Observe(seconds)
}

func (m *Metrics) ObserveBatchSize(size int) {
	m.BatchSize.Observe(float64(size))
}

func (m *Metrics) ObservePollDuration(seconds float64) {
	m.PollDuration.Observe(seconds)
}
