package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for ledger operations.
type Metrics struct {
	CredentialTransitions *prometheus.CounterVec
	OperationLatency      *prometheus.HistogramVec
	OperationErrors       *prometheus.CounterVec
	TrustScores           prometheus.Histogram
	ScoreRecomputes       *prometheus.CounterVec
	WorkerTransitions     *prometheus.CounterVec

	// Lock contention
	LockWait     prometheus.Histogram
	LockTimeouts prometheus.Counter

	// Re-verification sweep
	SweepProcessed *prometheus.CounterVec
	SweepDuration  prometheus.Histogram
}

// New registers and returns ledger metrics collectors.
func New() *Metrics {
	return &Metrics{
		CredentialTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upandup_credential_transitions_total",
			Help: "Total number of credential status transitions, labeled by target status and credential type",
		}, []string{"status", "credential_type"}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upandup_ledger_operation_latency_seconds",
			Help:    "Latency of ledger operations in seconds, including gateway calls",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		OperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upandup_ledger_operation_errors_total",
			Help: "Total number of failed ledger operations, labeled by operation and error code",
		}, []string{"operation", "code"}),
		TrustScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upandup_trust_score",
			Help:    "Distribution of computed trust scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		ScoreRecomputes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upandup_trust_score_recomputes_total",
			Help: "Total number of trust score recomputations, labeled by whether the result changed",
		}, []string{"changed"}),
		WorkerTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upandup_worker_transitions_total",
			Help: "Total number of worker onboarding transitions, labeled by target status",
		}, []string{"status"}),

		LockWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upandup_worker_lock_wait_seconds",
			Help:    "Time spent waiting for the per-worker lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		LockTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upandup_worker_lock_timeouts_total",
			Help: "Total number of operations rejected because the worker was busy",
		}),

		SweepProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upandup_reverify_processed_total",
			Help: "Total number of credentials processed by the re-verification sweep, labeled by outcome",
		}, []string{"outcome"}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upandup_reverify_sweep_duration_seconds",
			Help:    "Duration of re-verification sweeps",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementCredentialTransition(status, credentialType string) {
	if m == nil {
		return
	}
	m.CredentialTransitions.WithLabelValues(status, credentialType).Inc()
}

func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementOperationError(operation, code string) {
	if m == nil {
		return
	}
	m.OperationErrors.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) ObserveTrustScore(score int, changed bool) {
	if m == nil {
		return
	}
	m.TrustScores.Observe(float64(score))
	label := "false"
	if changed {
		label = "true"
	}
	m.ScoreRecomputes.WithLabelValues(label).Inc()
}

func (m *Metrics) IncrementWorkerTransition(status string) {
	if m == nil {
		return
	}
	m.WorkerTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(d.Seconds())
}

func (m *Metrics) IncrementLockTimeout() {
	if m == nil {
		return
	}
	m.LockTimeouts.Inc()
}

func (m *Metrics) IncrementSweepOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SweepProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}
