// Package worker relays outbox entries to the event bus.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"upandup/internal/platform/kafka/producer"
	"upandup/pkg/platform/audit/outbox"
	"upandup/pkg/platform/audit/outbox/metrics"
)

// DefaultTopic receives every ledger lifecycle event.
const DefaultTopic = "upandup.ledger.events"

// Worker polls the outbox and publishes entries in creation order.
// Delivery is at-least-once: an entry published but not marked is
// re-published on the next poll, keyed by its event ID.
type Worker struct {
	store        outbox.Store
	publisher    producer.Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Worker.
type Option func(*Worker)

// WithTopic sets the Kafka topic for publishing.
func WithTopic(topic string) Option {
	return func(w *Worker) {
		w.topic = topic
	}
}

// WithBatchSize sets the maximum number of entries to fetch per poll.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithPollInterval sets the interval between polls.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithRetention sets how long processed entries are kept. Zero disables pruning.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) {
		w.retention = d
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithClock overrides the time source used for processed_at stamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

// New creates a new outbox worker.
func New(store outbox.Store, publisher producer.Publisher, opts ...Option) *Worker {
	if store == nil {
		panic("outbox store is required")
	}
	if publisher == nil {
		panic("publisher is required")
	}
	w := &Worker{
		store:        store,
		publisher:    publisher,
		topic:        DefaultTopic,
		batchSize:    100,
		pollInterval: 250 * time.Millisecond,
		retention:    7 * 24 * time.Hour,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the polling loop until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "outbox poll failed", "error", err)
			}
		}
	}
}

// RunOnce publishes one batch and returns how many entries were marked processed.
// A failed publish leaves the entry pending for the next poll.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.ObservePollDuration(time.Since(start).Seconds())
		}
	}()

	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		if w.metrics != nil {
			w.metrics.IncFailure(metrics.StageFetch)
		}
		return 0, err
	}
	if len(entries) == 0 {
		w.refreshDepth(ctx)
		return 0, nil
	}
	if w.metrics != nil {
		w.metrics.ObserveBatchSize(len(entries))
		w.metrics.SetOldestPendingAge(w.now().Sub(entries[0].CreatedAt).Seconds())
	}

	published := 0
	for _, entry := range entries {
		if err := w.publish(ctx, entry); err != nil {
			w.logger.WarnContext(ctx, "failed to publish outbox entry",
				"id", entry.ID,
				"event_type", entry.EventType,
				"aggregate_id", entry.AggregateID,
				"error", err,
			)
			if w.metrics != nil {
				w.metrics.IncFailure(metrics.StagePublish)
			}
			continue
		}
		if err := w.store.MarkProcessed(ctx, entry.ID, w.now()); err != nil {
			w.logger.ErrorContext(ctx, "failed to mark outbox entry processed",
				"id", entry.ID,
				"error", err,
			)
			if w.metrics != nil {
				w.metrics.IncFailure(metrics.StageMark)
			}
			continue
		}
		published++
		if w.metrics != nil {
			w.metrics.IncRelayed(entry.EventType)
			w.metrics.ObserveRelayLatency(w.now().Sub(entry.CreatedAt).Seconds())
		}
	}

	w.refreshDepth(ctx)
	return published, nil
}

func (w *Worker) publish(ctx context.Context, entry *outbox.Entry) error {
	return w.publisher.Produce(ctx, &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.AggregateID),
		Value: entry.Payload,
		Headers: map[string]string{
			"event_id":       entry.ID.String(),
			"aggregate_type": entry.AggregateType,
			"aggregate_id":   entry.AggregateID,
			"event_type":     entry.EventType,
		},
	})
}

func (w *Worker) refreshDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	if count, err := w.store.CountPending(ctx); err == nil {
		w.metrics.SetPendingDepth(count)
	}
}

// Prune deletes processed entries older than the retention window.
func (w *Worker) Prune(ctx context.Context) (int64, error) {
	if w.retention <= 0 {
		return 0, nil
	}
	return w.store.DeleteProcessedBefore(ctx, w.now().Add(-w.retention))
}

// drain flushes what is left after shutdown is requested.
func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w.logger.Info("draining outbox worker")
	for ctx.Err() == nil {
		n, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("outbox drain failed", "error", err)
			return
		}
		if n == 0 {
			break
		}
	}
	if removed, err := w.Prune(ctx); err == nil && removed > 0 {
		w.logger.Info("pruned processed outbox entries", "count", removed)
	}
}

// Stop cancels the loop and waits for the drain to finish.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
