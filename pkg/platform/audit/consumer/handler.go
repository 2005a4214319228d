// Package consumer stores ledger events read back from Kafka in the
// ledger_events table.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"upandup/internal/platform/kafka/consumer"
	"upandup/pkg/platform/audit"
	"upandup/pkg/platform/audit/metrics"
)

// EventSink persists events idempotently by ID.
type EventSink interface {
	AppendWithID(ctx context.Context, event audit.Event) error
}

// Handler processes ledger events from Kafka. It implements
// consumer.Handler.
type Handler struct {
	store   EventSink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records stored, malformed and failed events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler creates a new ledger event consumer handler.
func NewHandler(store EventSink, logger *slog.Logger, opts ...Option) *Handler {
	if store == nil {
		panic("event sink is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{store: store, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle stores one published outbox entry. Malformed messages are logged
// and acknowledged so they do not block the partition; a store failure is
// returned so the message is retried.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal ledger event",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		h.incMalformed()
		return nil
	}

	if event.ID == uuid.Nil {
		parsed, err := uuid.Parse(msg.Headers["event_id"])
		if err != nil {
			h.logger.ErrorContext(ctx, "ledger event without id",
				"topic", msg.Topic,
				"offset", msg.Offset,
			)
			h.incMalformed()
			return nil
		}
		event.ID = parsed
	}
	if event.Type == "" {
		event.Type = audit.EventType(msg.Headers["event_type"])
	}
	if event.AggregateID == "" {
		event.AggregateType = msg.Headers["aggregate_type"]
		event.AggregateID = msg.Headers["aggregate_id"]
	}

	start := time.Now()
	err := h.store.AppendWithID(ctx, event)
	if h.metrics != nil {
		h.metrics.ObservePersistDuration(time.Since(start).Seconds())
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncPersistFailures()
		}
		return fmt.Errorf("store ledger event: %w", err)
	}
	if h.metrics != nil {
		h.metrics.IncStored(string(event.Type))
	}

	h.logger.DebugContext(ctx, "stored ledger event",
		"event_id", event.ID,
		"event_type", string(event.Type),
		"aggregate_id", event.AggregateID,
	)
	return nil
}

func (h *Handler) incMalformed() {
	if h.metrics != nil {
		h.metrics.IncMalformed()
	}
}

var _ consumer.Handler = (*Handler)(nil)
