// Package postgres persists consumed ledger events into the ledger_events
// table, the queryable history of every lifecycle transition.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"upandup/pkg/platform/audit"
)

// Store writes and reads the ledger_events table.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL event log store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendWithID inserts the event under its own ID. A redelivered event is
// ignored, so consuming the same message twice stores it once.
func (s *Store) AppendWithID(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		return fmt.Errorf("insert ledger event: missing event id")
	}
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("marshal event attributes: %w", err)
	}
	if event.Attributes == nil {
		attrs = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_events (
			id, event_type, aggregate_type, aggregate_id,
			actor, request_id, client_ip, attributes, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`,
		event.ID,
		string(event.Type),
		event.AggregateType,
		event.AggregateID,
		event.Actor,
		event.RequestID,
		event.ClientIP,
		attrs,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// ListByAggregate returns the events of one partner or worker, oldest first.
func (s *Store) ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, aggregate_type, aggregate_id,
		       actor, request_id, client_ip, attributes, occurred_at
		FROM ledger_events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY occurred_at, recorded_at, id
	`, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var event audit.Event
		var eventType string
		var attrs []byte
		if err := rows.Scan(&event.ID, &eventType, &event.AggregateType, &event.AggregateID,
			&event.Actor, &event.RequestID, &event.ClientIP, &attrs, &event.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		event.Type = audit.EventType(eventType)
		if err := json.Unmarshal(attrs, &event.Attributes); err != nil {
			return nil, fmt.Errorf("decode event attributes: %w", err)
		}
		if len(event.Attributes) == 0 {
			event.Attributes = nil
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return events, nil
}
