// Package memory is an in-process outbox.Store used when no database is configured.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"upandup/pkg/platform/audit/outbox"
)

// Store keeps entries in insertion order.
type Store struct {
	mu      sync.Mutex
	entries []*outbox.Entry
	index   map[uuid.UUID]*outbox.Entry
}

// New creates an empty store.
func New() *Store {
	return &Store{index: make(map[uuid.UUID]*outbox.Entry)}
}

func (s *Store) Append(_ context.Context, entry *outbox.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[entry.ID]; exists {
		return nil
	}
	copied := *entry
	s.entries = append(s.entries, &copied)
	s.index[entry.ID] = &copied
	return nil
}

func (s *Store) AppendBatch(_ context.Context, entries []*outbox.Entry) error {
	for _, entry := range entries {
		if entry == nil {
			return fmt.Errorf("outbox entry is required")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		if _, exists := s.index[entry.ID]; exists {
			continue
		}
		copied := *entry
		s.entries = append(s.entries, &copied)
		s.index[entry.ID] = &copied
	}
	return nil
}

func (s *Store) FetchUnprocessed(_ context.Context, limit int) ([]*outbox.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		return nil, nil
	}
	out := make([]*outbox.Entry, 0, limit)
	for _, e := range s.entries {
		if len(out) >= limit {
			break
		}
		if e.IsPending() {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *Store) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok || !e.IsPending() {
		return fmt.Errorf("outbox entry not found or already processed: %s", id)
	}
	at := processedAt
	e.ProcessedAt = &at
	return nil
}

func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.IsPending() {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	s.entries = slices.DeleteFunc(s.entries, func(e *outbox.Entry) bool {
		if e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(s.index, e.ID)
			deleted++
			return true
		}
		return false
	})
	return deleted, nil
}

var _ outbox.Store = (*Store)(nil)
