package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upandup/pkg/platform/audit"
	"upandup/pkg/platform/audit/outbox"
)

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	entry, err := outbox.FromEvent(audit.NewWorkerEvent(audit.EventWorkerInvited, "w-1", now, nil))
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, entry))
	require.NoError(t, s.Append(ctx, entry), "re-appending the same event is a no-op")

	pending, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	batch, err := s.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, string(audit.EventWorkerInvited), batch[0].EventType)

	require.NoError(t, s.MarkProcessed(ctx, entry.ID, now.Add(time.Second)))
	assert.Error(t, s.MarkProcessed(ctx, entry.ID, now.Add(time.Second)))

	pending, err = s.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	deleted, err := s.DeleteProcessedBefore(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
