package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upandup/internal/ledger/models"
	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/audit"
	"upandup/pkg/platform/audit/outbox"
	outboxmemory "upandup/pkg/platform/audit/outbox/store/memory"
	"upandup/pkg/platform/sentinel"
	"upandup/pkg/testutil"
)

var (
	_ Store    = (*InMemoryStore)(nil)
	_ Store    = (*memoryView)(nil)
	_ Store    = (*PostgresStore)(nil)
	_ TxRunner = (*InMemoryStore)(nil)
	_ TxRunner = (*PostgresTx)(nil)
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedWorker(t *testing.T, s *InMemoryStore, phone string) (*models.Partner, *models.Worker) {
	t.Helper()
	ctx := context.Background()
	partner, err := models.NewPartner(id.PartnerID(uuid.New()), "Acme", "ops@acme.test", t0)
	require.NoError(t, err)
	require.NoError(t, s.CreatePartner(ctx, partner))
	worker, err := models.NewInvitedWorker(id.WorkerID(uuid.New()), partner.ID, "Asha", phone, t0)
	require.NoError(t, err)
	require.NoError(t, s.CreateWorker(ctx, worker))
	return partner, worker
}

func verifiedCredential(t *testing.T, workerID id.WorkerID, createdAt time.Time, lastChecked *time.Time) *models.Credential {
	t.Helper()
	return testutil.NewCredentialBuilder(workerID).
		CreatedAt(createdAt).
		Verified().
		LastChecked(lastChecked).
		Build()
}

func TestInMemoryStoreWorkers(t *testing.T) {
	s := NewInMemory(nil)
	ctx := context.Background()
	partner, worker := seedWorker(t, s, "+919876543210")

	fetched, err := s.FindWorker(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, worker.Phone, fetched.Phone)

	// Returned copies do not alias stored state
	fetched.Name = "changed"
	again, err := s.FindWorker(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha", again.Name)

	dup, err := models.NewInvitedWorker(id.WorkerID(uuid.New()), partner.ID, "Other", worker.Phone, t0)
	require.NoError(t, err)
	assert.ErrorIs(t, s.CreateWorker(ctx, dup), sentinel.ErrConflict)

	orphan, err := models.NewInvitedWorker(id.WorkerID(uuid.New()), id.PartnerID(uuid.New()), "Orphan", "+911111111111", t0)
	require.NoError(t, err)
	assert.ErrorIs(t, s.CreateWorker(ctx, orphan), sentinel.ErrNotFound)

	_, err = s.FindWorker(ctx, id.WorkerID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStoreDIDUniqueness(t *testing.T) {
	s := NewInMemory(nil)
	ctx := context.Background()
	_, first := seedWorker(t, s, "+919876543210")
	_, second := seedWorker(t, s, "+919876543211")

	require.NoError(t, first.SetDID("did:cord:shared", models.AnchorPending, "tx", t0))
	require.NoError(t, s.UpdateWorker(ctx, first))

	require.NoError(t, second.SetDID("did:cord:shared", models.AnchorPending, "tx", t0))
	assert.ErrorIs(t, s.UpdateWorker(ctx, second), sentinel.ErrConflict)
}

func TestInMemoryStoreRunInTx(t *testing.T) {
	t.Run("commits writes and events together", func(t *testing.T) {
		s := NewInMemory(nil)
		ctx := context.Background()
		_, worker := seedWorker(t, s, "+919876543210")

		err := s.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			w, err := tx.FindWorker(ctx, worker.ID)
			if err != nil {
				return err
			}
			if err := w.Register("", t0); err != nil {
				return err
			}
			if err := tx.UpdateWorker(ctx, w); err != nil {
				return err
			}
			return tx.AppendEvent(ctx, audit.NewWorkerEvent(audit.EventWorkerRegistered, w.ID.String(), t0, nil))
		})
		require.NoError(t, err)

		fetched, err := s.FindWorker(ctx, worker.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OnboardingRegistered, fetched.Status)
		require.Len(t, s.Events(), 1)
		pending, err := s.Outbox().CountPending(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, pending)
	})

	t.Run("failure discards writes and events", func(t *testing.T) {
		s := NewInMemory(nil)
		ctx := context.Background()
		_, worker := seedWorker(t, s, "+919876543210")
		boom := errors.New("boom")

		err := s.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			w, err := tx.FindWorker(ctx, worker.ID)
			if err != nil {
				return err
			}
			w.Name = "Renamed"
			if err := tx.UpdateWorker(ctx, w); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, audit.NewWorkerEvent(audit.EventWorkerRegistered, w.ID.String(), t0, nil)); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		fetched, err := s.FindWorker(ctx, worker.ID)
		require.NoError(t, err)
		assert.Equal(t, "Asha", fetched.Name)
		assert.Empty(t, s.Events())
	})

	t.Run("outbox failure commits neither state nor events", func(t *testing.T) {
		ob := &failingOutbox{Store: outboxmemory.New(), failAfter: 1}
		s := NewInMemory(ob)
		ctx := context.Background()
		_, worker := seedWorker(t, s, "+919876543210")

		err := s.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			w, err := tx.FindWorker(ctx, worker.ID)
			if err != nil {
				return err
			}
			if err := w.Register("", t0); err != nil {
				return err
			}
			if err := tx.UpdateWorker(ctx, w); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, audit.NewWorkerEvent(audit.EventWorkerRegistered, w.ID.String(), t0, nil)); err != nil {
				return err
			}
			return tx.AppendEvent(ctx, audit.NewWorkerEvent(audit.EventWorkerStatusAdvanced, w.ID.String(), t0, nil))
		})
		require.Error(t, err)

		fetched, err := s.FindWorker(ctx, worker.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OnboardingInvited, fetched.Status)
		assert.Empty(t, s.Events())
		pending, err := ob.CountPending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
	})

	t.Run("cancelled context aborts as timeout", func(t *testing.T) {
		s := NewInMemory(nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := s.RunInTx(ctx, func(context.Context, Store) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.False(t, called)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

// failingOutbox accepts failAfter single appends and then fails every write.
type failingOutbox struct {
	*outboxmemory.Store
	failAfter int
	appended  int
}

func (o *failingOutbox) Append(ctx context.Context, entry *outbox.Entry) error {
	if o.appended >= o.failAfter {
		return errors.New("outbox unavailable")
	}
	o.appended++
	return o.Store.Append(ctx, entry)
}

func (o *failingOutbox) AppendBatch(ctx context.Context, entries []*outbox.Entry) error {
	if len(entries) > o.failAfter-o.appended {
		return errors.New("outbox unavailable")
	}
	o.appended += len(entries)
	return o.Store.AppendBatch(ctx, entries)
}

func TestInMemoryStoreCredentials(t *testing.T) {
	s := NewInMemory(nil)
	ctx := context.Background()
	_, worker := seedWorker(t, s, "+919876543210")

	fresh := t0.Add(-time.Hour)
	stale := t0.Add(-48 * time.Hour)
	expiresAt := t0.Add(-time.Minute)

	recent := verifiedCredential(t, worker.ID, t0.Add(-3*time.Hour), &fresh)
	old := verifiedCredential(t, worker.ID, t0.Add(-2*time.Hour), &stale)
	expired := verifiedCredential(t, worker.ID, t0.Add(-time.Hour), &fresh)
	expired.ExpiresAt = &expiresAt
	never := verifiedCredential(t, worker.ID, t0, nil)
	for _, c := range []*models.Credential{recent, old, expired, never} {
		require.NoError(t, s.CreateCredential(ctx, c))
	}

	listed, err := s.ListCredentialsByWorker(ctx, worker.ID)
	require.NoError(t, err)
	require.Len(t, listed, 4)
	assert.Equal(t, recent.ID, listed[0].ID)
	assert.Equal(t, never.ID, listed[3].ID)

	due, err := s.ListDueCredentials(ctx, t0, t0.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, never.ID, due[0].ID)
	assert.Equal(t, old.ID, due[1].ID)
	assert.Equal(t, expired.ID, due[2].ID)

	limited, err := s.ListDueCredentials(ctx, t0, t0.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	orphan := verifiedCredential(t, id.WorkerID(uuid.New()), t0, nil)
	assert.ErrorIs(t, s.CreateCredential(ctx, orphan), sentinel.ErrNotFound)
	assert.ErrorIs(t, s.CreateCredential(ctx, recent), sentinel.ErrConflict)
}

func TestInMemoryStoreAwaitingIssuance(t *testing.T) {
	s := NewInMemory(nil)
	ctx := context.Background()
	_, worker := seedWorker(t, s, "+919876543210")

	later := testutil.NewCredentialBuilder(worker.ID).CreatedAt(t0).AwaitingIssuance("ext-2").Build()
	earlier := testutil.NewCredentialBuilder(worker.ID).CreatedAt(t0.Add(-time.Hour)).AwaitingIssuance("ext-1").Build()
	unsent := testutil.NewCredentialBuilder(worker.ID).CreatedAt(t0).Build()
	issued := verifiedCredential(t, worker.ID, t0, nil)
	for _, c := range []*models.Credential{later, earlier, unsent, issued} {
		require.NoError(t, s.CreateCredential(ctx, c))
	}

	awaiting, err := s.ListAwaitingIssuance(ctx, 10)
	require.NoError(t, err)
	require.Len(t, awaiting, 2)
	assert.Equal(t, earlier.ID, awaiting[0].ID)
	assert.Equal(t, later.ID, awaiting[1].ID)

	limited, err := s.ListAwaitingIssuance(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.ListAwaitingIssuance(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInMemoryStoreTrustScore(t *testing.T) {
	s := NewInMemory(nil)
	ctx := context.Background()
	_, worker := seedWorker(t, s, "+919876543210")

	_, err := s.FindTrustScore(ctx, worker.ID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	score := &models.TrustScore{ID: id.TrustScoreID(uuid.New()), WorkerID: worker.ID, Score: 40, Version: 1, LastCalculated: t0}
	require.NoError(t, s.SaveTrustScore(ctx, score))
	score.Score = 55
	score.Version = 2
	require.NoError(t, s.SaveTrustScore(ctx, score))

	fetched, err := s.FindTrustScore(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, fetched.Score)
	assert.Equal(t, 2, fetched.Version)
}
