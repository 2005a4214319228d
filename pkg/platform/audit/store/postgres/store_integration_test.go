//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"upandup/pkg/platform/audit"
	auditpostgres "upandup/pkg/platform/audit/store/postgres"
	"upandup/pkg/testutil/containers"
)

type EventStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpostgres.Store
}

func TestEventStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(EventStoreSuite))
}

func (s *EventStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = auditpostgres.New(s.postgres.DB)
}

func (s *EventStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "ledger_events"))
}

func (s *EventStoreSuite) TestAppendIsIdempotent() {
	ctx := context.Background()
	workerID := uuid.NewString()
	at := time.Now().UTC().Truncate(time.Microsecond)

	requested := audit.NewWorkerEvent(audit.EventCredentialRequested, workerID, at, map[string]string{"credential_type": "pan-card"})
	requested.RequestID = "req-1"
	requested.ClientIP = "203.0.113.7"
	verified := audit.NewWorkerEvent(audit.EventCredentialVerified, workerID, at.Add(time.Minute), nil)

	s.Require().NoError(s.store.AppendWithID(ctx, requested))
	s.Require().NoError(s.store.AppendWithID(ctx, requested))
	s.Require().NoError(s.store.AppendWithID(ctx, verified))

	n, err := s.postgres.CountRows(ctx, "ledger_events")
	s.Require().NoError(err)
	s.Equal(2, n)

	events, err := s.store.ListByAggregate(ctx, audit.AggregateWorker, workerID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(requested.ID, events[0].ID)
	s.Equal("203.0.113.7", events[0].ClientIP)
	s.Equal("pan-card", events[0].Attributes["credential_type"])
	s.True(at.Equal(events[0].OccurredAt))
	s.Equal(audit.EventCredentialVerified, events[1].Type)
	s.Nil(events[1].Attributes)
}

func (s *EventStoreSuite) TestAppendRequiresID() {
	err := s.store.AppendWithID(context.Background(), audit.Event{Type: audit.EventWorkerInvited})
	s.Error(err)
}
