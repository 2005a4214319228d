package service

import (
	"github.com/google/uuid"

	"upandup/internal/gateway"
	"upandup/internal/gateway/providers/sandbox"
	"upandup/internal/ledger/models"
	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/audit"
	clientmeta "upandup/pkg/platform/middleware/metadata"
	"upandup/pkg/platform/middleware/request"
	"upandup/pkg/secrets"
	"upandup/pkg/testutil"
)

func (s *LedgerSuite) TestEventsCarryRequestMetadata() {
	ctx := request.WithRequestID(at(0), "req-42")
	ctx = clientmeta.WithClientMetadata(ctx, "203.0.113.7", "partner-sdk/1.4")
	partner, err := s.service.CreatePartner(ctx, &models.CreatePartnerRequest{Name: "Acme", Email: "ops@acme.test"})
	s.Require().NoError(err)
	s.inviteWorker(partner.ID, "+919876543210")

	events := s.store.Events()
	s.Require().Len(events, 2)
	s.Equal("req-42", events[0].RequestID)
	s.Equal("203.0.113.7", events[0].ClientIP)
	s.Equal("system", events[0].Actor)
	s.Empty(events[1].ClientIP)
}

func (s *LedgerSuite) TestPartnerLifecycle() {
	partner := s.createPartner()
	s.Equal(models.PartnershipPending, partner.Status)

	updated, err := s.service.UpdatePartnerStatus(at(0), partner.ID, models.PartnershipActive)
	s.Require().NoError(err)
	s.Equal(models.PartnershipActive, updated.Status)

	// Same status again is a no-op
	_, err = s.service.UpdatePartnerStatus(at(0), partner.ID, models.PartnershipActive)
	s.Require().NoError(err)

	completed, err := s.service.CompleteOnboarding(at(0), partner.ID)
	s.Require().NoError(err)
	s.True(completed.OnboardingCompleted)
	_, err = s.service.CompleteOnboarding(at(0), partner.ID)
	s.Require().NoError(err)

	s.Equal([]audit.EventType{
		audit.EventPartnerCreated,
		audit.EventPartnerStatusChanged,
		audit.EventPartnerOnboarded,
	}, s.eventTypes())

	_, err = s.service.GetPartner(at(0), id.PartnerID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LedgerSuite) TestInviteWorker() {
	partner := s.createPartner()
	worker := s.inviteWorker(partner.ID, "+919876543210")
	s.Equal(models.OnboardingInvited, worker.Status)
	s.Nil(worker.RegisteredAt)

	s.Run("duplicate phone for partner conflicts", func() {
		_, err := s.service.InviteWorker(at(0), partner.ID, &models.InviteWorkerRequest{Name: "Other", Phone: "+919876543210"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("same phone under another partner is allowed", func() {
		other := s.createPartner()
		s.inviteWorker(other.ID, "+919876543210")
	})

	s.Run("suspended partner cannot invite", func() {
		_, err := s.service.UpdatePartnerStatus(at(0), partner.ID, models.PartnershipSuspended)
		s.Require().NoError(err)
		_, err = s.service.InviteWorker(at(0), partner.ID, &models.InviteWorkerRequest{Name: "New", Phone: "+919800000000"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown partner", func() {
		_, err := s.service.InviteWorker(at(0), id.PartnerID(uuid.New()), &models.InviteWorkerRequest{Name: "New", Phone: "+919800000000"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *LedgerSuite) TestRegisterWorker() {
	partner := s.createPartner()
	worker := s.inviteWorker(partner.ID, "+919876543210")

	registered, err := s.service.RegisterWorker(at(day), worker.ID, &models.RegisterWorkerRequest{NationalID: "ABCD1234EF"})
	s.Require().NoError(err)
	s.Equal(models.OnboardingRegistered, registered.Status)
	s.True(registered.MobileAppRegistered)
	s.Require().NotNil(registered.RegisteredAt)
	s.Equal(t0.Add(day), *registered.RegisteredAt)
	s.NoError(secrets.Verify("ABCD1234EF", registered.NationalIDHash))

	_, err = s.service.RegisterWorker(at(day), worker.ID, &models.RegisterWorkerRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *LedgerSuite) TestCreateWorkerDIDSetsOnce() {
	partner := s.createPartner()
	worker := s.inviteWorker(partner.ID, "+919876543210")

	withDID, err := s.service.CreateWorkerDID(at(day), worker.ID, models.WorkerDetails{})
	s.Require().NoError(err)
	s.NotEmpty(withDID.DID)
	s.Equal(models.AnchorConfirmed, withDID.DIDAnchor)
	s.NotEmpty(withDID.DIDTransactionRef)
	s.Equal(models.OnboardingRegistered, withDID.Status)
	s.Require().NotNil(withDID.RegisteredAt)
	s.Equal(t0.Add(day), *withDID.RegisteredAt)

	_, err = s.service.CreateWorkerDID(at(day), worker.ID, models.WorkerDetails{})
	s.True(models.IsDIDError(err, models.DIDAlreadySet))
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadySet))

	fetched, err := s.service.GetWorker(at(0), worker.ID)
	s.Require().NoError(err)
	s.Equal(withDID.DID, fetched.DID)
}

func (s *LedgerSuite) TestCreateWorkerDIDFailuresLeaveWorkerUnchanged() {
	s.Run("gateway unavailable", func() {
		s.SetupTest()
		partner := s.createPartner()
		worker := s.inviteWorker(partner.ID, "+919876543210")
		down := gateway.KindUnavailable
		s.gateway.SetOutage(&down)

		_, err := s.service.CreateWorkerDID(at(0), worker.ID, models.WorkerDetails{})
		s.True(models.IsDIDError(err, models.DIDGatewayUnavailable))

		fetched, err := s.service.GetWorker(at(0), worker.ID)
		s.Require().NoError(err)
		s.False(fetched.HasDID())
		s.Equal(models.OnboardingInvited, fetched.Status)
	})

	s.Run("anchor failed", func() {
		s.SetupTest()
		s.gateway = sandbox.New(sandbox.WithDIDAnchor(models.AnchorFailed))
		s.service = s.newService(s.gateway, s.gateway)
		partner := s.createPartner()
		worker := s.inviteWorker(partner.ID, "+919876543210")

		_, err := s.service.CreateWorkerDID(at(0), worker.ID, models.WorkerDetails{})
		s.True(models.IsDIDError(err, models.DIDGatewayUnavailable))

		fetched, err := s.service.GetWorker(at(0), worker.ID)
		s.Require().NoError(err)
		s.False(fetched.HasDID())
	})
}

func (s *LedgerSuite) TestReassignWorkerKeepsStatus() {
	worker := s.registeredWorker()
	target := s.createPartner()

	moved, err := s.service.ReassignWorker(at(0), worker.ID, target.ID)
	s.Require().NoError(err)
	s.Equal(target.ID, moved.PartnerID)
	s.Equal(models.OnboardingRegistered, moved.Status)

	_, err = s.service.ReassignWorker(at(0), worker.ID, id.PartnerID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	clash := s.inviteWorker(worker.PartnerID, worker.Phone)
	_, err = s.service.ReassignWorker(at(0), clash.ID, target.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *LedgerSuite) TestConcurrentDIDCreationSetsOnce() {
	partner := s.createPartner()
	worker := s.inviteWorker(partner.ID, "+919876543210")

	result := testutil.RunConcurrent(5, func(int) error {
		_, err := s.service.CreateWorkerDID(at(0), worker.ID, models.WorkerDetails{})
		return err
	})
	s.EqualValues(1, result.Successes)
	s.EqualValues(4, result.Conflicts)
}
