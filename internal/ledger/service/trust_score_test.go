package service

import (
	"time"

	"upandup/internal/gateway/providers/sandbox"
	"upandup/internal/ledger/models"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/audit"
)

const day = 24 * time.Hour

func (s *LedgerSuite) TestRecomputeWithoutCredentials() {
	worker := s.registeredWorker()

	score, err := s.service.RecomputeTrustScore(at(45*day), worker.ID)
	s.Require().NoError(err)

	// Only tenure contributes: 45 of 90 days.
	s.Equal(5, score.Score)
	s.Zero(score.Factors.CredentialCount)
	s.Zero(score.Factors.VerificationRate)
	s.Zero(score.Factors.EmployerEndorsement)
	s.Zero(score.Factors.BlockchainIntegrity)
	s.InDelta(5.0, score.Factors.TimeFactored, 1e-9)
	s.Equal(1, score.Version)

	fetched, err := s.service.GetWorker(at(0), worker.ID)
	s.Require().NoError(err)
	s.Equal(models.OnboardingRegistered, fetched.Status)
}

func (s *LedgerSuite) TestRecomputeInvitedWorkerScoresZero() {
	partner := s.createPartner()
	worker := s.inviteWorker(partner.ID, "+919876543210")

	score, err := s.service.RecomputeTrustScore(at(200*day), worker.ID)
	s.Require().NoError(err)
	s.Equal(0, score.Score)
	s.Zero(score.Factors.TimeFactored)
}

func (s *LedgerSuite) TestVerifiedEmployerCredentialActivatesWorker() {
	worker := s.registeredWorker()
	_, err := s.service.CreateWorkerDID(at(0), worker.ID, models.WorkerDetails{})
	s.Require().NoError(err)

	credential := s.requestCredential(worker.ID, models.CredentialEmployerAppreciation, models.IssuerEmployer)
	_, err = s.service.VerifyCredential(at(10*day), credential.ID)
	s.Require().NoError(err)

	score, err := s.service.GetTrustScore(at(10*day), worker.ID)
	s.Require().NoError(err)
	s.InDelta(2.5, score.Factors.CredentialCount, 1e-9)
	s.InDelta(30.0, score.Factors.VerificationRate, 1e-9)
	s.InDelta(20.0, score.Factors.EmployerEndorsement, 1e-9)
	s.InDelta(15.0, score.Factors.BlockchainIntegrity, 1e-9)
	s.InDelta(10.0/9.0, score.Factors.TimeFactored, 1e-9)
	s.Equal(69, score.Score)
	s.True(score.Breakdown.EmployerVerified)
	s.True(score.Breakdown.BlockchainVerified)
	s.Equal([]string{"employer-appreciation"}, score.Breakdown.CredentialTypes)

	fetched, err := s.service.GetWorker(at(0), worker.ID)
	s.Require().NoError(err)
	s.Equal(models.OnboardingActive, fetched.Status)

	var advanced []string
	for _, e := range s.store.Events() {
		if e.Type == audit.EventWorkerStatusAdvanced {
			advanced = append(advanced, e.Attributes["to"])
		}
	}
	s.Equal([]string{"verified", "active"}, advanced)
}

func (s *LedgerSuite) TestRecomputeIsIdempotent() {
	worker := s.registeredWorker()
	credential := s.requestCredential(worker.ID, models.CredentialPANCard, models.IssuerGovernment)
	_, err := s.service.VerifyCredential(at(day), credential.ID)
	s.Require().NoError(err)
	s.requestCredential(worker.ID, models.CredentialSkillCertificate, models.IssuerPlatform)

	first, err := s.service.RecomputeTrustScore(at(20*day), worker.ID)
	s.Require().NoError(err)
	second, err := s.service.RecomputeTrustScore(at(20*day), worker.ID)
	s.Require().NoError(err)

	s.Equal(first.Score, second.Score)
	s.Equal(first.Factors, second.Factors)
	s.Equal(first.Breakdown, second.Breakdown)
	s.Equal(first.SnapshotDigest, second.SnapshotDigest)
	s.True(first.SameResult(second))
	s.Equal(first.ID, second.ID)
	s.Equal(first.Version+1, second.Version)
}

func (s *LedgerSuite) TestPendingAnchorResolvedThroughGateway() {
	s.gateway = sandbox.New(sandbox.WithDIDAnchor(models.AnchorPending))
	s.service = s.newService(s.gateway, s.gateway)
	worker := s.registeredWorker()

	worker, err := s.service.CreateWorkerDID(at(0), worker.ID, models.WorkerDetails{})
	s.Require().NoError(err)
	s.Equal(models.AnchorPending, worker.DIDAnchor)

	score, err := s.service.RecomputeTrustScore(at(0), worker.ID)
	s.Require().NoError(err)
	s.Zero(score.Factors.BlockchainIntegrity)

	s.True(s.gateway.ConfirmAnchor(worker.DID))
	score, err = s.service.RecomputeTrustScore(at(0), worker.ID)
	s.Require().NoError(err)
	s.InDelta(15.0, score.Factors.BlockchainIntegrity, 1e-9)

	fetched, err := s.service.GetWorker(at(0), worker.ID)
	s.Require().NoError(err)
	s.Equal(models.AnchorConfirmed, fetched.DIDAnchor)
}

func (s *LedgerSuite) TestScoreBounds() {
	worker := s.registeredWorker()
	_, err := s.service.CreateWorkerDID(at(0), worker.ID, models.WorkerDetails{})
	s.Require().NoError(err)

	types := []models.CredentialType{
		models.CredentialVoterID, models.CredentialPANCard, models.CredentialDrivingLicense,
		models.CredentialTenthMarksheet, models.CredentialTwelfthMarksheet, models.CredentialDiploma,
		models.CredentialDegree, models.CredentialSkillCertificate, models.CredentialEmployerAppreciation,
		models.CredentialTrainingCertificate, models.CredentialEmployerAppreciation, models.CredentialDegree,
	}
	for _, credType := range types {
		c := s.requestCredential(worker.ID, credType, credType.DefaultIssuerType())
		_, err := s.service.VerifyCredential(at(0), c.ID)
		s.Require().NoError(err)
	}

	score, err := s.service.RecomputeTrustScore(at(365*day), worker.ID)
	s.Require().NoError(err)
	s.Equal(100, score.Score)
	s.LessOrEqual(score.Breakdown.VerifiedCredentials, score.Breakdown.TotalCredentials)
	s.Equal(len(types), score.Breakdown.TotalCredentials)
}

func (s *LedgerSuite) TestGetTrustScoreBeforeCompute() {
	worker := s.registeredWorker()
	_, err := s.service.GetTrustScore(at(0), worker.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
