package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"upandup/internal/gateway"
	"upandup/internal/gateway/providers/sandbox"
	"upandup/internal/ledger/models"
	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/audit"
	"upandup/pkg/testutil"
)

func (s *LedgerSuite) TestRequestCredentialIssues() {
	worker := s.registeredWorker()

	credential := s.requestCredential(worker.ID, models.CredentialDrivingLicense, "")
	s.Equal(models.VerificationPending, credential.Status)
	s.Equal(models.IssuerGovernment, credential.Issuer.Type)
	s.Equal(models.AnchorConfirmed, credential.AnchorStatus)
	s.NotEmpty(credential.ExternalID)

	s.Equal([]audit.EventType{
		audit.EventWorkerInvited,
		audit.EventWorkerRegistered,
		audit.EventCredentialRequested,
		audit.EventCredentialIssued,
	}, s.eventTypes()[1:])
}

func (s *LedgerSuite) TestRequestCredentialValidation() {
	worker := s.registeredWorker()

	_, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialType("passport"),
		models.Issuer{Type: models.IssuerGovernment, Name: "MEA"}, metadata())
	s.True(models.IsCredentialError(err, models.CredentialInvalidInput))

	meta := metadata()
	meta.DocumentHash = ""
	_, err = s.service.RequestCredential(at(0), worker.ID, models.CredentialDegree,
		models.Issuer{Name: "University"}, meta)
	s.True(models.IsCredentialError(err, models.CredentialInvalidInput))

	_, err = s.service.RequestCredential(at(0), id.WorkerID(uuid.New()), models.CredentialDegree,
		models.Issuer{Name: "University"}, metadata())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LedgerSuite) TestRequestCredentialGatewayUnavailable() {
	worker := s.registeredWorker()
	down := gateway.KindUnavailable
	s.gateway.SetOutage(&down)

	_, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialSkillCertificate,
		models.Issuer{Name: "SkillHub"}, metadata())
	s.Require().Error(err)
	s.True(models.IsCredentialError(err, models.CredentialGatewayUnavailable))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	credentials, err := s.service.ListCredentials(at(0), worker.ID)
	s.Require().NoError(err)
	s.Require().Len(credentials, 1)
	s.Equal(models.VerificationPending, credentials[0].Status)
	s.Empty(credentials[0].VCURL)

	_, err = s.service.GetTrustScore(at(0), worker.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LedgerSuite) TestRequestCredentialGatewayRejects() {
	s.gateway = sandbox.New(sandbox.WithRejectedType(models.CredentialDegree, "issuer not registered"))
	s.service = s.newService(s.gateway, s.gateway)
	worker := s.registeredWorker()

	credential, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialDegree,
		models.Issuer{Name: "University"}, metadata())
	s.Require().NoError(err)
	s.Equal(models.VerificationRejected, credential.Status)
	s.Equal("issuer not registered", credential.FailureReason)
	s.Empty(credential.VCURL)
}

func (s *LedgerSuite) TestRequestCredentialPendingAtGateway() {
	s.gateway = sandbox.New(sandbox.WithIssueStatus(gateway.IssueStatusPending))
	s.service = s.newService(s.gateway, s.gateway)
	worker := s.registeredWorker()

	credential, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialDiploma,
		models.Issuer{Name: "Polytechnic"}, metadata())
	s.Require().NoError(err)
	s.Equal(models.VerificationPending, credential.Status)
	s.Empty(credential.VCURL)
	s.NotEmpty(credential.ExternalID)

	_, err = s.service.VerifyCredential(at(0), credential.ID)
	s.True(models.IsCredentialError(err, models.CredentialInvalidInput))

	awaiting, err := s.service.ListAwaitingIssuance(at(0), 10)
	s.Require().NoError(err)
	s.Require().Len(awaiting, 1)
	s.Equal(credential.ID, awaiting[0].ID)
}

func (s *LedgerSuite) TestPendingIssuanceResolvesToVerified() {
	s.gateway = sandbox.New(sandbox.WithIssueStatus(gateway.IssueStatusPending))
	s.service = s.newService(s.gateway, s.gateway)
	worker := s.registeredWorker()

	credential, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialSkillCertificate,
		models.Issuer{Name: "SkillHub"}, metadata())
	s.Require().NoError(err)

	stillPending, err := s.service.ResolveIssuance(at(time.Minute), credential.ID)
	s.Require().NoError(err)
	s.Empty(stillPending.VCURL)
	s.NotContains(s.eventTypes(), audit.EventCredentialIssued)

	s.Require().True(s.gateway.CompleteIssuance(credential.ExternalID))
	issued, err := s.service.ResolveIssuance(at(time.Hour), credential.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationPending, issued.Status)
	s.NotEmpty(issued.VCURL)
	s.Equal(credential.ExternalID, issued.ExternalID)
	s.Contains(s.eventTypes(), audit.EventCredentialIssued)

	awaiting, err := s.service.ListAwaitingIssuance(at(time.Hour), 10)
	s.Require().NoError(err)
	s.Empty(awaiting)

	again, err := s.service.ResolveIssuance(at(time.Hour), credential.ID)
	s.Require().NoError(err)
	s.Equal(issued.VCURL, again.VCURL)

	verified, err := s.service.VerifyCredential(at(2*time.Hour), credential.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationVerified, verified.Status)

	score, err := s.service.GetTrustScore(at(2*time.Hour), worker.ID)
	s.Require().NoError(err)
	s.Positive(score.Score)
}

func (s *LedgerSuite) TestPendingIssuanceFailureRejects() {
	s.gateway = sandbox.New(sandbox.WithIssueStatus(gateway.IssueStatusPending))
	s.service = s.newService(s.gateway, s.gateway)
	worker := s.registeredWorker()

	credential, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialDiploma,
		models.Issuer{Name: "Polytechnic"}, metadata())
	s.Require().NoError(err)
	s.Require().True(s.gateway.FailIssuance(credential.ExternalID, "issuer signing key revoked"))

	rejected, err := s.service.ResolveIssuance(at(time.Minute), credential.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationRejected, rejected.Status)
	s.Equal("issuer signing key revoked", rejected.FailureReason)

	_, err = s.service.ResolveIssuance(at(time.Minute), credential.ID)
	s.True(models.IsCredentialError(err, models.CredentialAlreadyTerminal))
}

func (s *LedgerSuite) TestResolveIssuanceRequiresIssuerReference() {
	worker := s.registeredWorker()
	down := gateway.KindUnavailable
	s.gateway.SetOutage(&down)
	_, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialSkillCertificate,
		models.Issuer{Name: "SkillHub"}, metadata())
	var credErr *models.CredentialError
	s.Require().True(errors.As(err, &credErr))
	s.gateway.SetOutage(nil)

	_, err = s.service.ResolveIssuance(at(0), credErr.CredentialID)
	s.True(models.IsCredentialError(err, models.CredentialInvalidInput))
}

func (s *LedgerSuite) TestRegistryDocumentCheck() {
	s.gateway = sandbox.New(sandbox.WithUnverifiedDocument(metadata().DocumentHash, "no matching record in DigiLocker"))
	s.service = s.newService(s.gateway, s.gateway, WithDocumentVerifier(s.gateway))
	worker := s.registeredWorker()

	rejected, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialPANCard,
		models.Issuer{Name: "Income Tax Department"}, metadata())
	s.Require().NoError(err)
	s.Equal(models.VerificationRejected, rejected.Status)
	s.Equal("no matching record in DigiLocker", rejected.FailureReason)
	s.Empty(rejected.ExternalID)

	// Platform certificates skip the registry
	skill, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialSkillCertificate,
		models.Issuer{Name: "SkillHub"}, metadata())
	s.Require().NoError(err)
	s.NotEmpty(skill.VCURL)

	meta := metadata()
	meta.DocumentHash = "1b4f0e9851971998e732078544c96b36"
	voter, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialVoterID,
		models.Issuer{Name: "Election Commission"}, meta)
	s.Require().NoError(err)
	s.NotEmpty(voter.VCURL)
}

func (s *LedgerSuite) TestRegistryDocumentCheckUnavailable() {
	s.service = s.newService(s.gateway, s.gateway, WithDocumentVerifier(s.gateway))
	worker := s.registeredWorker()
	down := gateway.KindTimeout
	s.gateway.SetOutage(&down)

	_, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialVoterID,
		models.Issuer{Name: "Election Commission"}, metadata())
	s.True(models.IsCredentialError(err, models.CredentialGatewayUnavailable))

	credentials, err := s.service.ListCredentials(at(0), worker.ID)
	s.Require().NoError(err)
	s.Empty(credentials)
}

func (s *LedgerSuite) TestVerifyRejectedCredentialIsNoOp() {
	worker := s.registeredWorker()
	credential := s.requestCredential(worker.ID, models.CredentialVoterID, models.IssuerGovernment)
	s.True(s.gateway.Revoke(credential.VCURL))

	rejected, err := s.service.VerifyCredential(at(0), credential.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationRejected, rejected.Status)
	eventsBefore := len(s.store.Events())

	_, err = s.service.VerifyCredential(at(0), credential.ID)
	s.True(models.IsCredentialError(err, models.CredentialAlreadyTerminal))
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyTerminal))

	fetched, err := s.service.GetCredential(at(0), credential.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationRejected, fetched.Status)
	s.Len(s.store.Events(), eventsBefore)

	_, err = s.service.GetTrustScore(at(0), worker.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LedgerSuite) TestTerminalCredentialsStayTerminal() {
	worker := s.registeredWorker()
	credential := s.requestCredential(worker.ID, models.CredentialPANCard, models.IssuerGovernment)
	_, err := s.service.VerifyCredential(at(0), credential.ID)
	s.Require().NoError(err)
	s.True(s.gateway.Revoke(credential.VCURL))

	expired, err := s.service.RecheckCredential(at(day), credential.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationExpired, expired.Status)

	_, err = s.service.VerifyCredential(at(day), credential.ID)
	s.True(models.IsCredentialError(err, models.CredentialAlreadyTerminal))
	_, err = s.service.RecheckCredential(at(day), credential.ID)
	s.True(models.IsCredentialError(err, models.CredentialAlreadyTerminal))

	fetched, err := s.service.GetCredential(at(0), credential.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationExpired, fetched.Status)
}

func (s *LedgerSuite) TestVerifyGatewayFailureLeavesStateUnchanged() {
	worker := s.registeredWorker()
	credential := s.requestCredential(worker.ID, models.CredentialPANCard, models.IssuerGovernment)
	timeout := gateway.KindTimeout
	s.gateway.SetOutage(&timeout)

	_, err := s.service.VerifyCredential(at(0), credential.ID)
	s.True(models.IsCredentialError(err, models.CredentialGatewayUnavailable))

	fetched, err := s.service.GetCredential(at(0), credential.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationPending, fetched.Status)
}

func (s *LedgerSuite) TestRecheckExpiresPastExpiry() {
	worker := s.registeredWorker()
	expiry := t0.Add(30 * day)
	meta := metadata()
	meta.ExpiryDate = &expiry
	credential, err := s.service.RequestCredential(at(0), worker.ID, models.CredentialDrivingLicense,
		models.Issuer{Name: "RTO"}, meta)
	s.Require().NoError(err)
	_, err = s.service.VerifyCredential(at(0), credential.ID)
	s.Require().NoError(err)

	checked, err := s.service.RecheckCredential(at(day), credential.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationVerified, checked.Status)
	s.Require().NotNil(checked.LastCheckedAt)
	s.Equal(t0.Add(day), *checked.LastCheckedAt)

	expired, err := s.service.RecheckCredential(at(31*day), credential.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationExpired, expired.Status)
	s.Equal(reasonExpired, expired.FailureReason)

	score, err := s.service.GetTrustScore(at(0), worker.ID)
	s.Require().NoError(err)
	s.Equal(0, score.Breakdown.VerifiedCredentials)
	s.Equal(1, score.Breakdown.TotalCredentials)
}

func (s *LedgerSuite) TestListDueCredentials() {
	worker := s.registeredWorker()
	credential := s.requestCredential(worker.ID, models.CredentialPANCard, models.IssuerGovernment)
	_, err := s.service.VerifyCredential(at(0), credential.ID)
	s.Require().NoError(err)

	due, err := s.service.ListDueCredentials(at(time.Hour), 10)
	s.Require().NoError(err)
	s.Empty(due)

	due, err = s.service.ListDueCredentials(at(2*day), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(credential.ID, due[0].ID)
}

func (s *LedgerSuite) TestConcurrentVerificationsOnOneWorker() {
	worker := s.registeredWorker()
	first := s.requestCredential(worker.ID, models.CredentialPANCard, models.IssuerGovernment)
	second := s.requestCredential(worker.ID, models.CredentialEmployerAppreciation, models.IssuerEmployer)
	ids := []id.CredentialID{first.ID, second.ID}

	result := testutil.RunConcurrent(len(ids), func(idx int) error {
		_, err := s.service.VerifyCredential(at(day), ids[idx])
		return err
	})
	s.EqualValues(2, result.Successes)

	score, err := s.service.GetTrustScore(at(0), worker.ID)
	s.Require().NoError(err)
	s.Equal(2, score.Breakdown.VerifiedCredentials)
	s.Equal(2, score.Breakdown.TotalCredentials)
	s.True(score.Breakdown.EmployerVerified)
	s.True(score.Breakdown.GovernmentVerified)
	s.Equal(2, score.Version)
}

func (s *LedgerSuite) TestBusyWorkerTimesOut() {
	s.service = s.newService(s.gateway, s.gateway, WithLockWait(20*time.Millisecond))
	worker := s.registeredWorker()

	unlock, err := s.service.lockWorker(context.Background(), worker.ID)
	s.Require().NoError(err)
	defer unlock()

	_, err = s.service.RecomputeTrustScore(at(0), worker.ID)
	s.True(models.IsBusy(err))
	s.True(dErrors.HasCode(err, dErrors.CodeBusy))

	other := s.inviteWorker(worker.PartnerID, "+919800000001")
	_, err = s.service.RecomputeTrustScore(at(0), other.ID)
	s.NoError(err)
}
