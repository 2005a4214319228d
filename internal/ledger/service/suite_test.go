package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks DIDGateway,CredentialGateway

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"upandup/internal/gateway/providers/sandbox"
	"upandup/internal/ledger/models"
	"upandup/internal/ledger/store"
	id "upandup/pkg/domain"
	"upandup/pkg/platform/audit"
	"upandup/pkg/platform/middleware/requesttime"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type LedgerSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	gateway *sandbox.Provider
	service *Service
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = store.NewInMemory(nil)
	s.gateway = sandbox.New()
	s.service = s.newService(s.gateway, s.gateway)
}

func (s *LedgerSuite) newService(dids DIDGateway, credentials CredentialGateway, opts ...Option) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithLogger(logger)}, opts...)
	return New(s.store, s.store, dids, credentials, opts...)
}

// at returns a context whose request time is t0 plus offset.
func at(offset time.Duration) context.Context {
	return requesttime.WithTime(context.Background(), t0.Add(offset))
}

func (s *LedgerSuite) createPartner() *models.Partner {
	partner, err := s.service.CreatePartner(at(0), &models.CreatePartnerRequest{
		Name:  "Acme Logistics",
		Email: "ops@acme.test",
	})
	s.Require().NoError(err)
	return partner
}

func (s *LedgerSuite) inviteWorker(partnerID id.PartnerID, phone string) *models.Worker {
	worker, err := s.service.InviteWorker(at(0), partnerID, &models.InviteWorkerRequest{
		Name:  "Asha Rao",
		Phone: phone,
	})
	s.Require().NoError(err)
	return worker
}

// registeredWorker returns a worker registered at t0.
func (s *LedgerSuite) registeredWorker() *models.Worker {
	partner := s.createPartner()
	worker := s.inviteWorker(partner.ID, "+919876543210")
	worker, err := s.service.RegisterWorker(at(0), worker.ID, &models.RegisterWorkerRequest{})
	s.Require().NoError(err)
	return worker
}

func metadata() models.CredentialMetadata {
	return models.CredentialMetadata{
		DocumentHash: "9f86d081884c7d659a2feaa0c55ad015",
		IssueDate:    t0.Add(-30 * 24 * time.Hour),
	}
}

func (s *LedgerSuite) requestCredential(workerID id.WorkerID, credType models.CredentialType, issuerType models.IssuerType) *models.Credential {
	credential, err := s.service.RequestCredential(at(0), workerID, credType,
		models.Issuer{Type: issuerType, Name: "Issuer"}, metadata())
	s.Require().NoError(err)
	s.Require().NotEmpty(credential.VCURL)
	return credential
}

func (s *LedgerSuite) eventTypes() []audit.EventType {
	var types []audit.EventType
	for _, e := range s.store.Events() {
		types = append(types, e.Type)
	}
	return types
}
