package testutil

import (
	"time"

	"github.com/google/uuid"

	"upandup/internal/ledger/models"
	id "upandup/pkg/domain"
)

// FixedTime is the reference instant used by builders.
var FixedTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// TestIDs provides convenient pre-generated IDs for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	PartnerID1 id.PartnerID
	PartnerID2 id.PartnerID
	WorkerID1  id.WorkerID
	WorkerID2  id.WorkerID
}{
	PartnerID1: id.PartnerID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	PartnerID2: id.PartnerID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000002")),
	WorkerID1:  id.WorkerID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	WorkerID2:  id.WorkerID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
}

// PartnerBuilder provides a fluent interface for building test partners.
type PartnerBuilder struct {
	partner *models.Partner
}

// NewPartnerBuilder creates an active partner with sensible defaults.
func NewPartnerBuilder() *PartnerBuilder {
	return &PartnerBuilder{
		partner: &models.Partner{
			ID:        id.PartnerID(uuid.New()),
			Name:      "Acme Logistics",
			Email:     "ops@acme.test",
			Status:    models.PartnershipActive,
			CreatedAt: FixedTime,
			UpdatedAt: FixedTime,
		},
	}
}

func (b *PartnerBuilder) WithID(partnerID id.PartnerID) *PartnerBuilder {
	b.partner.ID = partnerID
	return b
}

func (b *PartnerBuilder) WithStatus(status models.PartnershipStatus) *PartnerBuilder {
	b.partner.Status = status
	return b
}

func (b *PartnerBuilder) Build() *models.Partner {
	return b.partner
}

// WorkerBuilder provides a fluent interface for building test workers.
type WorkerBuilder struct {
	worker *models.Worker
}

// NewWorkerBuilder creates an invited worker with sensible defaults.
func NewWorkerBuilder() *WorkerBuilder {
	return &WorkerBuilder{
		worker: &models.Worker{
			ID:        id.WorkerID(uuid.New()),
			PartnerID: TestIDs.PartnerID1,
			Name:      "Asha",
			Phone:     "+919876543210",
			Status:    models.OnboardingInvited,
			CreatedAt: FixedTime,
			UpdatedAt: FixedTime,
		},
	}
}

func (b *WorkerBuilder) WithID(workerID id.WorkerID) *WorkerBuilder {
	b.worker.ID = workerID
	return b
}

func (b *WorkerBuilder) WithPartner(partnerID id.PartnerID) *WorkerBuilder {
	b.worker.PartnerID = partnerID
	return b
}

func (b *WorkerBuilder) WithPhone(phone string) *WorkerBuilder {
	b.worker.Phone = phone
	return b
}

// Registered marks the worker as registered at the given time.
func (b *WorkerBuilder) Registered(at time.Time) *WorkerBuilder {
	b.worker.Status = models.OnboardingRegistered
	b.worker.MobileAppRegistered = true
	b.worker.RegisteredAt = &at
	return b
}

func (b *WorkerBuilder) WithDID(did string, anchor models.AnchorStatus) *WorkerBuilder {
	b.worker.DID = did
	b.worker.DIDAnchor = anchor
	return b
}

func (b *WorkerBuilder) Build() *models.Worker {
	return b.worker
}

// CredentialBuilder provides a fluent interface for building test credentials.
type CredentialBuilder struct {
	credential *models.Credential
}

// NewCredentialBuilder creates a pending skill certificate for workerID.
func NewCredentialBuilder(workerID id.WorkerID) *CredentialBuilder {
	return &CredentialBuilder{
		credential: &models.Credential{
			ID:           id.NewCredentialID(),
			WorkerID:     workerID,
			Type:         models.CredentialSkillCertificate,
			Issuer:       models.Issuer{Type: models.IssuerPlatform, Name: "SkillHub"},
			Status:       models.VerificationPending,
			AnchorStatus: models.AnchorPending,
			DocumentHash: "hash-" + uuid.NewString(),
			IssuedAt:     FixedTime,
			CreatedAt:    FixedTime,
			UpdatedAt:    FixedTime,
		},
	}
}

func (b *CredentialBuilder) WithType(credType models.CredentialType, issuer models.IssuerType) *CredentialBuilder {
	b.credential.Type = credType
	b.credential.Issuer.Type = issuer
	return b
}

func (b *CredentialBuilder) CreatedAt(at time.Time) *CredentialBuilder {
	b.credential.CreatedAt = at
	b.credential.UpdatedAt = at
	return b
}

func (b *CredentialBuilder) ExpiresAt(at time.Time) *CredentialBuilder {
	b.credential.ExpiresAt = &at
	return b
}

// Verified attaches a confirmed issuance and marks the credential verified.
func (b *CredentialBuilder) Verified() *CredentialBuilder {
	b.credential.VCURL = "https://vc.test/" + b.credential.ID.String()
	b.credential.ExternalID = "ext-" + b.credential.ID.String()
	b.credential.AnchorStatus = models.AnchorConfirmed
	b.credential.Status = models.VerificationVerified
	return b
}

// AwaitingIssuance records an issuer reference without a vc_url.
func (b *CredentialBuilder) AwaitingIssuance(externalID string) *CredentialBuilder {
	b.credential.ExternalID = externalID
	b.credential.VCURL = ""
	b.credential.Status = models.VerificationPending
	return b
}

func (b *CredentialBuilder) LastChecked(at *time.Time) *CredentialBuilder {
	b.credential.LastCheckedAt = at
	return b
}

func (b *CredentialBuilder) Build() *models.Credential {
	return b.credential
}
