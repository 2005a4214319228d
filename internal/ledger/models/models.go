// Package models holds the ledger's entities and their lifecycle rules.
// Entities are mutated only through the transition methods below; every
// method either applies the whole change or returns an error and leaves
// the receiver untouched.
package models

import (
	"slices"
	"strings"
	"time"

	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
)

// Partner is an organization that onboards workers. Partners are never deleted.
type Partner struct {
	ID                  id.PartnerID
	Name                string
	Email               string
	Phone               string
	Address             string
	RegistrationNumber  string
	Status              PartnershipStatus
	CordNodeID          string
	OnboardingCompleted bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewPartner creates a pending partner.
func NewPartner(partnerID id.PartnerID, name, email string, now time.Time) (*Partner, error) {
	if partnerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "partner ID required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "partner name required")
	}
	if strings.TrimSpace(email) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "partner email required")
	}
	return &Partner{
		ID:        partnerID,
		Name:      name,
		Email:     email,
		Status:    PartnershipPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TransitionTo moves the partner to next. Setting the current status again is a no-op.
func (p *Partner) TransitionTo(next PartnershipStatus, now time.Time) (bool, error) {
	if !next.IsValid() {
		return false, dErrors.New(dErrors.CodeInvalidInput, "unknown partnership status")
	}
	if p.Status == next {
		return false, nil
	}
	if !p.Status.CanTransitionTo(next) {
		return false, dErrors.New(dErrors.CodeConflict,
			"partner cannot move from "+string(p.Status)+" to "+string(next))
	}
	p.Status = next
	p.UpdatedAt = now
	return true, nil
}

// CompleteOnboarding flags the partner's onboarding as done. Idempotent.
func (p *Partner) CompleteOnboarding(now time.Time) (bool, error) {
	if p.Status == PartnershipSuspended {
		return false, dErrors.New(dErrors.CodeConflict, "suspended partner cannot complete onboarding")
	}
	if p.OnboardingCompleted {
		return false, nil
	}
	p.OnboardingCompleted = true
	p.UpdatedAt = now
	return true, nil
}

// CanOnboardWorkers reports whether the partner may invite workers.
func (p *Partner) CanOnboardWorkers() bool {
	return p.Status != PartnershipSuspended
}

// Worker is a gig worker owned by a partner. Workers are never deleted.
type Worker struct {
	ID                  id.WorkerID
	PartnerID           id.PartnerID // nil only before assignment
	Name                string
	Phone               string
	Email               string
	DID                 string
	DIDAnchor           AnchorStatus
	DIDTransactionRef   string
	Status              OnboardingStatus
	MobileAppRegistered bool
	NationalIDHash      string
	RegisteredAt        *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewInvitedWorker creates a worker in the invited state.
func NewInvitedWorker(workerID id.WorkerID, partnerID id.PartnerID, name, phone string, now time.Time) (*Worker, error) {
	if workerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "worker ID required")
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(phone) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "worker name and phone required")
	}
	return &Worker{
		ID:        workerID,
		PartnerID: partnerID,
		Name:      name,
		Phone:     phone,
		Status:    OnboardingInvited,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasDID reports whether a DID has been recorded.
func (w *Worker) HasDID() bool {
	return w.DID != ""
}

// OwnedBy reports whether the worker belongs to partnerID.
func (w *Worker) OwnedBy(partnerID id.PartnerID) bool {
	return !w.PartnerID.IsNil() && w.PartnerID == partnerID
}

// Register completes mobile registration: invited -> registered.
func (w *Worker) Register(nationalIDHash string, now time.Time) error {
	if w.Status != OnboardingInvited {
		return dErrors.New(dErrors.CodeConflict, "worker is already registered")
	}
	w.MobileAppRegistered = true
	if nationalIDHash != "" {
		w.NationalIDHash = nationalIDHash
	}
	w.leaveInvited(now)
	return nil
}

// SetDID records the DID. The DID is written at most once, and only for a
// pending or confirmed anchor. An invited worker becomes registered.
func (w *Worker) SetDID(did string, anchor AnchorStatus, txRef string, now time.Time) error {
	if w.HasDID() {
		return &DIDError{Kind: DIDAlreadySet, WorkerID: w.ID, Message: "DID already set"}
	}
	if did == "" || !anchor.Accepted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "DID requires a pending or confirmed anchor")
	}
	w.DID = did
	w.DIDAnchor = anchor
	w.DIDTransactionRef = txRef
	if w.Status == OnboardingInvited {
		w.leaveInvited(now)
	}
	w.UpdatedAt = now
	return nil
}

// ConfirmAnchor records that the DID anchor was confirmed on-chain.
func (w *Worker) ConfirmAnchor(now time.Time) bool {
	if !w.HasDID() || w.DIDAnchor == AnchorConfirmed {
		return false
	}
	w.DIDAnchor = AnchorConfirmed
	w.UpdatedAt = now
	return true
}

// Advance applies the score-driven transitions:
//
//	registered -> verified  when at least one credential is verified
//	verified   -> active    when additionally an employer credential is verified
//
// Both steps may happen in one call. It returns the statuses entered, in order.
func (w *Worker) Advance(verifiedCredentials int, employerVerified bool, now time.Time) []OnboardingStatus {
	var entered []OnboardingStatus
	if w.Status == OnboardingRegistered && verifiedCredentials >= 1 {
		w.Status = OnboardingVerified
		entered = append(entered, OnboardingVerified)
	}
	if w.Status == OnboardingVerified && verifiedCredentials >= 1 && employerVerified {
		w.Status = OnboardingActive
		entered = append(entered, OnboardingActive)
	}
	if len(entered) > 0 {
		w.UpdatedAt = now
	}
	return entered
}

// ReassignTo moves the worker to another partner without touching its status.
func (w *Worker) ReassignTo(partnerID id.PartnerID, now time.Time) (bool, error) {
	if partnerID.IsNil() {
		return false, dErrors.New(dErrors.CodeInvalidInput, "partner ID required")
	}
	if w.PartnerID == partnerID {
		return false, nil
	}
	w.PartnerID = partnerID
	w.UpdatedAt = now
	return true, nil
}

func (w *Worker) leaveInvited(now time.Time) {
	w.Status = OnboardingRegistered
	if w.RegisteredAt == nil {
		at := now
		w.RegisteredAt = &at
	}
	w.UpdatedAt = now
}

// Issuer identifies who vouches for a credential.
type Issuer struct {
	Type IssuerType `json:"type" validate:"omitempty,oneof=government employer platform"`
	Name string     `json:"name" validate:"notblank,max=200"`
}

// Credential is a worker's claim backed by a document and, once issued, a VC.
type Credential struct {
	ID            id.CredentialID
	WorkerID      id.WorkerID
	Type          CredentialType
	Issuer        Issuer
	Status        VerificationStatus
	VCURL         string
	ExternalID    string
	AnchorStatus  AnchorStatus
	DocumentHash  string
	DocumentURL   string
	IssuedAt      time.Time
	ExpiresAt     *time.Time
	FailureReason string
	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPendingCredential creates a credential in the pending state.
func NewPendingCredential(credentialID id.CredentialID, workerID id.WorkerID, credType CredentialType, issuer Issuer, meta CredentialMetadata, now time.Time) (*Credential, error) {
	if credentialID.IsNil() || workerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential and worker IDs required")
	}
	if !credType.IsValid() {
		return nil, &CredentialError{Kind: CredentialInvalidInput, Message: "unknown credential type"}
	}
	if !issuer.Type.IsValid() {
		return nil, &CredentialError{Kind: CredentialInvalidInput, Message: "unknown issuer type"}
	}
	if meta.DocumentHash == "" || meta.IssueDate.IsZero() {
		return nil, &CredentialError{Kind: CredentialInvalidInput, Message: "document hash and issue date are required"}
	}
	var expires *time.Time
	if meta.ExpiryDate != nil {
		at := *meta.ExpiryDate
		expires = &at
	}
	return &Credential{
		ID:           credentialID,
		WorkerID:     workerID,
		Type:         credType,
		Issuer:       issuer,
		Status:       VerificationPending,
		DocumentHash: meta.DocumentHash,
		DocumentURL:  meta.DocumentURL,
		IssuedAt:     meta.IssueDate,
		ExpiresAt:    expires,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AttachIssuance records the issuance result. vc_url is written at most once.
func (c *Credential) AttachIssuance(vcURL, externalID string, anchor AnchorStatus, now time.Time) error {
	if c.Status != VerificationPending {
		return c.terminalError("credential is no longer pending")
	}
	if c.VCURL != "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "vc_url already set")
	}
	c.VCURL = vcURL
	if externalID != "" {
		c.ExternalID = externalID
	}
	c.AnchorStatus = anchor
	c.UpdatedAt = now
	return nil
}

// RecordPendingIssuance keeps the issuer's reference for a credential the
// gateway accepted but has not issued yet, so its status can be polled.
func (c *Credential) RecordPendingIssuance(externalID string, anchor AnchorStatus, now time.Time) error {
	if c.Status != VerificationPending {
		return c.terminalError("credential is no longer pending")
	}
	if c.VCURL != "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "vc_url already set")
	}
	if externalID == "" {
		return &CredentialError{Kind: CredentialInvalidInput, CredentialID: c.ID, Message: "external id is required"}
	}
	if c.ExternalID != "" && c.ExternalID != externalID {
		return dErrors.New(dErrors.CodeInvariantViolation, "external id already set")
	}
	c.ExternalID = externalID
	if anchor == "" {
		anchor = AnchorPending
	}
	c.AnchorStatus = anchor
	c.UpdatedAt = now
	return nil
}

// AwaitingIssuance reports whether the credential is pending at the issuer
// and can be resolved by polling its external id.
func (c *Credential) AwaitingIssuance() bool {
	return c.Status == VerificationPending && c.VCURL == "" && c.ExternalID != ""
}

// MarkVerified moves pending -> verified. The credential must have been issued.
func (c *Credential) MarkVerified(now time.Time) error {
	if c.Status != VerificationPending {
		return c.terminalError("credential is not pending")
	}
	if c.VCURL == "" {
		return &CredentialError{Kind: CredentialInvalidInput, CredentialID: c.ID, Message: "credential has not been issued"}
	}
	c.Status = VerificationVerified
	c.FailureReason = ""
	at := now
	c.LastCheckedAt = &at
	c.UpdatedAt = now
	return nil
}

// Reject moves pending -> rejected.
func (c *Credential) Reject(reason string, now time.Time) error {
	if c.Status != VerificationPending {
		return c.terminalError("credential is not pending")
	}
	c.Status = VerificationRejected
	c.FailureReason = reason
	c.UpdatedAt = now
	return nil
}

// Expire moves verified -> expired.
func (c *Credential) Expire(reason string, now time.Time) error {
	switch c.Status {
	case VerificationVerified:
	case VerificationPending:
		return &CredentialError{Kind: CredentialInvalidInput, CredentialID: c.ID, Message: "only verified credentials can expire"}
	default:
		return c.terminalError("credential is already " + string(c.Status))
	}
	c.Status = VerificationExpired
	c.FailureReason = reason
	at := now
	c.LastCheckedAt = &at
	c.UpdatedAt = now
	return nil
}

// MarkChecked records a successful re-verification.
func (c *Credential) MarkChecked(now time.Time) {
	at := now
	c.LastCheckedAt = &at
	c.UpdatedAt = now
}

// IsExpiredAt reports whether expires_at has been reached.
func (c *Credential) IsExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// DueForRecheck reports whether a verified credential should be re-verified.
func (c *Credential) DueForRecheck(now time.Time, maxAge time.Duration) bool {
	if c.Status != VerificationVerified {
		return false
	}
	if c.IsExpiredAt(now) || c.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*c.LastCheckedAt) >= maxAge
}

func (c *Credential) terminalError(msg string) error {
	return &CredentialError{Kind: CredentialAlreadyTerminal, CredentialID: c.ID, Message: msg}
}

// Factors are the five weighted contributions to a trust score.
type Factors struct {
	CredentialCount     float64 `json:"credentialCount"`
	VerificationRate    float64 `json:"verificationRate"`
	EmployerEndorsement float64 `json:"employerEndorsement"`
	BlockchainIntegrity float64 `json:"blockchainIntegrity"`
	TimeFactored        float64 `json:"timeFactored"`
}

// Sum adds the factor contributions.
func (f Factors) Sum() float64 {
	return f.CredentialCount + f.VerificationRate + f.EmployerEndorsement + f.BlockchainIntegrity + f.TimeFactored
}

// Breakdown summarizes the credential snapshot a score was computed from.
type Breakdown struct {
	TotalCredentials    int      `json:"total_credentials"`
	VerifiedCredentials int      `json:"verified_credentials"`
	EmployerVerified    bool     `json:"employer_verified"`
	GovernmentVerified  bool     `json:"government_verified"`
	BlockchainVerified  bool     `json:"blockchain_verified"`
	CredentialTypes     []string `json:"credential_types"`
}

// TrustScore is the single derived score row for a worker.
type TrustScore struct {
	ID             id.TrustScoreID
	WorkerID       id.WorkerID
	Score          int
	Factors        Factors
	Breakdown      Breakdown
	SnapshotDigest string
	Version        int
	LastCalculated time.Time
}

// SameResult reports whether two scores were derived from identical inputs
// with identical outputs. Version and timestamps are ignored.
func (t *TrustScore) SameResult(other *TrustScore) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Score == other.Score &&
		t.Factors == other.Factors &&
		t.SnapshotDigest == other.SnapshotDigest &&
		t.Breakdown.TotalCredentials == other.Breakdown.TotalCredentials &&
		t.Breakdown.VerifiedCredentials == other.Breakdown.VerifiedCredentials &&
		t.Breakdown.EmployerVerified == other.Breakdown.EmployerVerified &&
		t.Breakdown.GovernmentVerified == other.Breakdown.GovernmentVerified &&
		t.Breakdown.BlockchainVerified == other.Breakdown.BlockchainVerified &&
		slices.Equal(t.Breakdown.CredentialTypes, other.Breakdown.CredentialTypes)
}
