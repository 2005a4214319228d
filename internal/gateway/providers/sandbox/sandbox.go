// Package sandbox provides an in-process gateway.Provider for local
// development and tests. DIDs and credentials live in memory; anchoring,
// revocation and outages can be driven by the caller.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"upandup/internal/gateway"
	"upandup/internal/ledger/models"
)

// ProviderName identifies this provider in errors and metrics.
const ProviderName = "sandbox"

const credentialBaseURL = "https://sandbox.upandup.local/credential/"

type credentialRecord struct {
	subjectID string
	revoked   bool
}

type pendingIssuance struct {
	subjectID string
	failure   string
}

// Provider is an in-memory gateway.Provider.
type Provider struct {
	mu          sync.Mutex
	dids        map[string]*gateway.DIDDocument
	credentials map[string]*credentialRecord
	pending     map[string]*pendingIssuance
	didAnchor   models.AnchorStatus
	vcAnchor    models.AnchorStatus
	issueStatus gateway.IssueStatus
	outage      *gateway.ErrorKind
	rejectTypes map[models.CredentialType]string
	unverified  map[string]string
}

// Option configures a Provider.
type Option func(*Provider)

// WithDIDAnchor sets the anchor status reported for new DIDs. Default confirmed.
func WithDIDAnchor(status models.AnchorStatus) Option {
	return func(p *Provider) {
		p.didAnchor = status
	}
}

// WithIssueStatus sets the status reported for new credentials. Default issued.
func WithIssueStatus(status gateway.IssueStatus) Option {
	return func(p *Provider) {
		p.issueStatus = status
	}
}

// WithRejectedType makes issuance of the credential kind fail with reason.
func WithRejectedType(credType models.CredentialType, reason string) Option {
	return func(p *Provider) {
		p.rejectTypes[credType] = reason
	}
}

// WithUnverifiedDocument makes the document registry deny the document with
// the given hash.
func WithUnverifiedDocument(documentHash, reason string) Option {
	return func(p *Provider) {
		p.unverified[documentHash] = reason
	}
}

// New creates a sandbox provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		dids:        make(map[string]*gateway.DIDDocument),
		credentials: make(map[string]*credentialRecord),
		pending:     make(map[string]*pendingIssuance),
		didAnchor:   models.AnchorConfirmed,
		vcAnchor:    models.AnchorConfirmed,
		issueStatus: gateway.IssueStatusIssued,
		rejectTypes: make(map[models.CredentialType]string),
		unverified:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements gateway.Provider.
func (p *Provider) Name() string {
	return ProviderName
}

// SetOutage makes every call fail with the given kind until cleared with nil.
func (p *Provider) SetOutage(kind *gateway.ErrorKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outage = kind
}

// ConfirmAnchor marks a DID as anchored on chain.
func (p *Provider) ConfirmAnchor(did string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := p.dids[did]
	if !ok {
		return false
	}
	doc.AnchorStatus = models.AnchorConfirmed
	return true
}

// Revoke marks an issued credential as revoked so verification fails.
func (p *Provider) Revoke(vcURL string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.credentials[vcURL]
	if !ok {
		return false
	}
	rec.revoked = true
	return true
}

func (p *Provider) checkOutage(op string) error {
	if p.outage == nil {
		return nil
	}
	return gateway.NewError(*p.outage, ProviderName, op, "sandbox outage", nil)
}

// CreateDID implements gateway.DIDGateway.
func (p *Provider) CreateDID(ctx context.Context, details models.WorkerDetails) (*gateway.DIDResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, gateway.Classify(ProviderName, gateway.OpCreateDID, err)
	}
	if err := gateway.ValidateDetails(ProviderName, details); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOutage(gateway.OpCreateDID); err != nil {
		return nil, err
	}
	if p.didAnchor == models.AnchorFailed {
		return &gateway.DIDResult{AnchorStatus: models.AnchorFailed}, nil
	}

	did := "did:cord:" + strings.ReplaceAll(uuid.NewString(), "-", "")
	doc := gateway.NewDIDDocument(did, "https://cord.network/contexts/v1", "")
	doc.AnchorStatus = p.didAnchor
	doc.TransactionRef = "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
	p.dids[did] = doc

	copied := *doc
	return &gateway.DIDResult{
		DID:            did,
		AnchorStatus:   doc.AnchorStatus,
		TransactionRef: doc.TransactionRef,
		Document:       &copied,
	}, nil
}

// ResolveDID implements gateway.DIDGateway.
func (p *Provider) ResolveDID(ctx context.Context, did string) (*gateway.DIDDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, gateway.Classify(ProviderName, gateway.OpResolveDID, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOutage(gateway.OpResolveDID); err != nil {
		return nil, err
	}
	doc, ok := p.dids[did]
	if !ok {
		return nil, gateway.ErrDIDNotFound
	}
	copied := *doc
	return &copied, nil
}

// IssueCredential implements gateway.CredentialGateway.
func (p *Provider) IssueCredential(ctx context.Context, req gateway.IssueRequest) (*gateway.IssueResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, gateway.Classify(ProviderName, gateway.OpIssueCredential, err)
	}
	if err := gateway.ValidateIssueRequest(ProviderName, req); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOutage(gateway.OpIssueCredential); err != nil {
		return nil, err
	}
	if reason, ok := p.rejectTypes[req.CredentialType]; ok {
		return nil, gateway.NewError(gateway.KindRejected, ProviderName, gateway.OpIssueCredential, reason, nil)
	}

	credentialID := uuid.NewString()
	result := &gateway.IssueResult{
		CredentialID: credentialID,
		Status:       p.issueStatus,
		AnchorStatus: p.vcAnchor,
	}
	if p.issueStatus == gateway.IssueStatusIssued {
		result.VCURL = credentialBaseURL + credentialID
		p.credentials[result.VCURL] = &credentialRecord{subjectID: req.SubjectID}
	} else {
		p.pending[credentialID] = &pendingIssuance{subjectID: req.SubjectID}
	}
	return result, nil
}

// CompleteIssuance finishes a pending issuance so IssuanceStatus reports it
// as issued.
func (p *Provider) CompleteIssuance(credentialID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pend, ok := p.pending[credentialID]
	if !ok || pend.failure != "" {
		return false
	}
	delete(p.pending, credentialID)
	p.credentials[credentialBaseURL+credentialID] = &credentialRecord{subjectID: pend.subjectID}
	return true
}

// FailIssuance makes a pending issuance fail with reason.
func (p *Provider) FailIssuance(credentialID, reason string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pend, ok := p.pending[credentialID]
	if !ok {
		return false
	}
	pend.failure = reason
	return true
}

// IssuanceStatus implements gateway.CredentialGateway.
func (p *Provider) IssuanceStatus(ctx context.Context, credentialID string) (*gateway.IssueResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, gateway.Classify(ProviderName, gateway.OpIssuanceStatus, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOutage(gateway.OpIssuanceStatus); err != nil {
		return nil, err
	}

	vcURL := credentialBaseURL + credentialID
	if _, ok := p.credentials[vcURL]; ok {
		return &gateway.IssueResult{
			VCURL:        vcURL,
			CredentialID: credentialID,
			Status:       gateway.IssueStatusIssued,
			AnchorStatus: p.vcAnchor,
		}, nil
	}
	pend, ok := p.pending[credentialID]
	switch {
	case !ok:
		return nil, gateway.NewError(gateway.KindRejected, ProviderName, gateway.OpIssuanceStatus, "unknown credential", nil)
	case pend.failure != "":
		return nil, gateway.NewError(gateway.KindRejected, ProviderName, gateway.OpIssuanceStatus, pend.failure, nil)
	}
	return &gateway.IssueResult{
		CredentialID: credentialID,
		Status:       gateway.IssueStatusPending,
		AnchorStatus: models.AnchorPending,
	}, nil
}

// VerifyCredential implements gateway.CredentialGateway.
func (p *Provider) VerifyCredential(ctx context.Context, vcURL string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, gateway.Classify(ProviderName, gateway.OpVerifyCredential, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOutage(gateway.OpVerifyCredential); err != nil {
		return false, err
	}
	rec, ok := p.credentials[vcURL]
	if !ok {
		return false, nil
	}
	return !rec.revoked, nil
}

// VerifyDocument implements gateway.DocumentVerifier. Every registry-backed
// document is confirmed unless denied with WithUnverifiedDocument.
func (p *Provider) VerifyDocument(ctx context.Context, check gateway.DocumentCheck) (*gateway.DocumentCheckResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, gateway.Classify(ProviderName, gateway.OpVerifyDocument, err)
	}
	if err := gateway.ValidateDocumentCheck(ProviderName, check); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOutage(gateway.OpVerifyDocument); err != nil {
		return nil, err
	}
	if reason, denied := p.unverified[check.DocumentHash]; denied {
		return &gateway.DocumentCheckResult{Verified: false, Reason: reason}, nil
	}
	return &gateway.DocumentCheckResult{
		Verified:  true,
		Reference: "digilocker-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
	}, nil
}

// String describes the sandbox state for logs.
func (p *Provider) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("sandbox(dids=%d, credentials=%d, pending=%d)", len(p.dids), len(p.credentials), len(p.pending))
}
