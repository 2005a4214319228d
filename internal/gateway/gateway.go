// Package gateway defines the DID and credential issuance ports used by the
// ledger, and the error taxonomy shared by every provider implementation.
//
// Providers live in subpackages:
//   - providers/dhiway: DEDI publish/lookup, Mark Studio, issuer agent and
//     verification middleware over HTTP
//   - providers/cord: CORD network API with Mark Studio credentials
//   - providers/sandbox: in-process provider for local development and tests
//
// The cache subpackage decorates any DIDGateway with a Redis-backed
// resolution cache.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"upandup/internal/ledger/models"
)

// ErrDIDNotFound is returned by ResolveDID when the identifier is unknown.
var ErrDIDNotFound = errors.New("did not found")

// IssueStatus is the gateway-side state of an issued credential.
type IssueStatus string

const (
	IssueStatusPending IssueStatus = "pending"
	IssueStatusIssued  IssueStatus = "issued"
)

// VerificationMethod is a key reference inside a DID document.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// DIDDocument is the resolved form of a DID together with its anchoring state.
type DIDDocument struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
	AnchorStatus       models.AnchorStatus  `json:"anchorStatus"`
	TransactionRef     string               `json:"transactionRef,omitempty"`
	BlockNumber        int64                `json:"blockNumber,omitempty"`
}

// DIDResult is returned by CreateDID.
type DIDResult struct {
	DID            string
	AnchorStatus   models.AnchorStatus
	TransactionRef string
	Document       *DIDDocument
}

// IssueRequest asks a provider to issue a verifiable credential.
type IssueRequest struct {
	SubjectID      string
	CredentialType models.CredentialType
	Issuer         models.Issuer
	Metadata       models.CredentialMetadata
}

// IssueResult is the outcome of an issuance call.
type IssueResult struct {
	VCURL        string
	CredentialID string
	Status       IssueStatus
	AnchorStatus models.AnchorStatus
}

// DocumentCheck asks the government document registry to confirm a
// document before a credential is issued for it.
type DocumentCheck struct {
	CredentialType models.CredentialType
	SubjectID      string
	DocumentHash   string
}

// DocumentCheckResult is the registry's answer. Reason explains a negative
// answer when the registry gives one.
type DocumentCheckResult struct {
	Verified  bool
	Reference string
	Reason    string
}

// DocumentVerifier confirms government documents (DigiLocker).
type DocumentVerifier interface {
	VerifyDocument(ctx context.Context, check DocumentCheck) (*DocumentCheckResult, error)
}

// DIDGateway creates and resolves worker DIDs.
type DIDGateway interface {
	CreateDID(ctx context.Context, details models.WorkerDetails) (*DIDResult, error)
	ResolveDID(ctx context.Context, did string) (*DIDDocument, error)
}

// CredentialGateway issues and verifies verifiable credentials.
//
// IssuanceStatus polls an issuance that IssueCredential reported as pending,
// by the provider's credential ID. A credential the provider gave up on is
// reported as a KindRejected error.
type CredentialGateway interface {
	IssueCredential(ctx context.Context, req IssueRequest) (*IssueResult, error)
	IssuanceStatus(ctx context.Context, credentialID string) (*IssueResult, error)
	VerifyCredential(ctx context.Context, vcURL string) (bool, error)
}

// Provider is a complete DID and credential backend.
type Provider interface {
	DIDGateway
	CredentialGateway
	Name() string
}

// NewDIDDocument builds the W3C document skeleton for a freshly minted DID.
func NewDIDDocument(did, networkContext, publicKey string) *DIDDocument {
	keyID := did + "#key-1"
	return &DIDDocument{
		Context: []string{"https://www.w3.org/ns/did/v1", networkContext},
		ID:      did,
		VerificationMethod: []VerificationMethod{{
			ID:                 keyID,
			Type:               "Ed25519VerificationKey2020",
			Controller:         did,
			PublicKeyMultibase: publicKey,
		}},
		Authentication:  []string{keyID},
		AssertionMethod: []string{keyID},
		AnchorStatus:    models.AnchorPending,
	}
}

// ValidateDetails checks what every provider needs to mint a DID.
func ValidateDetails(provider string, details models.WorkerDetails) error {
	if details.Name == "" || details.Phone == "" {
		return NewError(KindRejected, provider, OpCreateDID, "worker name and phone are required", nil)
	}
	return nil
}

// ValidateIssueRequest checks the fields every provider requires.
func ValidateIssueRequest(provider string, req IssueRequest) error {
	switch {
	case req.SubjectID == "":
		return NewError(KindRejected, provider, OpIssueCredential, "subject id is required", nil)
	case req.Metadata.DocumentHash == "":
		return NewError(KindRejected, provider, OpIssueCredential, "document hash is required", nil)
	case req.Metadata.IssueDate.IsZero():
		return NewError(KindRejected, provider, OpIssueCredential, "issue date is required", nil)
	}
	return nil
}

// ValidateDocumentCheck checks the fields a document registry needs.
func ValidateDocumentCheck(provider string, check DocumentCheck) error {
	switch {
	case !check.CredentialType.RegistryBacked():
		return NewError(KindRejected, provider, OpVerifyDocument,
			fmt.Sprintf("%s documents are not held by the registry", check.CredentialType), nil)
	case check.SubjectID == "" || check.DocumentHash == "":
		return NewError(KindRejected, provider, OpVerifyDocument, "subject id and document hash are required", nil)
	}
	return nil
}

// FormatTime renders optional metadata dates the way providers expect them.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
