// Package dhiway implements the gateway ports against the Dhiway service
// suite: DEDI publish and lookup for DIDs, Mark Studio for credential
// schemas, the issuer agent for issuance and the verification middleware.
package dhiway

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"upandup/internal/gateway"
	"upandup/internal/gateway/adapters"
	"upandup/internal/ledger/models"
)

// ProviderName identifies this provider in errors and metrics.
const ProviderName = "dhiway"

const (
	didPrefix      = "did:dhiway:"
	networkContext = "https://dhiway.network/contexts/v1"
	proofType      = "Ed25519Signature2020"
)

// Config holds the service endpoints.
type Config struct {
	PublishURL      string
	LookupURL       string
	MarkStudioURL   string
	IssuerAgentURL  string
	VerificationURL string
	DigiLockerURL   string
	IssuerDID       string
}

// Client is a gateway.Provider backed by the Dhiway APIs.
type Client struct {
	cfg  Config
	http *adapters.Client
	now  func() time.Time

	schemaMu sync.RWMutex
	schemas  map[models.CredentialType]string
	inflight singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the proof timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a Dhiway provider.
func New(cfg Config, httpClient *adapters.Client, opts ...Option) *Client {
	if httpClient == nil {
		panic("dhiway: http client is required")
	}
	c := &Client{
		cfg:     cfg,
		http:    httpClient,
		now:     time.Now,
		schemas: make(map[models.CredentialType]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements gateway.Provider.
func (c *Client) Name() string {
	return ProviderName
}

type publishRequest struct {
	DIDDocument *gateway.DIDDocument `json:"didDocument"`
	Options     publishOptions       `json:"options"`
}

type publishOptions struct {
	Anchor  bool `json:"anchor"`
	Publish bool `json:"publish"`
}

type publishResponse struct {
	Anchored      bool   `json:"anchored"`
	Status        string `json:"status,omitempty"`
	TransactionID string `json:"transactionId"`
	BlockNumber   int64  `json:"blockNumber"`
}

// CreateDID mints a DID, publishes it through DEDI and requests anchoring.
func (c *Client) CreateDID(ctx context.Context, details models.WorkerDetails) (*gateway.DIDResult, error) {
	if err := gateway.ValidateDetails(ProviderName, details); err != nil {
		return nil, err
	}

	publicKey, err := newPublicKey()
	if err != nil {
		return nil, gateway.NewError(gateway.KindUnavailable, ProviderName, gateway.OpCreateDID, "failed to generate key", err)
	}
	did := didPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	doc := gateway.NewDIDDocument(did, networkContext, publicKey)

	var resp publishResponse
	err = c.http.Do(ctx, gateway.OpCreateDID, http.MethodPost, c.cfg.PublishURL+"/did/publish",
		publishRequest{DIDDocument: doc, Options: publishOptions{Anchor: true, Publish: true}}, &resp)
	if err != nil {
		return nil, c.notFoundAsUnavailable(gateway.OpCreateDID, err)
	}

	anchor := anchorFromPublish(resp)
	doc.AnchorStatus = anchor
	doc.TransactionRef = resp.TransactionID
	doc.BlockNumber = resp.BlockNumber

	return &gateway.DIDResult{
		DID:            did,
		AnchorStatus:   anchor,
		TransactionRef: resp.TransactionID,
		Document:       doc,
	}, nil
}

type resolveResponse struct {
	DIDDocument   *gateway.DIDDocument `json:"didDocument"`
	Anchored      bool                 `json:"anchored"`
	Status        string               `json:"status,omitempty"`
	TransactionID string               `json:"transactionId,omitempty"`
	BlockNumber   int64                `json:"blockNumber,omitempty"`
}

// ResolveDID looks a DID up through DEDI.
func (c *Client) ResolveDID(ctx context.Context, did string) (*gateway.DIDDocument, error) {
	if did == "" {
		return nil, gateway.ErrDIDNotFound
	}

	var resp resolveResponse
	endpoint := c.cfg.LookupURL + "/did/resolve/" + url.PathEscape(did)
	if err := c.http.Do(ctx, gateway.OpResolveDID, http.MethodGet, endpoint, nil, &resp); err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return nil, gateway.ErrDIDNotFound
		}
		return nil, err
	}
	if resp.DIDDocument == nil || resp.DIDDocument.ID != did {
		return nil, gateway.ErrDIDNotFound
	}

	doc := resp.DIDDocument
	doc.AnchorStatus = anchorFromPublish(publishResponse{Anchored: resp.Anchored, Status: resp.Status})
	if resp.TransactionID != "" {
		doc.TransactionRef = resp.TransactionID
	}
	if resp.BlockNumber != 0 {
		doc.BlockNumber = resp.BlockNumber
	}
	return doc, nil
}

type schemaRequest struct {
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Schema  map[string]any `json:"schema"`
}

type schemaResponse struct {
	ID string `json:"id"`
}

type issueRequest struct {
	SchemaID          string            `json:"schemaId"`
	CredentialSubject credentialSubject `json:"credentialSubject"`
	Issuer            issuerRef         `json:"issuer"`
	Options           issueOptions      `json:"options"`
}

type credentialSubject struct {
	ID           string `json:"id"`
	DocumentType string `json:"documentType"`
	DocumentURL  string `json:"documentUrl,omitempty"`
	DocumentHash string `json:"documentHash"`
	IssueDate    string `json:"issueDate"`
	ExpiryDate   string `json:"expiryDate,omitempty"`
}

type issuerRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type issueOptions struct {
	ProofType string `json:"proofType"`
	Created   string `json:"created"`
}

type issueResponse struct {
	CredentialURL string `json:"credentialUrl"`
	CredentialID  string `json:"credentialId"`
	Status        string `json:"status"`
	Anchored      bool   `json:"anchored"`
	Reason        string `json:"reason,omitempty"`
}

// IssueCredential registers the schema for the credential kind in Mark
// Studio (once per kind) and issues the credential through the issuer agent.
func (c *Client) IssueCredential(ctx context.Context, req gateway.IssueRequest) (*gateway.IssueResult, error) {
	if err := gateway.ValidateIssueRequest(ProviderName, req); err != nil {
		return nil, err
	}

	schemaID, err := c.schemaFor(ctx, req.CredentialType)
	if err != nil {
		return nil, err
	}

	body := issueRequest{
		SchemaID: schemaID,
		CredentialSubject: credentialSubject{
			ID:           req.SubjectID,
			DocumentType: string(req.CredentialType),
			DocumentURL:  req.Metadata.DocumentURL,
			DocumentHash: req.Metadata.DocumentHash,
			IssueDate:    gateway.FormatTime(&req.Metadata.IssueDate),
			ExpiryDate:   gateway.FormatTime(req.Metadata.ExpiryDate),
		},
		Issuer: issuerRef{
			ID:   c.cfg.IssuerDID,
			Name: req.Issuer.Name,
			Type: string(req.Issuer.Type),
		},
		Options: issueOptions{
			ProofType: proofType,
			Created:   c.now().UTC().Format(time.RFC3339),
		},
	}

	var resp issueResponse
	err = c.http.Do(ctx, gateway.OpIssueCredential, http.MethodPost, c.cfg.IssuerAgentURL+"/credentials/issue", body, &resp)
	if err != nil {
		return nil, c.notFoundAsUnavailable(gateway.OpIssueCredential, err)
	}
	return issueResult(gateway.OpIssueCredential, resp)
}

// IssuanceStatus polls the issuer agent for a credential it accepted as
// pending. A credential the agent no longer knows is reported as rejected.
func (c *Client) IssuanceStatus(ctx context.Context, credentialID string) (*gateway.IssueResult, error) {
	if credentialID == "" {
		return nil, gateway.NewError(gateway.KindRejected, ProviderName, gateway.OpIssuanceStatus, "credential id is required", nil)
	}
	var resp issueResponse
	endpoint := c.cfg.IssuerAgentURL + "/credentials/" + url.PathEscape(credentialID) + "/status"
	if err := c.http.Do(ctx, gateway.OpIssuanceStatus, http.MethodGet, endpoint, nil, &resp); err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return nil, gateway.NewError(gateway.KindRejected, ProviderName, gateway.OpIssuanceStatus, "credential not found at issuer agent", err)
		}
		return nil, err
	}
	if resp.CredentialID == "" {
		resp.CredentialID = credentialID
	}
	return issueResult(gateway.OpIssuanceStatus, resp)
}

func issueResult(op string, resp issueResponse) (*gateway.IssueResult, error) {
	status := gateway.IssueStatusIssued
	switch strings.ToLower(resp.Status) {
	case "", "issued":
	case "pending":
		status = gateway.IssueStatusPending
	default:
		reason := resp.Reason
		if reason == "" {
			reason = fmt.Sprintf("credential returned in status %q", resp.Status)
		}
		return nil, gateway.NewError(gateway.KindRejected, ProviderName, op, reason, nil)
	}
	if status == gateway.IssueStatusIssued && resp.CredentialURL == "" {
		return nil, gateway.NewError(gateway.KindUnavailable, ProviderName, op,
			"issued credential has no url", nil)
	}

	anchor := models.AnchorPending
	if resp.Anchored {
		anchor = models.AnchorConfirmed
	}
	return &gateway.IssueResult{
		VCURL:        resp.CredentialURL,
		CredentialID: resp.CredentialID,
		Status:       status,
		AnchorStatus: anchor,
	}, nil
}

func (c *Client) schemaFor(ctx context.Context, credType models.CredentialType) (string, error) {
	c.schemaMu.RLock()
	schemaID, ok := c.schemas[credType]
	c.schemaMu.RUnlock()
	if ok {
		return schemaID, nil
	}

	v, err, _ := c.inflight.Do(string(credType), func() (any, error) {
		var resp schemaResponse
		err := c.http.Do(ctx, gateway.OpCreateSchema, http.MethodPost, c.cfg.MarkStudioURL+"/schemas", schemaRequest{
			Name:    string(credType) + "-credential",
			Version: "1.0",
			Schema:  credentialSchema(),
		}, &resp)
		if err != nil {
			return "", c.notFoundAsUnavailable(gateway.OpCreateSchema, err)
		}
		if resp.ID == "" {
			return "", gateway.NewError(gateway.KindUnavailable, ProviderName, gateway.OpCreateSchema, "schema response has no id", nil)
		}
		c.schemaMu.Lock()
		c.schemas[credType] = resp.ID
		c.schemaMu.Unlock()
		return resp.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func credentialSchema() map[string]any {
	str := map[string]any{"type": "string"}
	dateTime := map[string]any{"type": "string", "format": "date-time"}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"documentType": str,
			"documentUrl":  str,
			"documentHash": str,
			"issueDate":    dateTime,
			"expiryDate":   dateTime,
		},
		"required": []string{"documentType", "documentHash", "issueDate"},
	}
}

type verifyRequest struct {
	CredentialURL      string `json:"credentialUrl"`
	VerificationMethod string `json:"verificationMethod"`
	CheckRevocation    bool   `json:"checkRevocation"`
	CheckExpiry        bool   `json:"checkExpiry"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

// VerifyCredential runs a comprehensive check including revocation and expiry.
// A credential unknown to the verifier is reported as not verified.
func (c *Client) VerifyCredential(ctx context.Context, vcURL string) (bool, error) {
	if vcURL == "" {
		return false, gateway.NewError(gateway.KindRejected, ProviderName, gateway.OpVerifyCredential, "credential url is required", nil)
	}
	var resp verifyResponse
	err := c.http.Do(ctx, gateway.OpVerifyCredential, http.MethodPost, c.cfg.VerificationURL+"/verify", verifyRequest{
		CredentialURL:      vcURL,
		VerificationMethod: "comprehensive",
		CheckRevocation:    true,
		CheckExpiry:        true,
	}, &resp)
	if err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return resp.Verified, nil
}

type digiLockerRequest struct {
	RequestID    string `json:"requestId"`
	DocumentType string `json:"documentType"`
	SubjectID    string `json:"subjectId"`
	DocumentHash string `json:"documentHash"`
	Consent      bool   `json:"consent"`
}

type digiLockerResponse struct {
	Verified    bool   `json:"verified"`
	ReferenceID string `json:"referenceId,omitempty"`
	Message     string `json:"message,omitempty"`
}

// VerifyDocument checks a government document against DigiLocker. The
// worker's consent is collected by the partner before the claim is filed.
func (c *Client) VerifyDocument(ctx context.Context, check gateway.DocumentCheck) (*gateway.DocumentCheckResult, error) {
	if c.cfg.DigiLockerURL == "" {
		return nil, gateway.NewError(gateway.KindUnavailable, ProviderName, gateway.OpVerifyDocument, "digilocker is not configured", nil)
	}
	if err := gateway.ValidateDocumentCheck(ProviderName, check); err != nil {
		return nil, err
	}
	var resp digiLockerResponse
	err := c.http.Do(ctx, gateway.OpVerifyDocument, http.MethodPost, c.cfg.DigiLockerURL+"/verify", digiLockerRequest{
		RequestID:    uuid.NewString(),
		DocumentType: string(check.CredentialType),
		SubjectID:    check.SubjectID,
		DocumentHash: check.DocumentHash,
		Consent:      true,
	}, &resp)
	if err != nil {
		return nil, c.notFoundAsUnavailable(gateway.OpVerifyDocument, err)
	}
	return &gateway.DocumentCheckResult{
		Verified:  resp.Verified,
		Reference: resp.ReferenceID,
		Reason:    resp.Message,
	}, nil
}

func (c *Client) notFoundAsUnavailable(op string, err error) error {
	if errors.Is(err, adapters.ErrNotFound) {
		return gateway.NewError(gateway.KindUnavailable, ProviderName, op, "endpoint not found", err)
	}
	return err
}

func anchorFromPublish(resp publishResponse) models.AnchorStatus {
	switch {
	case strings.EqualFold(resp.Status, "failed"):
		return models.AnchorFailed
	case resp.Anchored:
		return models.AnchorConfirmed
	default:
		return models.AnchorPending
	}
}

// newPublicKey returns a multibase (base64url, "u" prefix) Ed25519 public key.
// Key custody stays with the DEDI publisher.
func newPublicKey() (string, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	return "u" + base64.RawURLEncoding.EncodeToString(pub), nil
}
