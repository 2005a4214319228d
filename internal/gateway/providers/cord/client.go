// Package cord implements the gateway ports against the CORD network API,
// with credentials issued and verified through Mark Studio.
package cord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"upandup/internal/gateway"
	"upandup/internal/gateway/adapters"
	"upandup/internal/ledger/models"
)

// ProviderName identifies this provider in errors and metrics.
const ProviderName = "cord"

// DefaultCredentialBaseURL is where CORD-issued credentials are published.
const DefaultCredentialBaseURL = "https://cord-vc.dhiway.com"

// OperationType names the chain operation being tracked.
type OperationType string

const (
	OperationDIDCreation  OperationType = "did_creation"
	OperationVCIssuance   OperationType = "vc_issuance"
	OperationVCRevocation OperationType = "vc_revocation"
)

// OperationState is the chain-side progress of an operation.
type OperationState string

const (
	OperationPending    OperationState = "pending"
	OperationProcessing OperationState = "processing"
	OperationConfirmed  OperationState = "confirmed"
	OperationFailed     OperationState = "failed"
)

// AnchorStatus maps chain progress onto the ledger's anchor states.
func (s OperationState) AnchorStatus() models.AnchorStatus {
	switch s {
	case OperationConfirmed:
		return models.AnchorConfirmed
	case OperationFailed:
		return models.AnchorFailed
	default:
		return models.AnchorPending
	}
}

// Operation is a tracked chain transaction.
type Operation struct {
	ID              string         `json:"id"`
	Type            OperationType  `json:"type"`
	Status          OperationState `json:"status"`
	TransactionHash string         `json:"transactionHash,omitempty"`
	BlockNumber     int64          `json:"blockNumber,omitempty"`
	Error           *OperationErr  `json:"error,omitempty"`
}

// OperationErr describes a failed chain operation.
type OperationErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Config holds the CORD endpoints.
type Config struct {
	NetworkURL        string
	MarkStudioURL     string
	CredentialBaseURL string
	IssuerDID         string
}

// Client is a gateway.Provider backed by the CORD network.
type Client struct {
	cfg  Config
	http *adapters.Client
}

// New creates a CORD provider.
func New(cfg Config, httpClient *adapters.Client) *Client {
	if httpClient == nil {
		panic("cord: http client is required")
	}
	if cfg.CredentialBaseURL == "" {
		cfg.CredentialBaseURL = DefaultCredentialBaseURL
	}
	cfg.CredentialBaseURL = strings.TrimRight(cfg.CredentialBaseURL, "/")
	return &Client{cfg: cfg, http: httpClient}
}

// Name implements gateway.Provider.
func (c *Client) Name() string {
	return ProviderName
}

type createDIDRequest struct {
	WorkerDetails workerDetails `json:"workerDetails"`
}

type workerDetails struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type didResponse struct {
	DID         string               `json:"did"`
	DIDDocument *gateway.DIDDocument `json:"didDocument"`
	Operation   Operation            `json:"operation"`
}

// CreateDID asks the network to mint and anchor a DID for the worker.
func (c *Client) CreateDID(ctx context.Context, details models.WorkerDetails) (*gateway.DIDResult, error) {
	if err := gateway.ValidateDetails(ProviderName, details); err != nil {
		return nil, err
	}

	var resp didResponse
	err := c.http.Do(ctx, gateway.OpCreateDID, http.MethodPost, c.cfg.NetworkURL+"/dids", createDIDRequest{
		WorkerDetails: workerDetails{Name: details.Name, Phone: details.Phone, Email: details.Email},
	}, &resp)
	if err != nil {
		return nil, unavailableOnNotFound(gateway.OpCreateDID, err)
	}
	if resp.DID == "" || !strings.HasPrefix(resp.DID, "did:cord:") {
		return nil, gateway.NewError(gateway.KindUnavailable, ProviderName, gateway.OpCreateDID,
			fmt.Sprintf("unexpected did %q", resp.DID), nil)
	}
	if resp.Operation.Status == OperationFailed {
		return nil, gateway.NewError(gateway.KindRejected, ProviderName, gateway.OpCreateDID, operationFailure(resp.Operation), nil)
	}

	doc := resp.DIDDocument
	if doc == nil {
		doc = gateway.NewDIDDocument(resp.DID, "https://cord.network/contexts/v1", "")
	}
	anchor := resp.Operation.Status.AnchorStatus()
	doc.AnchorStatus = anchor
	doc.TransactionRef = resp.Operation.TransactionHash
	doc.BlockNumber = resp.Operation.BlockNumber

	return &gateway.DIDResult{
		DID:            resp.DID,
		AnchorStatus:   anchor,
		TransactionRef: resp.Operation.TransactionHash,
		Document:       doc,
	}, nil
}

// ResolveDID fetches the DID document. While the creating operation is still
// in flight its status is refreshed so the anchor state is current.
func (c *Client) ResolveDID(ctx context.Context, did string) (*gateway.DIDDocument, error) {
	if did == "" {
		return nil, gateway.ErrDIDNotFound
	}

	var resp didResponse
	endpoint := c.cfg.NetworkURL + "/dids/" + url.PathEscape(did)
	if err := c.http.Do(ctx, gateway.OpResolveDID, http.MethodGet, endpoint, nil, &resp); err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return nil, gateway.ErrDIDNotFound
		}
		return nil, err
	}
	if resp.DIDDocument == nil || resp.DIDDocument.ID != did {
		return nil, gateway.ErrDIDNotFound
	}

	op := resp.Operation
	if (op.Status == OperationPending || op.Status == OperationProcessing) && op.ID != "" {
		latest, err := c.OperationStatus(ctx, op.ID)
		if err != nil {
			return nil, err
		}
		op = *latest
	}

	doc := resp.DIDDocument
	doc.AnchorStatus = op.Status.AnchorStatus()
	if op.TransactionHash != "" {
		doc.TransactionRef = op.TransactionHash
	}
	if op.BlockNumber != 0 {
		doc.BlockNumber = op.BlockNumber
	}
	return doc, nil
}

// OperationStatus returns the current state of a chain operation.
func (c *Client) OperationStatus(ctx context.Context, operationID string) (*Operation, error) {
	var op Operation
	endpoint := c.cfg.NetworkURL + "/operations/" + url.PathEscape(operationID)
	if err := c.http.Do(ctx, gateway.OpOperationStatus, http.MethodGet, endpoint, nil, &op); err != nil {
		return nil, unavailableOnNotFound(gateway.OpOperationStatus, err)
	}
	return &op, nil
}

type issueRequest struct {
	Context           []string          `json:"@context"`
	Type              []string          `json:"type"`
	Issuer            issuer            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	ExpirationDate    string            `json:"expirationDate,omitempty"`
	CredentialSubject credentialSubject `json:"credentialSubject"`
}

type issuer struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type credentialSubject struct {
	ID           string `json:"id"`
	DocumentType string `json:"documentType"`
	DocumentURL  string `json:"documentUrl,omitempty"`
	DocumentHash string `json:"documentHash"`
}

type issueResponse struct {
	CredentialID string    `json:"credentialId"`
	Status       string    `json:"status"`
	Operation    Operation `json:"operation"`
}

func (c *Client) issueResult(op string, resp issueResponse) (*gateway.IssueResult, error) {
	if resp.Operation.Status == OperationFailed {
		return nil, gateway.NewError(gateway.KindRejected, ProviderName, op, operationFailure(resp.Operation), nil)
	}
	if resp.CredentialID == "" {
		return nil, gateway.NewError(gateway.KindUnavailable, ProviderName, op, "response has no credential id", nil)
	}

	result := &gateway.IssueResult{
		CredentialID: resp.CredentialID,
		Status:       gateway.IssueStatusIssued,
		AnchorStatus: resp.Operation.Status.AnchorStatus(),
	}
	switch strings.ToLower(resp.Status) {
	case "pending":
		result.Status = gateway.IssueStatusPending
	case "", "issued":
		result.VCURL = c.CredentialURL(resp.CredentialID)
	default:
		return nil, gateway.NewError(gateway.KindRejected, ProviderName, op,
			fmt.Sprintf("credential returned in status %q", resp.Status), nil)
	}
	return result, nil
}

// IssueCredential issues a credential through Mark Studio and anchors it on CORD.
func (c *Client) IssueCredential(ctx context.Context, req gateway.IssueRequest) (*gateway.IssueResult, error) {
	if err := gateway.ValidateIssueRequest(ProviderName, req); err != nil {
		return nil, err
	}

	body := issueRequest{
		Context: []string{
			"https://www.w3.org/2018/credentials/v1",
			"https://cord.network/contexts/v1",
		},
		Type: []string{"VerifiableCredential", req.CredentialType.VCType()},
		Issuer: issuer{
			ID:   c.cfg.IssuerDID,
			Name: req.Issuer.Name,
			Type: string(req.Issuer.Type),
		},
		IssuanceDate:   gateway.FormatTime(&req.Metadata.IssueDate),
		ExpirationDate: gateway.FormatTime(req.Metadata.ExpiryDate),
		CredentialSubject: credentialSubject{
			ID:           req.SubjectID,
			DocumentType: string(req.CredentialType),
			DocumentURL:  req.Metadata.DocumentURL,
			DocumentHash: req.Metadata.DocumentHash,
		},
	}

	var resp issueResponse
	err := c.http.Do(ctx, gateway.OpIssueCredential, http.MethodPost, c.cfg.MarkStudioURL+"/credentials", body, &resp)
	if err != nil {
		return nil, unavailableOnNotFound(gateway.OpIssueCredential, err)
	}
	return c.issueResult(gateway.OpIssueCredential, resp)
}

// IssuanceStatus re-reads a credential Mark Studio accepted as pending. Its
// anchoring operation is refreshed while it is still in flight.
func (c *Client) IssuanceStatus(ctx context.Context, credentialID string) (*gateway.IssueResult, error) {
	if credentialID == "" {
		return nil, gateway.NewError(gateway.KindRejected, ProviderName, gateway.OpIssuanceStatus, "credential id is required", nil)
	}
	var resp issueResponse
	endpoint := c.cfg.MarkStudioURL + "/credentials/" + url.PathEscape(credentialID)
	if err := c.http.Do(ctx, gateway.OpIssuanceStatus, http.MethodGet, endpoint, nil, &resp); err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return nil, gateway.NewError(gateway.KindRejected, ProviderName, gateway.OpIssuanceStatus, "credential not found", err)
		}
		return nil, err
	}
	op := resp.Operation
	if (op.Status == OperationPending || op.Status == OperationProcessing) && op.ID != "" {
		latest, err := c.OperationStatus(ctx, op.ID)
		if err != nil {
			return nil, err
		}
		resp.Operation = *latest
	}
	if resp.CredentialID == "" {
		resp.CredentialID = credentialID
	}
	return c.issueResult(gateway.OpIssuanceStatus, resp)
}

// CredentialURL is the public location of an issued credential.
func (c *Client) CredentialURL(credentialID string) string {
	return c.cfg.CredentialBaseURL + "/credential/" + url.PathEscape(credentialID)
}

type verifyRequest struct {
	VCURL           string `json:"vcUrl"`
	CheckRevocation bool   `json:"checkRevocation"`
	CheckExpiry     bool   `json:"checkExpiry"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

// VerifyCredential checks signature, anchoring, revocation and expiry.
func (c *Client) VerifyCredential(ctx context.Context, vcURL string) (bool, error) {
	if vcURL == "" {
		return false, gateway.NewError(gateway.KindRejected, ProviderName, gateway.OpVerifyCredential, "credential url is required", nil)
	}
	var resp verifyResponse
	err := c.http.Do(ctx, gateway.OpVerifyCredential, http.MethodPost, c.cfg.MarkStudioURL+"/credentials/verify", verifyRequest{
		VCURL:           vcURL,
		CheckRevocation: true,
		CheckExpiry:     true,
	}, &resp)
	if err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return resp.Verified, nil
}

func unavailableOnNotFound(op string, err error) error {
	if errors.Is(err, adapters.ErrNotFound) {
		return gateway.NewError(gateway.KindUnavailable, ProviderName, op, "endpoint not found", err)
	}
	return err
}

func operationFailure(op Operation) string {
	if op.Error != nil && op.Error.Message != "" {
		return op.Error.Message
	}
	return fmt.Sprintf("%s operation failed", op.Type)
}
