package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upandup/internal/gateway"
	"upandup/internal/ledger/models"
)

var _ gateway.Provider = (*Provider)(nil)

func issueRequest(credType models.CredentialType) gateway.IssueRequest {
	return gateway.IssueRequest{
		SubjectID:      "did:cord:worker",
		CredentialType: credType,
		Issuer:         models.Issuer{Type: models.IssuerEmployer, Name: "Zomato"},
		Metadata: models.CredentialMetadata{
			DocumentHash: strings.Repeat("c", 64),
			IssueDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestDIDLifecycle(t *testing.T) {
	ctx := context.Background()
	p := New(WithDIDAnchor(models.AnchorPending))

	res, err := p.CreateDID(ctx, models.WorkerDetails{Name: "Asha", Phone: "+919876543210"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.DID, "did:cord:"))
	assert.Equal(t, models.AnchorPending, res.AnchorStatus)

	doc, err := p.ResolveDID(ctx, res.DID)
	require.NoError(t, err)
	assert.Equal(t, models.AnchorPending, doc.AnchorStatus)

	require.True(t, p.ConfirmAnchor(res.DID))
	doc, err = p.ResolveDID(ctx, res.DID)
	require.NoError(t, err)
	assert.Equal(t, models.AnchorConfirmed, doc.AnchorStatus)

	_, err = p.ResolveDID(ctx, "did:cord:unknown")
	assert.ErrorIs(t, err, gateway.ErrDIDNotFound)
}

func TestCredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	p := New()

	res, err := p.IssueCredential(ctx, issueRequest(models.CredentialEmployerAppreciation))
	require.NoError(t, err)
	assert.Equal(t, gateway.IssueStatusIssued, res.Status)
	require.NotEmpty(t, res.VCURL)

	ok, err := p.VerifyCredential(ctx, res.VCURL)
	require.NoError(t, err)
	assert.True(t, ok)

	require.True(t, p.Revoke(res.VCURL))
	ok, err = p.VerifyCredential(ctx, res.VCURL)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRejectedType(t *testing.T) {
	p := New(WithRejectedType(models.CredentialPANCard, "pan mismatch"))
	_, err := p.IssueCredential(context.Background(), issueRequest(models.CredentialPANCard))
	assert.True(t, gateway.IsKind(err, gateway.KindRejected))
}

func TestOutage(t *testing.T) {
	p := New()
	kind := gateway.KindTimeout
	p.SetOutage(&kind)

	_, err := p.IssueCredential(context.Background(), issueRequest(models.CredentialVoterID))
	assert.True(t, gateway.IsKind(err, gateway.KindTimeout))

	p.SetOutage(nil)
	_, err = p.IssueCredential(context.Background(), issueRequest(models.CredentialVoterID))
	assert.NoError(t, err)
}

func TestPendingIssuanceHasNoURL(t *testing.T) {
	p := New(WithIssueStatus(gateway.IssueStatusPending))
	res, err := p.IssueCredential(context.Background(), issueRequest(models.CredentialDegree))
	require.NoError(t, err)
	assert.Empty(t, res.VCURL)
}

func TestPendingIssuanceCompletes(t *testing.T) {
	ctx := context.Background()
	p := New(WithIssueStatus(gateway.IssueStatusPending))
	res, err := p.IssueCredential(ctx, issueRequest(models.CredentialDegree))
	require.NoError(t, err)
	require.NotEmpty(t, res.CredentialID)

	status, err := p.IssuanceStatus(ctx, res.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, gateway.IssueStatusPending, status.Status)
	assert.Empty(t, status.VCURL)

	require.True(t, p.CompleteIssuance(res.CredentialID))
	status, err = p.IssuanceStatus(ctx, res.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, gateway.IssueStatusIssued, status.Status)
	require.NotEmpty(t, status.VCURL)

	valid, err := p.VerifyCredential(ctx, status.VCURL)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestPendingIssuanceFails(t *testing.T) {
	ctx := context.Background()
	p := New(WithIssueStatus(gateway.IssueStatusPending))
	res, err := p.IssueCredential(ctx, issueRequest(models.CredentialDiploma))
	require.NoError(t, err)

	require.True(t, p.FailIssuance(res.CredentialID, "issuer revoked signing key"))
	assert.False(t, p.CompleteIssuance(res.CredentialID))

	_, err = p.IssuanceStatus(ctx, res.CredentialID)
	assert.True(t, gateway.IsKind(err, gateway.KindRejected))
	assert.Contains(t, err.Error(), "issuer revoked signing key")

	_, err = p.IssuanceStatus(ctx, "unknown")
	assert.True(t, gateway.IsKind(err, gateway.KindRejected))
}

func TestVerifyDocument(t *testing.T) {
	ctx := context.Background()
	p := New(WithUnverifiedDocument("sha256:forged", "document not found in registry"))
	check := gateway.DocumentCheck{
		CredentialType: models.CredentialPANCard,
		SubjectID:      "did:cord:worker",
		DocumentHash:   "sha256:genuine",
	}

	res, err := p.VerifyDocument(ctx, check)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.NotEmpty(t, res.Reference)

	check.DocumentHash = "sha256:forged"
	res, err = p.VerifyDocument(ctx, check)
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, "document not found in registry", res.Reason)

	check.CredentialType = models.CredentialEmployerAppreciation
	_, err = p.VerifyDocument(ctx, check)
	assert.True(t, gateway.IsKind(err, gateway.KindRejected))
}
