package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "upandup/pkg/domain-errors"
)

func TestRequestCredentialRequest(t *testing.T) {
	decode := func(t *testing.T, body string) *RequestCredentialRequest {
		t.Helper()
		var req RequestCredentialRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		req.Normalize()
		return &req
	}

	t.Run("defaults issuer type from credential kind", func(t *testing.T) {
		req := decode(t, `{"credential_type":"PAN-Card","issuer":{"name":"Income Tax Dept"},
			"document_hash":"AB12CD34EF56AB12CD34EF56AB12CD34","issue_date":"2024-04-01"}`)
		require.NoError(t, req.Validate())
		assert.Equal(t, CredentialPANCard, req.Type)
		assert.Equal(t, IssuerGovernment, req.Issuer.Type)
		meta := req.Metadata()
		assert.Equal(t, "ab12cd34ef56ab12cd34ef56ab12cd34", meta.DocumentHash)
		assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), meta.IssueDate)
	})

	t.Run("missing issue date", func(t *testing.T) {
		req := decode(t, `{"credential_type":"degree","issuer":{"name":"VTU"},
			"document_hash":"ab12cd34ef56ab12cd34ef56ab12cd34"}`)
		err := req.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "issue_date")
	})

	t.Run("expiry before issue", func(t *testing.T) {
		req := decode(t, `{"credential_type":"driving-license","issuer":{"name":"RTO"},
			"document_hash":"ab12cd34ef56ab12cd34ef56ab12cd34",
			"issue_date":"2024-04-01","expiry_date":"2023-01-01"}`)
		assert.ErrorContains(t, req.Validate(), "expiry_date")
	})

	t.Run("unsupported kind", func(t *testing.T) {
		req := decode(t, `{"credential_type":"gym-membership","issuer":{"name":"Gym"},
			"document_hash":"ab12cd34ef56ab12cd34ef56ab12cd34","issue_date":"2024-04-01"}`)
		assert.ErrorContains(t, req.Validate(), "credential_type")
	})

	t.Run("malformed hash", func(t *testing.T) {
		req := decode(t, `{"credential_type":"degree","issuer":{"name":"VTU"},
			"document_hash":"not-a-hash","issue_date":"2024-04-01"}`)
		assert.ErrorContains(t, req.Validate(), "document_hash")
	})
}

func TestInviteWorkerRequest(t *testing.T) {
	req := &InviteWorkerRequest{Name: "  Ravi ", Phone: "+91 98765-43210"}
	req.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "Ravi", req.Name)
	assert.Equal(t, "+919876543210", req.Phone)

	bad := &InviteWorkerRequest{Name: "Ravi", Phone: "12"}
	assert.ErrorContains(t, bad.Validate(), "phone")
}

func TestRegisterWorkerRequest(t *testing.T) {
	req := &RegisterWorkerRequest{NationalID: " abcde 1234f "}
	req.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "ABCDE1234F", req.NationalID)
}
