package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"upandup/internal/gateway"
	"upandup/internal/gateway/providers/sandbox"
	"upandup/internal/ledger/models"
	"upandup/internal/ledger/service"
	"upandup/internal/ledger/store"
	adminmw "upandup/pkg/platform/middleware/admin"
	"upandup/pkg/platform/middleware/auth"
)

const adminToken = "secret-token"

// tokenTable maps bearer tokens straight to partner IDs.
type tokenTable map[string]string

func (t tokenTable) ValidateToken(token string) (*auth.Claims, error) {
	partnerID, ok := t[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &auth.Claims{PartnerID: partnerID, Subject: "ops"}, nil
}

type HandlerSuite struct {
	suite.Suite
	router  http.Handler
	gateway *sandbox.Provider
	tokens  tokenTable
	logs    *bytes.Buffer
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.setup()
}

func (s *HandlerSuite) setup(opts ...sandbox.Option) {
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewInMemory(nil)
	s.gateway = sandbox.New(opts...)
	svc := service.New(st, st, s.gateway, s.gateway, service.WithLogger(logger))
	s.tokens = tokenTable{}

	h := New(svc, slog.New(slog.NewTextHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(adminToken, logger))
		h.RegisterAdmin(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePartner(s.tokens, logger))
		h.RegisterPartner(r)
	})
	s.router = r
}

func (s *HandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token == adminToken {
		req.Header.Set("X-Admin-Token", token)
	} else if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](s *HandlerSuite, rec *httptest.ResponseRecorder) T {
	var out T
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// partner creates a partner through the admin API and returns a bearer
// token scoped to it.
func (s *HandlerSuite) partner(name string) (string, string) {
	rec := s.do(http.MethodPost, "/partners", adminToken, map[string]string{
		"name":  name,
		"email": "ops@" + name + ".test",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	partner := decode[PartnerResponse](s, rec)
	token := "token-" + name
	s.tokens[token] = partner.ID
	return partner.ID, token
}

func (s *HandlerSuite) worker(token string) WorkerResponse {
	rec := s.do(http.MethodPost, "/workers", token, map[string]string{
		"name":  "Asha Rao",
		"phone": "+91 98765-43210",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return decode[WorkerResponse](s, rec)
}

func credentialBody(credType string) map[string]any {
	return map[string]any{
		"credential_type": credType,
		"issuer":          map[string]string{"name": "Income Tax Department"},
		"document_hash":   "9f86d081884c7d659a2feaa0c55ad015",
		"issue_date":      "2026-01-10",
	}
}

func (s *HandlerSuite) TestAdminTokenRequired() {
	rec := s.do(http.MethodGet, "/partners/"+uuid.NewString(), "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/partners", "wrong", map[string]string{"name": "x", "email": "x@y.test"})
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestPartnerTokenRequired() {
	rec := s.do(http.MethodPost, "/workers", "", map[string]string{"name": "Asha", "phone": "+919876543210"})
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/workers", "unknown", map[string]string{"name": "Asha", "phone": "+919876543210"})
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestPartnerAdministration() {
	partnerID, _ := s.partner("acme")

	rec := s.do(http.MethodPut, "/partners/"+partnerID+"/status", adminToken, map[string]string{"status": "Active"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(models.PartnershipActive, decode[PartnerResponse](s, rec).Status)

	rec = s.do(http.MethodPost, "/partners/"+partnerID+"/onboarding/complete", adminToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.True(decode[PartnerResponse](s, rec).OnboardingCompleted)

	rec = s.do(http.MethodPut, "/partners/"+partnerID+"/status", adminToken, map[string]string{"status": "archived"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/partners/not-a-uuid", adminToken, nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/partners/"+uuid.NewString(), adminToken, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestCreatePartnerValidation() {
	rec := s.do(http.MethodPost, "/partners", adminToken, map[string]string{"name": "acme"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/partners", adminToken, map[string]string{"name": "acme", "email": "ops@acme.test", "extra": "x"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCredentialFlow() {
	_, token := s.partner("acme")
	worker := s.worker(token)
	s.Equal("+919876543210", worker.Phone)
	s.Equal(models.OnboardingInvited, worker.Status)

	rec := s.do(http.MethodPost, "/workers/"+worker.ID+"/register", token, map[string]string{"national_id": "abcd 1234 ef"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	registered := decode[WorkerResponse](s, rec)
	s.Equal(models.OnboardingRegistered, registered.Status)
	s.True(registered.NationalIDOnFile)
	s.NotContains(rec.Body.String(), "national_id_hash")

	rec = s.do(http.MethodPost, "/workers/"+worker.ID+"/did", token, map[string]string{})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	s.NotEmpty(decode[WorkerResponse](s, rec).DID)

	rec = s.do(http.MethodPost, "/workers/"+worker.ID+"/did", token, map[string]string{})
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/workers/"+worker.ID+"/credentials", token, credentialBody("PAN-Card"))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	credential := decode[CredentialResponse](s, rec)
	s.Equal(models.CredentialPANCard, credential.Type)
	s.Equal(models.IssuerGovernment, credential.Issuer.Type)
	s.Equal(models.VerificationPending, credential.Status)
	s.NotEmpty(credential.VCURL)

	rec = s.do(http.MethodPost, "/credentials/"+credential.ID+"/verify", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(models.VerificationVerified, decode[CredentialResponse](s, rec).Status)

	rec = s.do(http.MethodGet, "/workers/"+worker.ID+"/trust-score", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	score := decode[TrustScoreResponse](s, rec)
	s.Equal(1, score.Breakdown.VerifiedCredentials)
	s.True(score.Breakdown.GovernmentVerified)
	s.Equal(1, score.Version)

	rec = s.do(http.MethodPost, "/workers/"+worker.ID+"/trust-score", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(2, decode[TrustScoreResponse](s, rec).Version)

	rec = s.do(http.MethodPost, "/credentials/"+credential.ID+"/recheck", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.NotNil(decode[CredentialResponse](s, rec).LastCheckedAt)

	rec = s.do(http.MethodGet, "/workers/"+worker.ID+"/credentials", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	list := decode[CredentialListResponse](s, rec)
	s.Equal(1, list.Total)
	s.Equal(credential.ID, list.Credentials[0].ID)
}

func (s *HandlerSuite) TestRejectedCredentialIsTerminal() {
	_, token := s.partner("acme")
	worker := s.worker(token)

	rec := s.do(http.MethodPost, "/workers/"+worker.ID+"/credentials", token, credentialBody("voter-id"))
	s.Require().Equal(http.StatusCreated, rec.Code)
	credential := decode[CredentialResponse](s, rec)
	s.True(s.gateway.Revoke(credential.VCURL))

	rec = s.do(http.MethodPost, "/credentials/"+credential.ID+"/verify", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(models.VerificationRejected, decode[CredentialResponse](s, rec).Status)

	rec = s.do(http.MethodPost, "/credentials/"+credential.ID+"/verify", token, nil)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("already_terminal", decode[map[string]string](s, rec)["error"])
	s.Contains(s.logs.String(), "level=INFO msg=\"credential already terminal\"")
	s.NotContains(s.logs.String(), "level=ERROR")

	rec = s.do(http.MethodGet, "/workers/"+worker.ID+"/credentials", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(models.VerificationRejected, decode[CredentialListResponse](s, rec).Credentials[0].Status)
}

func (s *HandlerSuite) TestPendingIssuanceFlow() {
	s.setup(sandbox.WithIssueStatus(gateway.IssueStatusPending))
	_, token := s.partner("acme")
	worker := s.worker(token)

	rec := s.do(http.MethodPost, "/workers/"+worker.ID+"/credentials", token, credentialBody("skill-certificate"))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	credential := decode[CredentialResponse](s, rec)
	s.Empty(credential.VCURL)

	rec = s.do(http.MethodPost, "/credentials/"+credential.ID+"/issuance", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Empty(decode[CredentialResponse](s, rec).VCURL)

	rec = s.do(http.MethodPost, "/credentials/"+credential.ID+"/verify", token, nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	s.Require().True(s.gateway.CompleteIssuance(credential.ExternalID))
	rec = s.do(http.MethodPost, "/credentials/"+credential.ID+"/issuance", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.NotEmpty(decode[CredentialResponse](s, rec).VCURL)

	rec = s.do(http.MethodPost, "/credentials/"+credential.ID+"/verify", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(models.VerificationVerified, decode[CredentialResponse](s, rec).Status)

	_, other := s.partner("globex")
	rec = s.do(http.MethodPost, "/credentials/"+credential.ID+"/issuance", other, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestGatewayOutage() {
	_, token := s.partner("acme")
	worker := s.worker(token)
	down := gateway.KindUnavailable
	s.gateway.SetOutage(&down)

	rec := s.do(http.MethodPost, "/workers/"+worker.ID+"/credentials", token, credentialBody("degree"))
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("gateway_unavailable", decode[map[string]string](s, rec)["error"])

	s.gateway.SetOutage(nil)
	rec = s.do(http.MethodGet, "/workers/"+worker.ID+"/credentials", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	list := decode[CredentialListResponse](s, rec)
	s.Require().Equal(1, list.Total)
	s.Equal(models.VerificationPending, list.Credentials[0].Status)
	s.Empty(list.Credentials[0].VCURL)
}

func (s *HandlerSuite) TestOtherPartnersWorkersAreHidden() {
	_, owner := s.partner("acme")
	_, other := s.partner("globex")
	worker := s.worker(owner)

	rec := s.do(http.MethodPost, "/workers/"+worker.ID+"/credentials", owner, credentialBody("pan-card"))
	s.Require().Equal(http.StatusCreated, rec.Code)
	credential := decode[CredentialResponse](s, rec)

	for _, path := range []string{"/workers/" + worker.ID, "/workers/" + worker.ID + "/credentials"} {
		rec = s.do(http.MethodGet, path, other, nil)
		s.Equal(http.StatusNotFound, rec.Code, path)
	}
	rec = s.do(http.MethodPost, "/credentials/"+credential.ID+"/verify", other, nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/workers/"+worker.ID, owner, nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestReassignWorker() {
	_, owner := s.partner("acme")
	targetID, target := s.partner("globex")
	worker := s.worker(owner)

	rec := s.do(http.MethodPut, "/admin/workers/"+worker.ID+"/partner", adminToken, map[string]string{"partner_id": targetID})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(targetID, decode[WorkerResponse](s, rec).PartnerID)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/workers/"+worker.ID, owner, nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/workers/"+worker.ID, target, nil).Code)

	rec = s.do(http.MethodPut, "/admin/workers/"+worker.ID+"/partner", adminToken, map[string]string{"partner_id": "nope"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestMalformedIdentifiers() {
	_, token := s.partner("acme")
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/workers/123", token, nil).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/credentials/123/verify", token, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/credentials/cred_"+uuid.NewString()+"/verify", token, nil).Code)
}
