package ledger

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	AsAdmin(method, path string, body any) error
	AsPartner(method, path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetPartnerID() string
	SetPartnerID(string)
	SetPartnerToken(string)
	GetWorkerID() string
	SetWorkerID(string)
	GetCredentialID() string
	SetCredentialID(string)
}

// RegisterSteps registers partner, worker and credential steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ledgerSteps{tc: tc}

	// Partner steps
	ctx.Step(`^an active partner "([^"]*)"$`, steps.activePartner)
	ctx.Step(`^the partner is suspended$`, steps.suspendPartner)
	ctx.Step(`^I hold a partner token$`, steps.mintPartnerToken)
	ctx.Step(`^I request a partner token$`, steps.requestPartnerToken)

	// Worker steps
	ctx.Step(`^I invite worker "([^"]*)"$`, steps.inviteWorker)
	ctx.Step(`^a registered worker "([^"]*)"$`, steps.registeredWorker)
	ctx.Step(`^I create a DID for the worker$`, steps.createDID)
	ctx.Step(`^I fetch the worker$`, steps.fetchWorker)

	// Credential steps
	ctx.Step(`^I request a "([^"]*)" credential$`, steps.requestCredential)
	ctx.Step(`^I verify the credential$`, steps.verifyCredential)
	ctx.Step(`^I recheck the credential$`, steps.recheckCredential)
	ctx.Step(`^I list the worker's credentials$`, steps.listCredentials)

	// Trust score steps
	ctx.Step(`^I recompute the trust score$`, steps.recomputeTrustScore)
	ctx.Step(`^I fetch the trust score$`, steps.fetchTrustScore)
}

type ledgerSteps struct {
	tc TestContext
}

func (s *ledgerSteps) expect(status int) error {
	if got := s.tc.GetLastResponseStatus(); got != status {
		return fmt.Errorf("expected status %d but got %d: %s", status, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *ledgerSteps) stringField(name string) (string, error) {
	v, err := s.tc.GetResponseField(name)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s is not a string: %v", name, v)
	}
	return str, nil
}

func (s *ledgerSteps) activePartner(ctx context.Context, name string) error {
	if err := s.tc.AsAdmin(http.MethodPost, "/partners", map[string]string{
		"name":  name,
		"email": fmt.Sprintf("ops+%d@partner.test", rand.IntN(1_000_000)),
	}); err != nil {
		return err
	}
	if err := s.expect(http.StatusCreated); err != nil {
		return err
	}
	partnerID, err := s.stringField("id")
	if err != nil {
		return err
	}
	s.tc.SetPartnerID(partnerID)

	if err := s.tc.AsAdmin(http.MethodPut, "/partners/"+partnerID+"/status", map[string]string{"status": "active"}); err != nil {
		return err
	}
	return s.expect(http.StatusOK)
}

func (s *ledgerSteps) suspendPartner(ctx context.Context) error {
	if err := s.tc.AsAdmin(http.MethodPut, "/partners/"+s.tc.GetPartnerID()+"/status", map[string]string{"status": "suspended"}); err != nil {
		return err
	}
	return s.expect(http.StatusOK)
}

func (s *ledgerSteps) requestPartnerToken(ctx context.Context) error {
	return s.tc.AsAdmin(http.MethodPost, "/partners/"+s.tc.GetPartnerID()+"/tokens", map[string]string{"subject": "e2e"})
}

func (s *ledgerSteps) mintPartnerToken(ctx context.Context) error {
	if err := s.requestPartnerToken(ctx); err != nil {
		return err
	}
	if err := s.expect(http.StatusCreated); err != nil {
		return err
	}
	token, err := s.stringField("access_token")
	if err != nil {
		return err
	}
	s.tc.SetPartnerToken(token)
	return nil
}

func (s *ledgerSteps) inviteWorker(ctx context.Context, name string) error {
	if err := s.tc.AsPartner(http.MethodPost, "/workers", map[string]string{
		"name":  name,
		"phone": fmt.Sprintf("+9198%08d", rand.IntN(100_000_000)),
	}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != http.StatusCreated {
		return nil
	}
	workerID, err := s.stringField("id")
	if err != nil {
		return err
	}
	s.tc.SetWorkerID(workerID)
	return nil
}

func (s *ledgerSteps) registeredWorker(ctx context.Context, name string) error {
	if err := s.inviteWorker(ctx, name); err != nil {
		return err
	}
	if err := s.expect(http.StatusCreated); err != nil {
		return err
	}
	if err := s.tc.AsPartner(http.MethodPost, "/workers/"+s.tc.GetWorkerID()+"/register", map[string]string{}); err != nil {
		return err
	}
	return s.expect(http.StatusOK)
}

func (s *ledgerSteps) createDID(ctx context.Context) error {
	return s.tc.AsPartner(http.MethodPost, "/workers/"+s.tc.GetWorkerID()+"/did", map[string]string{})
}

func (s *ledgerSteps) fetchWorker(ctx context.Context) error {
	return s.tc.AsPartner(http.MethodGet, "/workers/"+s.tc.GetWorkerID(), nil)
}

func (s *ledgerSteps) requestCredential(ctx context.Context, credType string) error {
	if err := s.tc.AsPartner(http.MethodPost, "/workers/"+s.tc.GetWorkerID()+"/credentials", map[string]any{
		"credential_type": credType,
		"issuer":          map[string]string{"name": "E2E Issuer"},
		"document_hash":   "9f86d081884c7d659a2feaa0c55ad015",
		"issue_date":      "2026-01-10",
	}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != http.StatusCreated {
		return nil
	}
	credentialID, err := s.stringField("id")
	if err != nil {
		return err
	}
	s.tc.SetCredentialID(credentialID)
	return nil
}

func (s *ledgerSteps) verifyCredential(ctx context.Context) error {
	return s.tc.AsPartner(http.MethodPost, "/credentials/"+s.tc.GetCredentialID()+"/verify", map[string]string{})
}

func (s *ledgerSteps) recheckCredential(ctx context.Context) error {
	return s.tc.AsPartner(http.MethodPost, "/credentials/"+s.tc.GetCredentialID()+"/recheck", map[string]string{})
}

func (s *ledgerSteps) listCredentials(ctx context.Context) error {
	return s.tc.AsPartner(http.MethodGet, "/workers/"+s.tc.GetWorkerID()+"/credentials", nil)
}

func (s *ledgerSteps) recomputeTrustScore(ctx context.Context) error {
	return s.tc.AsPartner(http.MethodPost, "/workers/"+s.tc.GetWorkerID()+"/trust-score", map[string]string{})
}

func (s *ledgerSteps) fetchTrustScore(ctx context.Context) error {
	return s.tc.AsPartner(http.MethodGet, "/workers/"+s.tc.GetWorkerID()+"/trust-score", nil)
}
