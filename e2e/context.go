package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	AdminToken       string
	PartnerToken     string
	PartnerID        string
	WorkerID         string
	CredentialID     string
}

// NewTestContext creates a new test context
func NewTestContext() *TestContext {
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	adminToken := os.Getenv("ADMIN_API_TOKEN")
	if adminToken == "" {
		adminToken = "demo-admin-token"
	}

	return &TestContext{
		BaseURL:    baseURL,
		AdminToken: adminToken,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Do sends a JSON request and stores the response. A nil body sends no payload.
func (tc *TestContext) Do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// AsAdmin sends a request with the admin token.
func (tc *TestContext) AsAdmin(method, path string, body any) error {
	return tc.Do(method, path, body, map[string]string{"X-Admin-Token": tc.AdminToken})
}

// AsPartner sends a request with the current partner bearer token.
func (tc *TestContext) AsPartner(method, path string, body any) error {
	return tc.Do(method, path, body, map[string]string{"Authorization": "Bearer " + tc.PartnerToken})
}

// GetResponseField extracts a top-level field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}
	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}

	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err == nil {
		if _, ok := data[text]; ok {
			return true
		}
	}
	return false
}

// Getter methods for step package interfaces

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

func (tc *TestContext) GetPartnerID() string     { return tc.PartnerID }
func (tc *TestContext) SetPartnerID(v string)    { tc.PartnerID = v }
func (tc *TestContext) GetPartnerToken() string  { return tc.PartnerToken }
func (tc *TestContext) SetPartnerToken(v string) { tc.PartnerToken = v }
func (tc *TestContext) GetWorkerID() string      { return tc.WorkerID }
func (tc *TestContext) SetWorkerID(v string)     { tc.WorkerID = v }
func (tc *TestContext) GetCredentialID() string  { return tc.CredentialID }
func (tc *TestContext) SetCredentialID(v string) { tc.CredentialID = v }
