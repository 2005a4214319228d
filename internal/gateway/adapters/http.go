// Package adapters holds the HTTP transport shared by the remote gateway
// providers: request construction, auth headers, failure classification,
// circuit breaking, metrics and tracing.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"upandup/internal/gateway"
	"upandup/internal/gateway/metrics"
	"upandup/pkg/platform/circuit"
	"upandup/pkg/platform/tracer"
)

const maxResponseBytes = 1 << 20

// ErrNotFound is returned when the provider answers 404.
var ErrNotFound = errors.New("resource not found")

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	Provider       string
	APIKey         string
	OrganizationID string
	Timeout        time.Duration
	HTTPClient     HTTPDoer
	Breaker        *circuit.Breaker
	Tracer         tracer.Tracer
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// Client performs JSON calls against a provider API.
type Client struct {
	provider string
	apiKey   string
	orgID    string
	timeout  time.Duration
	http     HTTPDoer
	breaker  *circuit.Breaker
	tracer   tracer.Tracer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a provider HTTP client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Breaker == nil {
		cfg.Breaker = circuit.New(cfg.Provider)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracer.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		provider: cfg.Provider,
		apiKey:   cfg.APIKey,
		orgID:    cfg.OrganizationID,
		timeout:  cfg.Timeout,
		http:     selectHTTPClient(cfg),
		breaker:  cfg.Breaker,
		tracer:   cfg.Tracer,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

func selectHTTPClient(cfg Config) HTTPDoer {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return &http.Client{Timeout: cfg.Timeout}
}

// Provider returns the provider name used in errors and metrics.
func (c *Client) Provider() string {
	return c.provider
}

// Do sends body as JSON (when non-nil) and decodes the response into out
// (when non-nil). Failures are returned as *gateway.GatewayError, except a
// 404 which yields ErrNotFound so callers can give it operation meaning.
func (c *Client) Do(ctx context.Context, op, method, url string, body, out any) (err error) {
	if !c.breaker.Allow() {
		c.metrics.ObserveRequest(c.provider, op, "circuit_open", 0)
		return gateway.NewError(gateway.KindUnavailable, c.provider, op, "circuit open", nil)
	}

	ctx, span := c.tracer.Start(ctx, tracer.SpanGatewayCall,
		tracer.String(tracer.AttrGateway, c.provider),
		tracer.String(tracer.AttrOperation, op),
	)
	start := time.Now()
	defer func() {
		c.record(op, err, time.Since(start))
		span.End(err)
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(callCtx, op, method, url, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.classifyTransport(callCtx, op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.classifyTransport(callCtx, op, err)
	}

	if err := c.classifyStatus(op, resp.StatusCode, payload); err != nil {
		return err
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return gateway.NewError(gateway.KindUnavailable, c.provider, op, "failed to parse response", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, op, method, url string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, gateway.NewError(gateway.KindRejected, c.provider, op, "failed to marshal request", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, gateway.NewError(gateway.KindUnavailable, c.provider, op, "failed to create request", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.orgID != "" {
		req.Header.Set("X-Organization-Id", c.orgID)
	}
	return req, nil
}

func (c *Client) classifyTransport(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return gateway.NewError(gateway.KindTimeout, c.provider, op, "request timeout", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return gateway.NewError(gateway.KindTimeout, c.provider, op, "request timeout", err)
	}
	return gateway.NewError(gateway.KindUnavailable, c.provider, op, "failed to execute request", err)
}

func (c *Client) classifyStatus(op string, status int, payload []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return gateway.NewError(gateway.KindUnavailable, c.provider, op,
			fmt.Sprintf("authentication failed: %d", status), nil)
	case status == http.StatusTooManyRequests:
		return gateway.NewError(gateway.KindUnavailable, c.provider, op, "rate limit exceeded", nil)
	case status == http.StatusGatewayTimeout, status == http.StatusRequestTimeout:
		return gateway.NewError(gateway.KindTimeout, c.provider, op,
			fmt.Sprintf("provider timeout: %d", status), nil)
	case status >= 500:
		return gateway.NewError(gateway.KindUnavailable, c.provider, op,
			fmt.Sprintf("provider unavailable: %d", status), nil)
	default:
		return gateway.NewError(gateway.KindRejected, c.provider, op, rejectionReason(status, payload), nil)
	}
}

// rejectionReason extracts a provider message from a 4xx body.
func rejectionReason(status int, payload []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return fmt.Sprintf("request rejected: %d", status)
}

// record feeds the breaker and metrics. Rejections and 404s are answers, not
// provider faults, so they count as breaker successes.
func (c *Client) record(op string, err error, elapsed time.Duration) {
	outcome := "success"
	var change circuit.StateChange
	switch {
	case err == nil, errors.Is(err, ErrNotFound):
		if err != nil {
			outcome = "not_found"
		}
		change = c.breaker.RecordSuccess()
	case gateway.IsKind(err, gateway.KindRejected):
		outcome = "rejected"
		change = c.breaker.RecordSuccess()
	case gateway.IsKind(err, gateway.KindTimeout):
		outcome = "timeout"
		change = c.breaker.RecordFailure()
	default:
		outcome = "unavailable"
		change = c.breaker.RecordFailure()
	}

	c.metrics.ObserveRequest(c.provider, op, outcome, elapsed)
	c.metrics.SetBreakerState(c.provider, float64(c.breaker.State()))
	if change.Opened {
		c.metrics.IncBreakerOpened(c.provider)
		c.logger.Warn("gateway circuit opened",
			"provider", c.provider,
			"operation", op,
			"error", err,
		)
	}
	if change.Closed {
		c.logger.Info("gateway circuit closed", "provider", c.provider)
	}
}
