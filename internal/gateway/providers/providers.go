// Package providers selects and assembles the configured gateway provider.
package providers

import (
	"fmt"
	"log/slog"

	"upandup/internal/gateway"
	"upandup/internal/gateway/adapters"
	"upandup/internal/gateway/metrics"
	"upandup/internal/gateway/providers/cord"
	"upandup/internal/gateway/providers/dhiway"
	"upandup/internal/gateway/providers/sandbox"
	"upandup/internal/platform/config"
	"upandup/pkg/platform/circuit"
	"upandup/pkg/platform/tracer"
)

// Deps are the shared collaborators for remote providers.
type Deps struct {
	HTTPClient adapters.HTTPDoer
	Tracer     tracer.Tracer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// New builds the provider named by cfg.Provider.
func New(cfg config.GatewayConfig, deps Deps) (gateway.Provider, error) {
	switch cfg.Provider {
	case config.ProviderSandbox:
		return sandbox.New(), nil
	case config.ProviderDhiway:
		return dhiway.New(dhiway.Config{
			PublishURL:      cfg.DEDIPublishURL,
			LookupURL:       cfg.DEDILookupURL,
			MarkStudioURL:   cfg.MarkStudioURL,
			IssuerAgentURL:  cfg.IssuerAgentURL,
			VerificationURL: cfg.VerificationURL,
			DigiLockerURL:   cfg.DigiLockerURL,
			IssuerDID:       cfg.IssuerDID,
		}, httpClient(dhiway.ProviderName, cfg, deps)), nil
	case config.ProviderCord:
		return cord.New(cord.Config{
			NetworkURL:    cfg.CordNetworkURL,
			MarkStudioURL: cfg.MarkStudioURL,
			IssuerDID:     cfg.IssuerDID,
		}, httpClient(cord.ProviderName, cfg, deps)), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}

// DocumentVerifier returns the provider's DigiLocker check when document
// checks are enabled and the provider offers one, and nil otherwise.
func DocumentVerifier(cfg config.GatewayConfig, provider gateway.Provider) gateway.DocumentVerifier {
	if !cfg.DocumentChecks {
		return nil
	}
	verifier, ok := provider.(gateway.DocumentVerifier)
	if !ok {
		return nil
	}
	return verifier
}

func httpClient(name string, cfg config.GatewayConfig, deps Deps) *adapters.Client {
	return adapters.New(adapters.Config{
		Provider:       name,
		APIKey:         cfg.APIKey,
		OrganizationID: cfg.OrgID,
		Timeout:        cfg.Timeout,
		HTTPClient:     deps.HTTPClient,
		Breaker: circuit.New(name,
			circuit.WithFailureThreshold(cfg.BreakerThreshold),
			circuit.WithCooldown(cfg.BreakerCooldown),
		),
		Tracer:  deps.Tracer,
		Metrics: deps.Metrics,
		Logger:  deps.Logger,
	})
}
