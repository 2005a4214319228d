// Package httptransport assembles the public HTTP router. Handlers stay
// thin and delegate to the ledger service so transport concerns remain
// isolated.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ledgerhandler "upandup/internal/ledger/handler"
	"upandup/internal/partnerauth"
	"upandup/internal/platform/health"
	"upandup/pkg/platform/middleware/admin"
	"upandup/pkg/platform/middleware/auth"
	"upandup/pkg/platform/middleware/metadata"
	"upandup/pkg/platform/middleware/request"
	"upandup/pkg/platform/middleware/requesttime"
)

const maxBodyBytes = 1 << 20

// Deps carries the handlers and guards mounted on the router.
type Deps struct {
	Ledger         *ledgerhandler.Handler
	PartnerTokens  *partnerauth.Handler
	Health         *health.Handler
	TokenValidator auth.TokenValidator
	AdminToken     string
	Metrics        *request.Metrics
	RequestTimeout time.Duration
	TrustedProxies []netip.Prefix
	Logger         *slog.Logger
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(deps Deps) http.Handler {
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 40 * time.Second
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(deps.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(metadata.Config{TrustedProxies: deps.TrustedProxies}).Handler)
	r.Use(request.Logger(deps.Logger))
	r.Use(request.Latency(deps.Metrics))
	r.Use(requesttime.Middleware)

	deps.Health.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		r.Use(request.BodyLimit(maxBodyBytes))
		r.Use(request.ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(deps.AdminToken, deps.Logger))
			deps.Ledger.RegisterAdmin(r)
			if deps.PartnerTokens != nil {
				deps.PartnerTokens.Register(r)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePartner(deps.TokenValidator, deps.Logger))
			deps.Ledger.RegisterPartner(r)
		})
	})

	return r
}
