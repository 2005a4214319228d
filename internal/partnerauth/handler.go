package partnerauth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"upandup/internal/ledger/models"
	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/httputil"
	request "upandup/pkg/platform/middleware/request"
	"upandup/pkg/validation"
)

// PartnerLookup resolves the partner a token is being issued for.
type PartnerLookup interface {
	GetPartner(ctx context.Context, partnerID id.PartnerID) (*models.Partner, error)
}

type IssueTokenRequest struct {
	Subject string `json:"subject" validate:"notblank,max=200"`
}

func (r *IssueTokenRequest) Normalize() {
	if r == nil {
		return
	}
	r.Subject = strings.TrimSpace(r.Subject)
}

func (r *IssueTokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Handler mints partner tokens. Admin only.
type Handler struct {
	tokens   *TokenService
	partners PartnerLookup
	logger   *slog.Logger
}

func NewHandler(tokens *TokenService, partners PartnerLookup, logger *slog.Logger) *Handler {
	return &Handler{tokens: tokens, partners: partners, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/partners/{id}/tokens", h.HandleIssueToken)
}

// HandleIssueToken issues a bearer token for a partner that is not suspended.
func (h *Handler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	partnerID, err := id.ParsePartnerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid partner id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[IssueTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	partner, err := h.partners.GetPartner(ctx, partnerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !partner.CanOnboardWorkers() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "partner is suspended"))
		return
	}

	token, expiresAt, err := h.tokens.IssueToken(ctx, partnerID, req.Subject)
	if err != nil {
		h.logger.ErrorContext(ctx, "issue partner token failed", "error", err, "request_id", requestID, "partner_id", partnerID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "partner token issued",
		"request_id", requestID,
		"partner_id", partnerID.String(),
		"subject", req.Subject,
	)
	httputil.WriteJSON(w, http.StatusCreated, &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}
