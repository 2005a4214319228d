// Package auth authenticates partner API callers with bearer tokens.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "upandup/pkg/domain"
	"upandup/pkg/platform/middleware/request"
)

// TokenValidator validates a raw bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(token string) (*Claims, error)
}

// Claims are the fields the middleware needs from a partner token.
type Claims struct {
	PartnerID string
	Subject   string
}

type contextKeyPartnerID struct{}
type contextKeySubject struct{}

// WithPartnerID stores the authenticated partner on the context.
func WithPartnerID(ctx context.Context, partnerID id.PartnerID) context.Context {
	return context.WithValue(ctx, contextKeyPartnerID{}, partnerID)
}

// GetPartnerID returns the authenticated partner, or a nil ID.
func GetPartnerID(ctx context.Context) id.PartnerID {
	if v, ok := ctx.Value(contextKeyPartnerID{}).(id.PartnerID); ok {
		return v
	}
	return id.PartnerID{}
}

// GetSubject returns the partner user that presented the token, or "".
func GetSubject(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeySubject{}).(string); ok {
		return v
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequirePartner validates the bearer token and stores the partner ID in context.
func RequirePartner(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			partnerID, err := id.ParsePartnerID(claims.PartnerID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed partner claim",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = WithPartnerID(ctx, partnerID)
			ctx = context.WithValue(ctx, contextKeySubject{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
