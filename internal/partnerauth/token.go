// Package partnerauth issues and validates the bearer tokens partners use
// to call the worker and credential API.
package partnerauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/middleware/auth"
	"upandup/pkg/platform/middleware/requesttime"
)

const audience = "upandup-partner-api"

// PartnerClaims are the JWT claims carried by a partner token.
type PartnerClaims struct {
	PartnerID string `json:"partner_id"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 partner tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

func NewTokenService(signingKey, issuer string, tokenTTL time.Duration) *TokenService {
	if signingKey == "" {
		panic("signing key is required")
	}
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}
}

// IssueToken mints a token for partnerID. subject names the partner user
// the token was handed to and ends up in audit events.
func (s *TokenService) IssueToken(ctx context.Context, partnerID id.PartnerID, subject string) (string, time.Time, error) {
	if partnerID.IsNil() {
		return "", time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "partner id is required")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	now := requesttime.Now(ctx)
	expiresAt := now.Add(s.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, PartnerClaims{
		PartnerID: partnerID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{audience},
			ID:        hex.EncodeToString(b),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken implements auth.TokenValidator.
func (s *TokenService) ValidateToken(tokenString string) (*auth.Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &PartnerClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*PartnerClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.PartnerID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no partner")
	}

	return &auth.Claims{PartnerID: claims.PartnerID, Subject: claims.Subject}, nil
}
