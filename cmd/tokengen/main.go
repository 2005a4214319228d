// Package main provides a CLI tool for minting partner API tokens for local
// development. Tokens are signed with the dev key unless --signing-key or
// PARTNER_JWT_SIGNING_KEY says otherwise, so they will NOT work in production.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"upandup/internal/partnerauth"
	id "upandup/pkg/domain"
)

const (
	// Dev signing key - matches config.go when PARTNER_JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "upandup"
	defaultTokenTTL = time.Hour
	defaultBaseURL  = "http://localhost:8080"
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	PartnerID string            `json:"partner_id"`
	ExpiresAt time.Time         `json:"expires_at"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "partner":
		err = partnerToken(os.Args[2:])
	case "admin":
		err = adminToken(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen mints development credentials for the ledger API.

Usage:
  tokengen partner [--partner-id UUID] [--subject NAME] [--ttl 1h] [--json]
  tokengen admin [--json]

Partner tokens authorize /workers and /credentials routes. The admin token
authorizes /partners and /admin routes.`)
}

func partnerToken(args []string) error {
	flagSet := pflag.NewFlagSet("partner", pflag.ContinueOnError)
	partnerID := flagSet.String("partner-id", "", "partner ID (UUID); generated if empty")
	subject := flagSet.String("subject", "tokengen", "subject recorded in the token")
	issuer := flagSet.String("issuer", envOr("PARTNER_JWT_ISSUER", defaultIssuer), "token issuer")
	signingKey := flagSet.String("signing-key", envOr("PARTNER_JWT_SIGNING_KEY", devSigningKey), "HMAC signing key")
	ttl := flagSet.Duration("ttl", defaultTokenTTL, "token time-to-live")
	jsonOutput := flagSet.Bool("json", false, "output as JSON")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	partner := uuid.New()
	if *partnerID != "" {
		parsed, err := uuid.Parse(*partnerID)
		if err != nil {
			return fmt.Errorf("invalid --partner-id: %w", err)
		}
		partner = parsed
	}

	tokens := partnerauth.NewTokenService(*signingKey, *issuer, *ttl)
	token, expiresAt, err := tokens.IssueToken(context.Background(), id.PartnerID(partner), *subject)
	if err != nil {
		return err
	}

	if *jsonOutput {
		return printJSON(tokenOutput{
			Token:     token,
			Type:      "partner",
			PartnerID: partner.String(),
			ExpiresAt: expiresAt,
			Usage: map[string]string{
				"header": "Authorization: Bearer " + token,
				"curl":   fmt.Sprintf("curl -H \"Authorization: Bearer %s\" %s/workers/{id}", token, defaultBaseURL),
			},
		})
	}
	fmt.Printf("Partner ID: %s\n", partner)
	fmt.Printf("Expires:    %s\n\n", expiresAt.Format(time.RFC3339))
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -H \"Authorization: Bearer <token>\" %s/workers/{id}\n", defaultBaseURL)
	return nil
}

func adminToken(args []string) error {
	flagSet := pflag.NewFlagSet("admin", pflag.ContinueOnError)
	jsonOutput := flagSet.Bool("json", false, "output as JSON")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	token := os.Getenv("ADMIN_API_TOKEN")
	if token == "" {
		return fmt.Errorf("ADMIN_API_TOKEN is not set; admin routes are disabled without it")
	}
	if *jsonOutput {
		return printJSON(map[string]any{
			"token": token,
			"type":  "admin",
			"usage": map[string]string{
				"header": "X-Admin-Token: " + token,
			},
		})
	}
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -H \"X-Admin-Token: %s\" %s/partners/{id}\n", token, defaultBaseURL)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
