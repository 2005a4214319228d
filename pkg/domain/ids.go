// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "upandup/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing WorkerID where PartnerID is expected.
type (
	PartnerID    uuid.UUID
	WorkerID     uuid.UUID
	TrustScoreID uuid.UUID
)

// CredentialID is a prefixed string identifier for credentials (e.g., "cred_xxxx").
type CredentialID string

const credentialIDPrefix = "cred_"

// NewCredentialID generates a fresh credential identifier.
func NewCredentialID() CredentialID {
	return CredentialID(credentialIDPrefix + uuid.NewString())
}

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParsePartnerID(s string) (PartnerID, error) {
	id, err := parseUUID(s, "partner ID")
	return PartnerID(id), err
}

func ParseWorkerID(s string) (WorkerID, error) {
	id, err := parseUUID(s, "worker ID")
	return WorkerID(id), err
}

func ParseCredentialID(s string) (CredentialID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential ID cannot be empty")
	}
	rest, ok := strings.CutPrefix(s, credentialIDPrefix)
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid credential ID format")
	}
	if _, err := uuid.Parse(rest); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid credential ID format")
	}
	return CredentialID(s), nil
}

// String methods - for logging and debugging.

func (id PartnerID) String() string    { return uuid.UUID(id).String() }
func (id WorkerID) String() string     { return uuid.UUID(id).String() }
func (id TrustScoreID) String() string { return uuid.UUID(id).String() }
func (id CredentialID) String() string { return string(id) }

// IsNil checks - used for service-layer validation.

func (id PartnerID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id WorkerID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id TrustScoreID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool { return id == "" }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
