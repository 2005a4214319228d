package models

import (
	"errors"
	"fmt"

	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
)

// CredentialErrorKind classifies credential lifecycle failures.
type CredentialErrorKind string

const (
	CredentialInvalidInput       CredentialErrorKind = "invalid_input"
	CredentialAlreadyTerminal    CredentialErrorKind = "already_terminal"
	CredentialGatewayUnavailable CredentialErrorKind = "gateway_unavailable"
)

// CredentialError is returned by credential operations.
type CredentialError struct {
	Kind         CredentialErrorKind
	CredentialID id.CredentialID
	Message      string
	Err          error
}

func (e *CredentialError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.CredentialID != "" {
		msg = fmt.Sprintf("credential %s: %s", e.CredentialID, msg)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }

// DomainCode implements dErrors.Coder.
func (e *CredentialError) DomainCode() dErrors.Code {
	switch e.Kind {
	case CredentialAlreadyTerminal:
		return dErrors.CodeAlreadyTerminal
	case CredentialGatewayUnavailable:
		return dErrors.CodeUnavailable
	default:
		return dErrors.CodeInvalidInput
	}
}

// DIDErrorKind classifies DID lifecycle failures.
type DIDErrorKind string

const (
	DIDAlreadySet         DIDErrorKind = "already_set"
	DIDGatewayUnavailable DIDErrorKind = "gateway_unavailable"
)

// DIDError is returned by CreateWorkerDID.
type DIDError struct {
	Kind     DIDErrorKind
	WorkerID id.WorkerID
	Message  string
	Err      error
}

func (e *DIDError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	msg = fmt.Sprintf("worker %s did: %s", e.WorkerID, msg)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *DIDError) Unwrap() error { return e.Err }

// DomainCode implements dErrors.Coder.
func (e *DIDError) DomainCode() dErrors.Code {
	if e.Kind == DIDAlreadySet {
		return dErrors.CodeAlreadySet
	}
	return dErrors.CodeUnavailable
}

// ConcurrencyErrorKind classifies serialization failures.
type ConcurrencyErrorKind string

const ConcurrencyBusy ConcurrencyErrorKind = "busy"

// ConcurrencyError is returned when a worker-scoped operation could not
// acquire the worker's lock.
type ConcurrencyError struct {
	Kind     ConcurrencyErrorKind
	WorkerID id.WorkerID
	Err      error
}

func (e *ConcurrencyError) Error() string {
	msg := fmt.Sprintf("worker %s is busy", e.WorkerID)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ConcurrencyError) Unwrap() error { return e.Err }

// DomainCode implements dErrors.Coder.
func (e *ConcurrencyError) DomainCode() dErrors.Code { return dErrors.CodeBusy }

// IsCredentialError reports whether err carries a CredentialError of the given kind.
func IsCredentialError(err error, kind CredentialErrorKind) bool {
	var ce *CredentialError
	return errors.As(err, &ce) && ce.Kind == kind
}

// IsDIDError reports whether err carries a DIDError of the given kind.
func IsDIDError(err error, kind DIDErrorKind) bool {
	var de *DIDError
	return errors.As(err, &de) && de.Kind == kind
}

// IsBusy reports whether err is a ConcurrencyError.
func IsBusy(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}
