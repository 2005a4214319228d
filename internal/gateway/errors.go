package gateway

import (
	"context"
	"errors"
	"fmt"

	dErrors "upandup/pkg/domain-errors"
)

// ErrorKind is the normalized failure taxonomy for gateway calls.
//
// Providers classify every failure into one of these kinds so the ledger can
// decide whether state changes, independent of the provider protocol.
type ErrorKind string

const (
	// KindUnavailable indicates the provider could not be reached or failed
	// on its side. Ledger state is left unchanged.
	KindUnavailable ErrorKind = "unavailable"

	// KindRejected indicates the provider refused the request on its merits.
	KindRejected ErrorKind = "rejected"

	// KindTimeout indicates the call ran out of time. Ledger state is left unchanged.
	KindTimeout ErrorKind = "timeout"
)

// Operation names used in errors, metrics and spans.
const (
	OpCreateDID        = "create_did"
	OpResolveDID       = "resolve_did"
	OpIssueCredential  = "issue_credential"
	OpIssuanceStatus   = "issuance_status"
	OpVerifyCredential = "verify_credential"
	OpVerifyDocument   = "verify_document"
	OpCreateSchema     = "create_schema"
	OpOperationStatus  = "operation_status"
)

// GatewayError wraps provider failures with a normalized kind.
type GatewayError struct {
	Kind     ErrorKind
	Provider string
	Op       string
	Message  string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s %s [%s]: %s: %v", e.Provider, e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway %s %s [%s]: %s", e.Provider, e.Op, e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt may succeed.
func (e *GatewayError) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindTimeout
}

// DomainCode implements dErrors.Coder.
func (e *GatewayError) DomainCode() dErrors.Code {
	switch e.Kind {
	case KindTimeout:
		return dErrors.CodeTimeout
	case KindRejected:
		return dErrors.CodeInvalidInput
	default:
		return dErrors.CodeUnavailable
	}
}

// NewError creates a gateway error.
func NewError(kind ErrorKind, provider, op, message string, err error) *GatewayError {
	return &GatewayError{
		Kind:     kind,
		Provider: provider,
		Op:       op,
		Message:  message,
		Err:      err,
	}
}

// AsGatewayError extracts a GatewayError from the chain.
func AsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}

// IsKind reports whether err is a GatewayError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	gwErr, ok := AsGatewayError(err)
	return ok && gwErr.Kind == kind
}

// Classify normalizes an arbitrary error returned by a provider call.
// Context expiry becomes KindTimeout; untyped errors become KindUnavailable.
func Classify(provider, op string, err error) *GatewayError {
	if err == nil {
		return nil
	}
	if gwErr, ok := AsGatewayError(err); ok {
		return gwErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(KindTimeout, provider, op, "request timeout", err)
	}
	return NewError(KindUnavailable, provider, op, "provider call failed", err)
}
