// Package tracer provides a lightweight tracing abstraction for the ledger and
// its gateways.
//
// The interface keeps OpenTelemetry out of domain packages:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording err when non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span. The returned context carries the span and
	// should be passed to child operations.
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Float64 creates a float64 attribute.
func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashIdentifier returns a short SHA-256 prefix of a personal identifier
// (phone, national ID) so traces can be correlated without carrying PII.
func HashIdentifier(value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanRequestCredential = "ledger.request_credential"
	SpanResolveIssuance   = "ledger.resolve_issuance"
	SpanVerifyCredential  = "ledger.verify_credential"
	SpanRecheckCredential = "ledger.recheck_credential"
	SpanRecomputeScore    = "ledger.recompute_trust_score"
	SpanCreateDID         = "ledger.create_worker_did"
	SpanVerifyDocument    = "ledger.verify_document"
	SpanGatewayCall       = "gateway.call"
)

// Attribute keys.
const (
	AttrWorkerID       = "worker_id"
	AttrCredentialID   = "credential_id"
	AttrCredentialType = "credential_type"
	AttrGateway        = "gateway"
	AttrOperation      = "operation"
	AttrPhoneHash      = "phone_hash"
	AttrScore          = "score"
	AttrScoreVersion   = "score_version"
	AttrCacheHit       = "cache.hit"
	AttrLockWaitMs     = "lock_wait_ms"
)

// Event names.
const (
	EventTransition = "lifecycle.transition"
)
