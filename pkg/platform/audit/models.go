// Package audit defines the lifecycle events the ledger records for every
// partner, worker, credential and trust-score transition.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle transition.
type EventType string

const (
	EventPartnerCreated       EventType = "partner_created"
	EventPartnerStatusChanged EventType = "partner_status_changed"
	EventPartnerOnboarded     EventType = "partner_onboarding_completed"
	EventWorkerInvited        EventType = "worker_invited"
	EventWorkerRegistered     EventType = "worker_registered"
	EventWorkerDIDSet         EventType = "worker_did_set"
	EventWorkerStatusAdvanced EventType = "worker_status_advanced"
	EventWorkerReassigned     EventType = "worker_reassigned"
	EventCredentialRequested  EventType = "credential_requested"
	EventCredentialIssued     EventType = "credential_issued"
	EventCredentialVerified   EventType = "credential_verified"
	EventCredentialRejected   EventType = "credential_rejected"
	EventCredentialExpired    EventType = "credential_expired"
	EventTrustScoreRecomputed EventType = "trust_score_recomputed"
)

// Aggregate types used as outbox partition keys.
const (
	AggregatePartner = "partner"
	AggregateWorker  = "worker"
)

// Event is emitted from domain logic to capture a transition. It is
// transport-agnostic; the outbox serializes it as JSON.
type Event struct {
	ID            uuid.UUID         `json:"id"`
	Type          EventType         `json:"type"`
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	Actor         string            `json:"actor,omitempty"`
	RequestID     string            `json:"request_id,omitempty"`
	ClientIP      string            `json:"client_ip,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// NewWorkerEvent builds an event keyed by worker ID.
func NewWorkerEvent(eventType EventType, workerID string, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateType: AggregateWorker,
		AggregateID:   workerID,
		Attributes:    attrs,
		OccurredAt:    at,
	}
}

// NewPartnerEvent builds an event keyed by partner ID.
func NewPartnerEvent(eventType EventType, partnerID string, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateType: AggregatePartner,
		AggregateID:   partnerID,
		Attributes:    attrs,
		OccurredAt:    at,
	}
}
