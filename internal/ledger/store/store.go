// Package store persists partners, workers, credentials, trust scores and
// their lifecycle events.
//
// Error contract: every implementation returns sentinel.ErrNotFound when the
// requested row does not exist and sentinel.ErrConflict when a uniqueness
// rule is violated ((partner_id, phone) for workers, did for workers). Other
// failures are wrapped with context.
package store

import (
	"context"
	"time"

	"upandup/internal/ledger/models"
	id "upandup/pkg/domain"
	"upandup/pkg/platform/audit"
)

// Store is the ledger's record store.
type Store interface {
	CreatePartner(ctx context.Context, partner *models.Partner) error
	FindPartner(ctx context.Context, partnerID id.PartnerID) (*models.Partner, error)
	UpdatePartner(ctx context.Context, partner *models.Partner) error

	CreateWorker(ctx context.Context, worker *models.Worker) error
	FindWorker(ctx context.Context, workerID id.WorkerID) (*models.Worker, error)
	UpdateWorker(ctx context.Context, worker *models.Worker) error

	CreateCredential(ctx context.Context, credential *models.Credential) error
	FindCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	UpdateCredential(ctx context.Context, credential *models.Credential) error
	ListCredentialsByWorker(ctx context.Context, workerID id.WorkerID) ([]*models.Credential, error)

	// ListDueCredentials returns verified credentials that have expired at
	// now or were last checked before checkedBefore, oldest check first.
	ListDueCredentials(ctx context.Context, now, checkedBefore time.Time, limit int) ([]*models.Credential, error)
	// ListAwaitingIssuance returns pending credentials with an external id
	// and no vc_url, oldest first.
	ListAwaitingIssuance(ctx context.Context, limit int) ([]*models.Credential, error)

	FindTrustScore(ctx context.Context, workerID id.WorkerID) (*models.TrustScore, error)
	// SaveTrustScore inserts or replaces the single score row for the worker.
	SaveTrustScore(ctx context.Context, score *models.TrustScore) error

	// AppendEvent records a lifecycle event for asynchronous publication.
	AppendEvent(ctx context.Context, event audit.Event) error
}

// TxRunner runs fn atomically: either every write made through the store
// passed to fn is committed, or none is.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
