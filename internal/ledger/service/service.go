// Package service implements the credential and trust ledger.
//
// Every operation that mutates a worker, its credentials or its trust score
// holds that worker's lock for its whole duration, so at most one such
// operation is in flight per worker. Gateway calls happen while the lock is
// held but outside any store transaction; local writes and the events that
// describe them commit together through store.TxRunner.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"upandup/internal/gateway"
	"upandup/internal/ledger/metrics"
	"upandup/internal/ledger/models"
	"upandup/internal/ledger/store"
	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/audit"
	"upandup/pkg/platform/middleware/admin"
	"upandup/pkg/platform/middleware/auth"
	clientmeta "upandup/pkg/platform/middleware/metadata"
	"upandup/pkg/platform/middleware/request"
	"upandup/pkg/platform/middleware/requesttime"
	"upandup/pkg/platform/sentinel"
	platformsync "upandup/pkg/platform/sync"
	"upandup/pkg/platform/tracer"
)

// DIDGateway creates and resolves worker DIDs.
type DIDGateway interface {
	CreateDID(ctx context.Context, details models.WorkerDetails) (*gateway.DIDResult, error)
	ResolveDID(ctx context.Context, did string) (*gateway.DIDDocument, error)
}

// CredentialGateway issues and verifies verifiable credentials.
type CredentialGateway interface {
	IssueCredential(ctx context.Context, req gateway.IssueRequest) (*gateway.IssueResult, error)
	IssuanceStatus(ctx context.Context, credentialID string) (*gateway.IssueResult, error)
	VerifyCredential(ctx context.Context, vcURL string) (bool, error)
}

// DocumentVerifier checks a registry-backed document before issuance.
type DocumentVerifier interface {
	VerifyDocument(ctx context.Context, check gateway.DocumentCheck) (*gateway.DocumentCheckResult, error)
}

type Option func(*Service)

const (
	defaultLockWait       = 10 * time.Second
	defaultGatewayTimeout = 15 * time.Second
	defaultReverifyMaxAge = 24 * time.Hour
)

// Service owns the partner, worker, credential and trust score lifecycles.
type Service struct {
	store          store.Store
	tx             store.TxRunner
	dids           DIDGateway
	credentials    CredentialGateway
	documents      DocumentVerifier
	locks          *platformsync.KeyedMutex
	metrics        *metrics.Metrics
	tracer         tracer.Tracer
	logger         *slog.Logger
	lockWait       time.Duration
	gatewayTimeout time.Duration
	reverifyMaxAge time.Duration
}

// New constructs the ledger service. All dependencies are required.
func New(st store.Store, tx store.TxRunner, dids DIDGateway, credentials CredentialGateway, opts ...Option) *Service {
	if st == nil {
		panic("store is required")
	}
	if tx == nil {
		panic("tx runner is required")
	}
	if dids == nil || credentials == nil {
		panic("gateways are required")
	}
	svc := &Service{
		store:          st,
		tx:             tx,
		dids:           dids,
		credentials:    credentials,
		locks:          platformsync.NewKeyedMutex(),
		tracer:         tracer.NewNoop(),
		logger:         slog.Default(),
		lockWait:       defaultLockWait,
		gatewayTimeout: defaultGatewayTimeout,
		reverifyMaxAge: defaultReverifyMaxAge,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer used for ledger spans.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithDocumentVerifier checks government identity and marksheet documents
// against their registry before a credential is issued for them.
func WithDocumentVerifier(v DocumentVerifier) Option {
	return func(s *Service) {
		if v != nil {
			s.documents = v
		}
	}
}

// WithLockWait bounds how long an operation waits for a busy worker.
func WithLockWait(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

// WithGatewayTimeout bounds each gateway call.
func WithGatewayTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

// WithReverifyMaxAge sets how long a verified credential stays fresh before
// the re-verification sweep picks it up again.
func WithReverifyMaxAge(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.reverifyMaxAge = d
		}
	}
}

// lockWorker acquires the worker's lock, waiting at most lockWait.
func (s *Service) lockWorker(ctx context.Context, workerID id.WorkerID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	start := time.Now()
	unlock, err := s.locks.Lock(lockCtx, workerID.String())
	s.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		s.metrics.IncrementLockTimeout()
		s.logger.WarnContext(ctx, "worker busy",
			"worker_id", workerID.String(),
			"wait", time.Since(start).String(),
		)
		return nil, &models.ConcurrencyError{Kind: models.ConcurrencyBusy, WorkerID: workerID, Err: err}
	}
	return unlock, nil
}

// gatewayContext applies the per-call gateway timeout.
func (s *Service) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.gatewayTimeout)
}

// observe records latency and failures for an operation. Use with defer.
func (s *Service) observe(operation string, start time.Time, errp *error) {
	s.metrics.ObserveOperation(operation, start)
	if errp == nil || *errp == nil {
		return
	}
	code := dErrors.CodeInternal
	var coded dErrors.Coder
	if errors.As(*errp, &coded) {
		code = coded.DomainCode()
	}
	s.metrics.IncrementOperationError(operation, string(code))
}

// emit stamps the event with request metadata and appends it inside tx.
func emit(ctx context.Context, tx store.Store, event audit.Event) error {
	event.RequestID = request.GetRequestID(ctx)
	event.ClientIP = clientmeta.GetClientIP(ctx)
	event.Actor = actorFromContext(ctx)
	if err := tx.AppendEvent(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ledger event")
	}
	return nil
}

func actorFromContext(ctx context.Context) string {
	if actor := admin.GetAdminActorID(ctx); actor != "" {
		return "admin:" + actor
	}
	if partnerID := auth.GetPartnerID(ctx); !partnerID.IsNil() {
		return "partner:" + partnerID.String()
	}
	return "system"
}

func now(ctx context.Context) time.Time {
	return requesttime.Now(ctx)
}

// storeError translates store sentinels into domain errors. Errors that
// already carry a domain code pass through unchanged.
func storeError(err error, resource string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, resource+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, resource+" conflicts with an existing record")
	}
	var coded dErrors.Coder
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+resource)
}

func workerAttrs(workerID id.WorkerID, extra ...string) map[string]string {
	attrs := map[string]string{"worker_id": workerID.String()}
	for i := 0; i+1 < len(extra); i += 2 {
		attrs[extra[i]] = extra[i+1]
	}
	return attrs
}
