// Package reverify periodically re-checks verified credentials against the
// credential gateway and expires the ones that no longer hold. The same sweep
// polls the issuer for credentials whose issuance is still pending.
package reverify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"upandup/internal/ledger/metrics"
	"upandup/internal/ledger/models"
	id "upandup/pkg/domain"
	"upandup/pkg/platform/middleware/requesttime"
)

// Ledger exposes the operations the sweep drives.
type Ledger interface {
	ListDueCredentials(ctx context.Context, limit int) ([]*models.Credential, error)
	RecheckCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	ListAwaitingIssuance(ctx context.Context, limit int) ([]*models.Credential, error)
	ResolveIssuance(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
}

// Outcome labels for one credential recheck or issuance poll.
const (
	OutcomeChecked     = "checked"
	OutcomeExpired     = "expired"
	OutcomeIssued      = "issued"
	OutcomeRejected    = "rejected"
	OutcomePending     = "pending"
	OutcomeUnavailable = "unavailable"
	OutcomeBusy        = "busy"
	OutcomeSkipped     = "skipped"
	OutcomeFailed      = "failed"
)

// Result summarizes a single sweep.
type Result struct {
	Due         int
	Awaiting    int
	Checked     int
	Expired     int
	Issued      int
	Rejected    int
	Pending     int
	Unavailable int
	Busy        int
	Skipped     int
	Failed      int
}

func (r *Result) record(outcome string) {
	switch outcome {
	case OutcomeChecked:
		r.Checked++
	case OutcomeExpired:
		r.Expired++
	case OutcomeIssued:
		r.Issued++
	case OutcomeRejected:
		r.Rejected++
	case OutcomePending:
		r.Pending++
	case OutcomeUnavailable:
		r.Unavailable++
	case OutcomeBusy:
		r.Busy++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// Sweeper rechecks due credentials and resolves pending issuances in
// batches. Credentials of one worker are handled sequentially; different
// workers run in parallel.
type Sweeper struct {
	ledger      Ledger
	interval    time.Duration
	batchSize   int
	concurrency int
	clock       func() time.Time
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures Sweeper.
type Option func(*Sweeper)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithBatchSize caps how many due credentials one sweep picks up.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency caps how many workers are rechecked at once.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Sweeper.
func New(ledger Ledger, opts ...Option) (*Sweeper, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	s := &Sweeper{
		ledger:      ledger,
		interval:    time.Hour,
		batchSize:   200,
		concurrency: 8,
		clock:       time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start runs a sweep immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(ctx, "credential re-verification sweep failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce rechecks one batch of due credentials and polls one batch of
// pending issuances. Individual failures are counted, not returned; only a
// failure to list credentials or a cancelled context is an error.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	ctx = requesttime.WithTime(ctx, s.clock())
	due, err := s.ledger.ListDueCredentials(ctx, s.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("list due credentials: %w", err)
	}
	awaiting, err := s.ledger.ListAwaitingIssuance(ctx, s.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("list pending issuances: %w", err)
	}

	res := Result{Due: len(due), Awaiting: len(awaiting)}
	if len(due) == 0 && len(awaiting) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for workerID, jobs := range groupByWorker(due, awaiting) {
		g.Go(func() error {
			for _, j := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				var outcome string
				if j.resolve {
					outcome = s.resolve(gctx, workerID, j.credentialID)
				} else {
					outcome = s.recheck(gctx, workerID, j.credentialID)
				}
				s.metrics.IncrementSweepOutcome(outcome)
				mu.Lock()
				res.record(outcome)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	s.logger.InfoContext(ctx, "credential re-verification sweep complete",
		"due", res.Due,
		"awaiting", res.Awaiting,
		"checked", res.Checked,
		"expired", res.Expired,
		"issued", res.Issued,
		"rejected", res.Rejected,
		"pending", res.Pending,
		"unavailable", res.Unavailable,
		"busy", res.Busy,
		"failed", res.Failed,
		"duration", time.Since(start).String(),
	)
	return res, nil
}

func (s *Sweeper) recheck(ctx context.Context, workerID id.WorkerID, credentialID id.CredentialID) string {
	credential, err := s.ledger.RecheckCredential(ctx, credentialID)
	switch {
	case err == nil && credential.Status == models.VerificationExpired:
		return OutcomeExpired
	case err == nil:
		return OutcomeChecked
	case models.IsCredentialError(err, models.CredentialAlreadyTerminal):
		return OutcomeSkipped
	case models.IsCredentialError(err, models.CredentialGatewayUnavailable):
		s.logger.WarnContext(ctx, "credential recheck deferred, gateway unavailable",
			"worker_id", workerID.String(),
			"credential_id", credentialID.String(),
		)
		return OutcomeUnavailable
	case models.IsBusy(err):
		return OutcomeBusy
	default:
		s.logger.ErrorContext(ctx, "credential recheck failed",
			"worker_id", workerID.String(),
			"credential_id", credentialID.String(),
			"error", err,
		)
		return OutcomeFailed
	}
}

func (s *Sweeper) resolve(ctx context.Context, workerID id.WorkerID, credentialID id.CredentialID) string {
	credential, err := s.ledger.ResolveIssuance(ctx, credentialID)
	switch {
	case err == nil && credential.Status == models.VerificationRejected:
		return OutcomeRejected
	case err == nil && credential.VCURL != "":
		return OutcomeIssued
	case err == nil:
		return OutcomePending
	case models.IsCredentialError(err, models.CredentialAlreadyTerminal):
		return OutcomeSkipped
	case models.IsCredentialError(err, models.CredentialGatewayUnavailable):
		s.logger.WarnContext(ctx, "issuance poll deferred, gateway unavailable",
			"worker_id", workerID.String(),
			"credential_id", credentialID.String(),
		)
		return OutcomeUnavailable
	case models.IsBusy(err):
		return OutcomeBusy
	default:
		s.logger.ErrorContext(ctx, "issuance poll failed",
			"worker_id", workerID.String(),
			"credential_id", credentialID.String(),
			"error", err,
		)
		return OutcomeFailed
	}
}

type job struct {
	credentialID id.CredentialID
	resolve      bool
}

func groupByWorker(due, awaiting []*models.Credential) map[id.WorkerID][]job {
	grouped := make(map[id.WorkerID][]job)
	for _, c := range due {
		grouped[c.WorkerID] = append(grouped[c.WorkerID], job{credentialID: c.ID})
	}
	for _, c := range awaiting {
		grouped[c.WorkerID] = append(grouped[c.WorkerID], job{credentialID: c.ID, resolve: true})
	}
	return grouped
}
