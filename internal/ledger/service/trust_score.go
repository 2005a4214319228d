package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"upandup/internal/ledger/models"
	"upandup/internal/ledger/score"
	"upandup/internal/ledger/store"
	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/audit"
	"upandup/pkg/platform/sentinel"
	"upandup/pkg/platform/tracer"
)

// RecomputeTrustScore derives the worker's trust score from its current
// credentials, upserts the score row with an incremented version and applies
// the score-driven onboarding transitions.
func (s *Service) RecomputeTrustScore(ctx context.Context, workerID id.WorkerID) (_ *models.TrustScore, err error) {
	defer s.observe("recompute_trust_score", time.Now(), &err)
	ctx, span := s.tracer.Start(ctx, tracer.SpanRecomputeScore,
		tracer.String(tracer.AttrWorkerID, workerID.String()),
	)
	defer func() { span.End(err) }()

	unlock, err := s.lockWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.store.FindWorker(ctx, workerID); err != nil {
		return nil, storeError(err, "worker")
	}
	anchorConfirmed := s.anchorConfirmed(ctx, workerID)

	var result *models.TrustScore
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		result, err = s.applyScore(ctx, tx, workerID, anchorConfirmed, now(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		tracer.Int64(tracer.AttrScore, int64(result.Score)),
		tracer.Int64(tracer.AttrScoreVersion, int64(result.Version)),
	)
	return result, nil
}

// GetTrustScore returns the worker's current trust score.
func (s *Service) GetTrustScore(ctx context.Context, workerID id.WorkerID) (*models.TrustScore, error) {
	if _, err := s.store.FindWorker(ctx, workerID); err != nil {
		return nil, storeError(err, "worker")
	}
	result, err := s.store.FindTrustScore(ctx, workerID)
	if err != nil {
		return nil, storeError(err, "trust score")
	}
	return result, nil
}

// anchorConfirmed reports whether the worker's DID anchor is confirmed. A
// stored pending anchor is resolved through the DID gateway; resolution
// failures count as unconfirmed.
func (s *Service) anchorConfirmed(ctx context.Context, workerID id.WorkerID) bool {
	worker, err := s.store.FindWorker(ctx, workerID)
	if err != nil || !worker.HasDID() {
		return false
	}
	if worker.DIDAnchor == models.AnchorConfirmed {
		return true
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	defer cancel()
	doc, err := s.dids.ResolveDID(gwCtx, worker.DID)
	if err != nil {
		s.logger.WarnContext(ctx, "DID resolution failed",
			"worker_id", workerID.String(),
			"error", err,
		)
		return false
	}
	return doc.AnchorStatus == models.AnchorConfirmed
}

// applyScore recomputes and stores the score inside tx. The caller holds the
// worker lock.
func (s *Service) applyScore(ctx context.Context, tx store.Store, workerID id.WorkerID, anchorConfirmed bool, at time.Time) (*models.TrustScore, error) {
	worker, err := tx.FindWorker(ctx, workerID)
	if err != nil {
		return nil, storeError(err, "worker")
	}
	credentials, err := tx.ListCredentialsByWorker(ctx, workerID)
	if err != nil {
		return nil, storeError(err, "credentials")
	}

	workerChanged := false
	if anchorConfirmed && worker.ConfirmAnchor(at) {
		workerChanged = true
	}

	computed := score.Compute(score.FromModels(worker, credentials, anchorConfirmed), at)

	previous, err := tx.FindTrustScore(ctx, workerID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, storeError(err, "trust score")
	}
	next := &models.TrustScore{
		ID:             id.TrustScoreID(uuid.New()),
		WorkerID:       workerID,
		Score:          computed.Score,
		Factors:        computed.Factors,
		Breakdown:      computed.Breakdown,
		SnapshotDigest: computed.Digest,
		Version:        1,
		LastCalculated: at,
	}
	if previous != nil {
		next.ID = previous.ID
		next.Version = previous.Version + 1
	}
	if next.Score < 0 || next.Score > 100 || next.Breakdown.VerifiedCredentials > next.Breakdown.TotalCredentials {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "trust score out of bounds")
	}
	if err := tx.SaveTrustScore(ctx, next); err != nil {
		return nil, storeError(err, "trust score")
	}

	from := worker.Status
	entered := worker.Advance(next.Breakdown.VerifiedCredentials, next.Breakdown.EmployerVerified, at)
	if len(entered) > 0 {
		workerChanged = true
	}
	if workerChanged {
		if err := tx.UpdateWorker(ctx, worker); err != nil {
			return nil, storeError(err, "worker")
		}
	}
	for _, status := range entered {
		if err := emit(ctx, tx, audit.NewWorkerEvent(audit.EventWorkerStatusAdvanced, workerID.String(), at,
			map[string]string{"from": string(from), "to": string(status)})); err != nil {
			return nil, err
		}
		from = status
	}

	changed := previous == nil || !previous.SameResult(next)
	if err := emit(ctx, tx, audit.NewWorkerEvent(audit.EventTrustScoreRecomputed, workerID.String(), at,
		map[string]string{
			"score":   strconv.Itoa(next.Score),
			"version": strconv.Itoa(next.Version),
			"changed": strconv.FormatBool(changed),
		})); err != nil {
		return nil, err
	}

	s.metrics.ObserveTrustScore(next.Score, changed)
	for _, status := range entered {
		s.metrics.IncrementWorkerTransition(string(status))
	}
	s.logger.InfoContext(ctx, "trust score recomputed",
		"worker_id", workerID.String(),
		"score", next.Score,
		"version", next.Version,
		"status", string(worker.Status),
	)
	return next, nil
}
