package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"upandup/internal/gateway"
	"upandup/internal/ledger/models"
	"upandup/internal/ledger/store"
	"upandup/internal/platform/privacy"
	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/audit"
	"upandup/pkg/platform/tracer"
	"upandup/pkg/secrets"
)

// InviteWorker creates an invited worker owned by partnerID. Phone numbers
// are unique per partner; suspended partners cannot invite.
func (s *Service) InviteWorker(ctx context.Context, partnerID id.PartnerID, req *models.InviteWorkerRequest) (_ *models.Worker, err error) {
	defer s.observe("invite_worker", time.Now(), &err)
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	at := now(ctx)
	worker, err := models.NewInvitedWorker(id.WorkerID(uuid.New()), partnerID, req.Name, req.Phone, at)
	if err != nil {
		return nil, err
	}
	worker.Email = req.Email

	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		partner, err := tx.FindPartner(ctx, partnerID)
		if err != nil {
			return storeError(err, "partner")
		}
		if !partner.CanOnboardWorkers() {
			return dErrors.New(dErrors.CodeForbidden, "suspended partner cannot invite workers")
		}
		if err := tx.CreateWorker(ctx, worker); err != nil {
			if storeErr := storeError(err, "worker"); dErrors.HasCode(storeErr, dErrors.CodeConflict) {
				return dErrors.New(dErrors.CodeConflict, "worker with this phone already exists for partner")
			}
			return storeError(err, "worker")
		}
		return emit(ctx, tx, audit.NewWorkerEvent(audit.EventWorkerInvited, worker.ID.String(), at,
			map[string]string{"partner_id": partnerID.String()}))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementWorkerTransition(string(models.OnboardingInvited))
	s.logger.InfoContext(ctx, "worker invited",
		"worker_id", worker.ID.String(),
		"partner_id", partnerID.String(),
		"phone", privacy.MaskPhone(worker.Phone),
	)
	return worker, nil
}

// GetWorker returns a worker by ID.
func (s *Service) GetWorker(ctx context.Context, workerID id.WorkerID) (*models.Worker, error) {
	worker, err := s.store.FindWorker(ctx, workerID)
	if err != nil {
		return nil, storeError(err, "worker")
	}
	return worker, nil
}

// RegisterWorker completes mobile registration: invited -> registered. The
// national ID, when given, is stored only as a bcrypt hash.
func (s *Service) RegisterWorker(ctx context.Context, workerID id.WorkerID, req *models.RegisterWorkerRequest) (_ *models.Worker, err error) {
	defer s.observe("register_worker", time.Now(), &err)
	var nationalIDHash string
	if req != nil && req.NationalID != "" {
		nationalIDHash, err = secrets.Hash(req.NationalID)
		if err != nil {
			return nil, err
		}
	}

	unlock, err := s.lockWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	at := now(ctx)
	var worker *models.Worker
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		worker, err = tx.FindWorker(ctx, workerID)
		if err != nil {
			return storeError(err, "worker")
		}
		if err := worker.Register(nationalIDHash, at); err != nil {
			return err
		}
		if err := tx.UpdateWorker(ctx, worker); err != nil {
			return storeError(err, "worker")
		}
		return emit(ctx, tx, audit.NewWorkerEvent(audit.EventWorkerRegistered, workerID.String(), at, nil))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementWorkerTransition(string(models.OnboardingRegistered))
	s.logger.InfoContext(ctx, "worker registered", "worker_id", workerID.String())
	return worker, nil
}

// ReassignWorker moves a worker to another partner. The onboarding status is
// left unchanged.
func (s *Service) ReassignWorker(ctx context.Context, workerID id.WorkerID, partnerID id.PartnerID) (_ *models.Worker, err error) {
	defer s.observe("reassign_worker", time.Now(), &err)
	unlock, err := s.lockWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	at := now(ctx)
	var worker *models.Worker
	var previous id.PartnerID
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		worker, err = tx.FindWorker(ctx, workerID)
		if err != nil {
			return storeError(err, "worker")
		}
		target, err := tx.FindPartner(ctx, partnerID)
		if err != nil {
			return storeError(err, "partner")
		}
		if !target.CanOnboardWorkers() {
			return dErrors.New(dErrors.CodeForbidden, "cannot reassign worker to a suspended partner")
		}
		previous = worker.PartnerID
		changed, err := worker.ReassignTo(partnerID, at)
		if err != nil || !changed {
			return err
		}
		if err := tx.UpdateWorker(ctx, worker); err != nil {
			if storeErr := storeError(err, "worker"); dErrors.HasCode(storeErr, dErrors.CodeConflict) {
				return dErrors.New(dErrors.CodeConflict, "target partner already has a worker with this phone")
			}
			return storeError(err, "worker")
		}
		return emit(ctx, tx, audit.NewWorkerEvent(audit.EventWorkerReassigned, workerID.String(), at,
			map[string]string{"from": previous.String(), "to": partnerID.String()}))
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "worker reassigned",
		"worker_id", workerID.String(),
		"from_partner_id", previous.String(),
		"to_partner_id", partnerID.String(),
	)
	return worker, nil
}

// CreateWorkerDID mints a DID for the worker through the DID gateway. The DID
// is set at most once; a failed anchor or gateway error leaves the worker
// unchanged.
func (s *Service) CreateWorkerDID(ctx context.Context, workerID id.WorkerID, details models.WorkerDetails) (_ *models.Worker, err error) {
	defer s.observe("create_worker_did", time.Now(), &err)
	ctx, span := s.tracer.Start(ctx, tracer.SpanCreateDID,
		tracer.String(tracer.AttrWorkerID, workerID.String()),
	)
	defer func() { span.End(err) }()

	unlock, err := s.lockWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	worker, err := s.store.FindWorker(ctx, workerID)
	if err != nil {
		return nil, storeError(err, "worker")
	}
	if worker.HasDID() {
		return nil, &models.DIDError{Kind: models.DIDAlreadySet, WorkerID: workerID, Message: "DID already set"}
	}
	details = fillDetails(details, worker)
	span.SetAttributes(tracer.String(tracer.AttrPhoneHash, tracer.HashIdentifier(details.Phone)))

	gwCtx, cancel := s.gatewayContext(ctx)
	result, err := s.dids.CreateDID(gwCtx, details)
	cancel()
	if err != nil {
		s.logger.WarnContext(ctx, "DID creation failed",
			"worker_id", workerID.String(),
			"error", err,
		)
		return nil, didGatewayError(workerID, err)
	}
	if result == nil || result.DID == "" || !result.AnchorStatus.Accepted() {
		return nil, &models.DIDError{Kind: models.DIDGatewayUnavailable, WorkerID: workerID, Message: "DID anchoring failed"}
	}

	at := now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		worker, err = tx.FindWorker(ctx, workerID)
		if err != nil {
			return storeError(err, "worker")
		}
		previous := worker.Status
		if err := worker.SetDID(result.DID, result.AnchorStatus, result.TransactionRef, at); err != nil {
			return err
		}
		if err := tx.UpdateWorker(ctx, worker); err != nil {
			if storeErr := storeError(err, "worker"); dErrors.HasCode(storeErr, dErrors.CodeConflict) {
				return dErrors.New(dErrors.CodeConflict, "DID is already assigned to another worker")
			}
			return storeError(err, "worker")
		}
		if err := emit(ctx, tx, audit.NewWorkerEvent(audit.EventWorkerDIDSet, workerID.String(), at,
			map[string]string{"did": result.DID, "anchor_status": string(result.AnchorStatus)})); err != nil {
			return err
		}
		if worker.Status != previous {
			return emit(ctx, tx, audit.NewWorkerEvent(audit.EventWorkerStatusAdvanced, workerID.String(), at,
				map[string]string{"from": string(previous), "to": string(worker.Status)}))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "worker DID set",
		"worker_id", workerID.String(),
		"anchor_status", string(result.AnchorStatus),
	)
	return worker, nil
}

// fillDetails completes missing DID details from the stored worker.
func fillDetails(details models.WorkerDetails, worker *models.Worker) models.WorkerDetails {
	if details.Name == "" {
		details.Name = worker.Name
	}
	if details.Phone == "" {
		details.Phone = worker.Phone
	}
	if details.Email == "" {
		details.Email = worker.Email
	}
	return details
}

func didGatewayError(workerID id.WorkerID, err error) error {
	msg := "DID gateway unavailable"
	if gwErr, ok := gateway.AsGatewayError(err); ok && gwErr.Kind == gateway.KindRejected {
		msg = "DID gateway rejected the request: " + gwErr.Message
	}
	return &models.DIDError{Kind: models.DIDGatewayUnavailable, WorkerID: workerID, Message: msg, Err: err}
}
