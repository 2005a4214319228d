package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"upandup/internal/ledger/models"
	"upandup/internal/ledger/store"
	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/audit"
)

// CreatePartner registers a partner organization in the pending state.
func (s *Service) CreatePartner(ctx context.Context, req *models.CreatePartnerRequest) (_ *models.Partner, err error) {
	defer s.observe("create_partner", time.Now(), &err)
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	at := now(ctx)
	partner, err := models.NewPartner(id.PartnerID(uuid.New()), req.Name, req.Email, at)
	if err != nil {
		return nil, err
	}
	partner.Phone = req.Phone
	partner.Address = req.Address
	partner.RegistrationNumber = req.RegistrationNumber
	partner.CordNodeID = req.CordNodeID

	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.CreatePartner(ctx, partner); err != nil {
			return storeError(err, "partner")
		}
		return emit(ctx, tx, audit.NewPartnerEvent(audit.EventPartnerCreated, partner.ID.String(), at,
			map[string]string{"status": string(partner.Status)}))
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "partner created",
		"partner_id", partner.ID.String(),
	)
	return partner, nil
}

// GetPartner returns a partner by ID.
func (s *Service) GetPartner(ctx context.Context, partnerID id.PartnerID) (*models.Partner, error) {
	partner, err := s.store.FindPartner(ctx, partnerID)
	if err != nil {
		return nil, storeError(err, "partner")
	}
	return partner, nil
}

// UpdatePartnerStatus moves a partner between pending, active and suspended.
// Setting the current status again changes nothing and emits no event.
func (s *Service) UpdatePartnerStatus(ctx context.Context, partnerID id.PartnerID, status models.PartnershipStatus) (_ *models.Partner, err error) {
	defer s.observe("update_partner_status", time.Now(), &err)
	at := now(ctx)
	var partner *models.Partner
	var previous models.PartnershipStatus
	var changed bool
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		partner, err = tx.FindPartner(ctx, partnerID)
		if err != nil {
			return storeError(err, "partner")
		}
		previous = partner.Status
		changed, err = partner.TransitionTo(status, at)
		if err != nil || !changed {
			return err
		}
		if err := tx.UpdatePartner(ctx, partner); err != nil {
			return storeError(err, "partner")
		}
		return emit(ctx, tx, audit.NewPartnerEvent(audit.EventPartnerStatusChanged, partnerID.String(), at,
			map[string]string{"from": string(previous), "to": string(status)}))
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.InfoContext(ctx, "partner status changed",
			"partner_id", partnerID.String(),
			"from", string(previous),
			"to", string(status),
		)
	}
	return partner, nil
}

// CompleteOnboarding marks the partner's onboarding as finished. Idempotent.
func (s *Service) CompleteOnboarding(ctx context.Context, partnerID id.PartnerID) (_ *models.Partner, err error) {
	defer s.observe("complete_onboarding", time.Now(), &err)
	at := now(ctx)
	var partner *models.Partner
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		partner, err = tx.FindPartner(ctx, partnerID)
		if err != nil {
			return storeError(err, "partner")
		}
		changed, err := partner.CompleteOnboarding(at)
		if err != nil || !changed {
			return err
		}
		if err := tx.UpdatePartner(ctx, partner); err != nil {
			return storeError(err, "partner")
		}
		return emit(ctx, tx, audit.NewPartnerEvent(audit.EventPartnerOnboarded, partnerID.String(), at, nil))
	})
	if err != nil {
		return nil, err
	}
	return partner, nil
}
