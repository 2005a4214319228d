package handler

import (
	"time"

	"upandup/internal/ledger/models"
)

type PartnerResponse struct {
	ID                  string                   `json:"id"`
	Name                string                   `json:"name"`
	Email               string                   `json:"email"`
	Phone               string                   `json:"phone,omitempty"`
	Address             string                   `json:"address,omitempty"`
	RegistrationNumber  string                   `json:"registration_number,omitempty"`
	CordNodeID          string                   `json:"cord_node_id,omitempty"`
	Status              models.PartnershipStatus `json:"status"`
	OnboardingCompleted bool                     `json:"onboarding_completed"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
}

// WorkerResponse never carries the national ID hash.
type WorkerResponse struct {
	ID                  string                  `json:"id"`
	PartnerID           string                  `json:"partner_id,omitempty"`
	Name                string                  `json:"name"`
	Phone               string                  `json:"phone"`
	Email               string                  `json:"email,omitempty"`
	DID                 string                  `json:"did,omitempty"`
	DIDAnchorStatus     models.AnchorStatus     `json:"did_anchor_status,omitempty"`
	DIDTransactionRef   string                  `json:"did_transaction_ref,omitempty"`
	Status              models.OnboardingStatus `json:"onboarding_status"`
	MobileAppRegistered bool                    `json:"mobile_app_registered"`
	NationalIDOnFile    bool                    `json:"national_id_on_file"`
	RegisteredAt        *time.Time              `json:"registered_at,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

type CredentialResponse struct {
	ID            string                    `json:"id"`
	WorkerID      string                    `json:"worker_id"`
	Type          models.CredentialType     `json:"credential_type"`
	Category      models.Category           `json:"category"`
	Issuer        models.Issuer             `json:"issuer"`
	Status        models.VerificationStatus `json:"verification_status"`
	VCURL         string                    `json:"vc_url,omitempty"`
	ExternalID    string                    `json:"external_id,omitempty"`
	AnchorStatus  models.AnchorStatus       `json:"anchor_status,omitempty"`
	DocumentHash  string                    `json:"document_hash"`
	DocumentURL   string                    `json:"document_url,omitempty"`
	IssuedAt      time.Time                 `json:"issued_at"`
	ExpiresAt     *time.Time                `json:"expires_at,omitempty"`
	FailureReason string                    `json:"failure_reason,omitempty"`
	LastCheckedAt *time.Time                `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

type CredentialListResponse struct {
	Credentials []*CredentialResponse `json:"credentials"`
	Total       int                   `json:"total"`
}

type TrustScoreResponse struct {
	WorkerID       string           `json:"worker_id"`
	Score          int              `json:"score"`
	Factors        models.Factors   `json:"factors"`
	Breakdown      models.Breakdown `json:"breakdown"`
	Version        int              `json:"version"`
	LastCalculated time.Time        `json:"last_calculated"`
}

// Response mapping functions - convert domain objects to HTTP DTOs

func toPartnerResponse(p *models.Partner) *PartnerResponse {
	return &PartnerResponse{
		ID:                  p.ID.String(),
		Name:                p.Name,
		Email:               p.Email,
		Phone:               p.Phone,
		Address:             p.Address,
		RegistrationNumber:  p.RegistrationNumber,
		CordNodeID:          p.CordNodeID,
		Status:              p.Status,
		OnboardingCompleted: p.OnboardingCompleted,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func toWorkerResponse(w *models.Worker) *WorkerResponse {
	res := &WorkerResponse{
		ID:                  w.ID.String(),
		Name:                w.Name,
		Phone:               w.Phone,
		Email:               w.Email,
		DID:                 w.DID,
		DIDAnchorStatus:     w.DIDAnchor,
		DIDTransactionRef:   w.DIDTransactionRef,
		Status:              w.Status,
		MobileAppRegistered: w.MobileAppRegistered,
		NationalIDOnFile:    w.NationalIDHash != "",
		RegisteredAt:        w.RegisteredAt,
		CreatedAt:           w.CreatedAt,
		UpdatedAt:           w.UpdatedAt,
	}
	if !w.PartnerID.IsNil() {
		res.PartnerID = w.PartnerID.String()
	}
	return res
}

func toCredentialResponse(c *models.Credential) *CredentialResponse {
	return &CredentialResponse{
		ID:            c.ID.String(),
		WorkerID:      c.WorkerID.String(),
		Type:          c.Type,
		Category:      c.Type.Category(),
		Issuer:        c.Issuer,
		Status:        c.Status,
		VCURL:         c.VCURL,
		ExternalID:    c.ExternalID,
		AnchorStatus:  c.AnchorStatus,
		DocumentHash:  c.DocumentHash,
		DocumentURL:   c.DocumentURL,
		IssuedAt:      c.IssuedAt,
		ExpiresAt:     c.ExpiresAt,
		FailureReason: c.FailureReason,
		LastCheckedAt: c.LastCheckedAt,
		CreatedAt:     c.CreatedAt,
	}
}

func toCredentialListResponse(credentials []*models.Credential) *CredentialListResponse {
	res := &CredentialListResponse{
		Credentials: make([]*CredentialResponse, 0, len(credentials)),
		Total:       len(credentials),
	}
	for _, c := range credentials {
		res.Credentials = append(res.Credentials, toCredentialResponse(c))
	}
	return res
}

func toTrustScoreResponse(t *models.TrustScore) *TrustScoreResponse {
	return &TrustScoreResponse{
		WorkerID:       t.WorkerID.String(),
		Score:          t.Score,
		Factors:        t.Factors,
		Breakdown:      t.Breakdown,
		Version:        t.Version,
		LastCalculated: t.LastCalculated,
	}
}
