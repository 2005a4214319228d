package handler

import (
	"upandup/internal/ledger/models"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/validation"
)

// CreateDIDRequest carries optional overrides for the DID subject. Empty
// fields fall back to the worker record.
type CreateDIDRequest struct {
	Name  string `json:"name,omitempty" validate:"max=200"`
	Phone string `json:"phone,omitempty" validate:"omitempty,phone"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

func (r *CreateDIDRequest) Normalize() {
	if r == nil {
		return
	}
	details := r.Details()
	details.Normalize()
	r.Name, r.Phone, r.Email = details.Name, details.Phone, details.Email
}

func (r *CreateDIDRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

func (r *CreateDIDRequest) Details() models.WorkerDetails {
	return models.WorkerDetails{Name: r.Name, Phone: r.Phone, Email: r.Email}
}
