package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/validation"
)

// Date accepts either YYYY-MM-DD or RFC 3339 in JSON.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		d.Time = t.UTC()
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "dates must be YYYY-MM-DD or RFC 3339")
	}
	d.Time = t.UTC()
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(time.DateOnly))
}

// CredentialMetadata describes the document behind a credential claim.
type CredentialMetadata struct {
	DocumentHash string     `json:"document_hash" validate:"required,dochash"`
	DocumentURL  string     `json:"document_url,omitempty" validate:"omitempty,url,max=2048"`
	IssueDate    time.Time  `json:"-" validate:"required"`
	ExpiryDate   *time.Time `json:"-"`
}

// Validate checks required fields and the expiry ordering.
func (m CredentialMetadata) Validate() error {
	if err := validation.Validate(m); err != nil {
		return err
	}
	if m.ExpiryDate != nil && !m.ExpiryDate.After(m.IssueDate) {
		return dErrors.New(dErrors.CodeValidation, "expiry_date must be after issue_date")
	}
	return nil
}

// RequestCredentialRequest is the body of a credential claim.
type RequestCredentialRequest struct {
	Type         CredentialType `json:"credential_type" validate:"required"`
	Issuer       Issuer         `json:"issuer"`
	DocumentHash string         `json:"document_hash"`
	DocumentURL  string         `json:"document_url,omitempty"`
	IssueDate    Date           `json:"issue_date"`
	ExpiryDate   *Date          `json:"expiry_date,omitempty"`
}

// Normalize trims input and fills the issuer type from the credential kind.
func (r *RequestCredentialRequest) Normalize() {
	if r == nil {
		return
	}
	r.Type = CredentialType(strings.ToLower(strings.TrimSpace(string(r.Type))))
	r.Issuer.Name = strings.TrimSpace(r.Issuer.Name)
	if r.Issuer.Type == "" {
		r.Issuer.Type = r.Type.DefaultIssuerType()
	}
	r.DocumentHash = strings.ToLower(strings.TrimSpace(r.DocumentHash))
	r.DocumentURL = strings.TrimSpace(r.DocumentURL)
}

// Validate checks that the request is well-formed.
func (r *RequestCredentialRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	if !r.Type.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "credential_type is not supported")
	}
	return r.Metadata().Validate()
}

// Metadata returns the closed metadata record for the ledger.
func (r *RequestCredentialRequest) Metadata() CredentialMetadata {
	meta := CredentialMetadata{
		DocumentHash: r.DocumentHash,
		DocumentURL:  r.DocumentURL,
		IssueDate:    r.IssueDate.Time,
	}
	if r.ExpiryDate != nil && !r.ExpiryDate.IsZero() {
		at := r.ExpiryDate.Time
		meta.ExpiryDate = &at
	}
	return meta
}

// WorkerDetails is what the DID gateway needs to create an identifier.
type WorkerDetails struct {
	Name  string `json:"name" validate:"notblank,max=200"`
	Phone string `json:"phone" validate:"required,phone"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// Normalize trims whitespace.
func (d *WorkerDetails) Normalize() {
	if d == nil {
		return
	}
	d.Name = strings.TrimSpace(d.Name)
	d.Phone = normalizePhone(d.Phone)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
}

// Validate checks that name and phone are present.
func (d *WorkerDetails) Validate() error {
	if d == nil {
		return dErrors.New(dErrors.CodeBadRequest, "worker details are required")
	}
	return validation.Validate(d)
}

// CreatePartnerRequest registers a partner organization.
type CreatePartnerRequest struct {
	Name               string `json:"name" validate:"notblank,max=200"`
	Email              string `json:"email" validate:"required,email"`
	Phone              string `json:"phone,omitempty" validate:"omitempty,phone"`
	Address            string `json:"address,omitempty" validate:"max=500"`
	RegistrationNumber string `json:"registration_number,omitempty" validate:"max=64"`
	CordNodeID         string `json:"cord_node_id,omitempty" validate:"max=128"`
}

func (r *CreatePartnerRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = normalizePhone(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
	r.RegistrationNumber = strings.TrimSpace(r.RegistrationNumber)
	r.CordNodeID = strings.TrimSpace(r.CordNodeID)
}

func (r *CreatePartnerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// UpdatePartnerStatusRequest is an admin status change.
type UpdatePartnerStatusRequest struct {
	Status PartnershipStatus `json:"status" validate:"required,oneof=pending active suspended"`
}

func (r *UpdatePartnerStatusRequest) Normalize() {
	if r == nil {
		return
	}
	r.Status = PartnershipStatus(strings.ToLower(strings.TrimSpace(string(r.Status))))
}

func (r *UpdatePartnerStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// InviteWorkerRequest invites a worker on behalf of the calling partner.
type InviteWorkerRequest struct {
	Name  string `json:"name" validate:"notblank,max=200"`
	Phone string `json:"phone" validate:"required,phone"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

func (r *InviteWorkerRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = normalizePhone(r.Phone)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *InviteWorkerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// RegisterWorkerRequest completes mobile registration.
type RegisterWorkerRequest struct {
	NationalID string `json:"national_id,omitempty" validate:"omitempty,alphanum,min=6,max=32"`
}

func (r *RegisterWorkerRequest) Normalize() {
	if r == nil {
		return
	}
	r.NationalID = strings.ToUpper(strings.Join(strings.Fields(r.NationalID), ""))
}

func (r *RegisterWorkerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// ReassignWorkerRequest moves a worker to another partner.
type ReassignWorkerRequest struct {
	PartnerID string `json:"partner_id" validate:"required,uuid"`
}

func (r *ReassignWorkerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// Target parses the destination partner.
func (r *ReassignWorkerRequest) Target() (id.PartnerID, error) {
	return id.ParsePartnerID(r.PartnerID)
}

// normalizePhone strips spaces, dashes and parentheses.
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}
