package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"upandup/internal/ledger/models"
	id "upandup/pkg/domain"
	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/httputil"
	"upandup/pkg/platform/middleware/auth"
	request "upandup/pkg/platform/middleware/request"
)

// Service defines the ledger operations exposed over HTTP.
// Returns domain objects, not HTTP response DTOs.
//
// Partner routes are scoped to the calling partner: the handler loads the
// worker (or the credential's worker) and checks ownership before acting.
// Workers owned by another partner are reported as not found.
type Service interface {
	CreatePartner(ctx context.Context, req *models.CreatePartnerRequest) (*models.Partner, error)
	GetPartner(ctx context.Context, partnerID id.PartnerID) (*models.Partner, error)
	UpdatePartnerStatus(ctx context.Context, partnerID id.PartnerID, status models.PartnershipStatus) (*models.Partner, error)
	CompleteOnboarding(ctx context.Context, partnerID id.PartnerID) (*models.Partner, error)

	InviteWorker(ctx context.Context, partnerID id.PartnerID, req *models.InviteWorkerRequest) (*models.Worker, error)
	GetWorker(ctx context.Context, workerID id.WorkerID) (*models.Worker, error)
	RegisterWorker(ctx context.Context, workerID id.WorkerID, req *models.RegisterWorkerRequest) (*models.Worker, error)
	ReassignWorker(ctx context.Context, workerID id.WorkerID, partnerID id.PartnerID) (*models.Worker, error)
	CreateWorkerDID(ctx context.Context, workerID id.WorkerID, details models.WorkerDetails) (*models.Worker, error)

	RequestCredential(ctx context.Context, workerID id.WorkerID, credType models.CredentialType, issuer models.Issuer, meta models.CredentialMetadata) (*models.Credential, error)
	GetCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	ListCredentials(ctx context.Context, workerID id.WorkerID) ([]*models.Credential, error)
	ResolveIssuance(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	VerifyCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	RecheckCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)

	RecomputeTrustScore(ctx context.Context, workerID id.WorkerID) (*models.TrustScore, error)
	GetTrustScore(ctx context.Context, workerID id.WorkerID) (*models.TrustScore, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts the partner management and reassignment routes.
// The caller is expected to wrap r with the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/partners", h.HandleCreatePartner)
	r.Get("/partners/{id}", h.HandleGetPartner)
	r.Put("/partners/{id}/status", h.HandleUpdatePartnerStatus)
	r.Post("/partners/{id}/onboarding/complete", h.HandleCompleteOnboarding)
	r.Put("/admin/workers/{id}/partner", h.HandleReassignWorker)
}

// RegisterPartner mounts the worker, credential and trust score routes.
// The caller is expected to wrap r with the partner token middleware.
func (h *Handler) RegisterPartner(r chi.Router) {
	r.Post("/workers", h.HandleInviteWorker)
	r.Get("/workers/{id}", h.HandleGetWorker)
	r.Post("/workers/{id}/register", h.HandleRegisterWorker)
	r.Post("/workers/{id}/did", h.HandleCreateWorkerDID)
	r.Post("/workers/{id}/credentials", h.HandleRequestCredential)
	r.Get("/workers/{id}/credentials", h.HandleListCredentials)
	r.Post("/workers/{id}/trust-score", h.HandleRecomputeTrustScore)
	r.Get("/workers/{id}/trust-score", h.HandleGetTrustScore)
	r.Post("/credentials/{id}/issuance", h.HandleResolveIssuance)
	r.Post("/credentials/{id}/verify", h.HandleVerifyCredential)
	r.Post("/credentials/{id}/recheck", h.HandleRecheckCredential)
}

// HandleCreatePartner registers a partner organization.
func (h *Handler) HandleCreatePartner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreatePartnerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	partner, err := h.service.CreatePartner(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "create partner failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toPartnerResponse(partner))
}

func (h *Handler) HandleGetPartner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	partnerID, ok := parsePartnerID(w, r)
	if !ok {
		return
	}

	partner, err := h.service.GetPartner(ctx, partnerID)
	if err != nil {
		h.logger.ErrorContext(ctx, "get partner failed", "error", err, "request_id", requestID, "partner_id", partnerID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toPartnerResponse(partner))
}

// HandleUpdatePartnerStatus moves a partner between pending, active and suspended.
func (h *Handler) HandleUpdatePartnerStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	partnerID, ok := parsePartnerID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.UpdatePartnerStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	partner, err := h.service.UpdatePartnerStatus(ctx, partnerID, req.Status)
	if err != nil {
		h.logger.ErrorContext(ctx, "update partner status failed", "error", err, "request_id", requestID, "partner_id", partnerID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toPartnerResponse(partner))
}

func (h *Handler) HandleCompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	partnerID, ok := parsePartnerID(w, r)
	if !ok {
		return
	}

	partner, err := h.service.CompleteOnboarding(ctx, partnerID)
	if err != nil {
		h.logger.ErrorContext(ctx, "complete onboarding failed", "error", err, "request_id", requestID, "partner_id", partnerID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toPartnerResponse(partner))
}

// HandleReassignWorker moves a worker to another partner. Admin only.
func (h *Handler) HandleReassignWorker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	workerID, ok := parseWorkerID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.ReassignWorkerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	target, err := req.Target()
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid partner id"))
		return
	}

	worker, err := h.service.ReassignWorker(ctx, workerID, target)
	if err != nil {
		h.logger.ErrorContext(ctx, "reassign worker failed", "error", err, "request_id", requestID, "worker_id", workerID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toWorkerResponse(worker))
}

// HandleInviteWorker invites a worker on behalf of the calling partner.
func (h *Handler) HandleInviteWorker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	partnerID := auth.GetPartnerID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.InviteWorkerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	worker, err := h.service.InviteWorker(ctx, partnerID, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "invite worker failed", "error", err, "request_id", requestID, "partner_id", partnerID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toWorkerResponse(worker))
}

func (h *Handler) HandleGetWorker(w http.ResponseWriter, r *http.Request) {
	worker, ok := h.ownedWorker(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toWorkerResponse(worker))
}

// HandleRegisterWorker completes the worker's mobile registration.
func (h *Handler) HandleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	worker, ok := h.ownedWorker(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.RegisterWorkerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	registered, err := h.service.RegisterWorker(ctx, worker.ID, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "register worker failed", "error", err, "request_id", requestID, "worker_id", worker.ID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toWorkerResponse(registered))
}

// HandleCreateWorkerDID mints the worker's DID. Body fields left empty are
// taken from the worker record.
func (h *Handler) HandleCreateWorkerDID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	worker, ok := h.ownedWorker(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateDIDRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := h.service.CreateWorkerDID(ctx, worker.ID, req.Details())
	if err != nil {
		h.logger.ErrorContext(ctx, "create worker DID failed", "error", err, "request_id", requestID, "worker_id", worker.ID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toWorkerResponse(updated))
}

// HandleRequestCredential records a credential claim and issues it through
// the credential gateway. A gateway outage still returns the error; the
// claim stays pending and can be listed.
func (h *Handler) HandleRequestCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	worker, ok := h.ownedWorker(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.RequestCredentialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	credential, err := h.service.RequestCredential(ctx, worker.ID, req.Type, req.Issuer, req.Metadata())
	if err != nil {
		h.logger.ErrorContext(ctx, "request credential failed", "error", err, "request_id", requestID, "worker_id", worker.ID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toCredentialResponse(credential))
}

func (h *Handler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	worker, ok := h.ownedWorker(w, r)
	if !ok {
		return
	}

	credentials, err := h.service.ListCredentials(ctx, worker.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "list credentials failed", "error", err, "request_id", requestID, "worker_id", worker.ID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialListResponse(credentials))
}

func (h *Handler) HandleRecomputeTrustScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	worker, ok := h.ownedWorker(w, r)
	if !ok {
		return
	}

	score, err := h.service.RecomputeTrustScore(ctx, worker.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "recompute trust score failed", "error", err, "request_id", requestID, "worker_id", worker.ID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTrustScoreResponse(score))
}

func (h *Handler) HandleGetTrustScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	worker, ok := h.ownedWorker(w, r)
	if !ok {
		return
	}

	score, err := h.service.GetTrustScore(ctx, worker.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "get trust score failed", "error", err, "request_id", requestID, "worker_id", worker.ID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTrustScoreResponse(score))
}

// HandleResolveIssuance polls the issuer for a credential whose issuance is
// still pending and attaches the vc_url once it is issued.
func (h *Handler) HandleResolveIssuance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	credentialID, ok := h.ownedCredential(w, r)
	if !ok {
		return
	}

	credential, err := h.service.ResolveIssuance(ctx, credentialID)
	if err != nil {
		h.logCredentialFailure(ctx, "resolve issuance failed", err, "request_id", requestID, "credential_id", credentialID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(credential))
}

// HandleVerifyCredential verifies a pending credential with the gateway and
// recomputes the worker's trust score when it passes.
func (h *Handler) HandleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	credentialID, ok := h.ownedCredential(w, r)
	if !ok {
		return
	}

	credential, err := h.service.VerifyCredential(ctx, credentialID)
	if err != nil {
		h.logCredentialFailure(ctx, "verify credential failed", err, "request_id", requestID, "credential_id", credentialID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(credential))
}

func (h *Handler) HandleRecheckCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	credentialID, ok := h.ownedCredential(w, r)
	if !ok {
		return
	}

	credential, err := h.service.RecheckCredential(ctx, credentialID)
	if err != nil {
		h.logCredentialFailure(ctx, "recheck credential failed", err, "request_id", requestID, "credential_id", credentialID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(credential))
}

// logCredentialFailure logs a failed credential operation. Repeating an
// operation on a finished credential is a client retry, not a server fault.
func (h *Handler) logCredentialFailure(ctx context.Context, msg string, err error, args ...any) {
	level := slog.LevelError
	if models.IsCredentialError(err, models.CredentialAlreadyTerminal) {
		level = slog.LevelInfo
		msg = "credential already terminal"
	}
	h.logger.Log(ctx, level, msg, append([]any{"error", err}, args...)...)
}

// ownedWorker loads the worker named in the path and checks it belongs to
// the calling partner. On failure the response has been written.
func (h *Handler) ownedWorker(w http.ResponseWriter, r *http.Request) (*models.Worker, bool) {
	ctx := r.Context()
	workerID, ok := parseWorkerID(w, r)
	if !ok {
		return nil, false
	}

	worker, err := h.service.GetWorker(ctx, workerID)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	if !worker.OwnedBy(auth.GetPartnerID(ctx)) {
		h.logger.WarnContext(ctx, "worker not owned by caller",
			"request_id", request.GetRequestID(ctx),
			"worker_id", workerID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "worker not found"))
		return nil, false
	}
	return worker, true
}

// ownedCredential resolves the credential in the path and checks its worker
// belongs to the calling partner.
func (h *Handler) ownedCredential(w http.ResponseWriter, r *http.Request) (id.CredentialID, bool) {
	ctx := r.Context()
	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential id"))
		return credentialID, false
	}

	credential, err := h.service.GetCredential(ctx, credentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return credentialID, false
	}
	worker, err := h.service.GetWorker(ctx, credential.WorkerID)
	if err != nil || !worker.OwnedBy(auth.GetPartnerID(ctx)) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "credential not found"))
		return credentialID, false
	}
	return credentialID, true
}

func parsePartnerID(w http.ResponseWriter, r *http.Request) (id.PartnerID, bool) {
	partnerID, err := id.ParsePartnerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid partner id"))
		return partnerID, false
	}
	return partnerID, true
}

func parseWorkerID(w http.ResponseWriter, r *http.Request) (id.WorkerID, bool) {
	workerID, err := id.ParseWorkerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid worker id"))
		return workerID, false
	}
	return workerID, true
}
