package service

import (
	"context"
	"time"

	"upandup/internal/gateway"
	"upandup/internal/ledger/models"
	"upandup/internal/ledger/store"
	id "upandup/pkg/domain"
	"upandup/pkg/platform/audit"
	"upandup/pkg/platform/tracer"
)

const (
	reasonAnchorFailed       = "credential anchoring failed"
	reasonVerificationFailed = "credential verification failed"
	reasonExpired            = "credential expired"
	reasonReverifyFailed     = "credential re-verification failed"
	reasonDocumentUnverified = "document not verified by registry"
)

// RequestCredential records a pending credential for the worker and asks the
// credential gateway to issue it.
//
// On an issued result with a pending or confirmed anchor the vc_url is set
// and the credential stays pending until verified. When the gateway accepts
// the request without issuing yet, the issuer's reference is kept so
// ResolveIssuance can complete it later. A gateway rejection moves it to
// rejected and is not an error. When the gateway is unreachable or times out
// the credential stays pending without a vc_url and a CredentialError with
// kind GatewayUnavailable is returned.
//
// With a document verifier configured, government-issued registry documents
// are checked first. A document the registry does not confirm is recorded
// and rejected without reaching the issuer.
func (s *Service) RequestCredential(ctx context.Context, workerID id.WorkerID, credType models.CredentialType, issuer models.Issuer, meta models.CredentialMetadata) (_ *models.Credential, err error) {
	defer s.observe("request_credential", time.Now(), &err)
	ctx, span := s.tracer.Start(ctx, tracer.SpanRequestCredential,
		tracer.String(tracer.AttrWorkerID, workerID.String()),
		tracer.String(tracer.AttrCredentialType, string(credType)),
	)
	defer func() { span.End(err) }()

	if issuer.Type == "" {
		issuer.Type = credType.DefaultIssuerType()
	}
	if err := meta.Validate(); err != nil {
		return nil, &models.CredentialError{Kind: models.CredentialInvalidInput, Message: "invalid credential metadata", Err: err}
	}

	unlock, err := s.lockWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	documentRejection, err := s.checkDocument(ctx, workerID, credType, issuer, meta)
	if err != nil {
		return nil, err
	}

	at := now(ctx)
	var credential *models.Credential
	var worker *models.Worker
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		worker, err = tx.FindWorker(ctx, workerID)
		if err != nil {
			return storeError(err, "worker")
		}
		credential, err = models.NewPendingCredential(id.NewCredentialID(), workerID, credType, issuer, meta, at)
		if err != nil {
			return err
		}
		if err := tx.CreateCredential(ctx, credential); err != nil {
			return storeError(err, "credential")
		}
		return emit(ctx, tx, credentialEvent(audit.EventCredentialRequested, credential, at))
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrCredentialID, credential.ID.String()))

	if documentRejection != "" {
		return s.rejectCredential(ctx, credential.ID, documentRejection)
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	result, err := s.credentials.IssueCredential(gwCtx, gateway.IssueRequest{
		SubjectID:      subjectID(worker),
		CredentialType: credType,
		Issuer:         issuer,
		Metadata:       meta,
	})
	cancel()

	switch {
	case gateway.IsKind(err, gateway.KindRejected):
		gwErr, _ := gateway.AsGatewayError(err)
		return s.rejectCredential(ctx, credential.ID, gwErr.Message)
	case err != nil:
		s.logger.WarnContext(ctx, "credential issuance unavailable",
			"worker_id", workerID.String(),
			"credential_id", credential.ID.String(),
			"error", err,
		)
		return nil, &models.CredentialError{
			Kind:         models.CredentialGatewayUnavailable,
			CredentialID: credential.ID,
			Message:      "credential gateway unavailable",
			Err:          err,
		}
	case result == nil || result.Status != gateway.IssueStatusIssued || result.VCURL == "":
		return s.recordPendingIssuance(ctx, credential, result)
	case !result.AnchorStatus.Accepted():
		return s.rejectCredential(ctx, credential.ID, reasonAnchorFailed)
	}

	return s.attachIssuance(ctx, credential.ID, result)
}

// ResolveIssuance polls the issuer for a credential the gateway accepted
// without issuing. An issued result attaches the vc_url, a rejection moves
// the credential to rejected and a result that is still pending changes
// nothing. Credentials that already carry a vc_url are returned unchanged.
func (s *Service) ResolveIssuance(ctx context.Context, credentialID id.CredentialID) (_ *models.Credential, err error) {
	defer s.observe("resolve_issuance", time.Now(), &err)
	ctx, span := s.tracer.Start(ctx, tracer.SpanResolveIssuance,
		tracer.String(tracer.AttrCredentialID, credentialID.String()),
	)
	defer func() { span.End(err) }()

	credential, unlock, err := s.lockCredential(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if credential.Status != models.VerificationPending {
		return nil, &models.CredentialError{
			Kind:         models.CredentialAlreadyTerminal,
			CredentialID: credentialID,
			Message:      "credential is already " + string(credential.Status),
		}
	}
	if credential.VCURL != "" {
		return credential, nil
	}
	if credential.ExternalID == "" {
		return nil, &models.CredentialError{
			Kind:         models.CredentialInvalidInput,
			CredentialID: credentialID,
			Message:      "credential has no issuer reference to resolve",
		}
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	result, err := s.credentials.IssuanceStatus(gwCtx, credential.ExternalID)
	cancel()

	switch {
	case gateway.IsKind(err, gateway.KindRejected):
		gwErr, _ := gateway.AsGatewayError(err)
		return s.rejectCredential(ctx, credentialID, gwErr.Message)
	case err != nil:
		s.logger.WarnContext(ctx, "issuance status unavailable",
			"credential_id", credentialID.String(),
			"error", err,
		)
		return nil, &models.CredentialError{
			Kind:         models.CredentialGatewayUnavailable,
			CredentialID: credentialID,
			Message:      "credential gateway unavailable",
			Err:          err,
		}
	case result == nil || result.Status != gateway.IssueStatusIssued || result.VCURL == "":
		s.logger.DebugContext(ctx, "credential issuance still pending",
			"credential_id", credentialID.String(),
		)
		return credential, nil
	case !result.AnchorStatus.Accepted():
		return s.rejectCredential(ctx, credentialID, reasonAnchorFailed)
	}

	return s.attachIssuance(ctx, credentialID, result)
}

// ListAwaitingIssuance returns pending credentials the issuer has accepted
// but not yet issued.
func (s *Service) ListAwaitingIssuance(ctx context.Context, limit int) ([]*models.Credential, error) {
	credentials, err := s.store.ListAwaitingIssuance(ctx, limit)
	if err != nil {
		return nil, storeError(err, "credentials")
	}
	return credentials, nil
}

// checkDocument runs the registry check for government-issued registry
// documents. It returns a rejection reason when the registry does not
// confirm the document. The caller holds the worker lock.
func (s *Service) checkDocument(ctx context.Context, workerID id.WorkerID, credType models.CredentialType, issuer models.Issuer, meta models.CredentialMetadata) (string, error) {
	if s.documents == nil || !credType.RegistryBacked() || issuer.Type != models.IssuerGovernment {
		return "", nil
	}
	worker, err := s.store.FindWorker(ctx, workerID)
	if err != nil {
		return "", storeError(err, "worker")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifyDocument,
		tracer.String(tracer.AttrWorkerID, workerID.String()),
		tracer.String(tracer.AttrCredentialType, string(credType)),
	)
	gwCtx, cancel := s.gatewayContext(ctx)
	result, err := s.documents.VerifyDocument(gwCtx, gateway.DocumentCheck{
		CredentialType: credType,
		SubjectID:      subjectID(worker),
		DocumentHash:   meta.DocumentHash,
	})
	cancel()
	span.End(err)

	switch {
	case gateway.IsKind(err, gateway.KindRejected):
		gwErr, _ := gateway.AsGatewayError(err)
		return gwErr.Message, nil
	case err != nil:
		s.logger.WarnContext(ctx, "document registry unavailable",
			"worker_id", workerID.String(),
			"credential_type", string(credType),
			"error", err,
		)
		return "", &models.CredentialError{
			Kind:    models.CredentialGatewayUnavailable,
			Message: "document registry unavailable",
			Err:     err,
		}
	case result == nil || !result.Verified:
		reason := reasonDocumentUnverified
		if result != nil && result.Reason != "" {
			reason = result.Reason
		}
		return reason, nil
	}

	s.logger.InfoContext(ctx, "document verified by registry",
		"worker_id", workerID.String(),
		"credential_type", string(credType),
		"reference", result.Reference,
	)
	return "", nil
}

// recordPendingIssuance keeps the issuer's reference on a credential the
// gateway accepted but has not issued. The caller holds the worker lock.
func (s *Service) recordPendingIssuance(ctx context.Context, credential *models.Credential, result *gateway.IssueResult) (*models.Credential, error) {
	if result == nil || result.CredentialID == "" {
		s.logger.InfoContext(ctx, "credential issuance pending without issuer reference",
			"credential_id", credential.ID.String(),
		)
		return credential, nil
	}
	at := now(ctx)
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		credential, err = tx.FindCredential(ctx, credential.ID)
		if err != nil {
			return storeError(err, "credential")
		}
		if err := credential.RecordPendingIssuance(result.CredentialID, result.AnchorStatus, at); err != nil {
			return err
		}
		return storeError(tx.UpdateCredential(ctx, credential), "credential")
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "credential issuance pending at gateway",
		"credential_id", credential.ID.String(),
		"external_id", credential.ExternalID,
	)
	return credential, nil
}

// attachIssuance stores an issued result on the pending credential. The
// caller holds the worker lock.
func (s *Service) attachIssuance(ctx context.Context, credentialID id.CredentialID, result *gateway.IssueResult) (*models.Credential, error) {
	at := now(ctx)
	var credential *models.Credential
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		credential, err = tx.FindCredential(ctx, credentialID)
		if err != nil {
			return storeError(err, "credential")
		}
		if err := credential.AttachIssuance(result.VCURL, result.CredentialID, result.AnchorStatus, at); err != nil {
			return err
		}
		if err := tx.UpdateCredential(ctx, credential); err != nil {
			return storeError(err, "credential")
		}
		event := credentialEvent(audit.EventCredentialIssued, credential, at)
		event.Attributes["anchor_status"] = string(result.AnchorStatus)
		return emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "credential issued",
		"worker_id", credential.WorkerID.String(),
		"credential_id", credentialID.String(),
		"credential_type", string(credential.Type),
	)
	return credential, nil
}

// VerifyCredential asks the gateway to verify a pending, issued credential.
// A positive result verifies it and recomputes the worker's trust score in
// the same transaction; a negative one rejects it. Calling it on a credential
// that is no longer pending returns AlreadyTerminal and changes nothing.
func (s *Service) VerifyCredential(ctx context.Context, credentialID id.CredentialID) (_ *models.Credential, err error) {
	defer s.observe("verify_credential", time.Now(), &err)
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifyCredential,
		tracer.String(tracer.AttrCredentialID, credentialID.String()),
	)
	defer func() { span.End(err) }()

	credential, unlock, err := s.lockCredential(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if credential.Status != models.VerificationPending {
		return nil, &models.CredentialError{
			Kind:         models.CredentialAlreadyTerminal,
			CredentialID: credentialID,
			Message:      "credential is already " + string(credential.Status),
		}
	}
	if credential.VCURL == "" {
		return nil, &models.CredentialError{
			Kind:         models.CredentialInvalidInput,
			CredentialID: credentialID,
			Message:      "credential has not been issued",
		}
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	valid, err := s.credentials.VerifyCredential(gwCtx, credential.VCURL)
	cancel()
	if err != nil {
		s.logger.WarnContext(ctx, "credential verification unavailable",
			"credential_id", credentialID.String(),
			"error", err,
		)
		return nil, &models.CredentialError{
			Kind:         models.CredentialGatewayUnavailable,
			CredentialID: credentialID,
			Message:      "credential gateway unavailable",
			Err:          err,
		}
	}
	if !valid {
		return s.rejectCredential(ctx, credentialID, reasonVerificationFailed)
	}

	anchorConfirmed := s.anchorConfirmed(ctx, credential.WorkerID)
	at := now(ctx)
	var score *models.TrustScore
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		credential, err = tx.FindCredential(ctx, credentialID)
		if err != nil {
			return storeError(err, "credential")
		}
		if err := credential.MarkVerified(at); err != nil {
			return err
		}
		if err := tx.UpdateCredential(ctx, credential); err != nil {
			return storeError(err, "credential")
		}
		if err := emit(ctx, tx, credentialEvent(audit.EventCredentialVerified, credential, at)); err != nil {
			return err
		}
		score, err = s.applyScore(ctx, tx, credential.WorkerID, anchorConfirmed, at)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCredentialTransition(string(models.VerificationVerified), string(credential.Type))
	s.logger.InfoContext(ctx, "credential verified",
		"worker_id", credential.WorkerID.String(),
		"credential_id", credentialID.String(),
		"score", score.Score,
	)
	return credential, nil
}

// RecheckCredential re-verifies a verified credential. It expires the
// credential when expires_at has passed or the gateway no longer accepts it,
// and then recomputes the trust score. A gateway failure leaves the
// credential unchanged.
func (s *Service) RecheckCredential(ctx context.Context, credentialID id.CredentialID) (_ *models.Credential, err error) {
	defer s.observe("recheck_credential", time.Now(), &err)
	ctx, span := s.tracer.Start(ctx, tracer.SpanRecheckCredential,
		tracer.String(tracer.AttrCredentialID, credentialID.String()),
	)
	defer func() { span.End(err) }()

	credential, unlock, err := s.lockCredential(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	switch credential.Status {
	case models.VerificationVerified:
	case models.VerificationPending:
		return nil, &models.CredentialError{
			Kind:         models.CredentialInvalidInput,
			CredentialID: credentialID,
			Message:      "only verified credentials can be rechecked",
		}
	default:
		return nil, &models.CredentialError{
			Kind:         models.CredentialAlreadyTerminal,
			CredentialID: credentialID,
			Message:      "credential is already " + string(credential.Status),
		}
	}

	reason := ""
	if credential.IsExpiredAt(now(ctx)) {
		reason = reasonExpired
	} else {
		gwCtx, cancel := s.gatewayContext(ctx)
		valid, err := s.credentials.VerifyCredential(gwCtx, credential.VCURL)
		cancel()
		if err != nil {
			return nil, &models.CredentialError{
				Kind:         models.CredentialGatewayUnavailable,
				CredentialID: credentialID,
				Message:      "credential gateway unavailable",
				Err:          err,
			}
		}
		if !valid {
			reason = reasonReverifyFailed
		}
	}

	at := now(ctx)
	if reason == "" {
		err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
			var err error
			credential, err = tx.FindCredential(ctx, credentialID)
			if err != nil {
				return storeError(err, "credential")
			}
			credential.MarkChecked(at)
			return storeError(tx.UpdateCredential(ctx, credential), "credential")
		})
		if err != nil {
			return nil, err
		}
		return credential, nil
	}

	anchorConfirmed := s.anchorConfirmed(ctx, credential.WorkerID)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		credential, err = tx.FindCredential(ctx, credentialID)
		if err != nil {
			return storeError(err, "credential")
		}
		if err := credential.Expire(reason, at); err != nil {
			return err
		}
		if err := tx.UpdateCredential(ctx, credential); err != nil {
			return storeError(err, "credential")
		}
		event := credentialEvent(audit.EventCredentialExpired, credential, at)
		event.Attributes["reason"] = reason
		if err := emit(ctx, tx, event); err != nil {
			return err
		}
		_, err = s.applyScore(ctx, tx, credential.WorkerID, anchorConfirmed, at)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCredentialTransition(string(models.VerificationExpired), string(credential.Type))
	s.logger.InfoContext(ctx, "credential expired",
		"worker_id", credential.WorkerID.String(),
		"credential_id", credentialID.String(),
		"reason", reason,
	)
	return credential, nil
}

// GetCredential returns a credential by ID.
func (s *Service) GetCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	credential, err := s.store.FindCredential(ctx, credentialID)
	if err != nil {
		return nil, storeError(err, "credential")
	}
	return credential, nil
}

// ListCredentials returns the worker's credentials, oldest first.
func (s *Service) ListCredentials(ctx context.Context, workerID id.WorkerID) ([]*models.Credential, error) {
	if _, err := s.store.FindWorker(ctx, workerID); err != nil {
		return nil, storeError(err, "worker")
	}
	credentials, err := s.store.ListCredentialsByWorker(ctx, workerID)
	if err != nil {
		return nil, storeError(err, "credentials")
	}
	return credentials, nil
}

// ListDueCredentials returns verified credentials the re-verification sweep
// should recheck at the request time.
func (s *Service) ListDueCredentials(ctx context.Context, limit int) ([]*models.Credential, error) {
	at := now(ctx)
	credentials, err := s.store.ListDueCredentials(ctx, at, at.Add(-s.reverifyMaxAge), limit)
	if err != nil {
		return nil, storeError(err, "credentials")
	}
	return credentials, nil
}

// lockCredential loads the credential, locks its worker and reloads it so
// the returned copy reflects every operation that held the lock before.
func (s *Service) lockCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, func(), error) {
	credential, err := s.store.FindCredential(ctx, credentialID)
	if err != nil {
		return nil, nil, storeError(err, "credential")
	}
	unlock, err := s.lockWorker(ctx, credential.WorkerID)
	if err != nil {
		return nil, nil, err
	}
	credential, err = s.store.FindCredential(ctx, credentialID)
	if err != nil {
		unlock()
		return nil, nil, storeError(err, "credential")
	}
	return credential, unlock, nil
}

// rejectCredential moves a pending credential to rejected. The caller holds
// the worker lock.
func (s *Service) rejectCredential(ctx context.Context, credentialID id.CredentialID, reason string) (*models.Credential, error) {
	at := now(ctx)
	var credential *models.Credential
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		credential, err = tx.FindCredential(ctx, credentialID)
		if err != nil {
			return storeError(err, "credential")
		}
		if err := credential.Reject(reason, at); err != nil {
			return err
		}
		if err := tx.UpdateCredential(ctx, credential); err != nil {
			return storeError(err, "credential")
		}
		event := credentialEvent(audit.EventCredentialRejected, credential, at)
		event.Attributes["reason"] = reason
		return emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCredentialTransition(string(models.VerificationRejected), string(credential.Type))
	s.logger.InfoContext(ctx, "credential rejected",
		"worker_id", credential.WorkerID.String(),
		"credential_id", credentialID.String(),
		"reason", reason,
	)
	return credential, nil
}

func credentialEvent(eventType audit.EventType, c *models.Credential, at time.Time) audit.Event {
	return audit.NewWorkerEvent(eventType, c.WorkerID.String(), at, workerAttrs(c.WorkerID,
		"credential_id", c.ID.String(),
		"credential_type", string(c.Type),
		"issuer_type", string(c.Issuer.Type),
		"status", string(c.Status),
	))
}

// subjectID is the credential subject sent to the gateway: the worker's DID
// once set, otherwise a URN of the worker ID.
func subjectID(worker *models.Worker) string {
	if worker.HasDID() {
		return worker.DID
	}
	return "urn:uuid:" + worker.ID.String()
}
