package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"upandup/internal/ledger/models"
	id "upandup/pkg/domain"
	"upandup/pkg/platform/audit"
	"upandup/pkg/platform/audit/outbox"
	outboxpg "upandup/pkg/platform/audit/outbox/store/postgres"
	"upandup/pkg/platform/sentinel"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore persists ledger records in PostgreSQL. Rows read inside a
// transaction are locked with FOR UPDATE.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed ledger store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// lockClause locks selected rows when running inside a transaction.
func (s *PostgresStore) lockClause() string {
	if s.tx != nil {
		return " FOR UPDATE"
	}
	return ""
}

// translate maps constraint violations onto sentinel errors.
func translate(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullPartner(partnerID id.PartnerID) uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.UUID(partnerID), Valid: !partnerID.IsNil()}
}

// Partners

const partnerColumns = `id, name, email, phone, address, registration_number, partnership_status,
	cord_node_id, onboarding_completed, created_at, updated_at`

func (s *PostgresStore) CreatePartner(ctx context.Context, partner *models.Partner) error {
	if partner == nil {
		return fmt.Errorf("partner is required")
	}
	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO partners (`+partnerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(partner.ID), partner.Name, partner.Email, partner.Phone, partner.Address,
		partner.RegistrationNumber, string(partner.Status), nullString(partner.CordNodeID),
		partner.OnboardingCompleted, partner.CreatedAt, partner.UpdatedAt,
	)
	if err != nil {
		return translate(err, "create partner")
	}
	return nil
}

func (s *PostgresStore) FindPartner(ctx context.Context, partnerID id.PartnerID) (*models.Partner, error) {
	row := s.execer().QueryRowContext(ctx,
		`SELECT `+partnerColumns+` FROM partners WHERE id = $1`+s.lockClause(), uuid.UUID(partnerID))
	partner, err := scanPartner(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find partner: %w", err)
	}
	return partner, nil
}

func (s *PostgresStore) UpdatePartner(ctx context.Context, partner *models.Partner) error {
	if partner == nil {
		return fmt.Errorf("partner is required")
	}
	res, err := s.execer().ExecContext(ctx, `
		UPDATE partners
		SET name = $2, email = $3, phone = $4, address = $5, registration_number = $6,
		    partnership_status = $7, cord_node_id = $8, onboarding_completed = $9, updated_at = $10
		WHERE id = $1
	`,
		uuid.UUID(partner.ID), partner.Name, partner.Email, partner.Phone, partner.Address,
		partner.RegistrationNumber, string(partner.Status), nullString(partner.CordNodeID),
		partner.OnboardingCompleted, partner.UpdatedAt,
	)
	if err != nil {
		return translate(err, "update partner")
	}
	return requireRow(res, "update partner")
}

func scanPartner(row scanner) (*models.Partner, error) {
	var p models.Partner
	var partnerID uuid.UUID
	var status string
	var cordNodeID sql.NullString
	if err := row.Scan(&partnerID, &p.Name, &p.Email, &p.Phone, &p.Address, &p.RegistrationNumber,
		&status, &cordNodeID, &p.OnboardingCompleted, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = id.PartnerID(partnerID)
	p.Status = models.PartnershipStatus(status)
	p.CordNodeID = cordNodeID.String
	return &p, nil
}

// Workers

const workerColumns = `id, partner_id, name, phone, email, did, did_anchor, did_transaction_ref,
	onboarding_status, mobile_app_registered, national_id_hash, registered_at, created_at, updated_at`

func (s *PostgresStore) CreateWorker(ctx context.Context, worker *models.Worker) error {
	if worker == nil {
		return fmt.Errorf("worker is required")
	}
	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO workers (`+workerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		uuid.UUID(worker.ID), nullPartner(worker.PartnerID), worker.Name, worker.Phone,
		nullString(worker.Email), nullString(worker.DID), string(worker.DIDAnchor),
		nullString(worker.DIDTransactionRef), string(worker.Status), worker.MobileAppRegistered,
		nullString(worker.NationalIDHash), worker.RegisteredAt, worker.CreatedAt, worker.UpdatedAt,
	)
	if err != nil {
		return translate(err, "create worker")
	}
	return nil
}

func (s *PostgresStore) FindWorker(ctx context.Context, workerID id.WorkerID) (*models.Worker, error) {
	row := s.execer().QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = $1`+s.lockClause(), uuid.UUID(workerID))
	worker, err := scanWorker(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find worker: %w", err)
	}
	return worker, nil
}

func (s *PostgresStore) UpdateWorker(ctx context.Context, worker *models.Worker) error {
	if worker == nil {
		return fmt.Errorf("worker is required")
	}
	res, err := s.execer().ExecContext(ctx, `
		UPDATE workers
		SET partner_id = $2, name = $3, phone = $4, email = $5, did = $6, did_anchor = $7,
		    did_transaction_ref = $8, onboarding_status = $9, mobile_app_registered = $10,
		    national_id_hash = $11, registered_at = $12, updated_at = $13
		WHERE id = $1
	`,
		uuid.UUID(worker.ID), nullPartner(worker.PartnerID), worker.Name, worker.Phone,
		nullString(worker.Email), nullString(worker.DID), string(worker.DIDAnchor),
		nullString(worker.DIDTransactionRef), string(worker.Status), worker.MobileAppRegistered,
		nullString(worker.NationalIDHash), worker.RegisteredAt, worker.UpdatedAt,
	)
	if err != nil {
		return translate(err, "update worker")
	}
	return requireRow(res, "update worker")
}

func scanWorker(row scanner) (*models.Worker, error) {
	var w models.Worker
	var workerID uuid.UUID
	var partnerID uuid.NullUUID
	var email, did, txRef, nationalIDHash sql.NullString
	var anchor, status string
	var registeredAt sql.NullTime
	if err := row.Scan(&workerID, &partnerID, &w.Name, &w.Phone, &email, &did, &anchor, &txRef,
		&status, &w.MobileAppRegistered, &nationalIDHash, &registeredAt, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.ID = id.WorkerID(workerID)
	if partnerID.Valid {
		w.PartnerID = id.PartnerID(partnerID.UUID)
	}
	w.Email = email.String
	w.DID = did.String
	w.DIDAnchor = models.AnchorStatus(anchor)
	w.DIDTransactionRef = txRef.String
	w.Status = models.OnboardingStatus(status)
	w.NationalIDHash = nationalIDHash.String
	if registeredAt.Valid {
		w.RegisteredAt = &registeredAt.Time
	}
	return &w, nil
}

// Credentials

const credentialColumns = `id, worker_id, credential_type, issuer_type, issuer, verification_status,
	vc_url, external_id, anchor_status, document_hash, document_url, issued_at, expires_at,
	failure_reason, last_checked_at, created_at, updated_at`

func (s *PostgresStore) CreateCredential(ctx context.Context, c *models.Credential) error {
	if c == nil {
		return fmt.Errorf("credential is required")
	}
	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		string(c.ID), uuid.UUID(c.WorkerID), string(c.Type), string(c.Issuer.Type), c.Issuer.Name,
		string(c.Status), nullString(c.VCURL), nullString(c.ExternalID), string(c.AnchorStatus),
		c.DocumentHash, nullString(c.DocumentURL), c.IssuedAt, c.ExpiresAt,
		nullString(c.FailureReason), c.LastCheckedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return translate(err, "create credential")
	}
	return nil
}

func (s *PostgresStore) FindCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	row := s.execer().QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = $1`+s.lockClause(), string(credentialID))
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCredential(ctx context.Context, c *models.Credential) error {
	if c == nil {
		return fmt.Errorf("credential is required")
	}
	res, err := s.execer().ExecContext(ctx, `
		UPDATE credentials
		SET verification_status = $2, vc_url = $3, external_id = $4, anchor_status = $5,
		    failure_reason = $6, last_checked_at = $7, expires_at = $8, updated_at = $9
		WHERE id = $1
	`,
		string(c.ID), string(c.Status), nullString(c.VCURL), nullString(c.ExternalID),
		string(c.AnchorStatus), nullString(c.FailureReason), c.LastCheckedAt, c.ExpiresAt, c.UpdatedAt,
	)
	if err != nil {
		return translate(err, "update credential")
	}
	return requireRow(res, "update credential")
}

func (s *PostgresStore) ListCredentialsByWorker(ctx context.Context, workerID id.WorkerID) ([]*models.Credential, error) {
	rows, err := s.execer().QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE worker_id = $1 ORDER BY created_at, id`,
		uuid.UUID(workerID))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return collectCredentials(rows)
}

func (s *PostgresStore) ListDueCredentials(ctx context.Context, now, checkedBefore time.Time, limit int) ([]*models.Credential, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.execer().QueryContext(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE verification_status = 'verified'
		  AND ((expires_at IS NOT NULL AND expires_at <= $1)
		       OR last_checked_at IS NULL
		       OR last_checked_at < $2)
		ORDER BY last_checked_at NULLS FIRST, id
		LIMIT $3
	`, now, checkedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list due credentials: %w", err)
	}
	return collectCredentials(rows)
}

func (s *PostgresStore) ListAwaitingIssuance(ctx context.Context, limit int) ([]*models.Credential, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.execer().QueryContext(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE verification_status = 'pending'
		  AND vc_url IS NULL
		  AND external_id IS NOT NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list awaiting issuance: %w", err)
	}
	return collectCredentials(rows)
}

func collectCredentials(rows *sql.Rows) ([]*models.Credential, error) {
	defer rows.Close()
	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

func scanCredential(row scanner) (*models.Credential, error) {
	var c models.Credential
	var credentialID string
	var workerID uuid.UUID
	var credType, issuerType, status, anchor string
	var vcURL, externalID, documentURL, failureReason sql.NullString
	var expiresAt, lastCheckedAt sql.NullTime
	if err := row.Scan(&credentialID, &workerID, &credType, &issuerType, &c.Issuer.Name, &status,
		&vcURL, &externalID, &anchor, &c.DocumentHash, &documentURL, &c.IssuedAt, &expiresAt,
		&failureReason, &lastCheckedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = id.CredentialID(credentialID)
	c.WorkerID = id.WorkerID(workerID)
	c.Type = models.CredentialType(credType)
	c.Issuer.Type = models.IssuerType(issuerType)
	c.Status = models.VerificationStatus(status)
	c.VCURL = vcURL.String
	c.ExternalID = externalID.String
	c.AnchorStatus = models.AnchorStatus(anchor)
	c.DocumentURL = documentURL.String
	c.FailureReason = failureReason.String
	if expiresAt.Valid {
		c.ExpiresAt = &expiresAt.Time
	}
	if lastCheckedAt.Valid {
		c.LastCheckedAt = &lastCheckedAt.Time
	}
	return &c, nil
}

// Trust scores

func (s *PostgresStore) FindTrustScore(ctx context.Context, workerID id.WorkerID) (*models.TrustScore, error) {
	var t models.TrustScore
	var scoreID, wID uuid.UUID
	var factors, breakdown []byte
	err := s.execer().QueryRowContext(ctx, `
		SELECT id, worker_id, score, factors, breakdown, snapshot_digest, version, last_calculated
		FROM trust_scores
		WHERE worker_id = $1`+s.lockClause(), uuid.UUID(workerID),
	).Scan(&scoreID, &wID, &t.Score, &factors, &breakdown, &t.SnapshotDigest, &t.Version, &t.LastCalculated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find trust score: %w", err)
	}
	if err := json.Unmarshal(factors, &t.Factors); err != nil {
		return nil, fmt.Errorf("decode trust score factors: %w", err)
	}
	if err := json.Unmarshal(breakdown, &t.Breakdown); err != nil {
		return nil, fmt.Errorf("decode trust score breakdown: %w", err)
	}
	t.ID = id.TrustScoreID(scoreID)
	t.WorkerID = id.WorkerID(wID)
	return &t, nil
}

func (s *PostgresStore) SaveTrustScore(ctx context.Context, t *models.TrustScore) error {
	if t == nil {
		return fmt.Errorf("trust score is required")
	}
	factors, err := json.Marshal(t.Factors)
	if err != nil {
		return fmt.Errorf("encode trust score factors: %w", err)
	}
	breakdown, err := json.Marshal(t.Breakdown)
	if err != nil {
		return fmt.Errorf("encode trust score breakdown: %w", err)
	}
	_, err = s.execer().ExecContext(ctx, `
		INSERT INTO trust_scores (id, worker_id, score, factors, breakdown, snapshot_digest, version, last_calculated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (worker_id) DO UPDATE
		SET score = EXCLUDED.score,
		    factors = EXCLUDED.factors,
		    breakdown = EXCLUDED.breakdown,
		    snapshot_digest = EXCLUDED.snapshot_digest,
		    version = EXCLUDED.version,
		    last_calculated = EXCLUDED.last_calculated
	`,
		uuid.UUID(t.ID), uuid.UUID(t.WorkerID), t.Score, factors, breakdown,
		t.SnapshotDigest, t.Version, t.LastCalculated,
	)
	if err != nil {
		return translate(err, "save trust score")
	}
	return nil
}

// Events

func (s *PostgresStore) AppendEvent(ctx context.Context, event audit.Event) error {
	entry, err := outbox.FromEvent(event)
	if err != nil {
		return err
	}
	return outboxpg.InsertEntry(ctx, s.execer(), entry)
}
