package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dErrors "upandup/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// PostgresTx runs ledger operations inside a database transaction.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

// TxOption configures PostgresTx.
type TxOption func(*PostgresTx)

// WithTxTimeout bounds transactions whose context carries no deadline.
func WithTxTimeout(d time.Duration) TxOption {
	return func(t *PostgresTx) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// NewPostgresTxRunner constructs a transaction runner over db.
func NewPostgresTxRunner(db *sql.DB, opts ...TxOption) *PostgresTx {
	if db == nil {
		panic("db is required")
	}
	t := &PostgresTx{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RunInTx implements TxRunner.
func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if err := checkTxContext(ctx); err != nil {
		return err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	if err := fn(ctx, NewPostgresTx(tx)); err != nil {
		return err
	}
	if err := checkTxContext(ctx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func checkTxContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return nil
}
