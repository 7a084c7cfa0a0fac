package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/iho/goescrow/internal/usecase"
)

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	db DB
}

// NewTxManager creates a TxManager. Transactions run at the server default
// isolation; row locks taken with FOR UPDATE serialize the escrow workflows.
func NewTxManager(db DB) *TxManager {
	return &TxManager{db: db}
}

// Begin starts a new transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return nil, err
	}

	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback rolls back the transaction. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// PgxTx returns the underlying pgx.Tx.
func (t *Tx) PgxTx() pgx.Tx {
	return t.tx
}
