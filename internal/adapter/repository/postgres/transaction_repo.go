package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

const transactionColumns = `id, type, from_account_id, to_account_id, amount, currency, status,
	idempotency_key, milestone_id, reverses_id, reason, metadata, created_at, completed_at`

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction. The idempotency key is unique.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, txn *domain.Transaction) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	var metadata []byte
	if txn.Metadata != nil {
		if metadata, err = marshalJSON(txn.Metadata); err != nil {
			return err
		}
	}

	_, err = q.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		txn.ID,
		txn.Type,
		txn.FromAccountID,
		txn.ToAccountID,
		decimalToNumeric(txn.Amount),
		txn.Currency,
		txn.Status,
		txn.IdempotencyKey,
		txn.MilestoneID,
		txn.ReversesID,
		txn.Reason,
		metadata,
		txn.CreatedAt,
		timestamptz(txn.CompletedAt),
	)
	if constraintViolated(err, pgErrUniqueViolation, constraintTransactionKey) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateOperation, txn.IdempotencyKey)
	}

	return err
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// GetByIDForUpdate retrieves a transaction by ID with a FOR UPDATE lock.
// Reversals lock the original so that concurrent reversals see each other.
func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transaction, error) {
	q, err := txConn(tx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	return scanTransaction(row)
}

// GetByIdempotencyKey retrieves the transaction posted under key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, tx usecase.Transaction, key string) (*domain.Transaction, error) {
	row := conn(r.db, tx).QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key)
	return scanTransaction(row)
}

// SumReversed totals the completed reversals of a transaction.
func (r *TransactionRepository) SumReversed(ctx context.Context, tx usecase.Transaction, originalID string) (decimal.Decimal, error) {
	var sum pgtype.Numeric

	err := conn(r.db, tx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE reverses_id = $1 AND status = $2`,
		originalID, domain.TransactionStatusCompleted,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}

	return numericToDecimal(sum), nil
}

// List returns matching transactions newest first.
func (r *TransactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	f := transactionFilter(filter)
	query := `SELECT ` + transactionColumns + ` FROM transactions` + f.where() +
		` ORDER BY created_at DESC, id DESC` + f.page(filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, f.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]*domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}

	return txns, rows.Err()
}

// Count returns the number of matching transactions.
func (r *TransactionRepository) Count(ctx context.Context, filter domain.TransactionFilter) (int64, error) {
	f := transactionFilter(filter)

	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+f.where(), f.args...).Scan(&count)

	return count, err
}

func transactionFilter(tf domain.TransactionFilter) *filter {
	f := &filter{}
	if tf.Status != "" {
		f.add("status = $%d", tf.Status)
	}
	if tf.Type != "" {
		f.add("type = $%d", tf.Type)
	}
	if tf.MilestoneID != "" {
		f.add("milestone_id = $%d", tf.MilestoneID)
	}
	if tf.AccountID != "" {
		f.add("(from_account_id = $%[1]d OR to_account_id = $%[1]d)", tf.AccountID)
	}
	return f
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t           domain.Transaction
		amount      pgtype.Numeric
		metadata    []byte
		completedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&t.ID,
		&t.Type,
		&t.FromAccountID,
		&t.ToAccountID,
		&amount,
		&t.Currency,
		&t.Status,
		&t.IdempotencyKey,
		&t.MilestoneID,
		&t.ReversesID,
		&t.Reason,
		&metadata,
		&t.CreatedAt,
		&completedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(metadata, &t.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of transaction %s: %w", t.ID, err)
	}

	t.Amount = numericToDecimal(amount)
	t.CompletedAt = nullableTime(completedAt)

	return &t, nil
}
