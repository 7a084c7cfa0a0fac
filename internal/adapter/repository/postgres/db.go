package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/usecase"
)

// DB is the subset of *pgxpool.Pool the repositories need.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgreSQL error codes mapped to domain errors.
const (
	pgErrUniqueViolation = "23505"
	pgErrCheckViolation  = "23514"
)

const (
	constraintTransactionKey = "transactions_idempotency_key_key"
	constraintOpenRequest    = "payment_requests_one_open_per_milestone"
	constraintActiveDispute  = "disputes_one_active_per_milestone"
	constraintAccountOwner   = "accounts_owner_kind_currency_key"
	constraintAccountBalance = "accounts_balance_check"

	defaultListLimit = 100
)

var errNotInTransaction = errors.New("postgres: write outside a transaction")

// conn reads through the caller's transaction when there is one.
func conn(db DB, tx usecase.Transaction) querier {
	if t, ok := tx.(*Tx); ok && t != nil {
		return t.tx
	}
	return db
}

// txConn returns the pgx transaction behind tx. Writes must go through it.
func txConn(tx usecase.Transaction) (querier, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, errNotInTransaction
	}
	return t.tx, nil
}

func constraintViolated(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == code && pgErr.ConstraintName == constraint
}

// filter accumulates AND-ed predicates with positional arguments. Each
// clause is a format string whose %[1]d is replaced by the argument index.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) add(clause string, arg any) {
	f.args = append(f.args, arg)
	f.clauses = append(f.clauses, fmt.Sprintf(clause, len(f.args)))
}

func (f *filter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// page appends LIMIT and OFFSET. A non-positive limit falls back to the default.
func (f *filter) page(limit, offset int) string {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	f.args = append(f.args, limit, offset)

	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(f.args)-1, len(f.args))
}

// Type conversion helpers.
func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func nullableTime(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// Repositories bundles every repository over one pool.
type Repositories struct {
	Accounts        *AccountRepository
	Transactions    *TransactionRepository
	Milestones      *MilestoneRepository
	PaymentRequests *PaymentRequestRepository
	Disputes        *DisputeRepository
	Ledger          *LedgerRepository
	Outbox          *OutboxRepository
	Audit           *AuditRepository
}

// NewRepositories creates every repository over db.
func NewRepositories(db DB) Repositories {
	return Repositories{
		Accounts:        NewAccountRepository(db),
		Transactions:    NewTransactionRepository(db),
		Milestones:      NewMilestoneRepository(db),
		PaymentRequests: NewPaymentRequestRepository(db),
		Disputes:        NewDisputeRepository(db),
		Ledger:          NewLedgerRepository(db),
		Outbox:          NewOutboxRepository(db),
		Audit:           NewAuditRepository(db),
	}
}
