package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

const accountColumns = `id, kind, owner_id, name, currency, balance, version, active, created_at, updated_at`

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// CreateTx creates a new account within a transaction.
func (r *AccountRepository) CreateTx(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID,
		account.Kind,
		account.OwnerID,
		account.Name,
		account.Currency,
		decimalToNumeric(account.Balance),
		account.Version,
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if constraintViolated(err, pgErrUniqueViolation, constraintAccountOwner) {
		return fmt.Errorf("%w: %s already has a %s account in %s", domain.ErrConflict, account.OwnerID, account.Kind, account.Currency)
	}

	return err
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByIDForUpdate retrieves an account by ID with a FOR UPDATE lock.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	q, err := txConn(tx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

// GetByIDsForUpdate locks the accounts one by one in the order given, so
// that callers passing sorted ids never deadlock each other.
func (r *AccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Account, error) {
	accounts := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		account, err := r.GetByIDForUpdate(ctx, tx, id)
		if errors.Is(err, domain.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, nil
}

// FindByOwner returns the oldest account of the owner with the given kind and currency.
func (r *AccountRepository) FindByOwner(ctx context.Context, tx usecase.Transaction, ownerID string, kind domain.AccountKind, currency string) (*domain.Account, error) {
	row := conn(r.db, tx).QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE owner_id = $1 AND kind = $2 AND currency = $3
		ORDER BY created_at, id
		LIMIT 1`,
		ownerID, kind, currency,
	)
	return scanAccount(row)
}

// UpdateBalance sets the cached balance and bumps the version.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, updatedAt time.Time) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE accounts
		SET balance = $2, version = version + 1, updated_at = $3
		WHERE id = $1`,
		id, decimalToNumeric(balance), updatedAt,
	)
	if constraintViolated(err, pgErrCheckViolation, constraintAccountBalance) {
		return fmt.Errorf("%w: account %s", domain.ErrInsufficientFunds, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// List returns accounts oldest first.
func (r *AccountRepository) List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Account, error) {
	f := &filter{}
	if ownerID != "" {
		f.add("owner_id = $%d", ownerID)
	}
	query := `SELECT ` + accountColumns + ` FROM accounts` + f.where() + ` ORDER BY created_at, id` + f.page(limit, offset)

	rows, err := r.db.Query(ctx, query, f.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a       domain.Account
		balance pgtype.Numeric
	)

	err := row.Scan(
		&a.ID,
		&a.Kind,
		&a.OwnerID,
		&a.Name,
		&a.Currency,
		&balance,
		&a.Version,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Balance = numericToDecimal(balance)

	return &a, nil
}
