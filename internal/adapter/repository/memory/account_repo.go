package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	store *Store
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

// CreateTx creates a new account within a transaction.
func (r *AccountRepository) CreateTx(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	if _, exists := r.store.accounts[account.ID]; exists {
		return fmt.Errorf("memory: account %s already exists", account.ID)
	}
	if account.Kind != domain.AccountKindPlatform {
		for _, existing := range r.store.accounts {
			if existing.OwnerID == account.OwnerID && existing.Kind == account.Kind && existing.Currency == account.Currency {
				return fmt.Errorf("%w: %s already has a %s account in %s", domain.ErrConflict, account.OwnerID, account.Kind, account.Currency)
			}
		}
	}

	r.store.accounts[account.ID] = cloneAccount(account)
	t.onRollback(func() { delete(r.store.accounts, account.ID) })

	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate retrieves an account inside the caller's transaction.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	if _, err := r.store.begin(tx); err != nil {
		return nil, err
	}
	return r.get(tx, id)
}

// GetByIDsForUpdate retrieves accounts in the order given.
func (r *AccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Account, error) {
	if _, err := r.store.begin(tx); err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		account, ok := r.store.accounts[id]
		if !ok {
			continue
		}
		accounts = append(accounts, cloneAccount(account))
	}

	return accounts, nil
}

// FindByOwner returns the owner's account of the given kind and currency.
func (r *AccountRepository) FindByOwner(ctx context.Context, tx usecase.Transaction, ownerID string, kind domain.AccountKind, currency string) (*domain.Account, error) {
	var found *domain.Account

	r.store.read(tx, func() {
		for _, account := range r.store.accounts {
			if account.OwnerID != ownerID || account.Kind != kind || account.Currency != currency {
				continue
			}
			// Platform accounts may repeat; the oldest wins.
			if found == nil || account.CreatedAt.Before(found.CreatedAt) ||
				(account.CreatedAt.Equal(found.CreatedAt) && account.ID < found.ID) {
				found = account
			}
		}
	})

	if found == nil {
		return nil, domain.ErrAccountNotFound
	}

	return cloneAccount(found), nil
}

// UpdateBalance sets the cached balance and bumps the version.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, updatedAt time.Time) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	account, ok := r.store.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}

	before := *account
	t.onRollback(func() { *account = before })

	account.Balance = balance
	account.Version++
	account.UpdatedAt = updatedAt

	return nil
}

// List returns accounts oldest first.
func (r *AccountRepository) List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Account, error) {
	var accounts []*domain.Account

	r.store.read(nil, func() {
		accounts = make([]*domain.Account, 0, len(r.store.accounts))
		for _, account := range r.store.accounts {
			if ownerID != "" && account.OwnerID != ownerID {
				continue
			}
			accounts = append(accounts, cloneAccount(account))
		}
	})

	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].ID < accounts[j].ID
	})

	return page(accounts, limit, offset), nil
}

func (r *AccountRepository) get(tx usecase.Transaction, id string) (*domain.Account, error) {
	var account *domain.Account

	r.store.read(tx, func() {
		if a, ok := r.store.accounts[id]; ok {
			account = cloneAccount(a)
		}
	})

	if account == nil {
		return nil, domain.ErrAccountNotFound
	}

	return account, nil
}
