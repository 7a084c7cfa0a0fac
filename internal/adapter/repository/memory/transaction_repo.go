package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	store *Store
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

// Create appends a transaction. The idempotency key is unique.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, txn *domain.Transaction) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	if _, exists := r.store.transactions[txn.ID]; exists {
		return fmt.Errorf("memory: transaction %s already exists", txn.ID)
	}
	if _, taken := r.store.txnKeys[txn.IdempotencyKey]; taken {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateOperation, txn.IdempotencyKey)
	}

	r.store.transactions[txn.ID] = cloneTransaction(txn)
	r.store.txnKeys[txn.IdempotencyKey] = txn.ID
	r.store.txnOrder = append(r.store.txnOrder, txn.ID)

	t.onRollback(func() {
		delete(r.store.transactions, txn.ID)
		delete(r.store.txnKeys, txn.IdempotencyKey)
		r.store.txnOrder = r.store.txnOrder[:len(r.store.txnOrder)-1]
	})

	return nil
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate retrieves a transaction inside the caller's transaction.
func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transaction, error) {
	if _, err := r.store.begin(tx); err != nil {
		return nil, err
	}
	return r.get(tx, id)
}

// GetByIdempotencyKey looks a transaction up by key. tx may be nil.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, tx usecase.Transaction, key string) (*domain.Transaction, error) {
	var txn *domain.Transaction

	r.store.read(tx, func() {
		if id, ok := r.store.txnKeys[key]; ok {
			txn = cloneTransaction(r.store.transactions[id])
		}
	})

	if txn == nil {
		return nil, domain.ErrTransactionNotFound
	}

	return txn, nil
}

// SumReversed totals the completed reversals of originalID.
func (r *TransactionRepository) SumReversed(ctx context.Context, tx usecase.Transaction, originalID string) (decimal.Decimal, error) {
	total := decimal.Zero

	r.store.read(tx, func() {
		for _, txn := range r.store.transactions {
			if txn.ReversesID != nil && *txn.ReversesID == originalID &&
				txn.Status == domain.TransactionStatusCompleted {
				total = total.Add(txn.Amount)
			}
		}
	})

	return total, nil
}

// List returns matching transactions newest first.
func (r *TransactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	matches := r.match(filter)
	return page(matches, filter.Limit, filter.Offset), nil
}

// Count returns the number of matching transactions.
func (r *TransactionRepository) Count(ctx context.Context, filter domain.TransactionFilter) (int64, error) {
	return int64(len(r.match(filter))), nil
}

func (r *TransactionRepository) match(filter domain.TransactionFilter) []*domain.Transaction {
	var matches []*domain.Transaction

	r.store.read(nil, func() {
		for i := len(r.store.txnOrder) - 1; i >= 0; i-- {
			txn := r.store.transactions[r.store.txnOrder[i]]
			if matchesTransaction(txn, filter) {
				matches = append(matches, cloneTransaction(txn))
			}
		}
	})

	return matches
}

func matchesTransaction(txn *domain.Transaction, filter domain.TransactionFilter) bool {
	if filter.Status != "" && txn.Status != filter.Status {
		return false
	}
	if filter.Type != "" && txn.Type != filter.Type {
		return false
	}
	if filter.MilestoneID != "" && domain.Deref(txn.MilestoneID) != filter.MilestoneID {
		return false
	}
	if filter.AccountID != "" &&
		domain.Deref(txn.FromAccountID) != filter.AccountID &&
		domain.Deref(txn.ToAccountID) != filter.AccountID {
		return false
	}
	return true
}

func (r *TransactionRepository) get(tx usecase.Transaction, id string) (*domain.Transaction, error) {
	var txn *domain.Transaction

	r.store.read(tx, func() {
		if t, ok := r.store.transactions[id]; ok {
			txn = cloneTransaction(t)
		}
	})

	if txn == nil {
		return nil, domain.ErrTransactionNotFound
	}

	return txn, nil
}
