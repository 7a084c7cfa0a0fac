// Package memory is a single-writer in-memory implementation of the
// usecase repositories. A transaction holds the write lock from Begin to
// Commit or Rollback, so transactions are serializable and plain reads
// only observe committed state.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// ErrTxDone is returned when a finished transaction is committed again.
var ErrTxDone = errors.New("memory: transaction already finished")

// Store holds every table.
type Store struct {
	writer chan struct{}
	mu     sync.RWMutex

	accounts     map[string]*domain.Account
	transactions map[string]*domain.Transaction
	txnOrder     []string
	txnKeys      map[string]string
	milestones   map[string]*domain.Milestone
	requests     map[string]*domain.PaymentRequest
	disputes     map[string]*domain.Dispute
	outbox       map[string]*domain.OutboxEvent
	outboxOrder  []string
	auditLogs    []*domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		writer:       make(chan struct{}, 1),
		accounts:     make(map[string]*domain.Account),
		transactions: make(map[string]*domain.Transaction),
		txnKeys:      make(map[string]string),
		milestones:   make(map[string]*domain.Milestone),
		requests:     make(map[string]*domain.PaymentRequest),
		disputes:     make(map[string]*domain.Dispute),
		outbox:       make(map[string]*domain.OutboxEvent),
	}
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin waits for the write lock and starts a new transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	select {
	case m.store.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.store.mu.Lock()

	return &Tx{store: m.store}, nil
}

// Tx is a memory transaction. Writes apply in place and are undone on
// rollback.
type Tx struct {
	store *Store
	undo  []func()
	done  bool
}

// Commit keeps the writes and releases the write lock. A context that
// expired before commit rolls the transaction back.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}

	if err := ctx.Err(); err != nil {
		_ = t.Rollback(ctx)
		return err
	}

	t.done = true
	t.undo = nil
	t.release()

	return nil
}

// Rollback reverts the writes. It is a no-op on a finished transaction.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}

	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}

	t.done = true
	t.undo = nil
	t.release()

	return nil
}

func (t *Tx) release() {
	t.store.mu.Unlock()
	<-t.store.writer
}

func (t *Tx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

// begin resolves the caller's transaction. Every write goes through it.
func (s *Store) begin(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, fmt.Errorf("memory: expected *memory.Tx, got %T", tx)
	}
	if t.done {
		return nil, ErrTxDone
	}
	if t.store != s {
		return nil, errors.New("memory: transaction belongs to another store")
	}
	return t, nil
}

// read runs fn under the read lock unless tx is a live transaction of this
// store, which already holds the write lock.
func (s *Store) read(tx usecase.Transaction, fn func()) {
	if t, ok := tx.(*Tx); ok && t != nil && !t.done && t.store == s {
		fn()
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// Repositories bundles every repository over one store.
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

// NewRepositories creates every repository over store.
func NewRepositories(store *Store) Repositories {
	return Repositories{
		Accounts:        NewAccountRepository(store),
		Transactions:    NewTransactionRepository(store),
		Milestones:      NewMilestoneRepository(store),
		PaymentRequests: NewPaymentRequestRepository(store),
		Disputes:        NewDisputeRepository(store),
		Ledger:          NewLedgerRepository(store),
		Outbox:          NewOutboxRepository(store),
		Audit:           NewAuditRepository(store),
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func sortByCreated[T any](items []T, createdAt func(T) int64, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := createdAt(items[i]), createdAt(items[j])
		if ci != cj {
			return ci > cj
		}
		return id(items[i]) > id(items[j])
	})
}
