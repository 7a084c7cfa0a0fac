package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
)

// AccountRepository defines data access for accounts.
type AccountRepository interface {
	CreateTx(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Account, error)
	// GetByIDsForUpdate locks the accounts in the order given. Callers sort ids.
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Account, error)
	// FindByOwner returns domain.ErrAccountNotFound when the owner has no account of that kind.
	FindByOwner(ctx context.Context, tx Transaction, ownerID string, kind domain.AccountKind, currency string) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx Transaction, id string, balance decimal.Decimal, updatedAt time.Time) error
	// List pages through accounts. A non-empty ownerID keeps only that owner's.
	List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Account, error)
}

// TransactionRepository defines data access for ledger transactions.
type TransactionRepository interface {
	// Create returns domain.ErrDuplicateOperation when the idempotency key is taken.
	Create(ctx context.Context, tx Transaction, txn *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, tx Transaction, key string) (*domain.Transaction, error)
	SumReversed(ctx context.Context, tx Transaction, originalID string) (decimal.Decimal, error)
	List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
	Count(ctx context.Context, filter domain.TransactionFilter) (int64, error)
}

// MilestoneRepository defines data access for milestones.
type MilestoneRepository interface {
	Create(ctx context.Context, tx Transaction, milestone *domain.Milestone) error
	GetByID(ctx context.Context, id string) (*domain.Milestone, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Milestone, error)
	// Update persists milestone if its version is unchanged and bumps the
	// version, otherwise it returns domain.ErrConflict.
	Update(ctx context.Context, tx Transaction, milestone *domain.Milestone) error
	// ListByProject pages through a project. A non-empty partyID keeps only
	// milestones where that user is client or vendor.
	ListByProject(ctx context.Context, projectID, partyID string, limit, offset int) ([]*domain.Milestone, error)
}

// PaymentRequestRepository defines data access for payment requests.
type PaymentRequestRepository interface {
	// Create returns domain.ErrRequestInFlight when the milestone already has an open request.
	Create(ctx context.Context, tx Transaction, request *domain.PaymentRequest) error
	GetByID(ctx context.Context, id string) (*domain.PaymentRequest, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.PaymentRequest, error)
	Update(ctx context.Context, tx Transaction, request *domain.PaymentRequest) error
	// GetOpenByMilestone returns domain.ErrPaymentRequestNotFound when nothing is open.
	GetOpenByMilestone(ctx context.Context, tx Transaction, milestoneID string) (*domain.PaymentRequest, error)
	List(ctx context.Context, filter domain.PaymentRequestFilter) ([]*domain.PaymentRequest, error)
	Count(ctx context.Context, filter domain.PaymentRequestFilter) (int64, error)
}

// DisputeRepository defines data access for disputes.
type DisputeRepository interface {
	// Create returns domain.ErrConflict when the milestone already has an active dispute.
	Create(ctx context.Context, tx Transaction, dispute *domain.Dispute) error
	GetByID(ctx context.Context, id string) (*domain.Dispute, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Dispute, error)
	Update(ctx context.Context, tx Transaction, dispute *domain.Dispute) error
	// GetActiveByMilestone returns domain.ErrDisputeNotFound when no dispute is active.
	GetActiveByMilestone(ctx context.Context, tx Transaction, milestoneID string) (*domain.Dispute, error)
	List(ctx context.Context, filter domain.DisputeFilter) ([]*domain.Dispute, error)
	Count(ctx context.Context, filter domain.DisputeFilter) (int64, error)
}

// LedgerRepository defines read-only ledger-wide queries.
type LedgerRepository interface {
	// ComputedBalance sums completed transactions touching the account.
	ComputedBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	AccountBalances(ctx context.Context) ([]domain.AccountBalanceCheck, error)
	MilestoneSettlements(ctx context.Context) ([]domain.MilestoneSettlementCheck, error)
	// EscrowCoverage pairs every escrow account with the sum its milestones hold.
	EscrowCoverage(ctx context.Context) ([]domain.EscrowCoverageCheck, error)
	Summary(ctx context.Context) ([]domain.CurrencyTotals, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation whose whole transaction was rolled back by
// a deadlock or serialization failure.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations. Get returns an error on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key whose request failed so that it can be retried.
	Release(ctx context.Context, key string) error
}
