package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the business meaning of a money movement.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypePayment    TransactionType = "PAYMENT"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeFee        TransactionType = "FEE"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypePayment, TransactionTypeRefund,
		TransactionTypeFee, TransactionTypeWithdrawal:
		return true
	}
	return false
}

// TransactionStatus tracks a transaction's processing state.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
)

// IsValid reports whether s is a known transaction status.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusProcessing,
		TransactionStatusCompleted, TransactionStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Transaction is an immutable record of value moved between two accounts.
// A nil FromAccountID mints value (deposit); a nil ToAccountID burns it
// (withdrawal or the reversal of a deposit).
type Transaction struct {
	ID             string
	Type           TransactionType
	FromAccountID  *string
	ToAccountID    *string
	Amount         decimal.Decimal
	Currency       string
	Status         TransactionStatus
	IdempotencyKey string
	MilestoneID    *string
	ReversesID     *string
	Reason         string
	Metadata       map[string]any
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// Validate checks amount and the account shape required by the type.
func (t *Transaction) Validate() error {
	if !t.Type.IsValid() {
		return ErrInvalidTransaction
	}

	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if t.FromAccountID != nil && t.ToAccountID != nil && *t.FromAccountID == *t.ToAccountID {
		return ErrSameAccount
	}

	hasFrom := t.FromAccountID != nil
	hasTo := t.ToAccountID != nil

	switch t.Type {
	case TransactionTypeDeposit:
		if hasFrom || !hasTo {
			return ErrInvalidTransaction
		}
	case TransactionTypeWithdrawal:
		if !hasFrom || hasTo {
			return ErrInvalidTransaction
		}
	case TransactionTypeRefund:
		// A reversal of a deposit burns the funds, so only reversals may omit the destination.
		if !hasFrom || (!hasTo && t.ReversesID == nil) {
			return ErrInvalidTransaction
		}
	default:
		if !hasFrom || !hasTo {
			return ErrInvalidTransaction
		}
	}

	return nil
}

// IsSettlement reports whether the transaction discharges milestone escrow.
func (t *Transaction) IsSettlement() bool {
	if t.Status != TransactionStatusCompleted || t.MilestoneID == nil || t.ReversesID != nil {
		return false
	}

	switch t.Type {
	case TransactionTypePayment, TransactionTypeRefund, TransactionTypeFee:
		return true
	}
	return false
}

// IsReversal reports whether t reverses another transaction.
func (t *Transaction) IsReversal() bool {
	return t.ReversesID != nil
}

// SameOperation reports whether other describes the same movement. Used to
// tell an idempotent replay apart from a key reused for something else.
func (t *Transaction) SameOperation(other *Transaction) bool {
	return t.Type == other.Type &&
		equalRef(t.FromAccountID, other.FromAccountID) &&
		equalRef(t.ToAccountID, other.ToAccountID) &&
		equalRef(t.MilestoneID, other.MilestoneID) &&
		equalRef(t.ReversesID, other.ReversesID) &&
		t.Amount.Equal(other.Amount)
}

func equalRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	Status      TransactionStatus
	Type        TransactionType
	AccountID   string
	MilestoneID string
	Limit       int
	Offset      int
}

// StringRef returns a pointer to s, or nil when s is empty.
func StringRef(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
