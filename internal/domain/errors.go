package domain

import "errors"

var (
	// Account errors
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidAccountKind = errors.New("invalid account kind")
	ErrInsufficientFunds  = errors.New("insufficient funds")

	// Transaction errors
	ErrSameAccount         = errors.New("source and destination accounts must differ")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrCurrencyMismatch    = errors.New("currency mismatch between accounts")
	ErrInvalidTransaction  = errors.New("invalid transaction shape")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateOperation  = errors.New("idempotency key already used for a different operation")

	// Milestone errors
	ErrMilestoneNotFound = errors.New("milestone not found")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrAlreadySettled    = errors.New("milestone already settled")
	ErrMilestoneFrozen   = errors.New("milestone is frozen by an active dispute")

	// Payment request errors
	ErrPaymentRequestNotFound = errors.New("payment request not found")
	ErrRequestInFlight        = errors.New("milestone already has an open payment request")

	// Dispute errors
	ErrDisputeNotFound         = errors.New("dispute not found")
	ErrInvalidResolutionType   = errors.New("invalid resolution type")
	ErrInvalidResolutionAmount = errors.New("invalid resolution amount")
	ErrSplitMismatch           = errors.New("split amounts do not add up to escrow amount")

	// ErrConflict is returned when a row changed underneath an update.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrInconsistentLedger is reported by reconciliation when cached state
	// disagrees with the transaction log.
	ErrInconsistentLedger = errors.New("ledger is inconsistent")
)
