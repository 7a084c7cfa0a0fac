package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind classifies who an account holds money for.
type AccountKind string

const (
	AccountKindClient   AccountKind = "CLIENT"
	AccountKindVendor   AccountKind = "VENDOR"
	AccountKindPlatform AccountKind = "PLATFORM"
	AccountKindEscrow   AccountKind = "ESCROW"
)

// IsValid reports whether k is a known account kind.
func (k AccountKind) IsValid() bool {
	switch k {
	case AccountKindClient, AccountKindVendor, AccountKindPlatform, AccountKindEscrow:
		return true
	}
	return false
}

// Account is a balance holder. Balance is a cached projection of the
// completed transactions touching the account and Version increments on
// every balance change.
type Account struct {
	ID        string
	Kind      AccountKind
	OwnerID   string
	Name      string
	Currency  string
	Balance   decimal.Decimal
	Version   int64
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateDebit checks if account can be debited by amount.
func (a *Account) ValidateDebit(amount decimal.Decimal) error {
	if !a.Active {
		return ErrAccountInactive
	}
	if a.Balance.Sub(amount).IsNegative() {
		return ErrInsufficientFunds
	}
	return nil
}

// ValidateCredit checks if account can be credited by amount.
func (a *Account) ValidateCredit(amount decimal.Decimal) error {
	if !a.Active {
		return ErrAccountInactive
	}
	return nil
}

// ApplyDebit returns new balance after debit.
func (a *Account) ApplyDebit(amount decimal.Decimal) decimal.Decimal {
	return a.Balance.Sub(amount)
}

// ApplyCredit returns new balance after credit.
func (a *Account) ApplyCredit(amount decimal.Decimal) decimal.Decimal {
	return a.Balance.Add(amount)
}
