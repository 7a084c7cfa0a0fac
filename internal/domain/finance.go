package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyTotals aggregates ledger activity for one currency.
type CurrencyTotals struct {
	Currency   string          `json:"currency"`
	EscrowHeld decimal.Decimal `json:"escrow_held"`
	Deposited  decimal.Decimal `json:"deposited"`
	Released   decimal.Decimal `json:"released"`
	Refunded   decimal.Decimal `json:"refunded"`
	Fees       decimal.Decimal `json:"fees"`
	Withdrawn  decimal.Decimal `json:"withdrawn"`
}

// FinanceDashboard is the read model behind the finance overview.
type FinanceDashboard struct {
	Totals                  []CurrencyTotals `json:"totals"`
	PendingPaymentRequests  int64            `json:"pending_payment_requests"`
	ApprovedPaymentRequests int64            `json:"approved_payment_requests"`
	OpenDisputes            int64            `json:"open_disputes"`
	InvestigatingDisputes   int64            `json:"investigating_disputes"`
	TransactionCount        int64            `json:"transaction_count"`
	GeneratedAt             time.Time        `json:"generated_at"`
}

// AccountBalanceCheck compares an account's cached balance with the balance
// derived from its completed transactions.
type AccountBalanceCheck struct {
	AccountID string
	Currency  string
	Cached    decimal.Decimal
	Computed  decimal.Decimal
}

// MilestoneSettlementCheck compares a milestone's counters with the sum of
// its settlement transactions.
type MilestoneSettlementCheck struct {
	MilestoneID string
	Status      MilestoneStatus
	IsPaid      bool
	Escrowed    decimal.Decimal
	Released    decimal.Decimal
	Refunded    decimal.Decimal
	Settled     decimal.Decimal
}

// Problems lists every conservation rule the milestone breaks.
func (c MilestoneSettlementCheck) Problems() []string {
	var problems []string

	if c.Settled.GreaterThan(c.Escrowed) {
		problems = append(problems, "settled exceeds escrowed")
	}

	if !c.Settled.Equal(c.Released.Add(c.Refunded)) {
		problems = append(problems, "settled does not match released plus refunded")
	}

	if c.Status.IsTerminal() && !c.Settled.Equal(c.Escrowed) {
		problems = append(problems, "terminal milestone did not settle its full escrow")
	}

	if c.IsPaid != (c.Status == MilestoneStatusPaid) {
		problems = append(problems, "paid flag disagrees with status")
	}

	return problems
}

// EscrowCoverageCheck compares an escrow account's balance with the amount
// its milestones still hold.
type EscrowCoverageCheck struct {
	AccountID string
	Currency  string
	Balance   decimal.Decimal
	Held      decimal.Decimal
}

// Problem describes how the balance disagrees with the held total, or
// returns "" when they match.
func (c EscrowCoverageCheck) Problem() string {
	switch {
	case c.Balance.LessThan(c.Held):
		return "escrow balance does not cover held milestones"
	case c.Balance.GreaterThan(c.Held):
		return "escrow balance exceeds held milestones"
	}
	return ""
}
