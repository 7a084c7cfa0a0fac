package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	store *Store
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(store *Store) *LedgerRepository {
	return &LedgerRepository{store: store}
}

// ComputedBalance sums completed credits minus debits of an account.
func (r *LedgerRepository) ComputedBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal

	r.store.read(nil, func() {
		balance = r.computed()[accountID]
	})

	return balance, nil
}

// AccountBalances pairs every cached balance with its computed value.
func (r *LedgerRepository) AccountBalances(ctx context.Context) ([]domain.AccountBalanceCheck, error) {
	var checks []domain.AccountBalanceCheck

	r.store.read(nil, func() {
		computed := r.computed()
		checks = make([]domain.AccountBalanceCheck, 0, len(r.store.accounts))
		for _, account := range r.store.accounts {
			checks = append(checks, domain.AccountBalanceCheck{
				AccountID: account.ID,
				Currency:  account.Currency,
				Cached:    account.Balance,
				Computed:  computed[account.ID],
			})
		}
	})

	sort.Slice(checks, func(i, j int) bool { return checks[i].AccountID < checks[j].AccountID })

	return checks, nil
}

// MilestoneSettlements pairs every milestone's counters with the sum of its
// settlement transactions.
func (r *LedgerRepository) MilestoneSettlements(ctx context.Context) ([]domain.MilestoneSettlementCheck, error) {
	var checks []domain.MilestoneSettlementCheck

	r.store.read(nil, func() {
		settled := make(map[string]decimal.Decimal)
		for _, txn := range r.store.transactions {
			if txn.IsSettlement() {
				settled[*txn.MilestoneID] = settled[*txn.MilestoneID].Add(txn.Amount)
			}
		}

		checks = make([]domain.MilestoneSettlementCheck, 0, len(r.store.milestones))
		for _, m := range r.store.milestones {
			escrowed := decimal.Zero
			if m.IsFunded() {
				escrowed = m.Amount
			}
			checks = append(checks, domain.MilestoneSettlementCheck{
				MilestoneID: m.ID,
				Status:      m.Status,
				IsPaid:      m.IsPaid,
				Escrowed:    escrowed,
				Released:    m.Released,
				Refunded:    m.Refunded,
				Settled:     settled[m.ID],
			})
		}
	})

	sort.Slice(checks, func(i, j int) bool { return checks[i].MilestoneID < checks[j].MilestoneID })

	return checks, nil
}

// EscrowCoverage pairs every escrow account balance with the sum its funded
// milestones still hold.
func (r *LedgerRepository) EscrowCoverage(ctx context.Context) ([]domain.EscrowCoverageCheck, error) {
	var checks []domain.EscrowCoverageCheck

	r.store.read(nil, func() {
		held := make(map[string]decimal.Decimal)
		for _, m := range r.store.milestones {
			held[m.EscrowAccountID] = held[m.EscrowAccountID].Add(m.Held())
		}

		checks = make([]domain.EscrowCoverageCheck, 0)
		for _, account := range r.store.accounts {
			if account.Kind != domain.AccountKindEscrow {
				continue
			}
			checks = append(checks, domain.EscrowCoverageCheck{
				AccountID: account.ID,
				Currency:  account.Currency,
				Balance:   account.Balance,
				Held:      held[account.ID],
			})
		}
	})

	sort.Slice(checks, func(i, j int) bool { return checks[i].AccountID < checks[j].AccountID })

	return checks, nil
}

// Summary totals completed activity per currency. EscrowHeld is the sum of
// ESCROW account balances.
func (r *LedgerRepository) Summary(ctx context.Context) ([]domain.CurrencyTotals, error) {
	byCurrency := make(map[string]*domain.CurrencyTotals)
	totalsFor := func(currency string) *domain.CurrencyTotals {
		totals, ok := byCurrency[currency]
		if !ok {
			totals = &domain.CurrencyTotals{Currency: currency}
			byCurrency[currency] = totals
		}
		return totals
	}

	r.store.read(nil, func() {
		for _, account := range r.store.accounts {
			if account.Kind == domain.AccountKindEscrow {
				totals := totalsFor(account.Currency)
				totals.EscrowHeld = totals.EscrowHeld.Add(account.Balance)
			}
		}

		for _, txn := range r.store.transactions {
			if txn.Status != domain.TransactionStatusCompleted {
				continue
			}
			totals := totalsFor(txn.Currency)
			switch txn.Type {
			case domain.TransactionTypeDeposit:
				totals.Deposited = totals.Deposited.Add(txn.Amount)
			case domain.TransactionTypePayment:
				totals.Released = totals.Released.Add(txn.Amount)
			case domain.TransactionTypeRefund:
				totals.Refunded = totals.Refunded.Add(txn.Amount)
			case domain.TransactionTypeFee:
				totals.Fees = totals.Fees.Add(txn.Amount)
			case domain.TransactionTypeWithdrawal:
				totals.Withdrawn = totals.Withdrawn.Add(txn.Amount)
			}
		}
	})

	summary := make([]domain.CurrencyTotals, 0, len(byCurrency))
	for _, totals := range byCurrency {
		summary = append(summary, *totals)
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Currency < summary[j].Currency })

	return summary, nil
}

// computed must be called with the store locked.
func (r *LedgerRepository) computed() map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal)
	for _, txn := range r.store.transactions {
		if txn.Status != domain.TransactionStatusCompleted {
			continue
		}
		if txn.FromAccountID != nil {
			balances[*txn.FromAccountID] = balances[*txn.FromAccountID].Sub(txn.Amount)
		}
		if txn.ToAccountID != nil {
			balances[*txn.ToAccountID] = balances[*txn.ToAccountID].Add(txn.Amount)
		}
	}
	return balances
}
