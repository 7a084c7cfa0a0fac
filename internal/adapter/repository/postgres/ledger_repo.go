package postgres

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
)

// LedgerRepository implements usecase.LedgerRepository with aggregate queries.
type LedgerRepository struct {
	db DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// ComputedBalance sums completed credits minus debits of an account.
func (r *LedgerRepository) ComputedBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var balance pgtype.Numeric

	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN to_account_id = $1 THEN amount ELSE -amount END), 0)
		FROM transactions
		WHERE status = $2 AND (from_account_id = $1 OR to_account_id = $1)`,
		accountID, domain.TransactionStatusCompleted,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, err
	}

	return numericToDecimal(balance), nil
}

// AccountBalances pairs every cached balance with its computed value.
func (r *LedgerRepository) AccountBalances(ctx context.Context) ([]domain.AccountBalanceCheck, error) {
	rows, err := r.db.Query(ctx, `
		WITH flows AS (
			SELECT to_account_id AS account_id, amount
			FROM transactions
			WHERE status = $1 AND to_account_id IS NOT NULL
			UNION ALL
			SELECT from_account_id, -amount
			FROM transactions
			WHERE status = $1 AND from_account_id IS NOT NULL
		)
		SELECT a.id, a.currency, a.balance, COALESCE(SUM(f.amount), 0)
		FROM accounts a
		LEFT JOIN flows f ON f.account_id = a.id
		GROUP BY a.id, a.currency, a.balance
		ORDER BY a.id`,
		domain.TransactionStatusCompleted,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checks := make([]domain.AccountBalanceCheck, 0)
	for rows.Next() {
		var (
			check            domain.AccountBalanceCheck
			cached, computed pgtype.Numeric
		)
		if err := rows.Scan(&check.AccountID, &check.Currency, &cached, &computed); err != nil {
			return nil, err
		}
		check.Cached = numericToDecimal(cached)
		check.Computed = numericToDecimal(computed)
		checks = append(checks, check)
	}

	return checks, rows.Err()
}

// MilestoneSettlements pairs every milestone's counters with the sum of its
// settlement transactions. An unfunded milestone has escrowed nothing.
func (r *LedgerRepository) MilestoneSettlements(ctx context.Context) ([]domain.MilestoneSettlementCheck, error) {
	rows, err := r.db.Query(ctx, `
		SELECT m.id, m.status, m.is_paid,
		       CASE WHEN m.funded_at IS NULL THEN 0 ELSE m.amount END,
		       m.released, m.refunded, COALESCE(s.settled, 0)
		FROM milestones m
		LEFT JOIN (
			SELECT milestone_id, SUM(amount) AS settled
			FROM transactions
			WHERE status = $1
			  AND milestone_id IS NOT NULL
			  AND reverses_id IS NULL
			  AND type IN ($2, $3, $4)
			GROUP BY milestone_id
		) s ON s.milestone_id = m.id
		ORDER BY m.id`,
		domain.TransactionStatusCompleted,
		domain.TransactionTypePayment,
		domain.TransactionTypeRefund,
		domain.TransactionTypeFee,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checks := make([]domain.MilestoneSettlementCheck, 0)
	for rows.Next() {
		var (
			check                                 domain.MilestoneSettlementCheck
			escrowed, released, refunded, settled pgtype.Numeric
		)
		if err := rows.Scan(&check.MilestoneID, &check.Status, &check.IsPaid, &escrowed, &released, &refunded, &settled); err != nil {
			return nil, err
		}
		check.Escrowed = numericToDecimal(escrowed)
		check.Released = numericToDecimal(released)
		check.Refunded = numericToDecimal(refunded)
		check.Settled = numericToDecimal(settled)
		checks = append(checks, check)
	}

	return checks, rows.Err()
}

// EscrowCoverage pairs every escrow account balance with the sum its funded
// milestones still hold.
func (r *LedgerRepository) EscrowCoverage(ctx context.Context) ([]domain.EscrowCoverageCheck, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.currency, a.balance,
		       COALESCE(SUM(m.amount - m.released - m.refunded) FILTER (WHERE m.funded_at IS NOT NULL), 0)
		FROM accounts a
		LEFT JOIN milestones m ON m.escrow_account_id = a.id
		WHERE a.kind = $1
		GROUP BY a.id, a.currency, a.balance
		ORDER BY a.id`,
		domain.AccountKindEscrow,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checks := make([]domain.EscrowCoverageCheck, 0)
	for rows.Next() {
		var (
			check         domain.EscrowCoverageCheck
			balance, held pgtype.Numeric
		)
		if err := rows.Scan(&check.AccountID, &check.Currency, &balance, &held); err != nil {
			return nil, err
		}
		check.Balance = numericToDecimal(balance)
		check.Held = numericToDecimal(held)
		checks = append(checks, check)
	}

	return checks, rows.Err()
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

	held, err := r.db.Query(ctx, `
		SELECT currency, SUM(balance)
		FROM accounts
		WHERE kind = $1
		GROUP BY currency`,
		domain.AccountKindEscrow,
	)
	if err != nil {
		return nil, err
	}
	for held.Next() {
		var (
			currency string
			sum      pgtype.Numeric
		)
		if err := held.Scan(&currency, &sum); err != nil {
			held.Close()
			return nil, err
		}
		totalsFor(currency).EscrowHeld = numericToDecimal(sum)
	}
	held.Close()
	if err := held.Err(); err != nil {
		return nil, err
	}

	flows, err := r.db.Query(ctx, `
		SELECT currency, type, SUM(amount)
		FROM transactions
		WHERE status = $1
		GROUP BY currency, type`,
		domain.TransactionStatusCompleted,
	)
	if err != nil {
		return nil, err
	}
	defer flows.Close()

	for flows.Next() {
		var (
			currency string
			txnType  domain.TransactionType
			sum      pgtype.Numeric
		)
		if err := flows.Scan(&currency, &txnType, &sum); err != nil {
			return nil, err
		}

		amount := numericToDecimal(sum)
		totals := totalsFor(currency)
		switch txnType {
		case domain.TransactionTypeDeposit:
			totals.Deposited = amount
		case domain.TransactionTypePayment:
			totals.Released = amount
		case domain.TransactionTypeRefund:
			totals.Refunded = amount
		case domain.TransactionTypeFee:
			totals.Fees = amount
		case domain.TransactionTypeWithdrawal:
			totals.Withdrawn = amount
		}
	}
	if err := flows.Err(); err != nil {
		return nil, err
	}

	summary := make([]domain.CurrencyTotals, 0, len(byCurrency))
	for _, totals := range byCurrency {
		summary = append(summary, *totals)
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Currency < summary[j].Currency })

	return summary, nil
}
