package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
)

// ReconciliationUseCase handles balance reconciliation operations
type ReconciliationUseCase struct {
	accountRepo AccountRepository
	ledgerRepo  LedgerRepository
	metrics     *metrics.Metrics
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(
	accountRepo AccountRepository,
	ledgerRepo LedgerRepository,
	metrics *metrics.Metrics,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		metrics:     metrics,
	}
}

// ReconciliationResult represents the result of a reconciliation check
type ReconciliationResult struct {
	AccountID         string
	Currency          string
	RecordedBalance   decimal.Decimal
	CalculatedBalance decimal.Decimal
	Difference        decimal.Decimal
	IsReconciled      bool
	LastChecked       time.Time
}

func newReconciliationResult(check domain.AccountBalanceCheck, now time.Time) *ReconciliationResult {
	diff := check.Cached.Sub(check.Computed)

	return &ReconciliationResult{
		AccountID:         check.AccountID,
		Currency:          check.Currency,
		RecordedBalance:   check.Cached,
		CalculatedBalance: check.Computed,
		Difference:        diff,
		IsReconciled:      diff.IsZero(),
		LastChecked:       now,
	}
}

// ReconcileAccount compares an account's cached balance with the sum of its
// completed transactions.
func (uc *ReconciliationUseCase) ReconcileAccount(ctx context.Context, accountID string) (*ReconciliationResult, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	computed, err := uc.ledgerRepo.ComputedBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return newReconciliationResult(domain.AccountBalanceCheck{
		AccountID: account.ID,
		Currency:  account.Currency,
		Cached:    account.Balance,
		Computed:  computed,
	}, time.Now().UTC()), nil
}

// ReconcileAllAccounts reconciles all accounts in the system
func (uc *ReconciliationUseCase) ReconcileAllAccounts(ctx context.Context) ([]*ReconciliationResult, error) {
	checks, err := uc.ledgerRepo.AccountBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load account balances: %w", err)
	}

	now := time.Now().UTC()
	results := make([]*ReconciliationResult, 0, len(checks))
	for _, check := range checks {
		results = append(results, newReconciliationResult(check, now))
	}

	return results, nil
}

// MilestoneDiscrepancy describes a milestone whose counters disagree with
// its settlement transactions.
type MilestoneDiscrepancy struct {
	MilestoneID string
	Status      domain.MilestoneStatus
	Escrowed    decimal.Decimal
	Settled     decimal.Decimal
	Problems    []string
}

// CheckMilestones verifies conservation for every milestone.
func (uc *ReconciliationUseCase) CheckMilestones(ctx context.Context) ([]MilestoneDiscrepancy, error) {
	checks, err := uc.ledgerRepo.MilestoneSettlements(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load milestone settlements: %w", err)
	}

	return milestoneDiscrepancies(checks), nil
}

func milestoneDiscrepancies(checks []domain.MilestoneSettlementCheck) []MilestoneDiscrepancy {
	discrepancies := make([]MilestoneDiscrepancy, 0)
	for _, check := range checks {
		problems := check.Problems()
		if len(problems) == 0 {
			continue
		}
		discrepancies = append(discrepancies, MilestoneDiscrepancy{
			MilestoneID: check.MilestoneID,
			Status:      check.Status,
			Escrowed:    check.Escrowed,
			Settled:     check.Settled,
			Problems:    problems,
		})
	}

	return discrepancies
}

// EscrowDiscrepancy describes an escrow account whose balance differs from
// what its milestones hold.
type EscrowDiscrepancy struct {
	AccountID string
	Currency  string
	Balance   decimal.Decimal
	Held      decimal.Decimal
	Problem   string
}

// CheckEscrowCoverage verifies that every escrow account holds exactly the
// unsettled amount of its funded milestones.
func (uc *ReconciliationUseCase) CheckEscrowCoverage(ctx context.Context) ([]EscrowDiscrepancy, error) {
	checks, err := uc.ledgerRepo.EscrowCoverage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow coverage: %w", err)
	}

	return escrowDiscrepancies(checks), nil
}

func escrowDiscrepancies(checks []domain.EscrowCoverageCheck) []EscrowDiscrepancy {
	discrepancies := make([]EscrowDiscrepancy, 0)
	for _, check := range checks {
		problem := check.Problem()
		if problem == "" {
			continue
		}
		discrepancies = append(discrepancies, EscrowDiscrepancy{
			AccountID: check.AccountID,
			Currency:  check.Currency,
			Balance:   check.Balance,
			Held:      check.Held,
			Problem:   problem,
		})
	}

	return discrepancies
}

// CheckLedgerConsistency returns domain.ErrInconsistentLedger when any
// account balance, milestone settlement or escrow total disagrees with the
// log.
func (uc *ReconciliationUseCase) CheckLedgerConsistency(ctx context.Context) error {
	report, err := uc.GenerateReconciliationReport(ctx)
	if err != nil {
		return err
	}

	if !report.LedgerConsistent {
		return fmt.Errorf(
			"%w: %d account discrepancies, %d milestone discrepancies, %d escrow discrepancies",
			domain.ErrInconsistentLedger,
			len(report.Discrepancies),
			len(report.MilestoneDiscrepancies),
			len(report.EscrowDiscrepancies),
		)
	}

	return nil
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalAccounts          int
	ReconciledAccounts     int
	Discrepancies          []*ReconciliationResult
	TotalMilestones        int
	MilestoneDiscrepancies []MilestoneDiscrepancy
	EscrowDiscrepancies    []EscrowDiscrepancy
	LedgerConsistent       bool
	CheckedAt              time.Time
}

// GenerateReconciliationReport generates a comprehensive reconciliation report
func (uc *ReconciliationUseCase) GenerateReconciliationReport(ctx context.Context) (*ReconciliationReport, error) {
	results, err := uc.ReconcileAllAccounts(ctx)
	if err != nil {
		return nil, err
	}

	checks, err := uc.ledgerRepo.MilestoneSettlements(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load milestone settlements: %w", err)
	}

	escrow, err := uc.CheckEscrowCoverage(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{
		TotalAccounts:          len(results),
		Discrepancies:          make([]*ReconciliationResult, 0),
		TotalMilestones:        len(checks),
		MilestoneDiscrepancies: milestoneDiscrepancies(checks),
		EscrowDiscrepancies:    escrow,
		CheckedAt:              time.Now().UTC(),
	}

	for _, result := range results {
		if result.IsReconciled {
			report.ReconciledAccounts++
		} else {
			report.Discrepancies = append(report.Discrepancies, result)
		}
	}

	report.LedgerConsistent = len(report.Discrepancies) == 0 &&
		len(report.MilestoneDiscrepancies) == 0 &&
		len(report.EscrowDiscrepancies) == 0

	if uc.metrics != nil {
		uc.metrics.ReconciliationDiscrepancies.WithLabelValues("account").Set(float64(len(report.Discrepancies)))
		uc.metrics.ReconciliationDiscrepancies.WithLabelValues("milestone").Set(float64(len(report.MilestoneDiscrepancies)))
		uc.metrics.ReconciliationDiscrepancies.WithLabelValues("escrow").Set(float64(len(report.EscrowDiscrepancies)))
	}

	return report, nil
}
