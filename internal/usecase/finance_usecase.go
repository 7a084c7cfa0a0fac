package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
)

// FinanceUseCase serves the finance read model: the dashboard projection
// and the audit trail.
type FinanceUseCase struct {
	ledgerRepo  LedgerRepository
	txnRepo     TransactionRepository
	requestRepo PaymentRequestRepository
	disputeRepo DisputeRepository
	auditRepo   AuditRepository
	cache       Cache
	cacheTTL    time.Duration
	metrics     *metrics.Metrics
}

// NewFinanceUseCase creates a new FinanceUseCase. A nil cache disables
// dashboard caching.
func NewFinanceUseCase(
	ledgerRepo LedgerRepository,
	txnRepo TransactionRepository,
	requestRepo PaymentRequestRepository,
	disputeRepo DisputeRepository,
	auditRepo AuditRepository,
	cache Cache,
	cacheTTL time.Duration,
	metrics *metrics.Metrics,
) *FinanceUseCase {
	if cacheTTL <= 0 {
		cacheTTL = DefaultDashboardTTL
	}

	return &FinanceUseCase{
		ledgerRepo:  ledgerRepo,
		txnRepo:     txnRepo,
		requestRepo: requestRepo,
		disputeRepo: disputeRepo,
		auditRepo:   auditRepo,
		cache:       cache,
		cacheTTL:    cacheTTL,
		metrics:     metrics,
	}
}

// Dashboard returns per-currency ledger totals and the workflow backlog.
// The projection may lag the ledger by up to the cache TTL.
func (uc *FinanceUseCase) Dashboard(ctx context.Context) (*domain.FinanceDashboard, error) {
	if uc.cache != nil {
		if data, err := uc.cache.Get(ctx, DashboardCacheKey); err == nil {
			var cached domain.FinanceDashboard
			if json.Unmarshal(data, &cached) == nil {
				uc.observeCache("hit")
				return &cached, nil
			}
		}
		uc.observeCache("miss")
	}

	dashboard, err := uc.buildDashboard(ctx)
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		for _, totals := range dashboard.Totals {
			held, _ := totals.EscrowHeld.Float64()
			uc.metrics.EscrowHeld.WithLabelValues(totals.Currency).Set(held)
		}
	}

	if uc.cache != nil {
		if data, err := json.Marshal(dashboard); err == nil {
			// Best effort; the next request rebuilds on a failed write.
			_ = uc.cache.Set(ctx, DashboardCacheKey, data, uc.cacheTTL)
		}
	}

	return dashboard, nil
}

// InvalidateDashboard drops the cached projection.
func (uc *FinanceUseCase) InvalidateDashboard(ctx context.Context) error {
	if uc.cache == nil {
		return nil
	}
	return uc.cache.Delete(ctx, DashboardCacheKey)
}

func (uc *FinanceUseCase) buildDashboard(ctx context.Context) (*domain.FinanceDashboard, error) {
	totals, err := uc.ledgerRepo.Summary(ctx)
	if err != nil {
		return nil, err
	}

	dashboard := &domain.FinanceDashboard{
		Totals:      totals,
		GeneratedAt: time.Now().UTC(),
	}

	if dashboard.PendingPaymentRequests, err = uc.requestRepo.Count(ctx, domain.PaymentRequestFilter{Status: domain.PaymentRequestStatusPending}); err != nil {
		return nil, err
	}
	if dashboard.ApprovedPaymentRequests, err = uc.requestRepo.Count(ctx, domain.PaymentRequestFilter{Status: domain.PaymentRequestStatusApproved}); err != nil {
		return nil, err
	}
	if dashboard.OpenDisputes, err = uc.disputeRepo.Count(ctx, domain.DisputeFilter{Status: domain.DisputeStatusOpen}); err != nil {
		return nil, err
	}
	if dashboard.InvestigatingDisputes, err = uc.disputeRepo.Count(ctx, domain.DisputeFilter{Status: domain.DisputeStatusInvestigating}); err != nil {
		return nil, err
	}
	if dashboard.TransactionCount, err = uc.txnRepo.Count(ctx, domain.TransactionFilter{}); err != nil {
		return nil, err
	}

	if dashboard.Totals == nil {
		dashboard.Totals = []domain.CurrencyTotals{}
	}

	return dashboard, nil
}

func (uc *FinanceUseCase) observeCache(result string) {
	if uc.metrics != nil {
		uc.metrics.CacheLookup.WithLabelValues("dashboard", result).Inc()
	}
}

// AuditTrail lists audit entries, newest first.
func (uc *FinanceUseCase) AuditTrail(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	if _, err := domain.RequireOperator(ctx); err != nil {
		return nil, err
	}

	filter.Limit, filter.Offset, _ = domain.ValidatePagination(filter.Limit, filter.Offset)

	return uc.auditRepo.List(ctx, filter)
}
