package usecase_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/goescrow/internal/adapter/repository/memory"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
	"github.com/iho/goescrow/internal/usecase"
	"github.com/iho/goescrow/internal/usecase/mocks"
)

const (
	clientID   = "client-1"
	vendorID   = "vendor-1"
	operatorID = "operator-1"
	projectID  = "project-1"
)

type fixture struct {
	t       *testing.T
	store   *memory.Store
	repos   memory.Repositories
	metrics *metrics.Metrics

	accounts       *usecase.AccountUseCase
	ledger         *usecase.LedgerUseCase
	milestones     *usecase.MilestoneUseCase
	requests       *usecase.PaymentRequestUseCase
	disputes       *usecase.DisputeUseCase
	reconciliation *usecase.ReconciliationUseCase
	finance        *usecase.FinanceUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	repos := memory.NewRepositories(store)
	txManager := memory.NewTxManager(store)
	idGen := mocks.NewMockIDGenerator()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	ledger := usecase.NewLedgerUseCase(txManager, repos.Accounts, repos.Transactions, repos.Ledger,
		repos.Outbox, repos.Audit, idGen, nil, m)

	return &fixture{
		t:       t,
		store:   store,
		repos:   repos,
		metrics: m,

		accounts: usecase.NewAccountUseCase(txManager, repos.Accounts, repos.Outbox, repos.Audit, idGen, m),
		ledger:   ledger,
		milestones: usecase.NewMilestoneUseCase(txManager, repos.Accounts, repos.Milestones, repos.PaymentRequests,
			ledger, repos.Outbox, repos.Audit, idGen, nil, m),
		requests: usecase.NewPaymentRequestUseCase(txManager, repos.Milestones, repos.PaymentRequests, repos.Transactions,
			ledger, repos.Outbox, repos.Audit, idGen, nil, m),
		disputes: usecase.NewDisputeUseCase(txManager, repos.Milestones, repos.PaymentRequests, repos.Disputes,
			ledger, repos.Outbox, repos.Audit, idGen, nil, m),
		reconciliation: usecase.NewReconciliationUseCase(repos.Accounts, repos.Ledger, m),
		finance: usecase.NewFinanceUseCase(repos.Ledger, repos.Transactions, repos.PaymentRequests, repos.Disputes,
			repos.Audit, nil, 0, m),
	}
}

func asActor(id string, role domain.Role) context.Context {
	return domain.ContextWithActor(context.Background(), &domain.Actor{ID: id, Role: role})
}

func operator() context.Context { return asActor(operatorID, domain.RoleOperator) }
func client() context.Context   { return asActor(clientID, domain.RoleClient) }
func vendor() context.Context   { return asActor(vendorID, domain.RoleVendor) }

func usd(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// fundedMilestone creates a funded milestone of amount and returns it.
func (f *fixture) fundedMilestone(amount string) *domain.Milestone {
	f.t.Helper()

	m, err := f.milestones.CreateMilestone(client(), usecase.CreateMilestoneInput{
		ProjectID: projectID,
		Title:     "Landing page",
		ClientID:  clientID,
		VendorID:  vendorID,
		Amount:    usd(amount),
		Currency:  "USD",
		Fund:      true,
	})
	require.NoError(f.t, err)

	return m
}

// completedMilestone creates a funded milestone and walks it to COMPLETED.
func (f *fixture) completedMilestone(amount string) *domain.Milestone {
	f.t.Helper()

	m := f.fundedMilestone(amount)

	_, err := f.milestones.StartWork(vendor(), m.ID)
	require.NoError(f.t, err)

	m, err = f.milestones.MarkCompleted(vendor(), m.ID)
	require.NoError(f.t, err)

	return m
}

func (f *fixture) txManager() *memory.TxManager {
	return memory.NewTxManager(f.store)
}

func (f *fixture) balance(accountID string) decimal.Decimal {
	f.t.Helper()

	account, err := f.repos.Accounts.GetByID(context.Background(), accountID)
	require.NoError(f.t, err)

	return account.Balance
}

func (f *fixture) milestone(id string) *domain.Milestone {
	f.t.Helper()

	m, err := f.repos.Milestones.GetByID(context.Background(), id)
	require.NoError(f.t, err)

	return m
}

// requireConsistent asserts that cached balances and milestone counters agree
// with the transaction log.
func (f *fixture) requireConsistent() {
	f.t.Helper()
	require.NoError(f.t, f.reconciliation.CheckLedgerConsistency(context.Background()))
}

func (f *fixture) countTransactions(filter domain.TransactionFilter) int64 {
	f.t.Helper()

	n, err := f.repos.Transactions.Count(context.Background(), filter)
	require.NoError(f.t, err)

	return n
}
