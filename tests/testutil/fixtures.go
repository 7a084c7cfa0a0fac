package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	postgresRepo "github.com/iho/goescrow/internal/adapter/repository/postgres"
	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/postgres"
	"github.com/iho/goescrow/internal/usecase"
)

// TestDB provides isolated test database connections.
type TestDB struct {
	Pool  *pgxpool.Pool
	Repos postgresRepo.Repositories
	URL   string
	t     *testing.T
}

// NewTestDB connects to DATABASE_URL and migrates it. The test is skipped
// when no database is configured.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	migrationsPath := "migrations"
	for _, candidate := range []string{"migrations", "../migrations", "../../migrations"} {
		if _, err := os.Stat(candidate); err == nil {
			migrationsPath = candidate
			break
		}
	}

	if err := postgres.NewMigrator(dbURL, migrationsPath, zerolog.Nop()).Up(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dbURL, 20, 2)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	return &TestDB{
		Pool:  pool,
		Repos: postgresRepo.NewRepositories(pool),
		URL:   dbURL,
		t:     t,
	}
}

// Cleanup closes the database connection.
func (db *TestDB) Cleanup() {
	db.Pool.Close()
}

// TruncateAll removes all data from tables.
func (db *TestDB) TruncateAll(ctx context.Context) {
	db.t.Helper()

	_, err := db.Pool.Exec(ctx, `
		TRUNCATE TABLE audit_logs, outbox_events, disputes, payment_requests,
			transactions, milestones, accounts CASCADE`)
	if err != nil {
		db.t.Fatalf("failed to truncate tables: %v", err)
	}
}

// UseCases is the full set of use cases over the test database.
type UseCases struct {
	Accounts       *usecase.AccountUseCase
	Ledger         *usecase.LedgerUseCase
	Milestones     *usecase.MilestoneUseCase
	Requests       *usecase.PaymentRequestUseCase
	Disputes       *usecase.DisputeUseCase
	Finance        *usecase.FinanceUseCase
	Reconciliation *usecase.ReconciliationUseCase
}

// NewUseCases wires every use case to the test database with the
// production retrier.
func (db *TestDB) NewUseCases() *UseCases {
	r := db.Repos
	txManager := postgresRepo.NewTxManager(db.Pool)
	idGen := postgresRepo.NewULIDGenerator()
	retrier := postgresRepo.NewRetrier(zerolog.Nop(), nil)

	ledger := usecase.NewLedgerUseCase(txManager, r.Accounts, r.Transactions, r.Ledger, r.Outbox, r.Audit, idGen, retrier, nil)

	return &UseCases{
		Accounts: usecase.NewAccountUseCase(txManager, r.Accounts, r.Outbox, r.Audit, idGen, nil),
		Ledger:   ledger,
		Milestones: usecase.NewMilestoneUseCase(txManager, r.Accounts, r.Milestones, r.PaymentRequests,
			ledger, r.Outbox, r.Audit, idGen, retrier, nil),
		Requests: usecase.NewPaymentRequestUseCase(txManager, r.Milestones, r.PaymentRequests, r.Transactions,
			ledger, r.Outbox, r.Audit, idGen, retrier, nil),
		Disputes: usecase.NewDisputeUseCase(txManager, r.Milestones, r.PaymentRequests, r.Disputes,
			ledger, r.Outbox, r.Audit, idGen, retrier, nil),
		Finance: usecase.NewFinanceUseCase(r.Ledger, r.Transactions, r.PaymentRequests, r.Disputes,
			r.Audit, nil, 0, nil),
		Reconciliation: usecase.NewReconciliationUseCase(r.Accounts, r.Ledger, nil),
	}
}

// Balance reads the cached balance of an account.
func (db *TestDB) Balance(ctx context.Context, accountID string) decimal.Decimal {
	db.t.Helper()

	account, err := db.Repos.Accounts.GetByID(ctx, accountID)
	if err != nil {
		db.t.Fatalf("failed to load account %s: %v", accountID, err)
	}
	return account.Balance
}

// As returns a context acting as the given actor.
func As(id string, role domain.Role) context.Context {
	return domain.ContextWithActor(context.Background(), &domain.Actor{ID: id, Role: role})
}

// Operator returns a context acting as an operator.
func Operator() context.Context { return As("operator-1", domain.RoleOperator) }

// Client returns a context acting as the test client.
func Client() context.Context { return As(ClientID, domain.RoleClient) }

// Vendor returns a context acting as the test vendor.
func Vendor() context.Context { return As(VendorID, domain.RoleVendor) }

const (
	ClientID  = "client-1"
	VendorID  = "vendor-1"
	ProjectID = "project-1"
)

// CompletedMilestone creates a funded milestone and walks it to COMPLETED.
func CompletedMilestone(t *testing.T, uc *UseCases, amount string) *domain.Milestone {
	t.Helper()

	m, err := uc.Milestones.CreateMilestone(Client(), usecase.CreateMilestoneInput{
		ProjectID: ProjectID,
		Title:     "Integration milestone",
		ClientID:  ClientID,
		VendorID:  VendorID,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "USD",
		Fund:      true,
	})
	if err != nil {
		t.Fatalf("failed to create milestone: %v", err)
	}

	if _, err := uc.Milestones.StartWork(Vendor(), m.ID); err != nil {
		t.Fatalf("failed to start work: %v", err)
	}

	m, err = uc.Milestones.MarkCompleted(Vendor(), m.ID)
	if err != nil {
		t.Fatalf("failed to complete milestone: %v", err)
	}

	return m
}
