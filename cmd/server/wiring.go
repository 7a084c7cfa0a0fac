package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	memoryRepo "github.com/iho/goescrow/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/goescrow/internal/adapter/repository/postgres"
	"github.com/iho/goescrow/internal/infrastructure/config"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
	"github.com/iho/goescrow/internal/infrastructure/postgres"
	"github.com/iho/goescrow/internal/usecase"
)

// storage is the persistence selected by STORAGE_DRIVER.
type storage struct {
	txManager    usecase.TransactionManager
	accounts     usecase.AccountRepository
	transactions usecase.TransactionRepository
	milestones   usecase.MilestoneRepository
	requests     usecase.PaymentRequestRepository
	disputes     usecase.DisputeRepository
	ledger       usecase.LedgerRepository
	outbox       usecase.OutboxRepository
	audit        usecase.AuditRepository
	idGen        usecase.IDGenerator
	retrier      usecase.Retrier

	ping  func(ctx context.Context) error
	close func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (*storage, error) {
	retrier := postgresRepo.NewRetrier(log.With().Str("component", "retrier").Logger(), m)

	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn().Msg("using in-memory storage, data is lost on restart")

		store := memoryRepo.NewStore()
		repos := memoryRepo.NewRepositories(store)

		return &storage{
			txManager:    memoryRepo.NewTxManager(store),
			accounts:     repos.Accounts,
			transactions: repos.Transactions,
			milestones:   repos.Milestones,
			requests:     repos.PaymentRequests,
			disputes:     repos.Disputes,
			ledger:       repos.Ledger,
			outbox:       repos.Outbox,
			audit:        repos.Audit,
			idGen:        postgresRepo.NewULIDGenerator(),
			retrier:      retrier,
			ping:         func(context.Context) error { return nil },
			close:        func() {},
		}, nil
	}

	if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log).Up(); err != nil {
		return nil, err
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	log.Info().Msg("connected to postgres")

	repos := postgresRepo.NewRepositories(pool)

	return &storage{
		txManager:    postgresRepo.NewTxManager(pool),
		accounts:     repos.Accounts,
		transactions: repos.Transactions,
		milestones:   repos.Milestones,
		requests:     repos.PaymentRequests,
		disputes:     repos.Disputes,
		ledger:       repos.Ledger,
		outbox:       repos.Outbox,
		audit:        repos.Audit,
		idGen:        postgresRepo.NewULIDGenerator(),
		retrier:      retrier,
		ping:         pool.Ping,
		close:        pool.Close,
	}, nil
}

type useCases struct {
	accounts       *usecase.AccountUseCase
	ledger         *usecase.LedgerUseCase
	milestones     *usecase.MilestoneUseCase
	requests       *usecase.PaymentRequestUseCase
	disputes       *usecase.DisputeUseCase
	finance        *usecase.FinanceUseCase
	reconciliation *usecase.ReconciliationUseCase
}

func newUseCases(cfg *config.Config, s *storage, cache usecase.Cache, m *metrics.Metrics) (*useCases, error) {
	ledger := usecase.NewLedgerUseCase(s.txManager, s.accounts, s.transactions, s.ledger, s.outbox, s.audit, s.idGen, s.retrier, m)

	requests := usecase.NewPaymentRequestUseCase(s.txManager, s.milestones, s.requests, s.transactions, ledger, s.outbox, s.audit, s.idGen, s.retrier, m)
	if err := requests.SetPlatformFee(cfg.PlatformFeeRate, cfg.PlatformAccountID); err != nil {
		return nil, err
	}

	return &useCases{
		accounts:       usecase.NewAccountUseCase(s.txManager, s.accounts, s.outbox, s.audit, s.idGen, m),
		ledger:         ledger,
		milestones:     usecase.NewMilestoneUseCase(s.txManager, s.accounts, s.milestones, s.requests, ledger, s.outbox, s.audit, s.idGen, s.retrier, m),
		requests:       requests,
		disputes:       usecase.NewDisputeUseCase(s.txManager, s.milestones, s.requests, s.disputes, ledger, s.outbox, s.audit, s.idGen, s.retrier, m),
		finance:        usecase.NewFinanceUseCase(s.ledger, s.transactions, s.requests, s.disputes, s.audit, cache, cfg.DashboardCacheTTL, m),
		reconciliation: usecase.NewReconciliationUseCase(s.accounts, s.ledger, m),
	}, nil
}
