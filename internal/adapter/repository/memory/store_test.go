package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goescrow/internal/domain"
)

func newAccount(id string, kind domain.AccountKind, owner string) *domain.Account {
	now := time.Now().UTC()
	return &domain.Account{
		ID:        id,
		Kind:      kind,
		OwnerID:   owner,
		Name:      id,
		Currency:  "USD",
		Balance:   decimal.Zero,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRollbackUndoesWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store)
	txManager := NewTxManager(store)

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repos.Accounts.CreateTx(ctx, tx, newAccount("acc-1", domain.AccountKindClient, "client-1")))
	require.NoError(t, repos.Transactions.Create(ctx, tx, &domain.Transaction{
		ID:             "txn-1",
		Type:           domain.TransactionTypeDeposit,
		ToAccountID:    domain.StringRef("acc-1"),
		Amount:         decimal.NewFromInt(10),
		Currency:       "USD",
		Status:         domain.TransactionStatusCompleted,
		IdempotencyKey: "key-1",
	}))
	require.NoError(t, repos.Accounts.UpdateBalance(ctx, tx, "acc-1", decimal.NewFromInt(10), time.Now()))
	require.NoError(t, tx.Rollback(ctx))

	_, err = repos.Accounts.GetByID(ctx, "acc-1")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = repos.Transactions.GetByIdempotencyKey(ctx, nil, "key-1")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	count, err := repos.Transactions.Count(ctx, domain.TransactionFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRollbackRestoresBalance(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store)
	txManager := NewTxManager(store)

	tx, _ := txManager.Begin(ctx)
	require.NoError(t, repos.Accounts.CreateTx(ctx, tx, newAccount("acc-1", domain.AccountKindClient, "client-1")))
	require.NoError(t, tx.Commit(ctx))

	tx, _ = txManager.Begin(ctx)
	require.NoError(t, repos.Accounts.UpdateBalance(ctx, tx, "acc-1", decimal.NewFromInt(99), time.Now()))
	require.NoError(t, tx.Rollback(ctx))

	account, err := repos.Accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())
	assert.Equal(t, int64(0), account.Version)
}

func TestCommitThenRollbackIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store)
	txManager := NewTxManager(store)

	tx, err := txManager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repos.Accounts.CreateTx(ctx, tx, newAccount("acc-1", domain.AccountKindVendor, "vendor-1")))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone)

	_, err = repos.Accounts.GetByID(ctx, "acc-1")
	assert.NoError(t, err)
}

func TestBeginWaitsForWriter(t *testing.T) {
	store := NewStore()
	txManager := NewTxManager(store)

	first, err := txManager.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = txManager.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.Rollback(context.Background()))

	second, err := txManager.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, second.Commit(context.Background()))
}

func TestWritesNeedATransaction(t *testing.T) {
	store := NewStore()
	repos := NewRepositories(store)

	err := repos.Accounts.CreateTx(context.Background(), nil, newAccount("acc-1", domain.AccountKindClient, "c"))
	assert.Error(t, err)
}

func TestTransactionKeyIsUnique(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store)
	txManager := NewTxManager(store)

	txn := func(id string) *domain.Transaction {
		return &domain.Transaction{
			ID:             id,
			Type:           domain.TransactionTypeDeposit,
			ToAccountID:    domain.StringRef("acc-1"),
			Amount:         decimal.NewFromInt(1),
			Currency:       "USD",
			Status:         domain.TransactionStatusCompleted,
			IdempotencyKey: "same-key",
		}
	}

	tx, _ := txManager.Begin(ctx)
	defer func() { _ = tx.Rollback(ctx) }()

	require.NoError(t, repos.Transactions.Create(ctx, tx, txn("txn-1")))
	assert.ErrorIs(t, repos.Transactions.Create(ctx, tx, txn("txn-2")), domain.ErrDuplicateOperation)
}

func TestMilestoneUpdateChecksVersion(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store)
	txManager := NewTxManager(store)

	m := &domain.Milestone{ID: "m-1", ProjectID: "p-1", Amount: decimal.NewFromInt(100), Currency: "USD", Status: domain.MilestoneStatusPending}

	tx, _ := txManager.Begin(ctx)
	require.NoError(t, repos.Milestones.Create(ctx, tx, m))
	require.NoError(t, tx.Commit(ctx))

	stale, err := repos.Milestones.GetByID(ctx, "m-1")
	require.NoError(t, err)

	tx, _ = txManager.Begin(ctx)
	fresh, err := repos.Milestones.GetByIDForUpdate(ctx, tx, "m-1")
	require.NoError(t, err)
	fresh.Status = domain.MilestoneStatusInProgress
	require.NoError(t, repos.Milestones.Update(ctx, tx, fresh))
	assert.Equal(t, int64(1), fresh.Version)

	stale.Status = domain.MilestoneStatusCancelled
	assert.ErrorIs(t, repos.Milestones.Update(ctx, tx, stale), domain.ErrConflict)
	require.NoError(t, tx.Commit(ctx))

	got, err := repos.Milestones.GetByID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MilestoneStatusInProgress, got.Status)
}

func TestOneOpenPaymentRequestPerMilestone(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store)
	txManager := NewTxManager(store)

	request := func(id string) *domain.PaymentRequest {
		return &domain.PaymentRequest{
			ID:          id,
			MilestoneID: "m-1",
			Amount:      decimal.NewFromInt(10),
			Status:      domain.PaymentRequestStatusPending,
			RequestedAt: time.Now(),
		}
	}

	tx, _ := txManager.Begin(ctx)
	require.NoError(t, repos.PaymentRequests.Create(ctx, tx, request("pr-1")))
	assert.ErrorIs(t, repos.PaymentRequests.Create(ctx, tx, request("pr-2")), domain.ErrRequestInFlight)

	open, err := repos.PaymentRequests.GetOpenByMilestone(ctx, tx, "m-1")
	require.NoError(t, err)
	open.Status = domain.PaymentRequestStatusRejected
	require.NoError(t, repos.PaymentRequests.Update(ctx, tx, open))

	require.NoError(t, repos.PaymentRequests.Create(ctx, tx, request("pr-3")))
	require.NoError(t, tx.Commit(ctx))

	count, err := repos.PaymentRequests.Count(ctx, domain.PaymentRequestFilter{Status: domain.PaymentRequestStatusPending})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestOneActiveDisputePerMilestone(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store)
	txManager := NewTxManager(store)

	dispute := func(id string) *domain.Dispute {
		return &domain.Dispute{ID: id, MilestoneID: "m-1", Status: domain.DisputeStatusOpen, CreatedAt: time.Now()}
	}

	tx, _ := txManager.Begin(ctx)
	defer func() { _ = tx.Rollback(ctx) }()

	require.NoError(t, repos.Disputes.Create(ctx, tx, dispute("d-1")))
	assert.ErrorIs(t, repos.Disputes.Create(ctx, tx, dispute("d-2")), domain.ErrConflict)
}

func TestReturnedRowsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store)
	txManager := NewTxManager(store)

	tx, _ := txManager.Begin(ctx)
	require.NoError(t, repos.Accounts.CreateTx(ctx, tx, newAccount("acc-1", domain.AccountKindClient, "client-1")))
	require.NoError(t, tx.Commit(ctx))

	account, err := repos.Accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	account.Balance = decimal.NewFromInt(1000)

	again, err := repos.Accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, again.Balance.IsZero())
}

func TestLedgerRepositoryComputesBalances(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store)
	txManager := NewTxManager(store)

	tx, _ := txManager.Begin(ctx)
	require.NoError(t, repos.Accounts.CreateTx(ctx, tx, newAccount("escrow", domain.AccountKindEscrow, "client-1")))
	require.NoError(t, repos.Accounts.CreateTx(ctx, tx, newAccount("vendor", domain.AccountKindVendor, "vendor-1")))
	require.NoError(t, repos.Transactions.Create(ctx, tx, &domain.Transaction{
		ID: "t1", Type: domain.TransactionTypeDeposit, ToAccountID: domain.StringRef("escrow"),
		Amount: decimal.NewFromInt(100), Currency: "USD", Status: domain.TransactionStatusCompleted,
		IdempotencyKey: "k1", MilestoneID: domain.StringRef("m-1"),
	}))
	require.NoError(t, repos.Transactions.Create(ctx, tx, &domain.Transaction{
		ID: "t2", Type: domain.TransactionTypePayment, FromAccountID: domain.StringRef("escrow"), ToAccountID: domain.StringRef("vendor"),
		Amount: decimal.NewFromInt(40), Currency: "USD", Status: domain.TransactionStatusCompleted,
		IdempotencyKey: "k2", MilestoneID: domain.StringRef("m-1"),
	}))
	require.NoError(t, repos.Accounts.UpdateBalance(ctx, tx, "escrow", decimal.NewFromInt(60), time.Now()))
	require.NoError(t, tx.Commit(ctx))

	balance, err := repos.Ledger.ComputedBalance(ctx, "escrow")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(60)))

	checks, err := repos.Ledger.AccountBalances(ctx)
	require.NoError(t, err)
	require.Len(t, checks, 2)
	for _, check := range checks {
		if check.AccountID == "vendor" {
			assert.True(t, check.Cached.IsZero())
			assert.True(t, check.Computed.Equal(decimal.NewFromInt(40)))
		}
	}

	summary, err := repos.Ledger.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.True(t, summary[0].EscrowHeld.Equal(decimal.NewFromInt(60)))
	assert.True(t, summary[0].Deposited.Equal(decimal.NewFromInt(100)))
	assert.True(t, summary[0].Released.Equal(decimal.NewFromInt(40)))
}

func TestOutboxPublishing(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store)
	txManager := NewTxManager(store)

	tx, _ := txManager.Begin(ctx)
	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, repos.Outbox.Create(ctx, tx, &domain.OutboxEvent{ID: id, EventType: "test", CreatedAt: time.Now()}))
	}
	require.NoError(t, tx.Commit(ctx))

	events, err := repos.Outbox.GetUnpublished(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].ID)

	published := time.Now().Add(-time.Hour)
	require.NoError(t, repos.Outbox.MarkPublished(ctx, "e1", published))

	events, err = repos.Outbox.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	require.NoError(t, repos.Outbox.DeletePublished(ctx, time.Now()))
	assert.Len(t, repos.Outbox.Events(), 2)
}
