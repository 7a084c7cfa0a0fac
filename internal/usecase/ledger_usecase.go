package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
)

// LedgerUseCase is the only writer of ledger transactions. Every posting
// locks its accounts, checks balances and idempotency, and commits the
// record together with the balance changes.
type LedgerUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	txnRepo     TransactionRepository
	ledgerRepo  LedgerRepository
	journal     journal
	idGen       IDGenerator
	retrier     Retrier
	metrics     *metrics.Metrics
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	txnRepo TransactionRepository,
	ledgerRepo LedgerRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	retrier Retrier,
	metrics *metrics.Metrics,
) *LedgerUseCase {
	return &LedgerUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		txnRepo:     txnRepo,
		ledgerRepo:  ledgerRepo,
		journal:     journal{outboxRepo: outboxRepo, auditRepo: auditRepo, idGen: idGen},
		idGen:       idGen,
		retrier:     retrier,
		metrics:     metrics,
	}
}

// RecordTransactionInput describes one money movement.
type RecordTransactionInput struct {
	Type           domain.TransactionType
	FromAccountID  string
	ToAccountID    string
	Amount         decimal.Decimal
	IdempotencyKey string
	MilestoneID    string
	Reason         string
	Metadata       map[string]any

	reversesID string
	// manual postings may not touch escrow accounts.
	manual bool
}

func (in RecordTransactionInput) validate() error {
	if !in.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidTransaction, in.Type)
	}
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return err
	}
	if err := domain.ValidateIdempotencyKey(in.IdempotencyKey); err != nil {
		return err
	}
	if err := domain.ValidateReason(in.Reason); err != nil {
		return err
	}
	return domain.ValidateMetadata(in.Metadata)
}

func (in RecordTransactionInput) accountIDs() []string {
	var ids []string
	if in.FromAccountID != "" {
		ids = append(ids, in.FromAccountID)
	}
	if in.ToAccountID != "" {
		ids = append(ids, in.ToAccountID)
	}
	return ids
}

// RecordTransaction posts a single transaction. A replay with the same
// idempotency key and the same parameters returns the original
// transaction; the same key with different parameters fails with
// domain.ErrDuplicateOperation.
func (uc *LedgerUseCase) RecordTransaction(ctx context.Context, input RecordTransactionInput) (*domain.Transaction, error) {
	if _, err := domain.RequireOperator(ctx); err != nil {
		return nil, err
	}

	// Milestone settlements only come from the workflows through Apply.
	input.reversesID, input.MilestoneID = "", ""
	input.manual = true
	if err := input.validate(); err != nil {
		uc.observeError(err)
		return nil, err
	}

	start := time.Now()

	var (
		result *domain.Transaction
		fresh  []*domain.Transaction
	)

	err := atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		all, created, err := uc.apply(ctx, tx, []RecordTransactionInput{input})
		if err != nil {
			return err
		}
		result, fresh = all[0], created
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateOperation) {
		// A concurrent request may have committed the same key between our
		// lookup and insert.
		if existing, lookupErr := uc.txnRepo.GetByIdempotencyKey(ctx, nil, input.IdempotencyKey); lookupErr == nil &&
			existing.SameOperation(uc.draft(input, existing.Currency)) {
			return existing, nil
		}
	}
	if err != nil {
		uc.observeError(err)
		return nil, err
	}

	uc.observe(fresh)
	if uc.metrics != nil {
		uc.metrics.OperationDuration.WithLabelValues("record_transaction").Observe(time.Since(start).Seconds())
	}

	return result, nil
}

// Apply posts inputs inside the caller's transaction so that workflows can
// commit several postings and status changes as one unit.
func (uc *LedgerUseCase) Apply(ctx context.Context, tx Transaction, inputs ...RecordTransactionInput) ([]*domain.Transaction, error) {
	all, _, err := uc.apply(ctx, tx, inputs)
	return all, err
}

// apply returns every posting in input order plus the subset that was
// newly written (as opposed to replayed by idempotency key).
func (uc *LedgerUseCase) apply(ctx context.Context, tx Transaction, inputs []RecordTransactionInput) ([]*domain.Transaction, []*domain.Transaction, error) {
	results := make([]*domain.Transaction, len(inputs))
	pending := make([]int, 0, len(inputs))

	// 1. Resolve replays before taking any account lock
	for i, in := range inputs {
		existing, err := uc.txnRepo.GetByIdempotencyKey(ctx, tx, in.IdempotencyKey)
		if errors.Is(err, domain.ErrTransactionNotFound) {
			pending = append(pending, i)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if !existing.SameOperation(uc.draft(in, existing.Currency)) {
			return nil, nil, fmt.Errorf("%w: key %q", domain.ErrDuplicateOperation, in.IdempotencyKey)
		}
		results[i] = existing
	}

	if len(pending) == 0 {
		return results, nil, nil
	}

	// 2. Collect and sort unique account IDs (DEADLOCK PREVENTION)
	accountIDs := collectUniqueAccountIDs(inputs, pending)
	sort.Strings(accountIDs)

	// 3. Lock accounts in sorted order
	accounts, err := uc.accountRepo.GetByIDsForUpdate(ctx, tx, accountIDs)
	if err != nil {
		return nil, nil, err
	}

	if len(accounts) != len(accountIDs) {
		return nil, nil, domain.ErrAccountNotFound
	}

	accountMap := buildAccountMap(accounts)

	// 4. Process each posting
	now := time.Now().UTC()
	fresh := make([]*domain.Transaction, 0, len(pending))

	for _, i := range pending {
		txn, err := uc.post(ctx, tx, accountMap, inputs[i], now)
		if err != nil {
			return nil, nil, err
		}
		results[i] = txn
		fresh = append(fresh, txn)
	}

	return results, fresh, nil
}

func (uc *LedgerUseCase) post(
	ctx context.Context,
	tx Transaction,
	accountMap map[string]*domain.Account,
	input RecordTransactionInput,
	now time.Time,
) (*domain.Transaction, error) {
	var fromAccount, toAccount *domain.Account
	if input.FromAccountID != "" {
		fromAccount = accountMap[input.FromAccountID]
	}
	if input.ToAccountID != "" {
		toAccount = accountMap[input.ToAccountID]
	}

	currency := ""
	switch {
	case fromAccount != nil && toAccount != nil:
		if fromAccount.Currency != toAccount.Currency {
			return nil, domain.ErrCurrencyMismatch
		}
		currency = fromAccount.Currency
	case fromAccount != nil:
		currency = fromAccount.Currency
	case toAccount != nil:
		currency = toAccount.Currency
	}

	if input.manual {
		for _, account := range []*domain.Account{fromAccount, toAccount} {
			if account != nil && account.Kind == domain.AccountKindEscrow {
				return nil, fmt.Errorf("%w: escrow account %s only moves through milestone workflows",
					domain.ErrInvalidAccountKind, account.ID)
			}
		}
	}

	txn := uc.draft(input, currency)
	txn.ID = uc.idGen.Generate()
	txn.Status = domain.TransactionStatusCompleted
	txn.CreatedAt = now
	txn.CompletedAt = &now

	if err := txn.Validate(); err != nil {
		return nil, err
	}

	if fromAccount != nil {
		if err := fromAccount.ValidateDebit(txn.Amount); err != nil {
			if errors.Is(err, domain.ErrInsufficientFunds) {
				return nil, fmt.Errorf("%w: account %s holds %s, needs %s",
					err, fromAccount.ID, fromAccount.Balance.StringFixed(2), txn.Amount.StringFixed(2))
			}
			return nil, err
		}
	}

	if toAccount != nil {
		if err := toAccount.ValidateCredit(txn.Amount); err != nil {
			return nil, err
		}
	}

	if err := uc.txnRepo.Create(ctx, tx, txn); err != nil {
		return nil, err
	}

	if fromAccount != nil {
		newBalance := fromAccount.ApplyDebit(txn.Amount)
		if err := uc.accountRepo.UpdateBalance(ctx, tx, fromAccount.ID, newBalance, now); err != nil {
			return nil, err
		}
		fromAccount.Balance = newBalance
		fromAccount.Version++
	}

	if toAccount != nil {
		newBalance := toAccount.ApplyCredit(txn.Amount)
		if err := uc.accountRepo.UpdateBalance(ctx, tx, toAccount.ID, newBalance, now); err != nil {
			return nil, err
		}
		toAccount.Balance = newBalance
		toAccount.Version++
	}

	eventType := domain.EventTypeTransactionRecorded
	action := domain.AuditActionTransactionRecord
	if txn.IsReversal() {
		eventType = domain.EventTypeTransactionReversed
		action = domain.AuditActionTransactionReverse
	}

	payload := map[string]any{
		"transaction_id":  txn.ID,
		"type":            string(txn.Type),
		"from_account_id": domain.Deref(txn.FromAccountID),
		"to_account_id":   domain.Deref(txn.ToAccountID),
		"amount":          txn.Amount.StringFixed(2),
		"currency":        txn.Currency,
		"milestone_id":    domain.Deref(txn.MilestoneID),
		"reverses_id":     domain.Deref(txn.ReversesID),
	}
	if err := uc.journal.emit(ctx, tx, domain.AggregateTypeTransaction, txn.ID, eventType, payload, now); err != nil {
		return nil, err
	}

	if err := uc.journal.audit(ctx, tx, action, domain.AggregateTypeTransaction, txn.ID, nil, txn, now); err != nil {
		return nil, err
	}

	return txn, nil
}

func (uc *LedgerUseCase) draft(input RecordTransactionInput, currency string) *domain.Transaction {
	return &domain.Transaction{
		Type:           input.Type,
		FromAccountID:  domain.StringRef(input.FromAccountID),
		ToAccountID:    domain.StringRef(input.ToAccountID),
		Amount:         input.Amount,
		Currency:       currency,
		IdempotencyKey: input.IdempotencyKey,
		MilestoneID:    domain.StringRef(input.MilestoneID),
		ReversesID:     domain.StringRef(input.reversesID),
		Reason:         input.Reason,
		Metadata:       input.Metadata,
	}
}

// GetBalance derives an account balance from its completed transactions.
// Clients and vendors may only read their own accounts.
func (uc *LedgerUseCase) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	scope, err := readScope(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	if scope != "" && account.OwnerID != scope {
		return decimal.Zero, fmt.Errorf("%w: account %s belongs to another user", domain.ErrForbidden, accountID)
	}

	return uc.ledgerRepo.ComputedBalance(ctx, accountID)
}

// ReverseInput describes a (partial) reversal of a completed transaction.
// A zero Amount reverses whatever has not been reversed yet.
type ReverseInput struct {
	TransactionID  string
	Amount         decimal.Decimal
	Reason         string
	IdempotencyKey string
}

// Reverse posts an opposite-direction REFUND referencing the original
// transaction. The original is never modified and the reversed total never
// exceeds its amount.
func (uc *LedgerUseCase) Reverse(ctx context.Context, input ReverseInput) (*domain.Transaction, error) {
	if _, err := domain.RequireOperator(ctx); err != nil {
		return nil, err
	}

	if !input.Amount.IsZero() {
		if err := domain.ValidateAmount(input.Amount); err != nil {
			return nil, err
		}
	}
	if err := domain.ValidateReason(input.Reason); err != nil {
		return nil, err
	}

	key := input.IdempotencyKey
	if key == "" {
		key = "reversal:" + uc.idGen.Generate()
	} else if err := domain.ValidateIdempotencyKey(key); err != nil {
		return nil, err
	}

	start := time.Now()

	var (
		result *domain.Transaction
		fresh  []*domain.Transaction
	)

	err := atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		fresh = nil

		original, err := uc.txnRepo.GetByIDForUpdate(ctx, tx, input.TransactionID)
		if err != nil {
			return err
		}

		existing, err := uc.txnRepo.GetByIdempotencyKey(ctx, tx, key)
		switch {
		case err == nil:
			if domain.Deref(existing.ReversesID) != original.ID {
				return fmt.Errorf("%w: key %q", domain.ErrDuplicateOperation, key)
			}
			result = existing
			return nil
		case !errors.Is(err, domain.ErrTransactionNotFound):
			return err
		}

		if original.IsReversal() {
			return fmt.Errorf("%w: transaction %s is itself a reversal", domain.ErrInvalidState, original.ID)
		}
		if original.Status != domain.TransactionStatusCompleted {
			return fmt.Errorf("%w: transaction %s is %s", domain.ErrInvalidState, original.ID, original.Status)
		}
		if original.ToAccountID == nil {
			return fmt.Errorf("%w: withdrawals cannot be reversed, record a deposit instead", domain.ErrInvalidState)
		}
		if original.MilestoneID != nil {
			return fmt.Errorf("%w: transaction %s settles milestone %s, use the milestone workflow",
				domain.ErrInvalidState, original.ID, *original.MilestoneID)
		}

		reversed, err := uc.txnRepo.SumReversed(ctx, tx, original.ID)
		if err != nil {
			return err
		}

		remaining := original.Amount.Sub(reversed)
		if !remaining.IsPositive() {
			return fmt.Errorf("%w: transaction %s is fully reversed", domain.ErrInsufficientFunds, original.ID)
		}

		amount := input.Amount
		if amount.IsZero() {
			amount = remaining
		}
		if amount.GreaterThan(remaining) {
			return fmt.Errorf("%w: %s requested, %s left to reverse",
				domain.ErrInsufficientFunds, amount.StringFixed(2), remaining.StringFixed(2))
		}

		all, created, err := uc.apply(ctx, tx, []RecordTransactionInput{{
			Type:           domain.TransactionTypeRefund,
			FromAccountID:  *original.ToAccountID,
			ToAccountID:    domain.Deref(original.FromAccountID),
			Amount:         amount,
			IdempotencyKey: key,
			Reason:         input.Reason,
			Metadata:       map[string]any{"reverses_type": string(original.Type)},
			reversesID:     original.ID,
			manual:         true,
		}})
		if err != nil {
			return err
		}

		result, fresh = all[0], created
		return nil
	})
	if err != nil {
		uc.observeError(err)
		return nil, err
	}

	if uc.metrics != nil && len(fresh) > 0 {
		uc.metrics.TransactionsReversed.Inc()
		uc.metrics.OperationDuration.WithLabelValues("reverse_transaction").Observe(time.Since(start).Seconds())
	}
	uc.observe(fresh)

	return result, nil
}

// GetTransaction retrieves a transaction by ID.
func (uc *LedgerUseCase) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return uc.txnRepo.GetByID(ctx, id)
}

// ListTransactions returns one page of transactions and the total match count.
func (uc *LedgerUseCase) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, int64, error) {
	filter.Limit, filter.Offset, _ = domain.ValidatePagination(filter.Limit, filter.Offset)

	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransaction, filter.Status)
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidTransaction, filter.Type)
	}

	txns, err := uc.txnRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := uc.txnRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return txns, total, nil
}

func (uc *LedgerUseCase) observe(txns []*domain.Transaction) {
	if uc.metrics == nil {
		return
	}
	for _, txn := range txns {
		uc.metrics.TransactionsRecorded.WithLabelValues(string(txn.Type)).Inc()
		uc.metrics.TransactionAmount.WithLabelValues(string(txn.Type)).Observe(txn.Amount.InexactFloat64())
	}
}

func (uc *LedgerUseCase) observeError(err error) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.TransactionErrors.WithLabelValues(errorType(err)).Inc()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrDuplicateOperation):
		return "duplicate_operation"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrAmountPrecision), errors.Is(err, domain.ErrAmountTooLarge):
		return "invalid_amount"
	case errors.Is(err, domain.ErrCurrencyMismatch):
		return "currency_mismatch"
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrTransactionNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrUnauthorized):
		return "auth"
	default:
		return "other"
	}
}

func collectUniqueAccountIDs(inputs []RecordTransactionInput, indexes []int) []string {
	seen := make(map[string]bool)

	var ids []string
	for _, i := range indexes {
		for _, id := range inputs[i].accountIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	return ids
}

func buildAccountMap(accounts []*domain.Account) map[string]*domain.Account {
	m := make(map[string]*domain.Account)
	for _, a := range accounts {
		m[a.ID] = a
	}

	return m
}
