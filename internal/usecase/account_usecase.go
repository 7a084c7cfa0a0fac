package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
)

// AccountUseCase handles account business logic.
type AccountUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	journal     journal
	idGen       IDGenerator
	metrics     *metrics.Metrics
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	metrics *metrics.Metrics,
) *AccountUseCase {
	return &AccountUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		journal:     journal{outboxRepo: outboxRepo, auditRepo: auditRepo, idGen: idGen},
		idGen:       idGen,
		metrics:     metrics,
	}
}

// CreateAccountInput represents input for creating an account.
type CreateAccountInput struct {
	Kind     domain.AccountKind
	OwnerID  string
	Name     string
	Currency string
}

// CreateAccount opens an empty account. Only operators create accounts
// directly; milestone creation opens party accounts on its own.
func (uc *AccountUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	if _, err := domain.RequireOperator(ctx); err != nil {
		return nil, err
	}

	input.Kind = domain.AccountKind(strings.ToUpper(string(input.Kind)))
	if !input.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAccountKind, input.Kind)
	}

	input.Currency = domain.NormalizeCurrency(input.Currency)
	if err := domain.ValidateCurrency(input.Currency); err != nil {
		return nil, err
	}
	if err := domain.ValidateAccountName(input.Name); err != nil {
		return nil, err
	}

	input.OwnerID = strings.TrimSpace(input.OwnerID)
	if input.OwnerID == "" && input.Kind != domain.AccountKindPlatform {
		return nil, fmt.Errorf("%w: %s accounts need an owner", domain.ErrInvalidAccountKind, strings.ToLower(string(input.Kind)))
	}

	now := time.Now().UTC()

	account := &domain.Account{
		ID:        uc.idGen.Generate(),
		Kind:      input.Kind,
		OwnerID:   input.OwnerID,
		Name:      input.Name,
		Currency:  input.Currency,
		Balance:   decimal.Zero,
		Version:   0,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := atomically(ctx, uc.txManager, nil, func(ctx context.Context, tx Transaction) error {
		if err := uc.accountRepo.CreateTx(ctx, tx, account); err != nil {
			return err
		}

		payload := map[string]any{
			"account_id": account.ID,
			"kind":       string(account.Kind),
			"owner_id":   account.OwnerID,
			"currency":   account.Currency,
		}
		if err := uc.journal.emit(ctx, tx, domain.AggregateTypeAccount, account.ID, domain.EventTypeAccountCreated, payload, now); err != nil {
			return err
		}

		return uc.journal.audit(ctx, tx, domain.AuditActionAccountCreate, domain.AggregateTypeAccount, account.ID, nil, account, now)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AccountsCreated.WithLabelValues(string(account.Kind)).Inc()
	}

	return account, nil
}

// GetAccount retrieves an account by ID. Clients and vendors may only read
// accounts they own.
func (uc *AccountUseCase) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	scope, err := readScope(ctx)
	if err != nil {
		return nil, err
	}

	account, err := uc.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scope != "" && account.OwnerID != scope {
		return nil, fmt.Errorf("%w: account %s belongs to another user", domain.ErrForbidden, id)
	}

	return account, nil
}

// ListAccountsInput represents input for listing accounts.
type ListAccountsInput struct {
	Limit  int
	Offset int
}

// ListAccounts lists accounts with pagination. Clients and vendors only see
// their own.
func (uc *AccountUseCase) ListAccounts(ctx context.Context, input ListAccountsInput) ([]*domain.Account, error) {
	scope, err := readScope(ctx)
	if err != nil {
		return nil, err
	}

	if input.Limit <= 0 {
		input.Limit = 20
	}
	if input.Limit > 100 {
		input.Limit = 100
	}
	return uc.accountRepo.List(ctx, scope, input.Limit, input.Offset)
}
