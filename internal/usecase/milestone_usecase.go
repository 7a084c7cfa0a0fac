package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
)

// MilestoneUseCase drives the milestone lifecycle and its escrow funding
// and cancellation.
type MilestoneUseCase struct {
	txManager     TransactionManager
	accountRepo   AccountRepository
	milestoneRepo MilestoneRepository
	ledger        *LedgerUseCase
	settler       settler
	journal       journal
	idGen         IDGenerator
	retrier       Retrier
	metrics       *metrics.Metrics
}

// NewMilestoneUseCase creates a new MilestoneUseCase.
func NewMilestoneUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	milestoneRepo MilestoneRepository,
	requestRepo PaymentRequestRepository,
	ledger *LedgerUseCase,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	retrier Retrier,
	metrics *metrics.Metrics,
) *MilestoneUseCase {
	j := journal{outboxRepo: outboxRepo, auditRepo: auditRepo, idGen: idGen}

	return &MilestoneUseCase{
		txManager:     txManager,
		accountRepo:   accountRepo,
		milestoneRepo: milestoneRepo,
		ledger:        ledger,
		settler: settler{
			ledger:        ledger,
			milestoneRepo: milestoneRepo,
			requestRepo:   requestRepo,
			journal:       j,
		},
		journal: j,
		idGen:   idGen,
		retrier: retrier,
		metrics: metrics,
	}
}

// CreateMilestoneInput represents input for creating a milestone.
type CreateMilestoneInput struct {
	ProjectID string
	Title     string
	ClientID  string
	VendorID  string
	Amount    decimal.Decimal
	Currency  string
	DueDate   *time.Time
	Fund      bool
}

func (in *CreateMilestoneInput) normalize() error {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.VendorID = strings.TrimSpace(in.VendorID)
	in.Title = strings.TrimSpace(in.Title)
	in.Currency = domain.NormalizeCurrency(in.Currency)

	if in.ProjectID == "" || in.ClientID == "" || in.VendorID == "" {
		return fmt.Errorf("%w: project, client and vendor are required", domain.ErrInvalidTransaction)
	}
	if in.ClientID == in.VendorID {
		return fmt.Errorf("%w: client and vendor must differ", domain.ErrSameAccount)
	}
	if err := domain.ValidateAccountName(in.Title); err != nil {
		return err
	}
	if err := domain.ValidateCurrency(in.Currency); err != nil {
		return err
	}

	return domain.ValidateAmount(in.Amount)
}

// CreateMilestone creates a milestone with its client, vendor and escrow
// accounts. With Fund set, the escrow deposit is recorded in the same unit.
func (uc *MilestoneUseCase) CreateMilestone(ctx context.Context, input CreateMilestoneInput) (*domain.Milestone, error) {
	actor, err := domain.RequireActor(ctx)
	if err != nil {
		return nil, err
	}

	if err := input.normalize(); err != nil {
		return nil, err
	}

	if !actor.Role.CanOperate() && actor.ID != input.ClientID {
		return nil, fmt.Errorf("%w: only the client or an operator may create a milestone", domain.ErrForbidden)
	}

	var (
		milestone *domain.Milestone
		fresh     []*domain.Transaction
	)

	err = atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		now := time.Now().UTC()
		fresh = nil

		clientAccount, err := uc.ensureAccount(ctx, tx, input.ClientID, domain.AccountKindClient, input.Currency, now)
		if err != nil {
			return err
		}

		vendorAccount, err := uc.ensureAccount(ctx, tx, input.VendorID, domain.AccountKindVendor, input.Currency, now)
		if err != nil {
			return err
		}

		escrowAccount, err := uc.ensureAccount(ctx, tx, input.ClientID, domain.AccountKindEscrow, input.Currency, now)
		if err != nil {
			return err
		}

		milestone = &domain.Milestone{
			ID:              uc.idGen.Generate(),
			ProjectID:       input.ProjectID,
			Title:           input.Title,
			ClientID:        input.ClientID,
			VendorID:        input.VendorID,
			ClientAccountID: clientAccount.ID,
			VendorAccountID: vendorAccount.ID,
			EscrowAccountID: escrowAccount.ID,
			Amount:          input.Amount,
			Released:        decimal.Zero,
			Refunded:        decimal.Zero,
			Currency:        input.Currency,
			Status:          domain.MilestoneStatusPending,
			DueDate:         input.DueDate,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := uc.milestoneRepo.Create(ctx, tx, milestone); err != nil {
			return err
		}

		if err := uc.journal.emit(ctx, tx, domain.AggregateTypeMilestone, milestone.ID, domain.EventTypeMilestoneCreated, milestonePayload(milestone), now); err != nil {
			return err
		}

		if err := uc.journal.audit(ctx, tx, domain.AuditActionMilestoneCreate, domain.AggregateTypeMilestone, milestone.ID, nil, milestone, now); err != nil {
			return err
		}

		if input.Fund {
			fresh, err = uc.fund(ctx, tx, milestone, now)
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.ledger.observe(fresh)
	if uc.metrics != nil {
		uc.metrics.MilestonesCreated.Inc()
	}

	return milestone, nil
}

// FundMilestone records the escrow deposit of an unfunded milestone.
func (uc *MilestoneUseCase) FundMilestone(ctx context.Context, milestoneID string) (*domain.Milestone, error) {
	var fresh []*domain.Transaction

	m, err := uc.mutate(ctx, milestoneID, func(ctx context.Context, tx Transaction, actor *domain.Actor, m *domain.Milestone, now time.Time) error {
		if !actor.Role.CanOperate() && actor.ID != m.ClientID {
			return fmt.Errorf("%w: only the client or an operator may fund a milestone", domain.ErrForbidden)
		}

		var err error
		fresh, err = uc.fund(ctx, tx, m, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.ledger.observe(fresh)
	return m, nil
}

// fund mints the milestone amount into escrow and returns the new deposit.
func (uc *MilestoneUseCase) fund(ctx context.Context, tx Transaction, m *domain.Milestone, now time.Time) ([]*domain.Transaction, error) {
	before := *m

	if err := m.MarkFunded(now); err != nil {
		return nil, err
	}

	txns, fresh, err := uc.ledger.apply(ctx, tx, []RecordTransactionInput{{
		Type:           domain.TransactionTypeDeposit,
		ToAccountID:    m.EscrowAccountID,
		Amount:         m.Amount,
		IdempotencyKey: fundingKey(m.ID),
		MilestoneID:    m.ID,
		Reason:         "milestone escrow deposit",
	}})
	if err != nil {
		return nil, err
	}

	if err := uc.milestoneRepo.Update(ctx, tx, m); err != nil {
		return nil, err
	}

	payload := milestonePayload(m)
	payload["transaction_id"] = txns[0].ID

	if err := uc.journal.emit(ctx, tx, domain.AggregateTypeMilestone, m.ID, domain.EventTypeMilestoneFunded, payload, now); err != nil {
		return nil, err
	}

	if err := uc.journal.audit(ctx, tx, domain.AuditActionMilestoneFund, domain.AggregateTypeMilestone, m.ID, before, m, now); err != nil {
		return nil, err
	}

	return fresh, nil
}

// StartWork moves a milestone from PENDING to IN_PROGRESS.
func (uc *MilestoneUseCase) StartWork(ctx context.Context, milestoneID string) (*domain.Milestone, error) {
	return uc.transition(ctx, milestoneID, domain.MilestoneStatusInProgress, domain.AuditActionMilestoneStart)
}

// MarkCompleted moves a milestone from IN_PROGRESS to COMPLETED, which
// unlocks payment requests.
func (uc *MilestoneUseCase) MarkCompleted(ctx context.Context, milestoneID string) (*domain.Milestone, error) {
	return uc.transition(ctx, milestoneID, domain.MilestoneStatusCompleted, domain.AuditActionMilestoneComplete)
}

func (uc *MilestoneUseCase) transition(ctx context.Context, milestoneID string, next domain.MilestoneStatus, action domain.AuditAction) (*domain.Milestone, error) {
	return uc.mutate(ctx, milestoneID, func(ctx context.Context, tx Transaction, actor *domain.Actor, m *domain.Milestone, now time.Time) error {
		if !actor.Role.CanOperate() && actor.ID != m.VendorID {
			return fmt.Errorf("%w: only the vendor or an operator may advance a milestone", domain.ErrForbidden)
		}

		before := *m
		if err := m.Transition(next, now); err != nil {
			return err
		}

		if err := uc.milestoneRepo.Update(ctx, tx, m); err != nil {
			return err
		}

		payload := milestonePayload(m)
		payload["previous_status"] = string(before.Status)

		if err := uc.journal.emit(ctx, tx, domain.AggregateTypeMilestone, m.ID, domain.EventTypeMilestoneStatusChanged, payload, now); err != nil {
			return err
		}

		return uc.journal.audit(ctx, tx, action, domain.AggregateTypeMilestone, m.ID, before, m, now)
	})
}

// CancelMilestoneInput represents input for cancelling a milestone.
type CancelMilestoneInput struct {
	MilestoneID      string
	RefundPercentage decimal.Decimal
	Reason           string
}

// CancelResult reports what a cancellation did. Deferred is set when an
// active dispute froze the milestone and the cancellation was parked.
type CancelResult struct {
	Milestone    *domain.Milestone
	Transactions []*domain.Transaction
	Deferred     bool
}

// CancelMilestone refunds RefundPercentage of the held amount to the client
// and releases the remainder to the vendor. On a frozen milestone the
// cancellation is stored and runs only if the dispute is withdrawn.
func (uc *MilestoneUseCase) CancelMilestone(ctx context.Context, input CancelMilestoneInput) (*CancelResult, error) {
	if err := domain.ValidatePercentage(input.RefundPercentage); err != nil {
		return nil, err
	}
	if err := domain.ValidateReason(input.Reason); err != nil {
		return nil, err
	}

	result := &CancelResult{}
	var fresh []*domain.Transaction

	m, err := uc.mutate(ctx, input.MilestoneID, func(ctx context.Context, tx Transaction, actor *domain.Actor, m *domain.Milestone, now time.Time) error {
		result.Transactions, result.Deferred, fresh = nil, false, nil

		if !actor.Role.CanOperate() && actor.ID != m.ClientID {
			return fmt.Errorf("%w: only the client or an operator may cancel a milestone", domain.ErrForbidden)
		}

		switch {
		case m.IsPaid || m.Status == domain.MilestoneStatusPaid:
			return fmt.Errorf("%w: milestone %s is paid", domain.ErrAlreadySettled, m.ID)
		case m.Status == domain.MilestoneStatusCancelled:
			return fmt.Errorf("%w: milestone %s is already cancelled", domain.ErrInvalidState, m.ID)
		}

		if m.IsFrozen() {
			return uc.deferCancellation(ctx, tx, actor, m, input, now, result)
		}

		all, created, err := uc.settler.cancel(ctx, tx, m, input.RefundPercentage, input.Reason, now)
		if err != nil {
			return err
		}

		result.Transactions, fresh = all, created
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Milestone = m
	uc.ledger.observe(fresh)
	if uc.metrics != nil && !result.Deferred {
		uc.metrics.MilestonesSettled.WithLabelValues(string(domain.MilestoneStatusCancelled)).Inc()
	}

	return result, nil
}

func (uc *MilestoneUseCase) deferCancellation(
	ctx context.Context,
	tx Transaction,
	actor *domain.Actor,
	m *domain.Milestone,
	input CancelMilestoneInput,
	now time.Time,
	result *CancelResult,
) error {
	before := *m

	m.PendingCancellation = &domain.PendingCancellation{
		RefundPercentage: input.RefundPercentage,
		Reason:           input.Reason,
		RequestedBy:      actor.ID,
		RequestedAt:      now,
	}
	m.UpdatedAt = now

	if err := uc.milestoneRepo.Update(ctx, tx, m); err != nil {
		return err
	}

	payload := milestonePayload(m)
	payload["dispute_id"] = domain.Deref(m.FrozenBy)
	payload["refund_percentage"] = input.RefundPercentage.String()

	if err := uc.journal.emit(ctx, tx, domain.AggregateTypeMilestone, m.ID, domain.EventTypeMilestoneCancellationDeferred, payload, now); err != nil {
		return err
	}

	if err := uc.journal.audit(ctx, tx, domain.AuditActionMilestoneDefer, domain.AggregateTypeMilestone, m.ID, before, m, now); err != nil {
		return err
	}

	result.Deferred = true
	return nil
}

// mutate loads and locks a milestone, applies fn and returns the result.
func (uc *MilestoneUseCase) mutate(
	ctx context.Context,
	milestoneID string,
	fn func(ctx context.Context, tx Transaction, actor *domain.Actor, m *domain.Milestone, now time.Time) error,
) (*domain.Milestone, error) {
	actor, err := domain.RequireActor(ctx)
	if err != nil {
		return nil, err
	}

	var milestone *domain.Milestone

	err = atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		m, err := uc.milestoneRepo.GetByIDForUpdate(ctx, tx, milestoneID)
		if err != nil {
			return err
		}

		if err := fn(ctx, tx, actor, m, time.Now().UTC()); err != nil {
			return err
		}

		milestone = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return milestone, nil
}

func (uc *MilestoneUseCase) ensureAccount(
	ctx context.Context,
	tx Transaction,
	ownerID string,
	kind domain.AccountKind,
	currency string,
	now time.Time,
) (*domain.Account, error) {
	account, err := uc.accountRepo.FindByOwner(ctx, tx, ownerID, kind, currency)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	account = &domain.Account{
		ID:        uc.idGen.Generate(),
		Kind:      kind,
		OwnerID:   ownerID,
		Name:      fmt.Sprintf("%s %s %s", strings.ToLower(string(kind)), ownerID, currency),
		Currency:  currency,
		Balance:   decimal.Zero,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.accountRepo.CreateTx(ctx, tx, account); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"account_id": account.ID,
		"kind":       string(account.Kind),
		"owner_id":   account.OwnerID,
		"currency":   account.Currency,
	}
	if err := uc.journal.emit(ctx, tx, domain.AggregateTypeAccount, account.ID, domain.EventTypeAccountCreated, payload, now); err != nil {
		return nil, err
	}

	return account, nil
}

// GetMilestone retrieves a milestone by ID. A non-empty projectID must match.
func (uc *MilestoneUseCase) GetMilestone(ctx context.Context, projectID, milestoneID string) (*domain.Milestone, error) {
	scope, err := readScope(ctx)
	if err != nil {
		return nil, err
	}

	m, err := uc.milestoneRepo.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if projectID != "" && m.ProjectID != projectID {
		return nil, domain.ErrMilestoneNotFound
	}
	if scope != "" && !m.IsParty(scope) {
		return nil, fmt.Errorf("%w: not a party to milestone %s", domain.ErrForbidden, m.ID)
	}
	return m, nil
}

// ListMilestones lists the milestones of a project. Clients and vendors only
// see the milestones they are party to.
func (uc *MilestoneUseCase) ListMilestones(ctx context.Context, projectID string, limit, offset int) ([]*domain.Milestone, error) {
	scope, err := readScope(ctx)
	if err != nil {
		return nil, err
	}

	limit, offset, _ = domain.ValidatePagination(limit, offset)
	return uc.milestoneRepo.ListByProject(ctx, projectID, scope, limit, offset)
}
