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

// DisputeUseCase runs arbitration over milestone escrow and applies
// resolutions through the ledger.
type DisputeUseCase struct {
	txManager     TransactionManager
	milestoneRepo MilestoneRepository
	disputeRepo   DisputeRepository
	settler       settler
	journal       journal
	idGen         IDGenerator
	retrier       Retrier
	metrics       *metrics.Metrics
}

// NewDisputeUseCase creates a new DisputeUseCase.
func NewDisputeUseCase(
	txManager TransactionManager,
	milestoneRepo MilestoneRepository,
	requestRepo PaymentRequestRepository,
	disputeRepo DisputeRepository,
	ledger *LedgerUseCase,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	retrier Retrier,
	metrics *metrics.Metrics,
) *DisputeUseCase {
	j := journal{outboxRepo: outboxRepo, auditRepo: auditRepo, idGen: idGen}

	return &DisputeUseCase{
		txManager:     txManager,
		milestoneRepo: milestoneRepo,
		disputeRepo:   disputeRepo,
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

// OpenDisputeInput represents input for opening a dispute. PlaintiffID is
// only read when an operator files on behalf of a party; a party always
// files as itself.
type OpenDisputeInput struct {
	MilestoneID string
	PlaintiffID string
	Reason      string
}

// OpenDispute freezes a milestone's escrow pending arbitration. The dispute
// captures the held amount at open time as its escrow amount.
func (uc *DisputeUseCase) OpenDispute(ctx context.Context, input OpenDisputeInput) (*domain.Dispute, error) {
	actor, err := domain.RequireActor(ctx)
	if err != nil {
		return nil, err
	}

	input.Reason = strings.TrimSpace(input.Reason)
	if input.Reason == "" {
		return nil, fmt.Errorf("%w: a dispute needs a reason", domain.ErrInvalidState)
	}
	if err := domain.ValidateReason(input.Reason); err != nil {
		return nil, err
	}

	var dispute *domain.Dispute

	err = atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		m, err := uc.milestoneRepo.GetByIDForUpdate(ctx, tx, input.MilestoneID)
		if err != nil {
			return err
		}

		plaintiff := actor.ID
		if !m.IsParty(actor.ID) {
			if !actor.Role.CanOperate() {
				return fmt.Errorf("%w: only a party to milestone %s may dispute it", domain.ErrForbidden, m.ID)
			}
			if !m.IsParty(input.PlaintiffID) {
				return fmt.Errorf("%w: plaintiff must be the client or the vendor", domain.ErrInvalidState)
			}
			plaintiff = input.PlaintiffID
		}

		defendant := m.VendorID
		if plaintiff == m.VendorID {
			defendant = m.ClientID
		}

		switch {
		case m.IsPaid || m.Status == domain.MilestoneStatusPaid:
			return fmt.Errorf("%w: milestone %s is paid", domain.ErrAlreadySettled, m.ID)
		case m.Status == domain.MilestoneStatusCancelled:
			return fmt.Errorf("%w: milestone %s is cancelled", domain.ErrInvalidState, m.ID)
		case !m.Held().IsPositive():
			return fmt.Errorf("%w: milestone %s holds no escrow", domain.ErrInvalidState, m.ID)
		}

		now := time.Now().UTC()
		before := *m

		dispute = &domain.Dispute{
			ID:           uc.idGen.Generate(),
			MilestoneID:  m.ID,
			ProjectID:    m.ProjectID,
			PlaintiffID:  plaintiff,
			DefendantID:  defendant,
			Reason:       input.Reason,
			EscrowAmount: m.Held(),
			Currency:     m.Currency,
			Status:       domain.DisputeStatusOpen,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := m.Freeze(dispute.ID, now); err != nil {
			return err
		}

		if err := uc.disputeRepo.Create(ctx, tx, dispute); err != nil {
			return err
		}

		if err := uc.milestoneRepo.Update(ctx, tx, m); err != nil {
			return err
		}

		if err := uc.journal.emit(ctx, tx, domain.AggregateTypeDispute, dispute.ID, domain.EventTypeDisputeOpened, disputePayload(dispute), now); err != nil {
			return err
		}

		if err := uc.journal.audit(ctx, tx, domain.AuditActionDisputeOpen, domain.AggregateTypeDispute, dispute.ID, nil, dispute, now); err != nil {
			return err
		}

		return uc.journal.audit(ctx, tx, domain.AuditActionDisputeOpen, domain.AggregateTypeMilestone, m.ID, before, m, now)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.DisputesOpened.Inc()
	}

	return dispute, nil
}

// StartInvestigation moves an OPEN dispute to INVESTIGATING.
func (uc *DisputeUseCase) StartInvestigation(ctx context.Context, disputeID string) (*domain.Dispute, error) {
	if _, err := domain.RequireOperator(ctx); err != nil {
		return nil, err
	}

	var dispute *domain.Dispute

	err := atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		d, err := uc.disputeRepo.GetByIDForUpdate(ctx, tx, disputeID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		before := *d

		if err := d.StartInvestigation(now); err != nil {
			return err
		}

		if err := uc.disputeRepo.Update(ctx, tx, d); err != nil {
			return err
		}

		if err := uc.journal.emit(ctx, tx, domain.AggregateTypeDispute, d.ID, domain.EventTypeDisputeInvestigating, disputePayload(d), now); err != nil {
			return err
		}

		if err := uc.journal.audit(ctx, tx, domain.AuditActionDisputeInvestigate, domain.AggregateTypeDispute, d.ID, before, d, now); err != nil {
			return err
		}

		dispute = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	return dispute, nil
}

// WithdrawResult reports a withdrawal and any deferred cancellation it ran.
type WithdrawResult struct {
	Dispute      *domain.Dispute
	Milestone    *domain.Milestone
	Transactions []*domain.Transaction
}

// Withdraw lets the plaintiff drop an active dispute. The milestone is
// unfrozen and a cancellation deferred during the dispute is executed.
func (uc *DisputeUseCase) Withdraw(ctx context.Context, disputeID, reason string) (*WithdrawResult, error) {
	actor, err := domain.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateReason(reason); err != nil {
		return nil, err
	}

	result := &WithdrawResult{}
	var fresh []*domain.Transaction

	err = atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		result.Transactions, fresh = nil, nil

		d, err := uc.disputeRepo.GetByIDForUpdate(ctx, tx, disputeID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		before := *d

		if err := d.Withdraw(actor.ID, now); err != nil {
			return err
		}

		m, err := uc.milestoneRepo.GetByIDForUpdate(ctx, tx, d.MilestoneID)
		if err != nil {
			return err
		}

		if err := uc.disputeRepo.Update(ctx, tx, d); err != nil {
			return err
		}

		m.Unfreeze(now)

		if pending := m.PendingCancellation; pending != nil {
			all, created, err := uc.settler.cancel(ctx, tx, m, pending.RefundPercentage, pending.Reason, now)
			if err != nil {
				return err
			}
			result.Transactions, fresh = all, created
		} else if err := uc.milestoneRepo.Update(ctx, tx, m); err != nil {
			return err
		}

		payload := disputePayload(d)
		payload["reason"] = reason

		if err := uc.journal.emit(ctx, tx, domain.AggregateTypeDispute, d.ID, domain.EventTypeDisputeWithdrawn, payload, now); err != nil {
			return err
		}

		if err := uc.journal.audit(ctx, tx, domain.AuditActionDisputeWithdraw, domain.AggregateTypeDispute, d.ID, before, d, now); err != nil {
			return err
		}

		result.Dispute, result.Milestone = d, m
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.settler.ledger.observe(fresh)
	if uc.metrics != nil {
		uc.metrics.DisputesClosed.WithLabelValues("withdrawn").Inc()
		if len(fresh) > 0 || result.Milestone.Status == domain.MilestoneStatusCancelled {
			uc.metrics.MilestonesSettled.WithLabelValues(string(result.Milestone.Status)).Inc()
		}
	}

	return result, nil
}

// ResolveDisputeInput represents an arbitration decision.
type ResolveDisputeInput struct {
	DisputeID    string
	Type         domain.ResolutionType
	ClientAmount decimal.Decimal
	VendorAmount decimal.Decimal
	Note         string
}

// ResolveResult carries the closed dispute, the settled milestone and the
// postings of the resolution.
type ResolveResult struct {
	Dispute      *domain.Dispute
	Milestone    *domain.Milestone
	Transactions []*domain.Transaction
}

// Resolve validates the split without side effects, then posts the client
// REFUND and vendor PAYMENT, settles the milestone and closes the dispute
// as one unit. The milestone becomes PAID when the vendor receives
// anything and CANCELLED otherwise.
func (uc *DisputeUseCase) Resolve(ctx context.Context, input ResolveDisputeInput) (*ResolveResult, error) {
	if _, err := domain.RequireOperator(ctx); err != nil {
		return nil, err
	}
	if err := domain.ValidateReason(input.Note); err != nil {
		return nil, err
	}

	current, err := uc.disputeRepo.GetByID(ctx, input.DisputeID)
	if err != nil {
		return nil, err
	}
	if err := current.CheckResolvable(input.Type, input.ClientAmount, input.VendorAmount); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &ResolveResult{}
	var fresh []*domain.Transaction

	err = atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		result.Transactions, fresh = nil, nil

		d, err := uc.disputeRepo.GetByIDForUpdate(ctx, tx, input.DisputeID)
		if err != nil {
			return err
		}

		if err := d.CheckResolvable(input.Type, input.ClientAmount, input.VendorAmount); err != nil {
			return err
		}

		m, err := uc.milestoneRepo.GetByIDForUpdate(ctx, tx, d.MilestoneID)
		if err != nil {
			return err
		}

		if held := m.Held(); !held.Equal(d.EscrowAmount) {
			return fmt.Errorf("%w: milestone %s holds %s, dispute was opened over %s",
				domain.ErrConflict, m.ID, held.StringFixed(2), d.EscrowAmount.StringFixed(2))
		}

		now := time.Now().UTC()
		beforeDispute := *d
		beforeMilestone := *m

		all, created, err := uc.settler.post(ctx, tx, m, "dispute "+d.ID,
			leg{txnType: domain.TransactionTypeRefund, to: m.ClientAccountID, amount: input.ClientAmount, key: disputeKey(d.ID, "client")},
			leg{txnType: domain.TransactionTypePayment, to: m.VendorAccountID, amount: input.VendorAmount, key: disputeKey(d.ID, "vendor")},
		)
		if err != nil {
			return err
		}

		m.ApplyResolution(input.ClientAmount, input.VendorAmount, now)
		if err := uc.milestoneRepo.Update(ctx, tx, m); err != nil {
			return err
		}

		resolution := domain.Resolution{
			Type:         input.Type,
			ClientAmount: input.ClientAmount,
			VendorAmount: input.VendorAmount,
			Note:         input.Note,
			ResolvedBy:   actorID(ctx),
			ResolvedAt:   now,
		}
		if err := d.Resolve(resolution, now); err != nil {
			return err
		}
		if err := uc.disputeRepo.Update(ctx, tx, d); err != nil {
			return err
		}

		if err := uc.settler.supersedeOpenRequest(ctx, tx, m.ID, "milestone settled by dispute "+d.ID, now); err != nil {
			return err
		}

		payload := disputePayload(d)
		payload["resolution_type"] = string(input.Type)
		payload["client_amount"] = input.ClientAmount.StringFixed(2)
		payload["vendor_amount"] = input.VendorAmount.StringFixed(2)
		payload["transaction_ids"] = transactionIDs(all)

		if err := uc.journal.emit(ctx, tx, domain.AggregateTypeDispute, d.ID, domain.EventTypeDisputeResolved, payload, now); err != nil {
			return err
		}

		milestoneEvent := domain.EventTypeMilestoneCancelled
		if m.Status == domain.MilestoneStatusPaid {
			milestoneEvent = domain.EventTypeMilestonePaid
		}
		if err := uc.journal.emit(ctx, tx, domain.AggregateTypeMilestone, m.ID, milestoneEvent, milestonePayload(m), now); err != nil {
			return err
		}

		if err := uc.journal.audit(ctx, tx, domain.AuditActionDisputeResolve, domain.AggregateTypeDispute, d.ID, beforeDispute, d, now); err != nil {
			return err
		}

		if err := uc.journal.audit(ctx, tx, domain.AuditActionDisputeResolve, domain.AggregateTypeMilestone, m.ID, beforeMilestone, m, now); err != nil {
			return err
		}

		result.Dispute, result.Milestone, result.Transactions = d, m, all
		fresh = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.settler.ledger.observe(fresh)
	if uc.metrics != nil {
		uc.metrics.DisputesClosed.WithLabelValues(strings.ToLower(string(input.Type))).Inc()
		uc.metrics.MilestonesSettled.WithLabelValues(string(result.Milestone.Status)).Inc()
		uc.metrics.OperationDuration.WithLabelValues("resolve_dispute").Observe(time.Since(start).Seconds())
	}

	return result, nil
}

// GetDispute retrieves a dispute by ID. Clients and vendors may only read
// disputes they filed or answer.
func (uc *DisputeUseCase) GetDispute(ctx context.Context, id string) (*domain.Dispute, error) {
	scope, err := readScope(ctx)
	if err != nil {
		return nil, err
	}

	d, err := uc.disputeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scope != "" && !d.IsParty(scope) {
		return nil, fmt.Errorf("%w: not a party to dispute %s", domain.ErrForbidden, d.ID)
	}

	return d, nil
}

// ListDisputes returns one page of disputes and the total match count.
// Clients and vendors only see their own disputes.
func (uc *DisputeUseCase) ListDisputes(ctx context.Context, filter domain.DisputeFilter) ([]*domain.Dispute, int64, error) {
	scope, err := readScope(ctx)
	if err != nil {
		return nil, 0, err
	}
	if scope != "" {
		filter.PartyID = scope
	}

	filter.Limit, filter.Offset, _ = domain.ValidatePagination(filter.Limit, filter.Offset)

	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidState, filter.Status)
	}

	disputes, err := uc.disputeRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := uc.disputeRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return disputes, total, nil
}

// ActiveDispute returns the dispute freezing a milestone, if any.
func (uc *DisputeUseCase) ActiveDispute(ctx context.Context, milestoneID string) (*domain.Dispute, error) {
	d, err := uc.disputeRepo.GetActiveByMilestone(ctx, nil, milestoneID)
	if errors.Is(err, domain.ErrDisputeNotFound) {
		return nil, nil
	}
	return d, err
}

func disputePayload(d *domain.Dispute) map[string]any {
	return map[string]any{
		"dispute_id":    d.ID,
		"milestone_id":  d.MilestoneID,
		"project_id":    d.ProjectID,
		"plaintiff_id":  d.PlaintiffID,
		"defendant_id":  d.DefendantID,
		"escrow_amount": d.EscrowAmount.StringFixed(2),
		"currency":      d.Currency,
		"status":        string(d.Status),
	}
}
