package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
)

// PaymentRequestUseCase handles vendor claims against milestone escrow.
type PaymentRequestUseCase struct {
	txManager     TransactionManager
	milestoneRepo MilestoneRepository
	requestRepo   PaymentRequestRepository
	txnRepo       TransactionRepository
	ledger        *LedgerUseCase
	settler       settler
	journal       journal
	idGen         IDGenerator
	retrier       Retrier
	metrics       *metrics.Metrics

	feeRate           decimal.Decimal
	platformAccountID string
}

// NewPaymentRequestUseCase creates a new PaymentRequestUseCase.
func NewPaymentRequestUseCase(
	txManager TransactionManager,
	milestoneRepo MilestoneRepository,
	requestRepo PaymentRequestRepository,
	txnRepo TransactionRepository,
	ledger *LedgerUseCase,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	retrier Retrier,
	metrics *metrics.Metrics,
) *PaymentRequestUseCase {
	j := journal{outboxRepo: outboxRepo, auditRepo: auditRepo, idGen: idGen}

	return &PaymentRequestUseCase{
		txManager:     txManager,
		milestoneRepo: milestoneRepo,
		requestRepo:   requestRepo,
		txnRepo:       txnRepo,
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
		feeRate: decimal.Zero,
	}
}

// SetPlatformFee makes every release send rate (a fraction in [0, 1)) of
// the approved amount to the platform account as a FEE.
func (uc *PaymentRequestUseCase) SetPlatformFee(rate decimal.Decimal, platformAccountID string) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: fee rate must be in [0, 1), got %s", domain.ErrInvalidPercentage, rate)
	}
	if rate.IsPositive() && platformAccountID == "" {
		return fmt.Errorf("%w: a platform account is required when a fee is charged", domain.ErrAccountNotFound)
	}

	uc.feeRate = rate
	uc.platformAccountID = platformAccountID

	return nil
}

// FileRequestInput represents a vendor claim. A zero Amount claims the whole
// held amount.
type FileRequestInput struct {
	MilestoneID string
	Amount      decimal.Decimal
	Note        string
}

// FileRequest creates a PENDING request against a COMPLETED milestone.
func (uc *PaymentRequestUseCase) FileRequest(ctx context.Context, input FileRequestInput) (*domain.PaymentRequest, error) {
	actor, err := domain.RequireActor(ctx)
	if err != nil {
		return nil, err
	}

	if !input.Amount.IsZero() {
		if err := domain.ValidateAmount(input.Amount); err != nil {
			return nil, err
		}
	}
	if err := domain.ValidateReason(input.Note); err != nil {
		return nil, err
	}

	var request *domain.PaymentRequest

	err = atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		m, err := uc.milestoneRepo.GetByIDForUpdate(ctx, tx, input.MilestoneID)
		if err != nil {
			return err
		}

		if !actor.Role.CanOperate() && actor.ID != m.VendorID {
			return fmt.Errorf("%w: only the vendor or an operator may request payment", domain.ErrForbidden)
		}

		amount := input.Amount
		if amount.IsZero() {
			amount = m.Held()
		}

		if err := m.CheckPayable(amount); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return fmt.Errorf("%w: milestone %s holds no escrow", domain.ErrInvalidState, m.ID)
		}

		open, err := uc.requestRepo.GetOpenByMilestone(ctx, tx, m.ID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: request %s is %s", domain.ErrRequestInFlight, open.ID, open.Status)
		case !errors.Is(err, domain.ErrPaymentRequestNotFound):
			return err
		}

		now := time.Now().UTC()
		request = &domain.PaymentRequest{
			ID:              uc.idGen.Generate(),
			MilestoneID:     m.ID,
			VendorAccountID: m.VendorAccountID,
			Amount:          amount,
			Currency:        m.Currency,
			Status:          domain.PaymentRequestStatusPending,
			Note:            input.Note,
			RequestedBy:     actor.ID,
			RequestedAt:     now,
			UpdatedAt:       now,
		}

		if err := uc.requestRepo.Create(ctx, tx, request); err != nil {
			return err
		}

		if err := uc.journal.emit(ctx, tx, domain.AggregateTypePaymentRequest, request.ID, domain.EventTypePaymentRequestFiled, requestPayload(request), now); err != nil {
			return err
		}

		return uc.journal.audit(ctx, tx, domain.AuditActionPaymentRequestFile, domain.AggregateTypePaymentRequest, request.ID, nil, request, now)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.PaymentRequests.WithLabelValues("filed").Inc()
	}

	return request, nil
}

// ApproveResult carries the settled request and its ledger postings.
type ApproveResult struct {
	Request      *domain.PaymentRequest
	Transactions []*domain.Transaction
	Replayed     bool
}

// Approve releases a request's amount in two committed phases. Phase one
// moves PENDING to APPROVED. Phase two locks the milestone, posts the
// PAYMENT (and FEE) and completes the request. A failed phase two leaves
// the request APPROVED and the next call resumes it; approving a COMPLETED
// request replays its transactions.
func (uc *PaymentRequestUseCase) Approve(ctx context.Context, requestID, note string) (*ApproveResult, error) {
	if _, err := domain.RequireOperator(ctx); err != nil {
		return nil, err
	}
	if err := domain.ValidateReason(note); err != nil {
		return nil, err
	}

	start := time.Now()

	done, err := uc.approvePhase(ctx, requestID, note)
	if err != nil {
		return nil, err
	}
	if done != nil {
		return done, nil
	}

	result, fresh, err := uc.settlePhase(ctx, requestID)
	if err != nil {
		return nil, err
	}

	uc.ledger.observe(fresh)
	if uc.metrics != nil && !result.Replayed {
		uc.metrics.PaymentRequests.WithLabelValues("completed").Inc()
		uc.metrics.OperationDuration.WithLabelValues("approve_payment_request").Observe(time.Since(start).Seconds())
	}

	return result, nil
}

// approvePhase returns a non-nil result when the request is already settled.
func (uc *PaymentRequestUseCase) approvePhase(ctx context.Context, requestID, note string) (*ApproveResult, error) {
	var settled *domain.PaymentRequest

	err := atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		settled = nil

		request, err := uc.requestRepo.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}

		switch request.Status {
		case domain.PaymentRequestStatusCompleted:
			settled = request
			return nil
		case domain.PaymentRequestStatusApproved:
			return nil
		case domain.PaymentRequestStatusRejected:
			return uc.rejected(ctx, tx, request)
		}

		m, err := uc.milestoneRepo.GetByIDForUpdate(ctx, tx, request.MilestoneID)
		if err != nil {
			return err
		}

		if err := m.CheckPayable(request.Amount); err != nil {
			return err
		}

		now := time.Now().UTC()
		before := *request

		if err := request.Approve(actorID(ctx), note, now); err != nil {
			return err
		}

		if err := uc.requestRepo.Update(ctx, tx, request); err != nil {
			return err
		}

		if err := uc.journal.emit(ctx, tx, domain.AggregateTypePaymentRequest, request.ID, domain.EventTypePaymentRequestApproved, requestPayload(request), now); err != nil {
			return err
		}

		return uc.journal.audit(ctx, tx, domain.AuditActionPaymentRequestApprove, domain.AggregateTypePaymentRequest, request.ID, before, request, now)
	})
	if err != nil {
		return nil, err
	}

	if settled != nil {
		return uc.replay(ctx, settled)
	}

	if uc.metrics != nil {
		uc.metrics.PaymentRequests.WithLabelValues("approved").Inc()
	}

	return nil, nil
}

// rejected explains why a REJECTED request cannot be paid. A request
// superseded by a cancellation or dispute resolution reports
// domain.ErrAlreadySettled, because its milestone no longer holds escrow.
func (uc *PaymentRequestUseCase) rejected(ctx context.Context, tx Transaction, request *domain.PaymentRequest) error {
	m, err := uc.milestoneRepo.GetByIDForUpdate(ctx, tx, request.MilestoneID)
	if err != nil {
		return err
	}

	if m.Status.IsTerminal() {
		return fmt.Errorf("%w: milestone %s is %s, payment request %s was superseded",
			domain.ErrAlreadySettled, m.ID, m.Status, request.ID)
	}

	return fmt.Errorf("%w: payment request %s was rejected", domain.ErrInvalidState, request.ID)
}

func (uc *PaymentRequestUseCase) settlePhase(ctx context.Context, requestID string) (*ApproveResult, []*domain.Transaction, error) {
	var (
		result  *ApproveResult
		settled *domain.PaymentRequest
		fresh   []*domain.Transaction
		paid    bool
	)

	err := atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		result, settled, fresh, paid = nil, nil, nil, false

		request, err := uc.requestRepo.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}

		switch request.Status {
		case domain.PaymentRequestStatusCompleted:
			settled = request
			return nil
		case domain.PaymentRequestStatusApproved:
		case domain.PaymentRequestStatusRejected:
			return uc.rejected(ctx, tx, request)
		default:
			return fmt.Errorf("%w: payment request %s is %s", domain.ErrInvalidState, request.ID, request.Status)
		}

		m, err := uc.milestoneRepo.GetByIDForUpdate(ctx, tx, request.MilestoneID)
		if err != nil {
			return err
		}

		if err := m.CheckPayable(request.Amount); err != nil {
			return err
		}

		now := time.Now().UTC()
		beforeMilestone := *m
		beforeRequest := *request

		fee := request.Amount.Mul(uc.feeRate).Round(2)
		vendorShare := request.Amount.Sub(fee)
		if !vendorShare.IsPositive() {
			fee, vendorShare = decimal.Zero, request.Amount
		}

		all, created, err := uc.settler.post(ctx, tx, m, "payment request "+request.ID,
			leg{txnType: domain.TransactionTypePayment, to: request.VendorAccountID, amount: vendorShare, key: paymentKey(request.ID)},
			leg{txnType: domain.TransactionTypeFee, to: uc.platformAccountID, amount: fee, key: feeKey(request.ID)},
		)
		if err != nil {
			return err
		}

		paid = m.ApplyRelease(request.Amount, now)
		if err := uc.milestoneRepo.Update(ctx, tx, m); err != nil {
			return err
		}

		if err := request.Complete(all[0].ID, now); err != nil {
			return err
		}
		if err := uc.requestRepo.Update(ctx, tx, request); err != nil {
			return err
		}

		payload := requestPayload(request)
		payload["transaction_ids"] = transactionIDs(all)
		payload["fee"] = fee.StringFixed(2)

		if err := uc.journal.emit(ctx, tx, domain.AggregateTypePaymentRequest, request.ID, domain.EventTypePaymentRequestCompleted, payload, now); err != nil {
			return err
		}

		if err := uc.journal.audit(ctx, tx, domain.AuditActionPaymentRequestSettle, domain.AggregateTypePaymentRequest, request.ID, beforeRequest, request, now); err != nil {
			return err
		}

		if paid {
			if err := uc.journal.emit(ctx, tx, domain.AggregateTypeMilestone, m.ID, domain.EventTypeMilestonePaid, milestonePayload(m), now); err != nil {
				return err
			}
			if err := uc.journal.audit(ctx, tx, domain.AuditActionPaymentRequestSettle, domain.AggregateTypeMilestone, m.ID, beforeMilestone, m, now); err != nil {
				return err
			}
		}

		result = &ApproveResult{Request: request, Transactions: all}
		fresh = created
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if settled != nil {
		result, err = uc.replay(ctx, settled)
		return result, nil, err
	}

	if uc.metrics != nil && paid {
		uc.metrics.MilestonesSettled.WithLabelValues(string(domain.MilestoneStatusPaid)).Inc()
	}

	return result, fresh, nil
}

func (uc *PaymentRequestUseCase) replay(ctx context.Context, request *domain.PaymentRequest) (*ApproveResult, error) {
	result := &ApproveResult{Request: request, Replayed: true}

	if request.TransactionID == nil {
		return result, nil
	}

	txn, err := uc.txnRepo.GetByID(ctx, *request.TransactionID)
	if err != nil {
		return nil, err
	}
	result.Transactions = []*domain.Transaction{txn}

	if fee, err := uc.txnRepo.GetByIdempotencyKey(ctx, nil, feeKey(request.ID)); err == nil {
		result.Transactions = append(result.Transactions, fee)
	}

	return result, nil
}

// Reject closes a PENDING request; its funds stay in escrow.
func (uc *PaymentRequestUseCase) Reject(ctx context.Context, requestID, reason string) (*domain.PaymentRequest, error) {
	if _, err := domain.RequireOperator(ctx); err != nil {
		return nil, err
	}
	if err := domain.ValidateReason(reason); err != nil {
		return nil, err
	}

	var request *domain.PaymentRequest

	err := atomically(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		var err error
		request, err = uc.requestRepo.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		before := *request

		if err := request.Reject(actorID(ctx), reason, now); err != nil {
			return err
		}

		if err := uc.requestRepo.Update(ctx, tx, request); err != nil {
			return err
		}

		if err := uc.journal.emit(ctx, tx, domain.AggregateTypePaymentRequest, request.ID, domain.EventTypePaymentRequestRejected, requestPayload(request), now); err != nil {
			return err
		}

		return uc.journal.audit(ctx, tx, domain.AuditActionPaymentRequestReject, domain.AggregateTypePaymentRequest, request.ID, before, request, now)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.PaymentRequests.WithLabelValues("rejected").Inc()
	}

	return request, nil
}

// GetRequest retrieves a payment request by ID.
func (uc *PaymentRequestUseCase) GetRequest(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	return uc.requestRepo.GetByID(ctx, id)
}

// ListRequests returns one page of payment requests and the total match count.
func (uc *PaymentRequestUseCase) ListRequests(ctx context.Context, filter domain.PaymentRequestFilter) ([]*domain.PaymentRequest, int64, error) {
	filter.Limit, filter.Offset, _ = domain.ValidatePagination(filter.Limit, filter.Offset)

	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidState, filter.Status)
	}

	requests, err := uc.requestRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := uc.requestRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func requestPayload(p *domain.PaymentRequest) map[string]any {
	return map[string]any{
		"payment_request_id": p.ID,
		"milestone_id":       p.MilestoneID,
		"vendor_account_id":  p.VendorAccountID,
		"amount":             p.Amount.StringFixed(2),
		"currency":           p.Currency,
		"status":             string(p.Status),
	}
}
