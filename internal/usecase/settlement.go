package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goescrow/internal/domain"
)

// settler moves a milestone's escrow through the ledger and keeps the
// milestone and its payment requests in step. Callers hold the milestone
// row lock.
type settler struct {
	ledger        *LedgerUseCase
	milestoneRepo MilestoneRepository
	requestRepo   PaymentRequestRepository
	journal       journal
}

// leg is one outflow from escrow. Zero legs are skipped.
type leg struct {
	txnType domain.TransactionType
	to      string
	amount  decimal.Decimal
	key     string
}

func (s settler) post(ctx context.Context, tx Transaction, m *domain.Milestone, reason string, legs ...leg) ([]*domain.Transaction, []*domain.Transaction, error) {
	inputs := make([]RecordTransactionInput, 0, len(legs))
	for _, l := range legs {
		if !l.amount.IsPositive() {
			continue
		}
		inputs = append(inputs, RecordTransactionInput{
			Type:           l.txnType,
			FromAccountID:  m.EscrowAccountID,
			ToAccountID:    l.to,
			Amount:         l.amount,
			IdempotencyKey: l.key,
			MilestoneID:    m.ID,
			Reason:         reason,
		})
	}

	if len(inputs) == 0 {
		return nil, nil, nil
	}

	return s.ledger.apply(ctx, tx, inputs)
}

// cancel refunds refundPercentage of the held amount to the client, pays the
// rest to the vendor and marks the milestone CANCELLED.
func (s settler) cancel(
	ctx context.Context,
	tx Transaction,
	m *domain.Milestone,
	refundPercentage decimal.Decimal,
	reason string,
	now time.Time,
) ([]*domain.Transaction, []*domain.Transaction, error) {
	before := *m
	clientAmount, vendorAmount := m.SplitCancellation(refundPercentage)

	all, fresh, err := s.post(ctx, tx, m, reason,
		leg{txnType: domain.TransactionTypeRefund, to: m.ClientAccountID, amount: clientAmount, key: cancelKey(m.ID, "client")},
		leg{txnType: domain.TransactionTypePayment, to: m.VendorAccountID, amount: vendorAmount, key: cancelKey(m.ID, "vendor")},
	)
	if err != nil {
		return nil, nil, err
	}

	m.ApplyCancellation(clientAmount, vendorAmount, now)
	if err := s.milestoneRepo.Update(ctx, tx, m); err != nil {
		return nil, nil, err
	}

	if err := s.supersedeOpenRequest(ctx, tx, m.ID, "milestone cancelled", now); err != nil {
		return nil, nil, err
	}

	payload := milestonePayload(m)
	payload["refund_percentage"] = refundPercentage.String()
	payload["client_amount"] = clientAmount.StringFixed(2)
	payload["vendor_amount"] = vendorAmount.StringFixed(2)
	payload["reason"] = reason
	payload["transaction_ids"] = transactionIDs(all)

	if err := s.journal.emit(ctx, tx, domain.AggregateTypeMilestone, m.ID, domain.EventTypeMilestoneCancelled, payload, now); err != nil {
		return nil, nil, err
	}

	if err := s.journal.audit(ctx, tx, domain.AuditActionMilestoneCancel, domain.AggregateTypeMilestone, m.ID, before, m, now); err != nil {
		return nil, nil, err
	}

	return all, fresh, nil
}

// supersedeOpenRequest rejects the open payment request of a milestone whose
// escrow was settled another way.
func (s settler) supersedeOpenRequest(ctx context.Context, tx Transaction, milestoneID, reason string, now time.Time) error {
	request, err := s.requestRepo.GetOpenByMilestone(ctx, tx, milestoneID)
	if errors.Is(err, domain.ErrPaymentRequestNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	before := *request
	request.Supersede(reason, now)

	if err := s.requestRepo.Update(ctx, tx, request); err != nil {
		return err
	}

	payload := map[string]any{
		"payment_request_id": request.ID,
		"milestone_id":       milestoneID,
		"reason":             reason,
	}
	if err := s.journal.emit(ctx, tx, domain.AggregateTypePaymentRequest, request.ID, domain.EventTypePaymentRequestRejected, payload, now); err != nil {
		return err
	}

	return s.journal.audit(ctx, tx, domain.AuditActionPaymentRequestReject, domain.AggregateTypePaymentRequest, request.ID, before, request, now)
}
