package usecase

import (
	"context"
	"time"

	"github.com/iho/goescrow/internal/domain"
)

// atomically runs fn in one database transaction bounded by
// DefaultTransactionTimeout. The whole unit is re-run when the retrier
// classifies the failure as retryable, so fn must load everything it
// mutates.
func atomically(ctx context.Context, txManager TransactionManager, retrier Retrier, fn func(ctx context.Context, tx Transaction) error) error {
	run := func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := fn(txCtx, tx); err != nil {
			return err
		}

		return tx.Commit(txCtx)
	}

	if retrier == nil {
		return run()
	}

	return retrier.Retry(ctx, run)
}

// journal writes the outbox event and audit entry that accompany a state
// change, inside the caller's transaction.
type journal struct {
	outboxRepo OutboxRepository
	auditRepo  AuditRepository
	idGen      IDGenerator
}

func (j journal) emit(ctx context.Context, tx Transaction, aggregateType, aggregateID, eventType string, payload map[string]any, now time.Time) error {
	if j.outboxRepo == nil {
		return nil
	}

	event := &domain.OutboxEvent{
		ID:            j.idGen.Generate(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
		Published:     false,
	}

	return j.outboxRepo.Create(ctx, tx, event)
}

func (j journal) audit(
	ctx context.Context,
	tx Transaction,
	action domain.AuditAction,
	resourceType, resourceID string,
	before, after any,
	now time.Time,
) error {
	if j.auditRepo == nil {
		return nil
	}

	auditLog := &domain.AuditLog{
		ID:           j.idGen.Generate(),
		ActorID:      actorID(ctx),
		Action:       string(action),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    domain.RequestIDFromContext(ctx),
		BeforeState:  domain.MarshalState(before),
		AfterState:   domain.MarshalState(after),
		Status:       string(domain.AuditStatusSuccess),
		CreatedAt:    now,
	}

	return j.auditRepo.CreateTx(ctx, tx, auditLog)
}

func actorID(ctx context.Context) string {
	if actor, ok := domain.ActorFromContext(ctx); ok {
		return actor.ID
	}
	return domain.SystemActorID
}

// readScope returns the user ID that reads are limited to, or "" when the
// actor may read every record.
func readScope(ctx context.Context) (string, error) {
	actor, err := domain.RequireActor(ctx)
	if err != nil {
		return "", err
	}
	if actor.Role.CanViewAll() {
		return "", nil
	}
	return actor.ID, nil
}

func milestonePayload(m *domain.Milestone) map[string]any {
	return map[string]any{
		"milestone_id":      m.ID,
		"project_id":        m.ProjectID,
		"status":            string(m.Status),
		"amount":            m.Amount.StringFixed(2),
		"held":              m.Held().StringFixed(2),
		"released":          m.Released.StringFixed(2),
		"refunded":          m.Refunded.StringFixed(2),
		"currency":          m.Currency,
		"is_paid":           m.IsPaid,
		"escrow_account_id": m.EscrowAccountID,
	}
}

func transactionIDs(txns []*domain.Transaction) []string {
	ids := make([]string, 0, len(txns))
	for _, txn := range txns {
		ids = append(ids, txn.ID)
	}
	return ids
}
