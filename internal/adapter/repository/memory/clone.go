package memory

import (
	"time"

	"github.com/iho/goescrow/internal/domain"
)

// Rows are copied on the way in and out so callers never share memory
// with the store.

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	c.FromAccountID = cloneString(t.FromAccountID)
	c.ToAccountID = cloneString(t.ToAccountID)
	c.MilestoneID = cloneString(t.MilestoneID)
	c.ReversesID = cloneString(t.ReversesID)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.Metadata = cloneMap(t.Metadata)
	return &c
}

func cloneMilestone(m *domain.Milestone) *domain.Milestone {
	c := *m
	c.FrozenBy = cloneString(m.FrozenBy)
	c.DueDate = cloneTime(m.DueDate)
	c.FundedAt = cloneTime(m.FundedAt)
	c.PaidAt = cloneTime(m.PaidAt)
	if m.PendingCancellation != nil {
		pending := *m.PendingCancellation
		c.PendingCancellation = &pending
	}
	return &c
}

func clonePaymentRequest(p *domain.PaymentRequest) *domain.PaymentRequest {
	c := *p
	c.TransactionID = cloneString(p.TransactionID)
	c.DecidedAt = cloneTime(p.DecidedAt)
	c.CompletedAt = cloneTime(p.CompletedAt)
	return &c
}

func cloneDispute(d *domain.Dispute) *domain.Dispute {
	c := *d
	c.ResolvedAt = cloneTime(d.ResolvedAt)
	if d.Resolution != nil {
		resolution := *d.Resolution
		c.Resolution = &resolution
	}
	return &c
}

func cloneOutboxEvent(e *domain.OutboxEvent) *domain.OutboxEvent {
	c := *e
	c.PublishedAt = cloneTime(e.PublishedAt)
	c.Payload = cloneMap(e.Payload)
	return &c
}

func cloneAuditLog(l *domain.AuditLog) *domain.AuditLog {
	c := *l
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
