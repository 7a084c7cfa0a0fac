package memory

import (
	"context"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct {
	store *Store
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(store *Store) *AuditRepository {
	return &AuditRepository{store: store}
}

// CreateTx appends an audit entry within a transaction.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	r.store.auditLogs = append(r.store.auditLogs, cloneAuditLog(log))
	t.onRollback(func() { r.store.auditLogs = r.store.auditLogs[:len(r.store.auditLogs)-1] })

	return nil
}

// List returns matching entries newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	var logs []*domain.AuditLog

	r.store.read(nil, func() {
		for i := len(r.store.auditLogs) - 1; i >= 0; i-- {
			log := r.store.auditLogs[i]
			if matchesAudit(log, filter) {
				logs = append(logs, cloneAuditLog(log))
			}
		}
	})

	return page(logs, filter.Limit, filter.Offset), nil
}

func matchesAudit(log *domain.AuditLog, filter domain.AuditFilter) bool {
	switch {
	case filter.ActorID != "" && log.ActorID != filter.ActorID:
		return false
	case filter.Action != "" && log.Action != filter.Action:
		return false
	case filter.ResourceType != "" && log.ResourceType != filter.ResourceType:
		return false
	case filter.ResourceID != "" && log.ResourceID != filter.ResourceID:
		return false
	case filter.StartDate != nil && log.CreatedAt.Before(*filter.StartDate):
		return false
	case filter.EndDate != nil && log.CreatedAt.After(*filter.EndDate):
		return false
	}
	return true
}
