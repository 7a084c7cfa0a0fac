package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

const auditColumns = `id, actor_id, action, resource_type, resource_id, request_id,
	before_state, after_state, status, error_message, created_at`

// AuditRepository implements audit log persistence
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateTx inserts an audit log entry in the same transaction as the change it records
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	var beforeStateJSON, afterStateJSON []byte

	if log.BeforeState != nil {
		beforeStateJSON, err = json.Marshal(log.BeforeState)
		if err != nil {
			return err
		}
	}

	if log.AfterState != nil {
		afterStateJSON, err = json.Marshal(log.AfterState)
		if err != nil {
			return err
		}
	}

	_, err = q.Exec(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.ID,
		log.ActorID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		log.RequestID,
		beforeStateJSON,
		afterStateJSON,
		log.Status,
		log.ErrorMessage,
		log.CreatedAt,
	)

	return err
}

// List retrieves audit logs with filtering, newest first
func (r *AuditRepository) List(ctx context.Context, af domain.AuditFilter) ([]*domain.AuditLog, error) {
	f := &filter{}

	if af.ActorID != "" {
		f.add("actor_id = $%d", af.ActorID)
	}
	if af.Action != "" {
		f.add("action = $%d", af.Action)
	}
	if af.ResourceType != "" {
		f.add("resource_type = $%d", af.ResourceType)
	}
	if af.ResourceID != "" {
		f.add("resource_id = $%d", af.ResourceID)
	}
	if af.StartDate != nil {
		f.add("created_at >= $%d", *af.StartDate)
	}
	if af.EndDate != nil {
		f.add("created_at <= $%d", *af.EndDate)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs` + f.where() +
		` ORDER BY created_at DESC, id DESC` + f.page(af.Limit, af.Offset)

	rows, err := r.db.Query(ctx, query, f.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*domain.AuditLog, 0)
	for rows.Next() {
		var log domain.AuditLog
		var beforeStateJSON, afterStateJSON []byte

		err := rows.Scan(
			&log.ID,
			&log.ActorID,
			&log.Action,
			&log.ResourceType,
			&log.ResourceID,
			&log.RequestID,
			&beforeStateJSON,
			&afterStateJSON,
			&log.Status,
			&log.ErrorMessage,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if beforeStateJSON != nil {
			_ = json.Unmarshal(beforeStateJSON, &log.BeforeState)
		}

		if afterStateJSON != nil {
			_ = json.Unmarshal(afterStateJSON, &log.AfterState)
		}

		logs = append(logs, &log)
	}

	return logs, rows.Err()
}
