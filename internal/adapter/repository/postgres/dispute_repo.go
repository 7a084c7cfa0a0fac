package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

const disputeColumns = `id, milestone_id, project_id, plaintiff_id, defendant_id, reason,
	escrow_amount, currency, status, resolution, created_at, updated_at, resolved_at`

// DisputeRepository implements usecase.DisputeRepository.
type DisputeRepository struct {
	db DB
}

// NewDisputeRepository creates a new DisputeRepository.
func NewDisputeRepository(db DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create inserts a dispute unless the milestone already has an active one.
func (r *DisputeRepository) Create(ctx context.Context, tx usecase.Transaction, d *domain.Dispute) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	resolution, err := resolutionJSON(d.Resolution)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO disputes (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID,
		d.MilestoneID,
		d.ProjectID,
		d.PlaintiffID,
		d.DefendantID,
		d.Reason,
		decimalToNumeric(d.EscrowAmount),
		d.Currency,
		d.Status,
		resolution,
		d.CreatedAt,
		d.UpdatedAt,
		timestamptz(d.ResolvedAt),
	)
	if constraintViolated(err, pgErrUniqueViolation, constraintActiveDispute) {
		return fmt.Errorf("%w: milestone %s already has an active dispute", domain.ErrConflict, d.MilestoneID)
	}

	return err
}

// GetByID retrieves a dispute by ID.
func (r *DisputeRepository) GetByID(ctx context.Context, id string) (*domain.Dispute, error) {
	row := r.db.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	return scanDispute(row)
}

// GetByIDForUpdate retrieves a dispute by ID with a FOR UPDATE lock.
func (r *DisputeRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Dispute, error) {
	q, err := txConn(tx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id)
	return scanDispute(row)
}

// Update writes the mutable fields of a dispute.
func (r *DisputeRepository) Update(ctx context.Context, tx usecase.Transaction, d *domain.Dispute) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	resolution, err := resolutionJSON(d.Resolution)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE disputes SET
			status = $2,
			resolution = $3,
			updated_at = $4,
			resolved_at = $5
		WHERE id = $1`,
		d.ID,
		d.Status,
		resolution,
		d.UpdatedAt,
		timestamptz(d.ResolvedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDisputeNotFound
	}

	return nil
}

// GetActiveByMilestone returns the OPEN or INVESTIGATING dispute of a milestone.
func (r *DisputeRepository) GetActiveByMilestone(ctx context.Context, tx usecase.Transaction, milestoneID string) (*domain.Dispute, error) {
	row := conn(r.db, tx).QueryRow(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE milestone_id = $1 AND status IN ($2, $3)`,
		milestoneID, domain.DisputeStatusOpen, domain.DisputeStatusInvestigating,
	)
	return scanDispute(row)
}

// List returns matching disputes newest first.
func (r *DisputeRepository) List(ctx context.Context, df domain.DisputeFilter) ([]*domain.Dispute, error) {
	f := disputeFilter(df)
	query := `SELECT ` + disputeColumns + ` FROM disputes` + f.where() +
		` ORDER BY created_at DESC, id DESC` + f.page(df.Limit, df.Offset)

	rows, err := r.db.Query(ctx, query, f.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	disputes := make([]*domain.Dispute, 0)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}

	return disputes, rows.Err()
}

// Count returns the number of matching disputes.
func (r *DisputeRepository) Count(ctx context.Context, df domain.DisputeFilter) (int64, error) {
	f := disputeFilter(df)

	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM disputes`+f.where(), f.args...).Scan(&count)

	return count, err
}

func disputeFilter(df domain.DisputeFilter) *filter {
	f := &filter{}
	if df.Status != "" {
		f.add("status = $%d", df.Status)
	}
	if df.MilestoneID != "" {
		f.add("milestone_id = $%d", df.MilestoneID)
	}
	if df.PartyID != "" {
		f.add("(plaintiff_id = $%[1]d OR defendant_id = $%[1]d)", df.PartyID)
	}
	return f
}

func resolutionJSON(res *domain.Resolution) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	return marshalJSON(res)
}

func scanDispute(row pgx.Row) (*domain.Dispute, error) {
	var (
		d          domain.Dispute
		escrow     pgtype.Numeric
		resolution []byte
		resolvedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&d.ID,
		&d.MilestoneID,
		&d.ProjectID,
		&d.PlaintiffID,
		&d.DefendantID,
		&d.Reason,
		&escrow,
		&d.Currency,
		&d.Status,
		&resolution,
		&d.CreatedAt,
		&d.UpdatedAt,
		&resolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDisputeNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(resolution) > 0 {
		d.Resolution = &domain.Resolution{}
		if err := unmarshalJSON(resolution, d.Resolution); err != nil {
			return nil, fmt.Errorf("decode resolution of dispute %s: %w", d.ID, err)
		}
	}

	d.EscrowAmount = numericToDecimal(escrow)
	d.ResolvedAt = nullableTime(resolvedAt)

	return &d, nil
}
