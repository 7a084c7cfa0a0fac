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

const milestoneColumns = `id, project_id, title, client_id, vendor_id,
	client_account_id, vendor_account_id, escrow_account_id,
	amount, released, refunded, currency, status, is_paid, frozen_by, pending_cancellation,
	due_date, funded_at, paid_at, version, created_at, updated_at`

// MilestoneRepository implements usecase.MilestoneRepository.
type MilestoneRepository struct {
	db DB
}

// NewMilestoneRepository creates a new MilestoneRepository.
func NewMilestoneRepository(db DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// Create inserts a milestone.
func (r *MilestoneRepository) Create(ctx context.Context, tx usecase.Transaction, m *domain.Milestone) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	pending, err := pendingCancellationJSON(m.PendingCancellation)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO milestones (`+milestoneColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		m.ID,
		m.ProjectID,
		m.Title,
		m.ClientID,
		m.VendorID,
		m.ClientAccountID,
		m.VendorAccountID,
		m.EscrowAccountID,
		decimalToNumeric(m.Amount),
		decimalToNumeric(m.Released),
		decimalToNumeric(m.Refunded),
		m.Currency,
		m.Status,
		m.IsPaid,
		m.FrozenBy,
		pending,
		timestamptz(m.DueDate),
		timestamptz(m.FundedAt),
		timestamptz(m.PaidAt),
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	)

	return err
}

// GetByID retrieves a milestone by ID.
func (r *MilestoneRepository) GetByID(ctx context.Context, id string) (*domain.Milestone, error) {
	row := r.db.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, id)
	return scanMilestone(row)
}

// GetByIDForUpdate retrieves a milestone by ID with a FOR UPDATE lock.
func (r *MilestoneRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Milestone, error) {
	q, err := txConn(tx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1 FOR UPDATE`, id)
	return scanMilestone(row)
}

// Update writes the milestone when its stored version still matches and
// bumps the version.
func (r *MilestoneRepository) Update(ctx context.Context, tx usecase.Transaction, m *domain.Milestone) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	pending, err := pendingCancellationJSON(m.PendingCancellation)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE milestones SET
			title = $3,
			released = $4,
			refunded = $5,
			status = $6,
			is_paid = $7,
			frozen_by = $8,
			pending_cancellation = $9,
			due_date = $10,
			funded_at = $11,
			paid_at = $12,
			updated_at = $13,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		m.ID,
		m.Version,
		m.Title,
		decimalToNumeric(m.Released),
		decimalToNumeric(m.Refunded),
		m.Status,
		m.IsPaid,
		m.FrozenBy,
		pending,
		timestamptz(m.DueDate),
		timestamptz(m.FundedAt),
		timestamptz(m.PaidAt),
		m.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: milestone %s changed since version %d", domain.ErrConflict, m.ID, m.Version)
	}

	m.Version++

	return nil
}

// ListByProject returns a project's milestones oldest first.
func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID, partyID string, limit, offset int) ([]*domain.Milestone, error) {
	f := &filter{}
	f.add("project_id = $%d", projectID)
	if partyID != "" {
		f.add("(client_id = $%[1]d OR vendor_id = $%[1]d)", partyID)
	}
	query := `SELECT ` + milestoneColumns + ` FROM milestones` + f.where() +
		` ORDER BY created_at, id` + f.page(limit, offset)

	rows, err := r.db.Query(ctx, query, f.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := make([]*domain.Milestone, 0)
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}

	return milestones, rows.Err()
}

func pendingCancellationJSON(p *domain.PendingCancellation) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return marshalJSON(p)
}

func scanMilestone(row pgx.Row) (*domain.Milestone, error) {
	var (
		m                          domain.Milestone
		amount, released, refunded pgtype.Numeric
		pending                    []byte
		dueDate, fundedAt, paidAt  pgtype.Timestamptz
	)

	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.Title,
		&m.ClientID,
		&m.VendorID,
		&m.ClientAccountID,
		&m.VendorAccountID,
		&m.EscrowAccountID,
		&amount,
		&released,
		&refunded,
		&m.Currency,
		&m.Status,
		&m.IsPaid,
		&m.FrozenBy,
		&pending,
		&dueDate,
		&fundedAt,
		&paidAt,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMilestoneNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(pending) > 0 {
		m.PendingCancellation = &domain.PendingCancellation{}
		if err := unmarshalJSON(pending, m.PendingCancellation); err != nil {
			return nil, fmt.Errorf("decode pending cancellation of milestone %s: %w", m.ID, err)
		}
	}

	m.Amount = numericToDecimal(amount)
	m.Released = numericToDecimal(released)
	m.Refunded = numericToDecimal(refunded)
	m.DueDate = nullableTime(dueDate)
	m.FundedAt = nullableTime(fundedAt)
	m.PaidAt = nullableTime(paidAt)

	return &m, nil
}
