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

const paymentRequestColumns = `id, milestone_id, vendor_account_id, amount, currency, status,
	note, decision_note, requested_by, decided_by, transaction_id,
	requested_at, decided_at, completed_at, updated_at`

// PaymentRequestRepository implements usecase.PaymentRequestRepository.
type PaymentRequestRepository struct {
	db DB
}

// NewPaymentRequestRepository creates a new PaymentRequestRepository.
func NewPaymentRequestRepository(db DB) *PaymentRequestRepository {
	return &PaymentRequestRepository{db: db}
}

// Create inserts a request. The partial unique index on open requests
// rejects a second open request for the same milestone.
func (r *PaymentRequestRepository) Create(ctx context.Context, tx usecase.Transaction, p *domain.PaymentRequest) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO payment_requests (`+paymentRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID,
		p.MilestoneID,
		p.VendorAccountID,
		decimalToNumeric(p.Amount),
		p.Currency,
		p.Status,
		p.Note,
		p.DecisionNote,
		p.RequestedBy,
		p.DecidedBy,
		p.TransactionID,
		p.RequestedAt,
		timestamptz(p.DecidedAt),
		timestamptz(p.CompletedAt),
		p.UpdatedAt,
	)
	if constraintViolated(err, pgErrUniqueViolation, constraintOpenRequest) {
		return fmt.Errorf("%w: milestone %s", domain.ErrRequestInFlight, p.MilestoneID)
	}

	return err
}

// GetByID retrieves a payment request by ID.
func (r *PaymentRequestRepository) GetByID(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = $1`, id)
	return scanPaymentRequest(row)
}

// GetByIDForUpdate retrieves a payment request by ID with a FOR UPDATE lock.
func (r *PaymentRequestRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.PaymentRequest, error) {
	q, err := txConn(tx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = $1 FOR UPDATE`, id)
	return scanPaymentRequest(row)
}

// Update writes the mutable fields of a request.
func (r *PaymentRequestRepository) Update(ctx context.Context, tx usecase.Transaction, p *domain.PaymentRequest) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE payment_requests SET
			status = $2,
			decision_note = $3,
			decided_by = $4,
			transaction_id = $5,
			decided_at = $6,
			completed_at = $7,
			updated_at = $8
		WHERE id = $1`,
		p.ID,
		p.Status,
		p.DecisionNote,
		p.DecidedBy,
		p.TransactionID,
		timestamptz(p.DecidedAt),
		timestamptz(p.CompletedAt),
		p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentRequestNotFound
	}

	return nil
}

// GetOpenByMilestone returns the PENDING or APPROVED request of a milestone.
func (r *PaymentRequestRepository) GetOpenByMilestone(ctx context.Context, tx usecase.Transaction, milestoneID string) (*domain.PaymentRequest, error) {
	row := conn(r.db, tx).QueryRow(ctx, `
		SELECT `+paymentRequestColumns+`
		FROM payment_requests
		WHERE milestone_id = $1 AND status IN ($2, $3)`,
		milestoneID, domain.PaymentRequestStatusPending, domain.PaymentRequestStatusApproved,
	)
	return scanPaymentRequest(row)
}

// List returns matching requests newest first.
func (r *PaymentRequestRepository) List(ctx context.Context, pf domain.PaymentRequestFilter) ([]*domain.PaymentRequest, error) {
	f := paymentRequestFilter(pf)
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests` + f.where() +
		` ORDER BY requested_at DESC, id DESC` + f.page(pf.Limit, pf.Offset)

	rows, err := r.db.Query(ctx, query, f.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]*domain.PaymentRequest, 0)
	for rows.Next() {
		p, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, p)
	}

	return requests, rows.Err()
}

// Count returns the number of matching requests.
func (r *PaymentRequestRepository) Count(ctx context.Context, pf domain.PaymentRequestFilter) (int64, error) {
	f := paymentRequestFilter(pf)

	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payment_requests`+f.where(), f.args...).Scan(&count)

	return count, err
}

func paymentRequestFilter(pf domain.PaymentRequestFilter) *filter {
	f := &filter{}
	if pf.Status != "" {
		f.add("status = $%d", pf.Status)
	}
	if pf.MilestoneID != "" {
		f.add("milestone_id = $%d", pf.MilestoneID)
	}
	return f
}

func scanPaymentRequest(row pgx.Row) (*domain.PaymentRequest, error) {
	var (
		p                     domain.PaymentRequest
		amount                pgtype.Numeric
		decidedAt, completedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&p.ID,
		&p.MilestoneID,
		&p.VendorAccountID,
		&amount,
		&p.Currency,
		&p.Status,
		&p.Note,
		&p.DecisionNote,
		&p.RequestedBy,
		&p.DecidedBy,
		&p.TransactionID,
		&p.RequestedAt,
		&decidedAt,
		&completedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPaymentRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Amount = numericToDecimal(amount)
	p.DecidedAt = nullableTime(decidedAt)
	p.CompletedAt = nullableTime(completedAt)

	return &p, nil
}
