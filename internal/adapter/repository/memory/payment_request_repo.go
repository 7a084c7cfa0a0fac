package memory

import (
	"context"
	"fmt"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// PaymentRequestRepository implements usecase.PaymentRequestRepository.
type PaymentRequestRepository struct {
	store *Store
}

// NewPaymentRequestRepository creates a new PaymentRequestRepository.
func NewPaymentRequestRepository(store *Store) *PaymentRequestRepository {
	return &PaymentRequestRepository{store: store}
}

// Create inserts a request unless its milestone already has an open one.
func (r *PaymentRequestRepository) Create(ctx context.Context, tx usecase.Transaction, request *domain.PaymentRequest) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	if _, exists := r.store.requests[request.ID]; exists {
		return fmt.Errorf("memory: payment request %s already exists", request.ID)
	}
	if open := r.open(request.MilestoneID); open != nil {
		return fmt.Errorf("%w: request %s is %s", domain.ErrRequestInFlight, open.ID, open.Status)
	}

	r.store.requests[request.ID] = clonePaymentRequest(request)
	t.onRollback(func() { delete(r.store.requests, request.ID) })

	return nil
}

// GetByID retrieves a payment request by ID.
func (r *PaymentRequestRepository) GetByID(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate retrieves a payment request inside the caller's transaction.
func (r *PaymentRequestRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.PaymentRequest, error) {
	if _, err := r.store.begin(tx); err != nil {
		return nil, err
	}
	return r.get(tx, id)
}

// Update replaces a payment request.
func (r *PaymentRequestRepository) Update(ctx context.Context, tx usecase.Transaction, request *domain.PaymentRequest) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	current, ok := r.store.requests[request.ID]
	if !ok {
		return domain.ErrPaymentRequestNotFound
	}

	r.store.requests[request.ID] = clonePaymentRequest(request)
	t.onRollback(func() { r.store.requests[request.ID] = current })

	return nil
}

// GetOpenByMilestone returns the PENDING or APPROVED request of a milestone.
func (r *PaymentRequestRepository) GetOpenByMilestone(ctx context.Context, tx usecase.Transaction, milestoneID string) (*domain.PaymentRequest, error) {
	var request *domain.PaymentRequest

	r.store.read(tx, func() {
		if open := r.open(milestoneID); open != nil {
			request = clonePaymentRequest(open)
		}
	})

	if request == nil {
		return nil, domain.ErrPaymentRequestNotFound
	}

	return request, nil
}

// List returns matching requests newest first.
func (r *PaymentRequestRepository) List(ctx context.Context, filter domain.PaymentRequestFilter) ([]*domain.PaymentRequest, error) {
	return page(r.match(filter), filter.Limit, filter.Offset), nil
}

// Count returns the number of matching requests.
func (r *PaymentRequestRepository) Count(ctx context.Context, filter domain.PaymentRequestFilter) (int64, error) {
	return int64(len(r.match(filter))), nil
}

func (r *PaymentRequestRepository) match(filter domain.PaymentRequestFilter) []*domain.PaymentRequest {
	var matches []*domain.PaymentRequest

	r.store.read(nil, func() {
		for _, p := range r.store.requests {
			if filter.Status != "" && p.Status != filter.Status {
				continue
			}
			if filter.MilestoneID != "" && p.MilestoneID != filter.MilestoneID {
				continue
			}
			matches = append(matches, clonePaymentRequest(p))
		}
	})

	sortByCreated(matches,
		func(p *domain.PaymentRequest) int64 { return p.RequestedAt.UnixNano() },
		func(p *domain.PaymentRequest) string { return p.ID },
	)

	return matches
}

// open must be called with the store locked.
func (r *PaymentRequestRepository) open(milestoneID string) *domain.PaymentRequest {
	for _, p := range r.store.requests {
		if p.MilestoneID == milestoneID && p.IsOpen() {
			return p
		}
	}
	return nil
}

func (r *PaymentRequestRepository) get(tx usecase.Transaction, id string) (*domain.PaymentRequest, error) {
	var request *domain.PaymentRequest

	r.store.read(tx, func() {
		if p, ok := r.store.requests[id]; ok {
			request = clonePaymentRequest(p)
		}
	})

	if request == nil {
		return nil, domain.ErrPaymentRequestNotFound
	}

	return request, nil
}
