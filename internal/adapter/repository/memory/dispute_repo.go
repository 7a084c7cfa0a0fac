package memory

import (
	"context"
	"fmt"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// DisputeRepository implements usecase.DisputeRepository.
type DisputeRepository struct {
	store *Store
}

// NewDisputeRepository creates a new DisputeRepository.
func NewDisputeRepository(store *Store) *DisputeRepository {
	return &DisputeRepository{store: store}
}

// Create inserts a dispute unless its milestone already has an active one.
func (r *DisputeRepository) Create(ctx context.Context, tx usecase.Transaction, dispute *domain.Dispute) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	if _, exists := r.store.disputes[dispute.ID]; exists {
		return fmt.Errorf("memory: dispute %s already exists", dispute.ID)
	}
	if active := r.active(dispute.MilestoneID); active != nil {
		return fmt.Errorf("%w: dispute %s is already %s", domain.ErrConflict, active.ID, active.Status)
	}

	r.store.disputes[dispute.ID] = cloneDispute(dispute)
	t.onRollback(func() { delete(r.store.disputes, dispute.ID) })

	return nil
}

// GetByID retrieves a dispute by ID.
func (r *DisputeRepository) GetByID(ctx context.Context, id string) (*domain.Dispute, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate retrieves a dispute inside the caller's transaction.
func (r *DisputeRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Dispute, error) {
	if _, err := r.store.begin(tx); err != nil {
		return nil, err
	}
	return r.get(tx, id)
}

// Update replaces a dispute.
func (r *DisputeRepository) Update(ctx context.Context, tx usecase.Transaction, dispute *domain.Dispute) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	current, ok := r.store.disputes[dispute.ID]
	if !ok {
		return domain.ErrDisputeNotFound
	}

	r.store.disputes[dispute.ID] = cloneDispute(dispute)
	t.onRollback(func() { r.store.disputes[dispute.ID] = current })

	return nil
}

// GetActiveByMilestone returns the OPEN or INVESTIGATING dispute of a milestone.
func (r *DisputeRepository) GetActiveByMilestone(ctx context.Context, tx usecase.Transaction, milestoneID string) (*domain.Dispute, error) {
	var dispute *domain.Dispute

	r.store.read(tx, func() {
		if active := r.active(milestoneID); active != nil {
			dispute = cloneDispute(active)
		}
	})

	if dispute == nil {
		return nil, domain.ErrDisputeNotFound
	}

	return dispute, nil
}

// List returns matching disputes newest first.
func (r *DisputeRepository) List(ctx context.Context, filter domain.DisputeFilter) ([]*domain.Dispute, error) {
	return page(r.match(filter), filter.Limit, filter.Offset), nil
}

// Count returns the number of matching disputes.
func (r *DisputeRepository) Count(ctx context.Context, filter domain.DisputeFilter) (int64, error) {
	return int64(len(r.match(filter))), nil
}

func (r *DisputeRepository) match(filter domain.DisputeFilter) []*domain.Dispute {
	var matches []*domain.Dispute

	r.store.read(nil, func() {
		for _, d := range r.store.disputes {
			if filter.Status != "" && d.Status != filter.Status {
				continue
			}
			if filter.MilestoneID != "" && d.MilestoneID != filter.MilestoneID {
				continue
			}
			if filter.PartyID != "" && !d.IsParty(filter.PartyID) {
				continue
			}
			matches = append(matches, cloneDispute(d))
		}
	})

	sortByCreated(matches,
		func(d *domain.Dispute) int64 { return d.CreatedAt.UnixNano() },
		func(d *domain.Dispute) string { return d.ID },
	)

	return matches
}

// active must be called with the store locked.
func (r *DisputeRepository) active(milestoneID string) *domain.Dispute {
	for _, d := range r.store.disputes {
		if d.MilestoneID == milestoneID && d.Status.IsActive() {
			return d
		}
	}
	return nil
}

func (r *DisputeRepository) get(tx usecase.Transaction, id string) (*domain.Dispute, error) {
	var dispute *domain.Dispute

	r.store.read(tx, func() {
		if d, ok := r.store.disputes[id]; ok {
			dispute = cloneDispute(d)
		}
	})

	if dispute == nil {
		return nil, domain.ErrDisputeNotFound
	}

	return dispute, nil
}
