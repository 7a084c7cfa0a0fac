package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// MilestoneRepository implements usecase.MilestoneRepository.
type MilestoneRepository struct {
	store *Store
}

// NewMilestoneRepository creates a new MilestoneRepository.
func NewMilestoneRepository(store *Store) *MilestoneRepository {
	return &MilestoneRepository{store: store}
}

// Create inserts a milestone.
func (r *MilestoneRepository) Create(ctx context.Context, tx usecase.Transaction, milestone *domain.Milestone) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	if _, exists := r.store.milestones[milestone.ID]; exists {
		return fmt.Errorf("memory: milestone %s already exists", milestone.ID)
	}

	r.store.milestones[milestone.ID] = cloneMilestone(milestone)
	t.onRollback(func() { delete(r.store.milestones, milestone.ID) })

	return nil
}

// GetByID retrieves a milestone by ID.
func (r *MilestoneRepository) GetByID(ctx context.Context, id string) (*domain.Milestone, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate retrieves a milestone inside the caller's transaction.
func (r *MilestoneRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Milestone, error) {
	if _, err := r.store.begin(tx); err != nil {
		return nil, err
	}
	return r.get(tx, id)
}

// Update replaces the milestone when its version is unchanged.
func (r *MilestoneRepository) Update(ctx context.Context, tx usecase.Transaction, milestone *domain.Milestone) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	current, ok := r.store.milestones[milestone.ID]
	if !ok {
		return domain.ErrMilestoneNotFound
	}
	if current.Version != milestone.Version {
		return fmt.Errorf("%w: milestone %s is at version %d, update was based on %d",
			domain.ErrConflict, milestone.ID, current.Version, milestone.Version)
	}

	milestone.Version++
	r.store.milestones[milestone.ID] = cloneMilestone(milestone)

	t.onRollback(func() { r.store.milestones[milestone.ID] = current })

	return nil
}

// ListByProject returns a project's milestones oldest first.
func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID, partyID string, limit, offset int) ([]*domain.Milestone, error) {
	var milestones []*domain.Milestone

	r.store.read(nil, func() {
		for _, m := range r.store.milestones {
			if m.ProjectID == projectID && (partyID == "" || m.IsParty(partyID)) {
				milestones = append(milestones, cloneMilestone(m))
			}
		}
	})

	sort.Slice(milestones, func(i, j int) bool {
		if !milestones[i].CreatedAt.Equal(milestones[j].CreatedAt) {
			return milestones[i].CreatedAt.Before(milestones[j].CreatedAt)
		}
		return milestones[i].ID < milestones[j].ID
	})

	return page(milestones, limit, offset), nil
}

func (r *MilestoneRepository) get(tx usecase.Transaction, id string) (*domain.Milestone, error) {
	var milestone *domain.Milestone

	r.store.read(tx, func() {
		if m, ok := r.store.milestones[id]; ok {
			milestone = cloneMilestone(m)
		}
	})

	if milestone == nil {
		return nil, domain.ErrMilestoneNotFound
	}

	return milestone, nil
}
