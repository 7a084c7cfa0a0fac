package memory

import (
	"context"
	"time"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Create appends an event within a transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	t, err := r.store.begin(tx)
	if err != nil {
		return err
	}

	r.store.outbox[event.ID] = cloneOutboxEvent(event)
	r.store.outboxOrder = append(r.store.outboxOrder, event.ID)

	t.onRollback(func() {
		delete(r.store.outbox, event.ID)
		r.store.outboxOrder = r.store.outboxOrder[:len(r.store.outboxOrder)-1]
	})

	return nil
}

// GetUnpublished returns the oldest unpublished events.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	events := make([]*domain.OutboxEvent, 0)

	r.store.read(nil, func() {
		for _, id := range r.store.outboxOrder {
			if limit > 0 && len(events) >= limit {
				break
			}
			if event := r.store.outbox[id]; !event.Published {
				events = append(events, cloneOutboxEvent(event))
			}
		}
	})

	return events, nil
}

// MarkPublished flags an event as delivered.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if event, ok := r.store.outbox[id]; ok {
		event.Published = true
		event.PublishedAt = &publishedAt
	}

	return nil
}

// DeletePublished drops events published before the cutoff.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.outboxOrder[:0]
	for _, id := range r.store.outboxOrder {
		event := r.store.outbox[id]
		if event.Published && event.PublishedAt != nil && event.PublishedAt.Before(before) {
			delete(r.store.outbox, id)
			continue
		}
		kept = append(kept, id)
	}
	r.store.outboxOrder = kept

	return nil
}

// Events returns every stored event in write order.
func (r *OutboxRepository) Events() []*domain.OutboxEvent {
	var events []*domain.OutboxEvent

	r.store.read(nil, func() {
		for _, id := range r.store.outboxOrder {
			events = append(events, cloneOutboxEvent(r.store.outbox[id]))
		}
	})

	return events
}
