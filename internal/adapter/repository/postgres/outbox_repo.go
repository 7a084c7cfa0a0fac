package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/usecase"
)

const outboxColumns = `id, aggregate_id, aggregate_type, event_type, payload, created_at, published, published_at`

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	db DB
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(db DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create creates a new outbox event within a transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	q, err := txConn(tx)
	if err != nil {
		return err
	}

	payload := []byte("{}")
	if event.Payload != nil {
		if payload, err = marshalJSON(event.Payload); err != nil {
			return err
		}
	}

	_, err = q.Exec(ctx, `
		INSERT INTO outbox_events (`+outboxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		payload,
		event.CreatedAt,
		event.Published,
		timestamptz(event.PublishedAt),
	)

	return err
}

// GetUnpublished retrieves the oldest unpublished events.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_events
		WHERE NOT published
		ORDER BY created_at, id
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0)
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET published = TRUE, published_at = $2
		WHERE id = $1`,
		id, publishedAt,
	)
	return err
}

// DeletePublished deletes published events older than the given time.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	_, err := r.db.Exec(ctx, `DELETE FROM outbox_events WHERE published AND published_at < $1`, before)
	return err
}

func scanOutboxEvent(row pgx.Row) (*domain.OutboxEvent, error) {
	var (
		event       domain.OutboxEvent
		payload     []byte
		publishedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&event.ID,
		&event.AggregateID,
		&event.AggregateType,
		&event.EventType,
		&payload,
		&event.CreatedAt,
		&event.Published,
		&publishedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(payload, &event.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of event %s: %w", event.ID, err)
	}

	event.PublishedAt = nullableTime(publishedAt)

	return &event, nil
}
