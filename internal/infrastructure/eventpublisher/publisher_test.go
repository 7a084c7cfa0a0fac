package eventpublisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
	"github.com/iho/goescrow/internal/usecase"
	"github.com/iho/goescrow/internal/usecase/mocks"
)

func TestProcessEventsPublishesAndMarks(t *testing.T) {
	repo := &stubOutboxRepo{
		events: []*domain.OutboxEvent{{ID: "evt-1", EventType: "type"}},
	}
	pub := &stubPublisher{}
	ep := newTestPublisher(repo, pub)

	if err := ep.processEvents(context.Background()); err != nil {
		t.Fatalf("processEvents failed: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(pub.published))
	}
	if len(repo.marked) != 1 || repo.marked[0] != "evt-1" {
		t.Fatalf("expected event to be marked published, got %#v", repo.marked)
	}
}

func TestProcessEventsContinuesOnPublishError(t *testing.T) {
	repo := &stubOutboxRepo{
		events: []*domain.OutboxEvent{
			{ID: "evt-1", EventType: "type"},
			{ID: "evt-2", EventType: "type"},
		},
	}
	pub := &stubPublisher{
		errorsByID: map[string]error{"evt-1": errors.New("fail")},
	}
	ep := newTestPublisher(repo, pub)

	if err := ep.processEvents(context.Background()); err != nil {
		t.Fatalf("processEvents returned error: %v", err)
	}

	if len(pub.published) != 1 || pub.published[0].ID != "evt-2" {
		t.Fatalf("expected only evt-2 to be published, got %#v", pub.published)
	}
	if len(repo.marked) != 1 || repo.marked[0] != "evt-2" {
		t.Fatalf("expected only evt-2 to be marked, got %#v", repo.marked)
	}
}

func TestStartStopsOnContextCancellation(t *testing.T) {
	repo := &stubOutboxRepo{}
	pub := &stubPublisher{}
	ep := newTestPublisher(repo, pub)
	ep.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ep.Start(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

func TestProcessEventsRecordsMetrics(t *testing.T) {
	repo := &stubOutboxRepo{
		events: []*domain.OutboxEvent{
			{ID: "evt-1", EventType: domain.EventTypeDisputeResolved},
			{ID: "evt-2", EventType: domain.EventTypeDisputeResolved},
		},
	}
	pub := &stubPublisher{
		errorsByID: map[string]error{"evt-2": errors.New("broker down")},
	}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	ep := NewEventPublisher(Config{
		OutboxRepo: repo,
		Publisher:  pub,
		Logger:     zerolog.Nop(),
		Metrics:    m,
	})

	if err := ep.processEvents(context.Background()); err != nil {
		t.Fatalf("processEvents failed: %v", err)
	}

	if got := testutil.ToFloat64(m.EventsPublished.WithLabelValues(domain.EventTypeDisputeResolved)); got != 1 {
		t.Fatalf("expected one published event counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.OutboxErrors); got != 1 {
		t.Fatalf("expected one outbox error counted, got %v", got)
	}
}

func TestProcessEventsLeavesEventUnmarkedWhenMarkFails(t *testing.T) {
	repo := &stubOutboxRepo{
		events:  []*domain.OutboxEvent{{ID: "evt-1", EventType: "type"}},
		markErr: errors.New("db down"),
	}
	pub := &stubPublisher{}
	ep := newTestPublisher(repo, pub)

	if err := ep.processEvents(context.Background()); err != nil {
		t.Fatalf("processEvents failed: %v", err)
	}

	if len(pub.published) != 1 || len(repo.marked) != 0 {
		t.Fatalf("expected publish without mark, got published=%d marked=%v", len(pub.published), repo.marked)
	}
}

func TestTickPurgesPublishedEvents(t *testing.T) {
	repo := &stubOutboxRepo{}
	ep := NewEventPublisher(Config{
		OutboxRepo: repo,
		Publisher:  &stubPublisher{},
		Logger:     zerolog.Nop(),
		Retention:  time.Hour,
	})

	before := time.Now()
	ep.tick(context.Background())

	if repo.purgedBefore.IsZero() {
		t.Fatal("expected published events to be purged")
	}
	if !repo.purgedBefore.Before(before.Add(-59 * time.Minute)) {
		t.Fatalf("expected cutoff about an hour ago, got %v", repo.purgedBefore)
	}
}

func newTestPublisher(repo *stubOutboxRepo, pub *stubPublisher) *EventPublisher {
	return NewEventPublisher(Config{
		OutboxRepo: repo,
		Publisher:  pub,
		Logger:     zerolog.Nop(),
		BatchSize:  10,
		Interval:   5 * time.Millisecond,
	})
}

type stubOutboxRepo struct {
	events       []*domain.OutboxEvent
	marked       []string
	markErr      error
	purgedBefore time.Time
}

func (s *stubOutboxRepo) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	return nil
}

func (s *stubOutboxRepo) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if len(s.events) <= limit {
		return append([]*domain.OutboxEvent(nil), s.events...), nil
	}
	return append([]*domain.OutboxEvent(nil), s.events[:limit]...), nil
}

func (s *stubOutboxRepo) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, id)
	return nil
}

func (s *stubOutboxRepo) DeletePublished(ctx context.Context, before time.Time) error {
	s.purgedBefore = before
	return nil
}

type stubPublisher struct {
	published  []*domain.OutboxEvent
	errorsByID map[string]error
}

func (s *stubPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	if err := s.errorsByID[event.ID]; err != nil {
		return err
	}
	s.published = append(s.published, event)
	return nil
}

func TestTickPurgesEvenWhenFetchFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockOutboxRepository(ctrl)

	repo.EXPECT().GetUnpublished(gomock.Any(), 25).Return(nil, errors.New("db down"))
	repo.EXPECT().DeletePublished(gomock.Any(), gomock.Any()).Return(nil)

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	ep := NewEventPublisher(Config{
		OutboxRepo: repo,
		Publisher:  &stubPublisher{},
		Logger:     zerolog.Nop(),
		Metrics:    m,
		BatchSize:  25,
		Retention:  24 * time.Hour,
	})

	ep.tick(context.Background())

	if got := testutil.ToFloat64(m.OutboxErrors); got != 1 {
		t.Fatalf("expected fetch failure to be counted, got %v", got)
	}
}
