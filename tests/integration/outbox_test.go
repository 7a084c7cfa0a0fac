package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/eventpublisher"
	"github.com/iho/goescrow/tests/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.OutboxEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *domain.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]int)
	for _, e := range p.events {
		seen[e.EventType]++
	}
	return seen
}

func TestOutboxEventsForMilestone(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()
	testDB.TruncateAll(ctx)

	uc := testDB.NewUseCases()
	m := testutil.CompletedMilestone(t, uc, "250.00")

	events, err := testDB.Repos.Outbox.GetUnpublished(ctx, 100)
	if err != nil {
		t.Fatalf("failed to get unpublished events: %v", err)
	}

	var funded *domain.OutboxEvent
	for _, event := range events {
		if event.EventType == domain.EventTypeMilestoneFunded && event.AggregateID == m.ID {
			funded = event
		}
		if event.Published {
			t.Fatalf("event %s should not be published yet", event.ID)
		}
	}

	if funded == nil {
		t.Fatal("milestone funded event not found in outbox")
	}
	if funded.AggregateType != domain.AggregateTypeMilestone {
		t.Fatalf("expected aggregate type %s, got %s", domain.AggregateTypeMilestone, funded.AggregateType)
	}
	if funded.Payload["transaction_id"] == nil {
		t.Fatalf("funded payload is missing the deposit transaction: %v", funded.Payload)
	}
}

func TestEventPublisherDrainsOutbox(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()
	testDB.TruncateAll(ctx)

	uc := testDB.NewUseCases()
	testutil.CompletedMilestone(t, uc, "75.00")

	publisher := &recordingPublisher{}
	worker := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: testDB.Repos.Outbox,
		Publisher:  publisher,
		Logger:     zerolog.Nop(),
		BatchSize:  50,
		Interval:   20 * time.Millisecond,
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Start(runCtx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		remaining, err := testDB.Repos.Outbox.GetUnpublished(ctx, 100)
		if err != nil {
			t.Fatalf("failed to get unpublished events: %v", err)
		}
		if len(remaining) == 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	<-done

	remaining, err := testDB.Repos.Outbox.GetUnpublished(ctx, 100)
	if err != nil {
		t.Fatalf("failed to get unpublished events: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected outbox to be drained, %d events left", len(remaining))
	}

	seen := publisher.types()
	for _, want := range []string{domain.EventTypeMilestoneCreated, domain.EventTypeMilestoneFunded, domain.EventTypeTransactionRecorded} {
		if seen[want] == 0 {
			t.Fatalf("expected %s to be published, got %v", want, seen)
		}
	}
}
