package postgres

import (
	"testing"
	"time"

	"github.com/tailorlink/negotiation/internal/domain"
)

func TestTimelineRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	base := time.Now().UTC().Truncate(time.Microsecond)
	events := []domain.TimelineEvent{
		{AggregateType: "offer", AggregateID: "offer-1", Type: "offer_created", Occurred: base},
		{AggregateType: "offer", AggregateID: "offer-1", Type: "counter_proposed", Reason: "fabric costs", Occurred: base.Add(time.Second)},
		{AggregateType: "order", AggregateID: "order-1", Type: "order_placed", Occurred: base.Add(2 * time.Second)},
	}
	for _, event := range events {
		if err := repo.Append(event); err != nil {
			t.Fatalf("append timeline event: %v", err)
		}
	}

	// Zero Occurred must be filled by the repository.
	if err := repo.Append(domain.TimelineEvent{AggregateType: "order", AggregateID: "order-1", Type: "order_paid"}); err != nil {
		t.Fatalf("append event without timestamp: %v", err)
	}

	offerEvents, err := repo.List("offer-1")
	if err != nil {
		t.Fatalf("list offer timeline: %v", err)
	}
	if len(offerEvents) != 2 {
		t.Fatalf("expected 2 offer events, got %d", len(offerEvents))
	}
	if offerEvents[0].Type != "offer_created" || offerEvents[1].Reason != "fabric costs" {
		t.Fatalf("timeline order broken: %+v", offerEvents)
	}

	orderEvents, err := repo.List("order-1")
	if err != nil {
		t.Fatalf("list order timeline: %v", err)
	}
	if len(orderEvents) != 2 {
		t.Fatalf("expected 2 order events, got %d", len(orderEvents))
	}
	if orderEvents[1].Occurred.IsZero() {
		t.Fatal("expected occurred to be filled for event without timestamp")
	}
}
