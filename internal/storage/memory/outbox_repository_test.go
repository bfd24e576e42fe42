package memory

import (
	"testing"

	"github.com/tailorlink/negotiation/internal/domain"
)

func TestOutboxRepository_EnqueuePull(t *testing.T) {
	repo := NewOutboxRepository()

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "offer",
		AggregateID:   "offer-1",
		RecipientID:   "tailor-1",
		EventType:     "negotiation.offer_created",
		Payload:       []byte(`{"offer_id":"offer-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("expected generated message id")
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
	if pending[0].EventType != "negotiation.offer_created" {
		t.Fatalf("unexpected event type %s", pending[0].EventType)
	}
}

func TestOutboxRepository_MarkSent(t *testing.T) {
	repo := NewOutboxRepository()
	msg, err := repo.Enqueue(domain.OutboxMessage{AggregateType: "order", AggregateID: "order-1", EventType: "order.status_changed"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkSent(msg.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}
}

func TestOutboxRepository_Stats(t *testing.T) {
	repo := NewOutboxRepository()
	first, _ := repo.Enqueue(domain.OutboxMessage{AggregateType: "offer", AggregateID: "offer-1", EventType: "negotiation.offer_created"})
	if _, err := repo.Enqueue(domain.OutboxMessage{AggregateType: "offer", AggregateID: "offer-1", EventType: "negotiation.counter_proposed"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkSent(first.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Fatalf("expected 1 pending, got %d", stats.PendingCount)
	}
	if stats.OldestPendingAt.IsZero() {
		t.Fatalf("expected oldest pending timestamp")
	}
}

func TestOutboxRepository_MarkUnknown(t *testing.T) {
	repo := NewOutboxRepository()
	if err := repo.MarkSent("missing"); err == nil {
		t.Fatalf("expected error for unknown message id")
	}
}
