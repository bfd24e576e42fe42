package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndSucceed()

	event := NewNegotiationEvent(
		EventTypeOfferCreated,
		"offer-123",
		"customer-1",
		"tailor-1",
		5000,
		"pending",
	)

	err := producer.PublishEvent(TopicNegotiationEvents, "offer-123", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewNegotiationEvent(EventTypeOfferCreated, "offer-123", "customer-1", "tailor-1", 5000, "pending")

	err := producer.PublishEvent(TopicNegotiationEvents, "offer-123", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewNegotiationEvent(t *testing.T) {
	event := NewNegotiationEvent(EventTypeCounterProposed, "offer-123", "customer-1", "tailor-1", 6000, "negotiating")

	if event.EventType != EventTypeCounterProposed {
		t.Errorf("expected event type %s, got %s", EventTypeCounterProposed, event.EventType)
	}
	if event.OfferID != "offer-123" {
		t.Errorf("expected offer id offer-123, got %s", event.OfferID)
	}
	if event.AmountMinor != 6000 {
		t.Errorf("expected amount 6000, got %d", event.AmountMinor)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}

func TestNewOrderEvent(t *testing.T) {
	event := NewOrderEvent(EventTypeOrderStatusChanged, "order-123", "customer-1", "in_progress", map[string]interface{}{
		"previous_status": "placed",
	})

	if event.EventType != EventTypeOrderStatusChanged {
		t.Errorf("expected event type %s, got %s", EventTypeOrderStatusChanged, event.EventType)
	}
	if event.OrderID != "order-123" {
		t.Errorf("expected order id order-123, got %s", event.OrderID)
	}
	if event.Status != "in_progress" {
		t.Errorf("expected status in_progress, got %s", event.Status)
	}
	if event.Metadata["previous_status"] != "placed" {
		t.Error("metadata not set correctly")
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
}

func TestNewRefundEvent(t *testing.T) {
	event := NewRefundEvent(EventTypeRefundApproved, "refund-1", "order-123", 2500, "approved")

	if event.EventType != EventTypeRefundApproved {
		t.Errorf("expected event type %s, got %s", EventTypeRefundApproved, event.EventType)
	}
	if event.RefundID != "refund-1" || event.OrderID != "order-123" {
		t.Errorf("ids not set: %+v", event)
	}
	if event.AmountMinor != 2500 {
		t.Errorf("expected amount 2500, got %d", event.AmountMinor)
	}
}

func TestTopicForAggregate(t *testing.T) {
	cases := map[string]string{
		"offer":   TopicNegotiationEvents,
		"order":   TopicOrderEvents,
		"refund":  TopicRefundEvents,
		"unknown": TopicOrderEvents,
	}
	for aggregate, want := range cases {
		if got := TopicForAggregate(aggregate); got != want {
			t.Errorf("TopicForAggregate(%q) = %q, want %q", aggregate, got, want)
		}
	}
}
