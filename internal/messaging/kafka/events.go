package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События переговоров
	EventTypeOfferCreated    EventType = "negotiation.offer_created"
	EventTypeCounterProposed EventType = "negotiation.counter_proposed"
	EventTypeAcceptanceNoted EventType = "negotiation.acceptance_recorded"
	EventTypeOfferAccepted   EventType = "negotiation.offer_accepted"
	EventTypeOfferRejected   EventType = "negotiation.offer_rejected"
	EventTypeOfferCancelled  EventType = "negotiation.offer_cancelled"

	// События заказа
	EventTypeOrderPlaced        EventType = "order.placed"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderPaid          EventType = "order.paid"
	EventTypeOrderCancelled     EventType = "order.cancelled"

	// События возврата
	EventTypeRefundRequested EventType = "refund.requested"
	EventTypeRefundApproved  EventType = "refund.approved"
	EventTypeRefundRejected  EventType = "refund.rejected"
	EventTypeRefundProcessed EventType = "refund.processed"
)

// Topics для Kafka
const (
	TopicNegotiationEvents = "negotiation.events"
	TopicOrderEvents       = "order.events"
	TopicRefundEvents      = "refund.events"
	TopicDeadLetterQueue   = "negotiation.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// NegotiationEvent представляет событие переговоров по офферу
type NegotiationEvent struct {
	EventType   EventType              `json:"event_type"`
	OfferID     string                 `json:"offer_id"`
	CustomerID  string                 `json:"customer_id"`
	TailorID    string                 `json:"tailor_id"`
	AmountMinor int64                  `json:"amount_minor"`
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType     EventType              `json:"event_type"`
	OrderID       string                 `json:"order_id"`
	OfferID       string                 `json:"offer_id,omitempty"`
	CustomerID    string                 `json:"customer_id"`
	Status        string                 `json:"status"`
	PaymentStatus string                 `json:"payment_status,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// RefundEvent представляет событие заявки на возврат
type RefundEvent struct {
	EventType   EventType              `json:"event_type"`
	RefundID    string                 `json:"refund_id"`
	OrderID     string                 `json:"order_id"`
	AmountMinor int64                  `json:"amount_minor"`
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewNegotiationEvent создает новое событие переговоров
func NewNegotiationEvent(eventType EventType, offerID, customerID, tailorID string, amountMinor int64, status string) *NegotiationEvent {
	return &NegotiationEvent{
		EventType:   eventType,
		OfferID:     offerID,
		CustomerID:  customerID,
		TailorID:    tailorID,
		AmountMinor: amountMinor,
		Status:      status,
		Timestamp:   time.Now(),
	}
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// NewRefundEvent создает новое событие возврата
func NewRefundEvent(eventType EventType, refundID, orderID string, amountMinor int64, status string) *RefundEvent {
	return &RefundEvent{
		EventType:   eventType,
		RefundID:    refundID,
		OrderID:     orderID,
		AmountMinor: amountMinor,
		Status:      status,
		Timestamp:   time.Now(),
	}
}

// TopicForAggregate возвращает topic для агрегата outbox-сообщения.
func TopicForAggregate(aggregateType string) string {
	switch aggregateType {
	case "offer":
		return TopicNegotiationEvents
	case "order":
		return TopicOrderEvents
	case "refund":
		return TopicRefundEvents
	default:
		return TopicOrderEvents
	}
}
