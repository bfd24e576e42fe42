package domain

import (
	"context"
	"time"
)

// PaymentReceipt — результат операции платёжного провайдера.
type PaymentReceipt struct {
	// Reference — идентификатор операции у провайдера. Может быть пустым,
	// если провайдер его не возвращает.
	Reference string
}

// PaymentService описывает взаимодействие с платёжным коллаборатором.
// Вызовы обязаны уважать дедлайн из ctx: обработка возврата выполняется
// с ограниченным таймаутом и повторяется при временных сбоях.
type PaymentService interface {
	// Charge инициирует списание средств по заказу.
	Charge(ctx context.Context, orderID string, amountMinor int64, currency string) (PaymentReceipt, error)
	// Refund инициирует возврат средств по ссылке исходного платежа.
	Refund(ctx context.Context, orderID, paymentRef string, amountMinor int64, currency string) (PaymentReceipt, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
// Диспетчеризация уведомлений — fire-and-forget относительно перехода:
// событие попадает в outbox только после фиксации перехода.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла агрегатов.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(aggregateID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	// RecipientID — участник, которого событие должно уведомить.
	RecipientID string
	EventType   string
	Payload     []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
