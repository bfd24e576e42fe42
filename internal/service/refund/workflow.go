package refund

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tailorlink/negotiation/internal/domain"
	"github.com/tailorlink/negotiation/internal/messaging/kafka"
	"github.com/tailorlink/negotiation/internal/metrics"
)

// DefaultPaymentTimeout ограничивает вызов платёжного провайдера в Process.
const DefaultPaymentTimeout = 5 * time.Second

// Workflow описывает жизненный цикл заявки на возврат средств.
type Workflow interface {
	// Open создаёт заявку клиента по оплаченному и полученному заказу.
	Open(orderID, customerID, reason string) (domain.RefundRequest, error)
	Get(requestID string) (domain.RefundRequest, error)
	ListByOrder(orderID string) ([]domain.RefundRequest, error)
	// Resolve — решение администратора: approved (возможно, на уменьшенную
	// сумму) или rejected. nil amountMinor означает одобрение полной суммы.
	Resolve(requestID string, decision domain.RefundStatus, amountMinor *int64, adminNotes string, actor domain.Party) (domain.RefundRequest, error)
	// Process проводит одобренный возврат через платёжного провайдера.
	// Единственный повторяемый шаг: при сбое заявка остаётся approved.
	Process(ctx context.Context, requestID string, actor domain.Party) (domain.RefundRequest, error)
}

type workflow struct {
	refunds        domain.RefundRepository
	orders         domain.OrderRepository
	payments       domain.PaymentService
	outbox         domain.OutboxRepository
	timeline       domain.TimelineRepository
	paymentTimeout time.Duration
	logger         *log.Entry
	metrics        *metrics.EngineMetrics
}

// NewWorkflow создаёт рабочий экземпляр workflow возвратов.
func NewWorkflow(
	refunds domain.RefundRepository,
	orders domain.OrderRepository,
	payments domain.PaymentService,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	paymentTimeout time.Duration,
	logger *log.Entry,
) Workflow {
	if logger == nil {
		logger = log.New().WithField("component", "refund")
	}
	if paymentTimeout <= 0 {
		paymentTimeout = DefaultPaymentTimeout
	}
	return &workflow{
		refunds:        refunds,
		orders:         orders,
		payments:       payments,
		outbox:         outbox,
		timeline:       timeline,
		paymentTimeout: paymentTimeout,
		logger:         logger,
		metrics:        metrics.NewEngineMetrics(),
	}
}

// NewWorkflowWithoutMetrics создаёт workflow без метрик (для тестов).
func NewWorkflowWithoutMetrics(
	refunds domain.RefundRepository,
	orders domain.OrderRepository,
	payments domain.PaymentService,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	paymentTimeout time.Duration,
	logger *log.Entry,
) Workflow {
	if logger == nil {
		logger = log.New().WithField("component", "refund")
	}
	if paymentTimeout <= 0 {
		paymentTimeout = DefaultPaymentTimeout
	}
	return &workflow{
		refunds:        refunds,
		orders:         orders,
		payments:       payments,
		outbox:         outbox,
		timeline:       timeline,
		paymentTimeout: paymentTimeout,
		logger:         logger,
	}
}

// Open создаёт заявку на возврат. Гейт: изделие получено клиентом, оплата
// подтверждена, открытой заявки по заказу нет.
func (w *workflow) Open(orderID, customerID, reason string) (domain.RefundRequest, error) {
	if reason == "" {
		return domain.RefundRequest{}, domain.ErrReasonRequired
	}

	ord, err := w.orders.Get(orderID)
	if err != nil {
		return domain.RefundRequest{}, err
	}
	if ord.CustomerID != customerID {
		return domain.RefundRequest{}, domain.ErrForbidden
	}

	// Открытая заявка уже перевела ось оплаты в refund_requested, поэтому
	// повтор должен различаться как дубликат, а не как непригодный заказ.
	existing, err := w.refunds.ListByOrder(ord.ID)
	if err != nil {
		return domain.RefundRequest{}, err
	}
	for _, prev := range existing {
		if prev.Status == domain.RefundStatusPending {
			return domain.RefundRequest{}, domain.ErrDuplicateRequest
		}
	}

	if !ord.RefundEligible() {
		return domain.RefundRequest{}, domain.ErrNotEligible
	}

	now := time.Now().UTC()
	request := domain.RefundRequest{
		ID:                  uuid.NewString(),
		OrderID:             ord.ID,
		CustomerID:          customerID,
		Reason:              reason,
		Currency:            ord.Currency,
		AmountMinor:         ord.Pricing.TotalMinor,
		OriginalAmountMinor: ord.Pricing.TotalMinor,
		Status:              domain.RefundStatusPending,
		Version:             0,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if errs := request.ValidateInvariants(); len(errs) > 0 {
		return domain.RefundRequest{}, errs[0]
	}

	if err := w.refunds.Create(request); err != nil {
		return domain.RefundRequest{}, err
	}

	// Ось оплаты заказа отражает открытую заявку. Сама заявка уже
	// зафиксирована, поэтому сбой здесь только логируется.
	ord.PaymentStatus = domain.PaymentStatusRefundRequested
	ord.UpdatedAt = now
	if err := w.orders.Save(ord); err != nil {
		w.logger.WithError(err).WithField("order_id", ord.ID).Warn("mark refund_requested failed")
	}

	if w.metrics != nil {
		w.metrics.RecordRefundOutcome("requested")
	}
	w.emitEvent(&request, kafka.EventTypeRefundRequested, ord.TailorID, map[string]interface{}{
		"amount_minor": request.AmountMinor,
		"reason":       reason,
	}, reason)

	w.logger.WithFields(log.Fields{
		"refund_id": request.ID,
		"order_id":  ord.ID,
	}).Info("refund request opened")
	return request, nil
}

func (w *workflow) Get(requestID string) (domain.RefundRequest, error) {
	return w.refunds.Get(requestID)
}

func (w *workflow) ListByOrder(orderID string) ([]domain.RefundRequest, error) {
	return w.refunds.ListByOrder(orderID)
}

// Resolve применяет решение администратора к pending-заявке. Частичное
// одобрение перепроверяет сумму на сервере: 0 < amount ≤ исходной суммы,
// поэтому явный ноль отклоняется, а не трактуется как полная сумма.
func (w *workflow) Resolve(requestID string, decision domain.RefundStatus, amountMinor *int64, adminNotes string, actor domain.Party) (domain.RefundRequest, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.RefundRequest{}, domain.ErrForbidden
	}
	if decision != domain.RefundStatusApproved && decision != domain.RefundStatusRejected {
		return domain.RefundRequest{}, domain.ErrInvalidTransition
	}

	request, err := w.refunds.Get(requestID)
	if err != nil {
		return domain.RefundRequest{}, err
	}
	if request.Status.Terminal() {
		return request, domain.ErrAlreadyTerminal
	}
	if request.Status != domain.RefundStatusPending {
		return request, domain.ErrInvalidTransition
	}

	if decision == domain.RefundStatusApproved && amountMinor != nil {
		if *amountMinor <= 0 || *amountMinor > request.OriginalAmountMinor {
			return request, domain.ErrInvalidAmount
		}
		request.AmountMinor = *amountMinor
	}

	request.Status = decision
	request.AdminNotes = adminNotes
	request.UpdatedAt = time.Now().UTC()
	if err := w.refunds.Save(request); err != nil {
		w.logger.WithError(err).WithField("refund_id", request.ID).Warn("persist resolution failed")
		return domain.RefundRequest{}, err
	}
	request.Version++

	eventType := kafka.EventTypeRefundApproved
	outcome := "approved"
	if decision == domain.RefundStatusRejected {
		eventType = kafka.EventTypeRefundRejected
		outcome = "rejected"
		// Отклонение оставляет заказ нетронутым, кроме снятия метки
		// refund_requested с оси оплаты.
		w.restorePaymentStatus(request.OrderID)
	}
	if w.metrics != nil {
		w.metrics.RecordRefundOutcome(outcome)
	}
	w.emitEvent(&request, eventType, request.CustomerID, map[string]interface{}{
		"amount_minor": request.AmountMinor,
		"admin_notes":  adminNotes,
	}, adminNotes)
	return request, nil
}

// Process проводит возврат через платёжного провайдера с ограниченным
// таймаутом. Только успешный вызов продвигает заявку в processed и переводит
// ось оплаты заказа в refunded; любой сбой оставляет заявку approved.
func (w *workflow) Process(ctx context.Context, requestID string, actor domain.Party) (domain.RefundRequest, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSystem {
		return domain.RefundRequest{}, domain.ErrForbidden
	}

	request, err := w.refunds.Get(requestID)
	if err != nil {
		return domain.RefundRequest{}, err
	}
	if request.Status.Terminal() {
		return request, domain.ErrAlreadyTerminal
	}
	if request.Status != domain.RefundStatusApproved {
		return request, domain.ErrInvalidTransition
	}

	ord, err := w.orders.Get(request.OrderID)
	if err != nil {
		return request, err
	}

	callCtx, cancel := context.WithTimeout(ctx, w.paymentTimeout)
	defer cancel()
	receipt, payErr := w.payments.Refund(callCtx, ord.ID, ord.PaymentRef, request.AmountMinor, request.Currency)
	if payErr != nil {
		if w.metrics != nil {
			w.metrics.RecordPaymentFailure()
		}
		w.logger.WithError(payErr).WithFields(log.Fields{
			"refund_id": request.ID,
			"order_id":  ord.ID,
		}).Warn("payment refund failed, request stays approved")
		return request, fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, payErr)
	}

	request.Status = domain.RefundStatusProcessed
	request.UpdatedAt = time.Now().UTC()
	if err := w.refunds.Save(request); err != nil {
		w.logger.WithError(err).WithField("refund_id", request.ID).Error("persist processed refund failed")
		return domain.RefundRequest{}, err
	}
	request.Version++

	w.markOrderRefunded(ord)

	if w.metrics != nil {
		w.metrics.RecordRefundOutcome("processed")
	}
	w.emitEvent(&request, kafka.EventTypeRefundProcessed, request.CustomerID, map[string]interface{}{
		"amount_minor": request.AmountMinor,
		"payment_ref":  receipt.Reference,
	}, "")

	w.logger.WithFields(log.Fields{
		"refund_id": request.ID,
		"order_id":  ord.ID,
	}).Info("refund processed")
	return request, nil
}

// markOrderRefunded переводит ось оплаты заказа в refunded; статус исполнения
// переводится в refunded только из нетерминального статуса.
func (w *workflow) markOrderRefunded(ord domain.Order) {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		ord.PaymentStatus = domain.PaymentStatusRefunded
		if !ord.Status.Terminal() {
			ord.Status = domain.OrderStatusRefunded
		}
		ord.UpdatedAt = time.Now().UTC()

		err := w.orders.Save(ord)
		if err == nil {
			if w.metrics != nil && ord.Status == domain.OrderStatusRefunded {
				w.metrics.RecordOrderTransition(string(domain.OrderStatusRefunded))
			}
			return
		}
		if !domain.IsConflict(err) || attempt == maxRetries-1 {
			w.logger.WithError(err).WithField("order_id", ord.ID).Error("mark order refunded failed")
			return
		}

		fresh, loadErr := w.orders.Get(ord.ID)
		if loadErr != nil {
			w.logger.WithError(loadErr).WithField("order_id", ord.ID).Error("reload order after conflict failed")
			return
		}
		ord = fresh
		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}
}

// restorePaymentStatus возвращает заказу paid после отклонения заявки.
func (w *workflow) restorePaymentStatus(orderID string) {
	ord, err := w.orders.Get(orderID)
	if err != nil {
		w.logger.WithError(err).WithField("order_id", orderID).Warn("reload order after rejection failed")
		return
	}
	if ord.PaymentStatus != domain.PaymentStatusRefundRequested {
		return
	}
	ord.PaymentStatus = domain.PaymentStatusPaid
	ord.UpdatedAt = time.Now().UTC()
	if err := w.orders.Save(ord); err != nil {
		w.logger.WithError(err).WithField("order_id", orderID).Warn("restore paid status failed")
	}
}

func (w *workflow) emitEvent(request *domain.RefundRequest, eventType kafka.EventType, recipientID string, payload map[string]interface{}, reason string) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["refund_id"] = request.ID
	payload["order_id"] = request.OrderID
	payload["status"] = string(request.Status)
	data, err := json.Marshal(payload)
	if err != nil {
		w.logger.WithError(err).WithFields(log.Fields{
			"refund_id": request.ID,
			"event":     eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "refund",
		AggregateID:   request.ID,
		RecipientID:   recipientID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := w.outbox.Enqueue(msg); err != nil {
		w.logger.WithError(err).WithFields(log.Fields{
			"refund_id": request.ID,
			"event":     eventType,
		}).Error("enqueue event failed")
	} else if w.metrics != nil {
		w.metrics.RecordOutboxEvent()
	}

	if w.timeline != nil {
		event := domain.TimelineEvent{
			AggregateType: "refund",
			AggregateID:   request.OrderID,
			Type:          string(eventType),
			Reason:        reason,
			Occurred:      time.Now().UTC(),
		}
		if err := w.timeline.Append(event); err != nil {
			w.logger.WithError(err).WithFields(log.Fields{
				"refund_id": request.ID,
				"event":     eventType,
			}).Warn("append timeline event failed")
		} else if w.metrics != nil {
			w.metrics.RecordTimelineEvent()
		}
	}
}

var _ Workflow = (*workflow)(nil)
