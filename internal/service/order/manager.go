package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tailorlink/negotiation/internal/domain"
	"github.com/tailorlink/negotiation/internal/messaging/kafka"
	"github.com/tailorlink/negotiation/internal/metrics"
)

// PricingConfig — параметры расценки, применяемые при конвертации оффера
// в заказ. Ваучер задаётся кампанией, налог и доставка — конфигурацией среды.
type PricingConfig struct {
	VoucherDiscountPercent float64
	TaxRatePercent         float64
	ShippingFlatFeeMinor   int64
}

// NewFromOffer строит заказ из принятого оффера: услуги снимаются снапшотом,
// разбивка стоимости считается один раз от финальной согласованной цены и
// больше никогда не пересчитывается.
func NewFromOffer(offer domain.Offer, cfg PricingConfig) domain.Order {
	now := time.Now().UTC()
	// Согласованная в торге цена покрывает весь состав оффера, включая
	// дополнительные услуги, поэтому она и есть subtotal расценки.
	pricing := domain.CalculatePricing(domain.PricingInput{
		BaseServicesSubtotalMinor: offer.LatestAmountMinor(),
		VoucherDiscountPercent:    cfg.VoucherDiscountPercent,
		TaxRatePercent:            cfg.TaxRatePercent,
		ShippingFlatFeeMinor:      cfg.ShippingFlatFeeMinor,
	})

	return domain.Order{
		ID:               uuid.NewString(),
		OfferID:          offer.ID,
		CustomerID:       offer.CustomerID,
		TailorID:         offer.TailorID,
		Currency:         offer.Currency,
		UtilizedServices: append([]domain.ServiceLine(nil), offer.SelectedServices...),
		ExtraServices:    append([]domain.ServiceLine(nil), offer.ExtraServices...),
		Pricing:          pricing,
		Status:           domain.OrderStatusPending,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		Version:          0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Manager ведёт заказ по жизненному циклу исполнения после конвертации.
type Manager interface {
	Get(orderID string) (domain.Order, error)
	ListByParty(partyID string, limit int) ([]domain.Order, error)
	Timeline(orderID string) ([]domain.TimelineEvent, error)
	// UpdateStatus применяет role-gated переход статуса исполнения.
	UpdateStatus(orderID string, next domain.OrderStatus, actor domain.Party) (domain.Order, error)
	// MarkPaid фиксирует подтверждение оплаты от платёжного коллаборатора.
	MarkPaid(orderID, paymentRef string, actor domain.Party) (domain.Order, error)
}

type manager struct {
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.EngineMetrics
}

// NewManager создаёт рабочий экземпляр менеджера заказов.
func NewManager(
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) Manager {
	if logger == nil {
		logger = log.New().WithField("component", "order")
	}
	return &manager{
		orders:   orders,
		outbox:   outbox,
		timeline: timeline,
		logger:   logger,
		metrics:  metrics.NewEngineMetrics(),
	}
}

// NewManagerWithoutMetrics создаёт менеджер без метрик (для тестов).
func NewManagerWithoutMetrics(
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) Manager {
	if logger == nil {
		logger = log.New().WithField("component", "order")
	}
	return &manager{
		orders:   orders,
		outbox:   outbox,
		timeline: timeline,
		logger:   logger,
	}
}

func (m *manager) Get(orderID string) (domain.Order, error) {
	return m.orders.Get(orderID)
}

func (m *manager) ListByParty(partyID string, limit int) ([]domain.Order, error) {
	return m.orders.ListByParty(partyID, limit)
}

func (m *manager) Timeline(orderID string) ([]domain.TimelineEvent, error) {
	if _, err := m.orders.Get(orderID); err != nil {
		return nil, err
	}
	return m.timeline.List(orderID)
}

// UpdateStatus применяет переход статуса исполнения. Производственную цепочку
// продвигает только портной, refunded выставляет только системный актор,
// клиент может отменить заказ только пока работа не началась. Жёсткой
// линейности внутри производственной цепочки нет: боковые ветки достижимы
// из любого нетерминального статуса.
func (m *manager) UpdateStatus(orderID string, next domain.OrderStatus, actor domain.Party) (domain.Order, error) {
	if !next.Valid() {
		return domain.Order{}, domain.ErrOrderStatusUnknown
	}

	ord, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if ord.Status.Terminal() {
		return ord, domain.ErrAlreadyTerminal
	}
	if err := gateTransition(&ord, next, actor); err != nil {
		return ord, err
	}
	if ord.Status == next {
		return ord, nil
	}

	ord, err = m.persistStatus(ord, next)
	if err != nil {
		return domain.Order{}, err
	}

	if m.metrics != nil {
		m.metrics.RecordOrderTransition(string(next))
	}
	eventType := kafka.EventTypeOrderStatusChanged
	if next == domain.OrderStatusCancelled {
		eventType = kafka.EventTypeOrderCancelled
	}
	m.emitEvent(&ord, eventType, m.recipientFor(&ord, actor), map[string]interface{}{
		"status":  string(next),
		"by_role": string(actor.Role),
	})
	return ord, nil
}

// MarkPaid переводит ось оплаты в paid. Разрешено только системному актору:
// подтверждение оплаты приходит от платёжного коллаборатора, не от сторон.
func (m *manager) MarkPaid(orderID, paymentRef string, actor domain.Party) (domain.Order, error) {
	if actor.Role != domain.RoleSystem {
		return domain.Order{}, domain.ErrForbidden
	}

	ord, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if ord.PaymentStatus == domain.PaymentStatusPaid {
		return ord, nil
	}
	if ord.PaymentStatus != domain.PaymentStatusUnpaid {
		return ord, domain.ErrInvalidTransition
	}

	ord.PaymentStatus = domain.PaymentStatusPaid
	ord.PaymentRef = paymentRef
	ord.UpdatedAt = time.Now().UTC()
	if err := m.orders.Save(ord); err != nil {
		m.logger.WithError(err).WithField("order_id", ord.ID).Warn("persist payment failed")
		return domain.Order{}, err
	}
	ord.Version++

	m.emitEvent(&ord, kafka.EventTypeOrderPaid, ord.CustomerID, map[string]interface{}{
		"payment_ref": paymentRef,
		"total_minor": ord.Pricing.TotalMinor,
	})
	return ord, nil
}

// gateTransition реализует матрицу ролей для переходов статуса исполнения.
func gateTransition(ord *domain.Order, next domain.OrderStatus, actor domain.Party) error {
	switch actor.Role {
	case domain.RoleTailor:
		if actor.ID != ord.TailorID {
			return domain.ErrForbidden
		}
		if !next.Production() {
			return domain.ErrForbidden
		}
		return nil
	case domain.RoleCustomer:
		if actor.ID != ord.CustomerID {
			return domain.ErrForbidden
		}
		// Клиент может только отменить ещё не начатый заказ.
		if next != domain.OrderStatusCancelled || ord.Status != domain.OrderStatusPending {
			return domain.ErrForbidden
		}
		return nil
	case domain.RoleSystem:
		if next != domain.OrderStatusRefunded && next != domain.OrderStatusCancelled {
			return domain.ErrForbidden
		}
		return nil
	default:
		return domain.ErrForbidden
	}
}

// persistStatus сохраняет переход статуса с повтором при конфликте версий:
// переход затрагивает только статус, поэтому его можно перепроверить на
// свежей копии и применить заново.
func (m *manager) persistStatus(ord domain.Order, next domain.OrderStatus) (domain.Order, error) {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		ord.Status = next
		ord.UpdatedAt = time.Now().UTC()

		err := m.orders.Save(ord)
		if err == nil {
			ord.Version++
			return ord, nil
		}
		if !domain.IsConflict(err) || attempt == maxRetries-1 {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id": ord.ID,
				"attempt":  attempt + 1,
			}).Warn("persist status failed")
			return domain.Order{}, err
		}

		fresh, loadErr := m.orders.Get(ord.ID)
		if loadErr != nil {
			return domain.Order{}, loadErr
		}
		if fresh.Status.Terminal() {
			return fresh, domain.ErrAlreadyTerminal
		}
		ord = fresh
		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}
	return domain.Order{}, domain.ErrVersionConflict
}

// recipientFor выбирает уведомляемую сторону: противоположную актору.
func (m *manager) recipientFor(ord *domain.Order, actor domain.Party) string {
	if actor.ID == ord.CustomerID {
		return ord.TailorID
	}
	return ord.CustomerID
}

func (m *manager) emitEvent(ord *domain.Order, eventType kafka.EventType, recipientID string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = ord.ID
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": ord.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   ord.ID,
		RecipientID:   recipientID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := m.outbox.Enqueue(msg); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": ord.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	} else if m.metrics != nil {
		m.metrics.RecordOutboxEvent()
	}

	if m.timeline != nil {
		event := domain.TimelineEvent{
			AggregateType: "order",
			AggregateID:   ord.ID,
			Type:          string(eventType),
			Occurred:      time.Now().UTC(),
		}
		if err := m.timeline.Append(event); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id": ord.ID,
				"event":    eventType,
			}).Warn("append timeline event failed")
		} else if m.metrics != nil {
			m.metrics.RecordTimelineEvent()
		}
	}
}

var _ Manager = (*manager)(nil)
