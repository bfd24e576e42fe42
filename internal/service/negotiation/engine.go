package negotiation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tailorlink/negotiation/internal/domain"
	"github.com/tailorlink/negotiation/internal/messaging/kafka"
	"github.com/tailorlink/negotiation/internal/metrics"
	"github.com/tailorlink/negotiation/internal/service/order"
)

// CreateOfferInput — параметры создания оффера первым предложением клиента.
type CreateOfferInput struct {
	CustomerID       string
	TailorID         string
	Currency         string
	SelectedServices []domain.ServiceLine
	ExtraServices    []domain.ServiceLine
	AmountMinor      int64
	Message          string
}

// Engine описывает операции протокола торга между клиентом и портным.
type Engine interface {
	CreateOffer(input CreateOfferInput) (domain.Offer, error)
	Get(offerID string) (domain.Offer, error)
	ListByParty(partyID string, limit int) ([]domain.Offer, error)
	// Propose фиксирует встречное предложение и снимает односторонний акцепт.
	Propose(offerID, actorID string, amountMinor int64, message string) (domain.Offer, error)
	// Accept фиксирует акцепт последней цены. Если акцепт завершает сделку,
	// возвращается созданный заказ.
	Accept(offerID, actorID string, amountMinor int64) (domain.Offer, *domain.Order, error)
	Reject(offerID, actorID string) (domain.Offer, error)
	Cancel(offerID, actorID string) (domain.Offer, error)
}

// engine реализует машину состояний переговоров поверх репозитория офферов
// и атомарного ConversionStore для перехода accepted → заказ.
type engine struct {
	offers     domain.OfferRepository
	conversion domain.ConversionStore
	outbox     domain.OutboxRepository
	timeline   domain.TimelineRepository
	pricing    order.PricingConfig
	logger     *log.Entry
	metrics    *metrics.EngineMetrics
}

// NewEngine создаёт рабочий экземпляр движка переговоров.
func NewEngine(
	offers domain.OfferRepository,
	conversion domain.ConversionStore,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	pricing order.PricingConfig,
	logger *log.Entry,
) Engine {
	if logger == nil {
		logger = log.New().WithField("component", "negotiation")
	}
	return &engine{
		offers:     offers,
		conversion: conversion,
		outbox:     outbox,
		timeline:   timeline,
		pricing:    pricing,
		logger:     logger,
		metrics:    metrics.NewEngineMetrics(),
	}
}

// NewEngineWithoutMetrics создаёт движок без метрик (для тестов).
func NewEngineWithoutMetrics(
	offers domain.OfferRepository,
	conversion domain.ConversionStore,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	pricing order.PricingConfig,
	logger *log.Entry,
) Engine {
	if logger == nil {
		logger = log.New().WithField("component", "negotiation")
	}
	return &engine{
		offers:     offers,
		conversion: conversion,
		outbox:     outbox,
		timeline:   timeline,
		pricing:    pricing,
		logger:     logger,
	}
}

// CreateOffer сохраняет новый оффер в статусе pending. История торга при
// создании пуста: до первого встречного предложения binding-ценой считается
// исходная цена оффера.
func (e *engine) CreateOffer(input CreateOfferInput) (domain.Offer, error) {
	now := time.Now().UTC()
	offer := domain.Offer{
		ID:               uuid.NewString(),
		CustomerID:       input.CustomerID,
		TailorID:         input.TailorID,
		Currency:         input.Currency,
		SelectedServices: append([]domain.ServiceLine(nil), input.SelectedServices...),
		ExtraServices:    append([]domain.ServiceLine(nil), input.ExtraServices...),
		AmountMinor:      input.AmountMinor,
		Status:           domain.OfferStatusPending,
		Version:          0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if errs := offer.ValidateInvariants(); len(errs) > 0 {
		return domain.Offer{}, errs[0]
	}

	if err := e.offers.Create(offer); err != nil {
		e.logger.WithError(err).WithField("offer_id", offer.ID).Error("create offer failed")
		return domain.Offer{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordOfferCreated()
	}
	e.emitOfferEvent(&offer, kafka.EventTypeOfferCreated, offer.TailorID, map[string]interface{}{
		"amount_minor": offer.AmountMinor,
		"message":      input.Message,
	})

	e.logger.WithFields(log.Fields{
		"offer_id":    offer.ID,
		"customer_id": offer.CustomerID,
		"tailor_id":   offer.TailorID,
	}).Info("offer created")
	return offer, nil
}

func (e *engine) Get(offerID string) (domain.Offer, error) {
	return e.offers.Get(offerID)
}

func (e *engine) ListByParty(partyID string, limit int) ([]domain.Offer, error) {
	return e.offers.ListByParty(partyID, limit)
}

// Propose применяет встречное предложение. Допустимые исходные статусы:
// pending, negotiating и односторонний акцепт ПРОТИВОПОЛОЖНОЙ стороны —
// встречное предложение снимает чужой акцепт и возвращает оффер в negotiating.
func (e *engine) Propose(offerID, actorID string, amountMinor int64, message string) (domain.Offer, error) {
	start := time.Now()
	defer e.observe("propose", start)

	if amountMinor <= 0 {
		return domain.Offer{}, domain.ErrInvalidAmount
	}

	offer, err := e.offers.Get(offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	role, ok := offer.PartyOf(actorID)
	if !ok {
		return domain.Offer{}, domain.ErrForbidden
	}
	if offer.Status.Terminal() {
		return offer, domain.ErrInvalidTransition
	}
	// Сторона, уже зафиксировавшая акцепт, не может перебивать собственную цену.
	if offer.AcceptedBy(role) {
		return offer, domain.ErrInvalidTransition
	}

	now := time.Now().UTC()
	offer.History = append(offer.History, domain.NegotiationEntry{
		ID:          uuid.NewString(),
		By:          domain.Party{ID: actorID, Role: role},
		AmountMinor: amountMinor,
		Message:     message,
		Accepted:    false,
		CreatedAt:   now,
	})
	offer.AmountMinor = amountMinor
	offer.Status = domain.OfferStatusNegotiating
	offer.UpdatedAt = now

	if err := e.offers.Save(offer); err != nil {
		e.logger.WithError(err).WithField("offer_id", offer.ID).Warn("persist counter proposal failed")
		return domain.Offer{}, err
	}
	offer.Version++

	if e.metrics != nil {
		e.metrics.RecordCounterProposal()
	}
	e.emitOfferEvent(&offer, kafka.EventTypeCounterProposed, e.counterpartID(&offer, role), map[string]interface{}{
		"amount_minor": amountMinor,
		"by_role":      string(role),
		"message":      message,
	})
	return offer, nil
}

// Accept фиксирует акцепт последней согласованной цены. Акцепт с любой другой
// суммой отклоняется как устаревший, состояние оффера не меняется.
func (e *engine) Accept(offerID, actorID string, amountMinor int64) (domain.Offer, *domain.Order, error) {
	start := time.Now()
	defer e.observe("accept", start)

	offer, err := e.offers.Get(offerID)
	if err != nil {
		return domain.Offer{}, nil, err
	}
	role, ok := offer.PartyOf(actorID)
	if !ok {
		return domain.Offer{}, nil, domain.ErrForbidden
	}
	if offer.Status.Terminal() {
		return offer, nil, domain.ErrAlreadyTerminal
	}
	if offer.AcceptedBy(role) {
		return offer, nil, domain.ErrInvalidTransition
	}
	if amountMinor != offer.LatestAmountMinor() {
		if e.metrics != nil {
			e.metrics.RecordStaleAcceptance()
		}
		return offer, nil, domain.ErrStaleAcceptance
	}

	now := time.Now().UTC()
	offer.History = append(offer.History, domain.NegotiationEntry{
		ID:          uuid.NewString(),
		By:          domain.Party{ID: actorID, Role: role},
		AmountMinor: amountMinor,
		Accepted:    true,
		CreatedAt:   now,
	})
	offer.UpdatedAt = now

	// Акцепт второй стороны завершает сделку: оффер и заказ фиксируются атомарно.
	if offer.AcceptedBy(domain.Counterpart(role)) {
		return e.completeDeal(offer, role)
	}

	offer.Status = acceptedStatusOf(role)
	if err := e.offers.Save(offer); err != nil {
		e.logger.WithError(err).WithField("offer_id", offer.ID).Warn("persist acceptance failed")
		return domain.Offer{}, nil, err
	}
	offer.Version++

	e.emitOfferEvent(&offer, kafka.EventTypeAcceptanceNoted, e.counterpartID(&offer, role), map[string]interface{}{
		"amount_minor": amountMinor,
		"by_role":      string(role),
	})
	return offer, nil, nil
}

// completeDeal переводит оффер в accepted и создаёт заказ в одной фиксации.
func (e *engine) completeDeal(offer domain.Offer, byRole domain.Role) (domain.Offer, *domain.Order, error) {
	offer.Status = domain.OfferStatusAccepted

	ord := order.NewFromOffer(offer, e.pricing)
	offer.OrderID = ord.ID

	if err := e.conversion.CommitAcceptance(offer, ord); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"offer_id": offer.ID,
			"order_id": ord.ID,
		}).Warn("commit acceptance failed")
		return domain.Offer{}, nil, err
	}
	offer.Version++

	if e.metrics != nil {
		e.metrics.RecordOfferAccepted()
		e.metrics.RecordOrderConverted()
		e.metrics.RecordNegotiationDuration(offer.UpdatedAt.Sub(offer.CreatedAt))
	}

	e.emitOfferEvent(&offer, kafka.EventTypeOfferAccepted, e.counterpartID(&offer, byRole), map[string]interface{}{
		"amount_minor": offer.LatestAmountMinor(),
		"order_id":     ord.ID,
	})
	e.emitEvent("order", ord.ID, ord.CustomerID, string(kafka.EventTypeOrderPlaced), map[string]interface{}{
		"order_id":    ord.ID,
		"offer_id":    offer.ID,
		"total_minor": ord.Pricing.TotalMinor,
	}, "")

	e.logger.WithFields(log.Fields{
		"offer_id": offer.ID,
		"order_id": ord.ID,
	}).Info("offer accepted, order created")
	return offer, &ord, nil
}

// Reject — терминальное решение портного.
func (e *engine) Reject(offerID, actorID string) (domain.Offer, error) {
	return e.terminate(offerID, actorID, domain.RoleTailor, domain.OfferStatusRejected, kafka.EventTypeOfferRejected)
}

// Cancel — терминальное решение клиента.
func (e *engine) Cancel(offerID, actorID string) (domain.Offer, error) {
	return e.terminate(offerID, actorID, domain.RoleCustomer, domain.OfferStatusCancelled, kafka.EventTypeOfferCancelled)
}

// terminate закрывает оффер терминальным статусом. Переход затрагивает только
// статус, поэтому проигрыш конкурентной записи разрешается перечитыванием и
// повтором с exponential backoff.
func (e *engine) terminate(offerID, actorID string, requiredRole domain.Role, status domain.OfferStatus, eventType kafka.EventType) (domain.Offer, error) {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	offer, err := e.offers.Get(offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	role, ok := offer.PartyOf(actorID)
	if !ok || role != requiredRole {
		return domain.Offer{}, domain.ErrForbidden
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if offer.Status.Terminal() {
			return offer, domain.ErrAlreadyTerminal
		}

		offer.Status = status
		offer.UpdatedAt = time.Now().UTC()

		err := e.offers.Save(offer)
		if err == nil {
			offer.Version++
			break
		}
		if !domain.IsConflict(err) || attempt == maxRetries-1 {
			e.logger.WithError(err).WithFields(log.Fields{
				"offer_id": offer.ID,
				"attempt":  attempt + 1,
			}).Warn("persist terminal status failed")
			return domain.Offer{}, err
		}

		fresh, loadErr := e.offers.Get(offerID)
		if loadErr != nil {
			return domain.Offer{}, loadErr
		}
		offer = fresh
		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}

	if e.metrics != nil {
		switch status {
		case domain.OfferStatusRejected:
			e.metrics.RecordOfferRejected()
		case domain.OfferStatusCancelled:
			e.metrics.RecordOfferCancelled()
		}
	}
	e.emitOfferEvent(&offer, eventType, e.counterpartID(&offer, role), map[string]interface{}{
		"by_role": string(role),
	})
	return offer, nil
}

func acceptedStatusOf(role domain.Role) domain.OfferStatus {
	if role == domain.RoleTailor {
		return domain.OfferStatusAcceptedByTailor
	}
	return domain.OfferStatusAcceptedByCustomer
}

// counterpartID возвращает идентификатор стороны, которую нужно уведомить.
func (e *engine) counterpartID(offer *domain.Offer, actorRole domain.Role) string {
	if actorRole == domain.RoleCustomer {
		return offer.TailorID
	}
	return offer.CustomerID
}

func (e *engine) emitOfferEvent(offer *domain.Offer, eventType kafka.EventType, recipientID string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["status"] = string(offer.Status)
	e.emitEvent("offer", offer.ID, recipientID, string(eventType), payload, "")
}

// emitEvent ставит событие в outbox и дублирует его в timeline. Доставка —
// fire-and-forget: ошибка здесь не откатывает уже зафиксированный переход.
func (e *engine) emitEvent(aggregateType, aggregateID, recipientID, eventType string, payload map[string]interface{}, reason string) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RecipientID:   recipientID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := e.outbox.Enqueue(msg); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("enqueue event failed")
	} else if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}

	if e.timeline != nil {
		event := domain.TimelineEvent{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			Type:          eventType,
			Reason:        reason,
			Occurred:      time.Now().UTC(),
		}
		if err := e.timeline.Append(event); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"aggregate_id": aggregateID,
				"event":        eventType,
			}).Warn("append timeline event failed")
		} else if e.metrics != nil {
			e.metrics.RecordTimelineEvent()
		}
	}
}

func (e *engine) observe(op string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordOperationDuration(op, time.Since(start))
	}
}

var _ Engine = (*engine)(nil)
