package integration

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/tailorlink/negotiation/internal/domain"
	"github.com/tailorlink/negotiation/internal/service/negotiation"
	"github.com/tailorlink/negotiation/internal/service/order"
	"github.com/tailorlink/negotiation/internal/service/payment"
	"github.com/tailorlink/negotiation/internal/service/refund"
	"github.com/tailorlink/negotiation/internal/storage/memory"
)

// DealLifecycleTestSuite тестирует полный путь сделки: торг, конвертация
// в заказ, исполнение и возврат средств.
type DealLifecycleTestSuite struct {
	suite.Suite
	engine   negotiation.Engine
	manager  order.Manager
	workflow refund.Workflow
	orders   domain.OrderRepository
	outbox   interface {
		domain.OutboxRepository
		AllPending() []domain.OutboxMessage
	}
	payment *payment.MockService

	customer domain.Party
	tailor   domain.Party
	admin    domain.Party
	system   domain.Party
}

func (suite *DealLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	offers := memory.NewOfferRepository()
	orders := memory.NewOrderRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	refunds := memory.NewRefundRepository()
	conversion := memory.NewConversionStore(offers, orders)

	pricing := order.PricingConfig{
		VoucherDiscountPercent: 10,
		TaxRatePercent:         10,
		ShippingFlatFeeMinor:   200,
	}

	suite.orders = orders
	suite.outbox = outbox
	suite.payment = payment.NewMockService()

	suite.engine = negotiation.NewEngineWithoutMetrics(offers, conversion, outbox, timeline, pricing, logger)
	suite.manager = order.NewManagerWithoutMetrics(orders, outbox, timeline, logger)
	suite.workflow = refund.NewWorkflowWithoutMetrics(refunds, orders, suite.payment, outbox, timeline, time.Second, logger)

	suite.customer = domain.Party{ID: "cust-1", Role: domain.RoleCustomer}
	suite.tailor = domain.Party{ID: "tail-1", Role: domain.RoleTailor}
	suite.admin = domain.Party{ID: "adm-1", Role: domain.RoleAdmin}
	suite.system = domain.Party{ID: "payment-gateway", Role: domain.RoleSystem}
}

func (suite *DealLifecycleTestSuite) TestNegotiationToOrderConversion() {
	// 1. Клиент открывает оффер
	offer, err := suite.engine.CreateOffer(negotiation.CreateOfferInput{
		CustomerID: suite.customer.ID,
		TailorID:   suite.tailor.ID,
		Currency:   "USD",
		SelectedServices: []domain.ServiceLine{
			{ServiceID: "svc-suit", ServiceName: "Suit", Qty: 1, UnitPriceMinor: 5000},
		},
		AmountMinor: 5000,
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OfferStatusPending, offer.Status)

	// 2. Портной делает встречное предложение
	offer, err = suite.engine.Propose(offer.ID, suite.tailor.ID, 6000, "material upgrade")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int64(6000), offer.LatestAmountMinor())

	// 3. Обе стороны принимают последнюю цену
	offer, ord, err := suite.engine.Accept(offer.ID, suite.customer.ID, 6000)
	require.NoError(suite.T(), err)
	require.Nil(suite.T(), ord) // односторонний акцепт сделку не завершает

	offer, ord, err = suite.engine.Accept(offer.ID, suite.tailor.ID, 6000)
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), ord)
	require.Equal(suite.T(), domain.OfferStatusAccepted, offer.Status)

	// 4. Заказ создан с корректной разбивкой стоимости
	require.Equal(suite.T(), domain.OrderStatusPending, ord.Status)
	require.Equal(suite.T(), domain.PaymentStatusUnpaid, ord.PaymentStatus)
	require.Equal(suite.T(), int64(6000), ord.Pricing.SubtotalMinor)
	require.Equal(suite.T(), int64(600), ord.Pricing.VoucherDiscountMinor)
	require.Equal(suite.T(), int64(200), ord.Pricing.ShippingMinor)
	require.True(suite.T(), ord.Pricing.Consistent())

	// 5. Конвертация опубликовала события в outbox
	events := suite.outbox.AllPending()
	require.NotEmpty(suite.T(), events)
	suite.requireEventEmitted("order.placed")
}

func (suite *DealLifecycleTestSuite) TestOrderExecutionChain() {
	ord := suite.completeDeal()

	// 1. Оплата подтверждается системным актором
	paid, err := suite.manager.MarkPaid(ord.ID, "pay-ref-1", suite.system)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.PaymentStatusPaid, paid.PaymentStatus)

	// 2. Портной ведёт заказ по производственной цепочке
	statuses := []domain.OrderStatus{
		domain.OrderStatusPlaced,
		domain.OrderStatusInProgress,
		domain.OrderStatusStitched,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
	}
	for _, next := range statuses {
		updated, updateErr := suite.manager.UpdateStatus(ord.ID, next, suite.tailor)
		require.NoError(suite.T(), updateErr, "transition to %s", next)
		require.Equal(suite.T(), next, updated.Status)
	}

	// 3. Клиент не может продвигать производственную цепочку
	_, err = suite.manager.UpdateStatus(ord.ID, domain.OrderStatusCompleted, suite.customer)
	require.Error(suite.T(), err)

	// 4. Timeline содержит все переходы
	timeline, err := suite.manager.Timeline(ord.ID)
	require.NoError(suite.T(), err)
	require.GreaterOrEqual(suite.T(), len(timeline), len(statuses)+1)
}

func (suite *DealLifecycleTestSuite) TestRefundFlow() {
	ord := suite.deliveredPaidOrder()

	// 1. Клиент открывает заявку на возврат
	request, err := suite.workflow.Open(ord.ID, suite.customer.ID, "seams came apart")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.RefundStatusPending, request.Status)
	require.Equal(suite.T(), ord.Pricing.TotalMinor, request.AmountMinor)

	// Повторная заявка по заказу отклоняется
	_, err = suite.workflow.Open(ord.ID, suite.customer.ID, "duplicate")
	require.Error(suite.T(), err)

	// 2. Администратор одобряет частичный возврат
	partial := int64(3000)
	request, err = suite.workflow.Resolve(request.ID, domain.RefundStatusApproved, &partial, "partial compensation", suite.admin)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.RefundStatusApproved, request.Status)
	require.Equal(suite.T(), int64(3000), request.AmountMinor)

	// 3. Возврат проводится через платёжного провайдера
	request, err = suite.workflow.Process(context.Background(), request.ID, suite.admin)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.RefundStatusProcessed, request.Status)

	_, refundCalls := suite.payment.Calls()
	require.Equal(suite.T(), 1, refundCalls)

	// 4. Заказ помечен как refunded
	updated, err := suite.orders.Get(ord.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusRefunded, updated.Status)
	require.Equal(suite.T(), domain.PaymentStatusRefunded, updated.PaymentStatus)

	suite.requireEventEmitted("refund.processed")
}

func (suite *DealLifecycleTestSuite) TestRefundProviderFailureKeepsRequestApproved() {
	ord := suite.deliveredPaidOrder()

	request, err := suite.workflow.Open(ord.ID, suite.customer.ID, "wrong size")
	require.NoError(suite.T(), err)
	request, err = suite.workflow.Resolve(request.ID, domain.RefundStatusApproved, nil, "", suite.admin)
	require.NoError(suite.T(), err)

	// Первый вызов провайдера падает
	suite.payment.RefundErr = domain.ErrUpstreamFailure
	_, err = suite.workflow.Process(context.Background(), request.ID, suite.admin)
	require.Error(suite.T(), err)

	current, err := suite.workflow.Get(request.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.RefundStatusApproved, current.Status)

	// Повторный Process после восстановления провайдера завершает возврат
	suite.payment.RefundErr = nil
	current, err = suite.workflow.Process(context.Background(), request.ID, suite.admin)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.RefundStatusProcessed, current.Status)

	_, refundCalls := suite.payment.Calls()
	require.Equal(suite.T(), 2, refundCalls)
}

func (suite *DealLifecycleTestSuite) TestStaleAcceptanceRejected() {
	offer, err := suite.engine.CreateOffer(negotiation.CreateOfferInput{
		CustomerID: suite.customer.ID,
		TailorID:   suite.tailor.ID,
		Currency:   "USD",
		SelectedServices: []domain.ServiceLine{
			{ServiceID: "svc-shirt", ServiceName: "Shirt", Qty: 1, UnitPriceMinor: 2000},
		},
		AmountMinor: 2000,
	})
	require.NoError(suite.T(), err)

	_, err = suite.engine.Propose(offer.ID, suite.tailor.ID, 2500, "")
	require.NoError(suite.T(), err)

	// Акцепт устаревшей цены отклоняется
	_, _, err = suite.engine.Accept(offer.ID, suite.customer.ID, 2000)
	require.ErrorIs(suite.T(), err, domain.ErrStaleAcceptance)
}

// Вспомогательные методы

func (suite *DealLifecycleTestSuite) completeDeal() domain.Order {
	offer, err := suite.engine.CreateOffer(negotiation.CreateOfferInput{
		CustomerID: suite.customer.ID,
		TailorID:   suite.tailor.ID,
		Currency:   "USD",
		SelectedServices: []domain.ServiceLine{
			{ServiceID: "svc-suit", ServiceName: "Suit", Qty: 1, UnitPriceMinor: 5000},
		},
		AmountMinor: 5000,
	})
	require.NoError(suite.T(), err)

	_, ord, err := suite.engine.Accept(offer.ID, suite.customer.ID, 5000)
	require.NoError(suite.T(), err)
	require.Nil(suite.T(), ord)

	_, ord, err = suite.engine.Accept(offer.ID, suite.tailor.ID, 5000)
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), ord)
	return *ord
}

func (suite *DealLifecycleTestSuite) deliveredPaidOrder() domain.Order {
	ord := suite.completeDeal()

	_, err := suite.manager.MarkPaid(ord.ID, "pay-ref-1", suite.system)
	require.NoError(suite.T(), err)

	for _, next := range []domain.OrderStatus{
		domain.OrderStatusPlaced,
		domain.OrderStatusInProgress,
		domain.OrderStatusStitched,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
	} {
		_, err = suite.manager.UpdateStatus(ord.ID, next, suite.tailor)
		require.NoError(suite.T(), err)
	}

	updated, err := suite.orders.Get(ord.ID)
	require.NoError(suite.T(), err)
	return updated
}

func (suite *DealLifecycleTestSuite) requireEventEmitted(eventType string) {
	suite.T().Helper()

	for _, msg := range suite.outbox.AllPending() {
		if msg.EventType == eventType {
			return
		}
	}
	suite.T().Fatalf("outbox does not contain event %s", eventType)
}

func TestDealLifecycle(t *testing.T) {
	suite.Run(t, new(DealLifecycleTestSuite))
}
