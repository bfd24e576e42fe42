package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tailorlink/negotiation/internal/domain"
	"github.com/tailorlink/negotiation/internal/storage/memory"
)

type managerFixture struct {
	manager  Manager
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	orders := memory.NewOrderRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	return &managerFixture{
		manager:  NewManagerWithoutMetrics(orders, outbox, timeline, nil),
		orders:   orders,
		outbox:   outbox,
		timeline: timeline,
	}
}

func seedOrder(t *testing.T, repo domain.OrderRepository, status domain.OrderStatus) domain.Order {
	t.Helper()

	now := time.Now().UTC()
	ord := domain.Order{
		ID:         "ord-1",
		OfferID:    "off-1",
		CustomerID: "cust-1",
		TailorID:   "tail-1",
		Currency:   "USD",
		UtilizedServices: []domain.ServiceLine{
			{ServiceID: "svc-1", ServiceName: "Suit", Qty: 1, UnitPriceMinor: 6000},
		},
		Pricing: domain.Pricing{
			SubtotalMinor: 6000,
			TaxMinor:      600,
			ShippingMinor: 200,
			TotalMinor:    6800,
		},
		Status:        status,
		PaymentStatus: domain.PaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.Create(ord))
	return ord
}

func TestNewFromOffer(t *testing.T) {
	offer := domain.Offer{
		ID:         "off-1",
		CustomerID: "cust-1",
		TailorID:   "tail-1",
		Currency:   "USD",
		SelectedServices: []domain.ServiceLine{
			{ServiceID: "svc-1", ServiceName: "Suit", Qty: 1, UnitPriceMinor: 5000},
		},
		ExtraServices: []domain.ServiceLine{
			{ServiceID: "svc-2", ServiceName: "Monogram", Qty: 2, UnitPriceMinor: 250},
		},
		AmountMinor: 5000,
		History: []domain.NegotiationEntry{
			{ID: "h-1", AmountMinor: 6000, CreatedAt: time.Now().UTC()},
		},
		Status: domain.OfferStatusAccepted,
	}

	cfg := PricingConfig{VoucherDiscountPercent: 10, TaxRatePercent: 10, ShippingFlatFeeMinor: 200}
	ord := NewFromOffer(offer, cfg)

	require.NotEmpty(t, ord.ID)
	require.Equal(t, "off-1", ord.OfferID)
	require.Equal(t, domain.OrderStatusPending, ord.Status)
	require.Equal(t, domain.PaymentStatusUnpaid, ord.PaymentStatus)
	require.Len(t, ord.UtilizedServices, 1)
	require.Len(t, ord.ExtraServices, 1)

	// Разбивка от последней согласованной цены 6000:
	// скидка 600, налог (6000-600)*10% = 540, итого 6000-600+200+540 = 6140.
	require.EqualValues(t, 6000, ord.Pricing.SubtotalMinor)
	require.EqualValues(t, 600, ord.Pricing.VoucherDiscountMinor)
	require.EqualValues(t, 540, ord.Pricing.TaxMinor)
	require.EqualValues(t, 200, ord.Pricing.ShippingMinor)
	require.EqualValues(t, 6140, ord.Pricing.TotalMinor)
	require.True(t, ord.Pricing.Consistent())
	require.Empty(t, ord.ValidateInvariants())
}

func TestManagerTailorAdvancesProduction(t *testing.T) {
	fx := newManagerFixture(t)
	seedOrder(t, fx.orders, domain.OrderStatusPending)
	tailor := domain.Party{ID: "tail-1", Role: domain.RoleTailor}

	sequence := []domain.OrderStatus{
		domain.OrderStatusPlaced,
		domain.OrderStatusInProgress,
		domain.OrderStatusStitched,
		domain.OrderStatusReadyForPickup,
		domain.OrderStatusPickedUp,
		domain.OrderStatusCompleted,
	}
	for _, next := range sequence {
		updated, err := fx.manager.UpdateStatus("ord-1", next, tailor)
		require.NoError(t, err, "transition to %s", next)
		require.Equal(t, next, updated.Status)
	}

	// Завершённый заказ терминален.
	_, err := fx.manager.UpdateStatus("ord-1", domain.OrderStatusOnHold, tailor)
	require.ErrorIs(t, err, domain.ErrAlreadyTerminal)
}

func TestManagerSideBranchesFromAnyNonTerminal(t *testing.T) {
	fx := newManagerFixture(t)
	seedOrder(t, fx.orders, domain.OrderStatusInProgress)
	tailor := domain.Party{ID: "tail-1", Role: domain.RoleTailor}

	for _, branch := range []domain.OrderStatus{
		domain.OrderStatusOnHold,
		domain.OrderStatusDisputed,
		domain.OrderStatusReturned,
	} {
		updated, err := fx.manager.UpdateStatus("ord-1", branch, tailor)
		require.NoError(t, err, "branch %s", branch)
		require.Equal(t, branch, updated.Status)
	}
}

func TestManagerCustomerCancelsOnlyPending(t *testing.T) {
	fx := newManagerFixture(t)
	seedOrder(t, fx.orders, domain.OrderStatusPending)
	customer := domain.Party{ID: "cust-1", Role: domain.RoleCustomer}

	updated, err := fx.manager.UpdateStatus("ord-1", domain.OrderStatusCancelled, customer)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, updated.Status)
}

func TestManagerRoleGateViolations(t *testing.T) {
	fx := newManagerFixture(t)
	seedOrder(t, fx.orders, domain.OrderStatusInProgress)

	cases := []struct {
		name  string
		next  domain.OrderStatus
		actor domain.Party
	}{
		{"customer advances production", domain.OrderStatusStitched, domain.Party{ID: "cust-1", Role: domain.RoleCustomer}},
		{"customer cancels after start", domain.OrderStatusCancelled, domain.Party{ID: "cust-1", Role: domain.RoleCustomer}},
		{"tailor sets refunded", domain.OrderStatusRefunded, domain.Party{ID: "tail-1", Role: domain.RoleTailor}},
		{"tailor sets pending", domain.OrderStatusPending, domain.Party{ID: "tail-1", Role: domain.RoleTailor}},
		{"stranger tailor", domain.OrderStatusStitched, domain.Party{ID: "tail-other", Role: domain.RoleTailor}},
		{"system advances production", domain.OrderStatusStitched, domain.Party{ID: "payments", Role: domain.RoleSystem}},
		{"admin has no gate", domain.OrderStatusOnHold, domain.Party{ID: "admin-1", Role: domain.RoleAdmin}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.manager.UpdateStatus("ord-1", tc.next, tc.actor)
			require.ErrorIs(t, err, domain.ErrForbidden)
		})
	}
}

func TestManagerSystemSetsRefunded(t *testing.T) {
	fx := newManagerFixture(t)
	seedOrder(t, fx.orders, domain.OrderStatusDelivered)
	system := domain.Party{ID: "payments", Role: domain.RoleSystem}

	updated, err := fx.manager.UpdateStatus("ord-1", domain.OrderStatusRefunded, system)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusRefunded, updated.Status)
}

func TestManagerUnknownStatusRejected(t *testing.T) {
	fx := newManagerFixture(t)
	seedOrder(t, fx.orders, domain.OrderStatusPending)

	_, err := fx.manager.UpdateStatus("ord-1", domain.OrderStatus("warp-speed"), domain.Party{ID: "tail-1", Role: domain.RoleTailor})
	require.ErrorIs(t, err, domain.ErrOrderStatusUnknown)
}

func TestManagerMarkPaid(t *testing.T) {
	fx := newManagerFixture(t)
	seedOrder(t, fx.orders, domain.OrderStatusPlaced)

	_, err := fx.manager.MarkPaid("ord-1", "pay-ref-1", domain.Party{ID: "cust-1", Role: domain.RoleCustomer})
	require.ErrorIs(t, err, domain.ErrForbidden)

	system := domain.Party{ID: "payments", Role: domain.RoleSystem}
	updated, err := fx.manager.MarkPaid("ord-1", "pay-ref-1", system)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, updated.PaymentStatus)
	require.Equal(t, "pay-ref-1", updated.PaymentRef)

	// Повторная отметка идемпотентна.
	again, err := fx.manager.MarkPaid("ord-1", "pay-ref-2", system)
	require.NoError(t, err)
	require.Equal(t, "pay-ref-1", again.PaymentRef)
}

func TestManagerStatusChangeEmitsEvents(t *testing.T) {
	fx := newManagerFixture(t)
	seedOrder(t, fx.orders, domain.OrderStatusPending)
	tailor := domain.Party{ID: "tail-1", Role: domain.RoleTailor}

	_, err := fx.manager.UpdateStatus("ord-1", domain.OrderStatusPlaced, tailor)
	require.NoError(t, err)

	pending, err := fx.outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "order.status_changed", pending[0].EventType)
	// Уведомляется противоположная сторона.
	require.Equal(t, "cust-1", pending[0].RecipientID)

	events, err := fx.manager.Timeline("ord-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "order.status_changed", events[0].Type)
}

func TestManagerTimelineUnknownOrder(t *testing.T) {
	fx := newManagerFixture(t)

	_, err := fx.manager.Timeline("missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestManagerNoOpTransition(t *testing.T) {
	fx := newManagerFixture(t)
	seedOrder(t, fx.orders, domain.OrderStatusPlaced)
	tailor := domain.Party{ID: "tail-1", Role: domain.RoleTailor}

	updated, err := fx.manager.UpdateStatus("ord-1", domain.OrderStatusPlaced, tailor)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPlaced, updated.Status)

	pending, err := fx.outbox.PullPending(10)
	require.NoError(t, err)
	require.Empty(t, pending)
}
