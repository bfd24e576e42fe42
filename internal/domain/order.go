package domain

import "time"

// OrderStatus описывает статус исполнения заказа. Последовательность
// производственных статусов не жёстко линейна: боковые ветки (on_hold,
// disputed, returned) достижимы из любого нетерминального статуса.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан из принятого оффера, работа не начата.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPlaced — заказ подтверждён портным и поставлен в очередь.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusInProgress — пошив начат.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusStitched — изделие сшито, идёт финальная обработка.
	OrderStatusStitched OrderStatus = "stitched"
	// OrderStatusReadyForPickup — изделие готово к самовывозу.
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
	// OrderStatusOutForDelivery — изделие передано в доставку.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered — изделие доставлено клиенту.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusPickedUp — изделие забрано клиентом.
	OrderStatusPickedUp OrderStatus = "picked_up"
	// OrderStatusCompleted — заказ закрыт.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusOnHold — исполнение приостановлено.
	OrderStatusOnHold OrderStatus = "on_hold"
	// OrderStatusCancelled — заказ отменён до завершения.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusDisputed — по заказу открыт спор.
	OrderStatusDisputed OrderStatus = "disputed"
	// OrderStatusReturned — изделие возвращено портному.
	OrderStatusReturned OrderStatus = "returned"
	// OrderStatusRefunded — по заказу выполнен возврат средств.
	OrderStatusRefunded OrderStatus = "refunded"
	// OrderStatusFailed — исполнение завершилось неуспехом.
	OrderStatusFailed OrderStatus = "failed"
)

// Terminal сообщает, завершён ли жизненный цикл исполнения заказа.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// Valid проверяет, что статус относится к закрытому множеству значений.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPlaced, OrderStatusInProgress, OrderStatusStitched,
		OrderStatusReadyForPickup, OrderStatusOutForDelivery, OrderStatusDelivered,
		OrderStatusPickedUp, OrderStatusCompleted, OrderStatusOnHold, OrderStatusCancelled,
		OrderStatusDisputed, OrderStatusReturned, OrderStatusRefunded, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// Production сообщает, относится ли статус к производственной цепочке,
// которую продвигает портной.
func (s OrderStatus) Production() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusInProgress, OrderStatusStitched,
		OrderStatusReadyForPickup, OrderStatusOutForDelivery, OrderStatusDelivered,
		OrderStatusPickedUp, OrderStatusCompleted,
		OrderStatusOnHold, OrderStatusDisputed, OrderStatusReturned, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// PaymentStatus — независимая от исполнения ось оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusUnpaid          PaymentStatus = "unpaid"
	PaymentStatusPaid            PaymentStatus = "paid"
	PaymentStatusRefundRequested PaymentStatus = "refund_requested"
	PaymentStatusRefunded        PaymentStatus = "refunded"
)

// Valid проверяет, что статус оплаты относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusRefundRequested, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// Pricing — зафиксированная на момент создания заказа разбивка стоимости.
// Никогда не пересчитывается при чтении.
type Pricing struct {
	SubtotalMinor        int64
	VoucherDiscountMinor int64
	TaxMinor             int64
	ShippingMinor        int64
	TotalMinor           int64
}

// Consistent проверяет арифметическую согласованность разбивки.
func (p Pricing) Consistent() bool {
	return p.SubtotalMinor-p.VoucherDiscountMinor+p.ShippingMinor+p.TaxMinor == p.TotalMinor
}

// Order агрегирует состояние заказа, созданного из принятого оффера.
// Списки услуг — снимок оффера на момент конвертации.
type Order struct {
	ID         string
	OfferID    string
	CustomerID string
	TailorID   string
	Currency   string

	UtilizedServices []ServiceLine
	ExtraServices    []ServiceLine
	Pricing          Pricing

	Status        OrderStatus
	PaymentStatus PaymentStatus
	// PaymentRef — ссылка платёжного провайдера, заполняется при оплате.
	PaymentRef string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OfferID == "" {
		errs = append(errs, ErrOfferIDRequired)
	}
	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.TailorID == "" {
		errs = append(errs, ErrTailorRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.UtilizedServices) == 0 {
		errs = append(errs, ErrServicesRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusUnknown)
	}
	if !o.PaymentStatus.Valid() {
		errs = append(errs, ErrPaymentStatusUnknown)
	}
	if o.Pricing.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Pricing.Consistent() {
		errs = append(errs, ErrPricingMismatch)
	}

	return errs
}

// RefundEligible сообщает, допускает ли заказ открытие заявки на возврат:
// изделие получено клиентом и оплата подтверждена.
func (o *Order) RefundEligible() bool {
	if o.PaymentStatus != PaymentStatusPaid {
		return false
	}
	switch o.Status {
	case OrderStatusDelivered, OrderStatusPickedUp, OrderStatusCompleted:
		return true
	default:
		return false
	}
}
