package domain

import "errors"

var (
	// ErrInvalidTransition — действие не допускается в текущем состоянии агрегата.
	ErrInvalidTransition = errors.New("action is not legal in the current state")
	// ErrStaleAcceptance — акцепт ссылается не на последнюю согласованную цену.
	ErrStaleAcceptance = errors.New("accept amount does not match the latest negotiated amount")
	// ErrAlreadyTerminal — агрегат уже в терминальном статусе, мутации запрещены.
	ErrAlreadyTerminal = errors.New("aggregate is already in a terminal state")
	// ErrForbidden — действие не разрешено роли вызывающего.
	ErrForbidden = errors.New("actor role is not allowed to perform this action")
	// ErrNotEligible — заказ не удовлетворяет условиям открытия возврата.
	ErrNotEligible = errors.New("order is not eligible for refund")
	// ErrDuplicateRequest — по заказу уже есть открытая заявка на возврат.
	ErrDuplicateRequest = errors.New("order already has a pending refund request")
	// ErrInvalidAmount — сумма вне допустимых границ.
	ErrInvalidAmount = errors.New("amount is out of allowed bounds")
	// ErrVersionConflict — проигрыш конкурентной записи (optimistic locking).
	ErrVersionConflict = errors.New("aggregate version conflict")
	// ErrUpstreamFailure — ошибка внешнего коллаборатора (платежи/уведомления).
	ErrUpstreamFailure = errors.New("upstream collaborator failure")

	// ErrOfferNotFound возвращается, если оффер не найден в репозитории.
	ErrOfferNotFound = errors.New("offer not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrRefundNotFound возвращается, если заявка на возврат не найдена.
	ErrRefundNotFound = errors.New("refund request not found")

	// Ошибки валидации полей агрегатов.
	ErrCustomerRequired     = errors.New("customer_id is required")
	ErrTailorRequired       = errors.New("tailor_id is required")
	ErrCurrencyRequired     = errors.New("currency is required")
	ErrServicesRequired     = errors.New("offer must contain at least one service")
	ErrAmountNegative       = errors.New("amount_minor must be non-negative")
	ErrServiceQtyInvalid    = errors.New("service qty must be greater than zero")
	ErrServicePriceInvalid  = errors.New("service unit price must be non-negative")
	ErrReasonRequired       = errors.New("refund reason is required")
	ErrOfferIDRequired      = errors.New("offer_id is required")
	ErrOrderIDRequired      = errors.New("order_id is required")
	ErrOrderIDPremature     = errors.New("order_id must be set only on an accepted offer")
	ErrPricingMismatch      = errors.New("pricing breakdown does not add up to total")
	ErrOfferStatusUnknown   = errors.New("offer status is outside the closed enum")
	ErrOrderStatusUnknown   = errors.New("order status is outside the closed enum")
	ErrPaymentStatusUnknown = errors.New("payment status is outside the closed enum")
	ErrRefundStatusUnknown  = errors.New("refund status is outside the closed enum")

	// Ошибки idempotency-слоя.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with a different request")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsConflict проверяет, является ли ошибка конфликтом версий.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound проверяет ошибки отсутствия агрегата любого типа.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOfferNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrRefundNotFound)
}

// IsRecoverable сообщает, может ли вызывающая сторона исправить запрос и
// повторить его. Невосстановимы только внутренние нарушения инвариантов.
func IsRecoverable(err error) bool {
	for _, known := range []error{
		ErrInvalidTransition, ErrStaleAcceptance, ErrAlreadyTerminal,
		ErrForbidden, ErrNotEligible, ErrDuplicateRequest, ErrInvalidAmount,
		ErrVersionConflict, ErrUpstreamFailure,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return IsNotFound(err)
}
