package domain

import "time"

// RefundStatus описывает жизненный цикл заявки на возврат средств.
type RefundStatus string

const (
	// RefundStatusPending — заявка создана клиентом и ждёт решения администратора.
	RefundStatusPending RefundStatus = "pending"
	// RefundStatusApproved — заявка одобрена (возможно, на уменьшенную сумму).
	RefundStatusApproved RefundStatus = "approved"
	// RefundStatusRejected — заявка отклонена, заказ не затронут.
	RefundStatusRejected RefundStatus = "rejected"
	// RefundStatusProcessed — деньги возвращены через платёжного провайдера.
	RefundStatusProcessed RefundStatus = "processed"
)

// Valid проверяет, что статус относится к закрытому множеству значений.
func (s RefundStatus) Valid() bool {
	switch s {
	case RefundStatusPending, RefundStatusApproved, RefundStatusRejected, RefundStatusProcessed:
		return true
	default:
		return false
	}
}

// Terminal сообщает, завершён ли жизненный цикл заявки.
// approved не терминален: заявку ещё предстоит провести через провайдера.
func (s RefundStatus) Terminal() bool {
	return s == RefundStatusRejected || s == RefundStatusProcessed
}

// RefundRequest — заявка клиента на возврат средств по оплаченному заказу.
type RefundRequest struct {
	ID         string
	OrderID    string
	CustomerID string
	// Reason — обязательное текстовое обоснование возврата.
	Reason   string
	Currency string
	// AmountMinor — сумма возврата; по умолчанию равна total заказа,
	// при частичном одобрении уменьшается администратором.
	AmountMinor int64
	// OriginalAmountMinor — исходная сумма заявки для server-side проверки границ.
	OriginalAmountMinor int64
	Status              RefundStatus
	AdminNotes          string
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ValidateInvariants проверяет базовые инварианты заявки и возвращает список замечаний.
func (r *RefundRequest) ValidateInvariants() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if r.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if r.Reason == "" {
		errs = append(errs, ErrReasonRequired)
	}
	if r.AmountMinor <= 0 {
		errs = append(errs, ErrInvalidAmount)
	}
	if r.AmountMinor > r.OriginalAmountMinor {
		errs = append(errs, ErrInvalidAmount)
	}
	if !r.Status.Valid() {
		errs = append(errs, ErrRefundStatusUnknown)
	}

	return errs
}
