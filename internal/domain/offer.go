package domain

import "time"

// OfferStatus описывает жизненный цикл оффера (контракта) между клиентом и портным.
type OfferStatus string

const (
	// OfferStatusPending — оффер создан, встречных предложений ещё не было.
	OfferStatusPending OfferStatus = "pending"
	// OfferStatusNegotiating — стороны обмениваются встречными предложениями по цене.
	OfferStatusNegotiating OfferStatus = "negotiating"
	// OfferStatusAcceptedByCustomer — клиент принял последнюю цену и ждёт портного.
	OfferStatusAcceptedByCustomer OfferStatus = "accepted_by_customer"
	// OfferStatusAcceptedByTailor — портной принял последнюю цену и ждёт клиента.
	OfferStatusAcceptedByTailor OfferStatus = "accepted_by_tailor"
	// OfferStatusAccepted — обе стороны согласились; по офферу создан заказ.
	OfferStatusAccepted OfferStatus = "accepted"
	// OfferStatusRejected — портной отклонил оффер.
	OfferStatusRejected OfferStatus = "rejected"
	// OfferStatusCancelled — клиент отменил оффер.
	OfferStatusCancelled OfferStatus = "cancelled"
)

// Terminal сообщает, завершён ли жизненный цикл оффера.
// В терминальном статусе никакие мутации не допускаются.
func (s OfferStatus) Terminal() bool {
	switch s {
	case OfferStatusAccepted, OfferStatusRejected, OfferStatusCancelled:
		return true
	default:
		return false
	}
}

// Valid проверяет, что статус относится к закрытому множеству значений.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferStatusPending, OfferStatusNegotiating,
		OfferStatusAcceptedByCustomer, OfferStatusAcceptedByTailor,
		OfferStatusAccepted, OfferStatusRejected, OfferStatusCancelled:
		return true
	default:
		return false
	}
}

// ServiceLine представляет одну услугу в составе оффера или заказа.
type ServiceLine struct {
	// ServiceID — внешний идентификатор услуги из каталога.
	ServiceID string
	// ServiceName фиксируется на момент создания оффера, каталог может меняться.
	ServiceName string
	// Qty — количество единиц услуги.
	Qty int32
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
}

// NegotiationEntry — одна запись в истории торга. История только дополняется.
type NegotiationEntry struct {
	ID          string
	By          Party
	AmountMinor int64
	Message     string
	// Accepted отмечает запись-акцепт в отличие от встречного предложения.
	Accepted  bool
	CreatedAt time.Time
}

// Offer агрегирует состояние переговоров между клиентом и портным.
// Списки услуг неизменяемы после создания: торг идёт только о цене.
type Offer struct {
	ID               string
	CustomerID       string
	TailorID         string
	Currency         string
	SelectedServices []ServiceLine
	ExtraServices    []ServiceLine
	// AmountMinor — актуальная предложенная цена за весь оффер.
	AmountMinor int64
	History     []NegotiationEntry
	Status      OfferStatus
	// OrderID устанавливается ровно один раз при переходе в accepted.
	OrderID   string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LatestAmountMinor возвращает последнюю согласованную цену: запись истории
// с наибольшим CreatedAt (при равных метках побеждает более поздняя запись),
// либо исходную цену оффера, если истории ещё нет.
func (o *Offer) LatestAmountMinor() int64 {
	amount := o.AmountMinor
	var latest time.Time
	for _, entry := range o.History {
		if !entry.CreatedAt.Before(latest) {
			latest = entry.CreatedAt
			amount = entry.AmountMinor
		}
	}
	return amount
}

// PartyOf возвращает роль участника оффера по его идентификатору.
func (o *Offer) PartyOf(actorID string) (Role, bool) {
	switch actorID {
	case o.CustomerID:
		return RoleCustomer, true
	case o.TailorID:
		return RoleTailor, true
	default:
		return "", false
	}
}

// AcceptedBy сообщает, зафиксирован ли односторонний акцепт указанной роли.
func (o *Offer) AcceptedBy(role Role) bool {
	switch role {
	case RoleCustomer:
		return o.Status == OfferStatusAcceptedByCustomer
	case RoleTailor:
		return o.Status == OfferStatusAcceptedByTailor
	default:
		return false
	}
}

// ServicesSubtotalMinor считает сумму основных услуг.
func (o *Offer) ServicesSubtotalMinor() int64 {
	return linesSubtotal(o.SelectedServices)
}

// ExtrasSubtotalMinor считает сумму дополнительных услуг.
func (o *Offer) ExtrasSubtotalMinor() int64 {
	return linesSubtotal(o.ExtraServices)
}

func linesSubtotal(lines []ServiceLine) int64 {
	var sum int64
	for _, line := range lines {
		sum += int64(line.Qty) * line.UnitPriceMinor
	}
	return sum
}

// ValidateInvariants проверяет базовые инварианты оффера и возвращает список замечаний.
func (o *Offer) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.TailorID == "" {
		errs = append(errs, ErrTailorRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.SelectedServices) == 0 {
		errs = append(errs, ErrServicesRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOfferStatusUnknown)
	}

	for _, line := range append(append([]ServiceLine(nil), o.SelectedServices...), o.ExtraServices...) {
		if line.Qty <= 0 {
			errs = append(errs, ErrServiceQtyInvalid)
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, ErrServicePriceInvalid)
		}
	}

	// OrderID допустим только у принятого оффера.
	if o.OrderID != "" && o.Status != OfferStatusAccepted {
		errs = append(errs, ErrOrderIDPremature)
	}

	return errs
}
