package domain

import "math"

// PricingInput — входные данные чистого калькулятора стоимости.
// Все денежные величины — в минимальных единицах валюты.
type PricingInput struct {
	BaseServicesSubtotalMinor  int64
	ExtraServicesSubtotalMinor int64
	// VoucherDiscountPercent — скидка ваучера/кампании в процентах (0 — нет ваучера).
	VoucherDiscountPercent float64
	TaxRatePercent         float64
	ShippingFlatFeeMinor   int64
}

// CalculatePricing вычисляет разбивку стоимости заказа:
//
//	subtotal = base + extra
//	voucherDiscount = subtotal * voucherPercent / 100
//	tax = (subtotal - voucherDiscount) * taxPercent / 100
//	total = subtotal - voucherDiscount + shipping + tax
//
// Округление каждой производной величины — round-half-up до минимальной
// единицы, поскольку исходная система применяла округление непоследовательно.
func CalculatePricing(in PricingInput) Pricing {
	subtotal := in.BaseServicesSubtotalMinor + in.ExtraServicesSubtotalMinor
	discount := percentOf(subtotal, in.VoucherDiscountPercent)
	tax := percentOf(subtotal-discount, in.TaxRatePercent)

	return Pricing{
		SubtotalMinor:        subtotal,
		VoucherDiscountMinor: discount,
		TaxMinor:             tax,
		ShippingMinor:        in.ShippingFlatFeeMinor,
		TotalMinor:           subtotal - discount + in.ShippingFlatFeeMinor + tax,
	}
}

// percentOf возвращает percent% от amount с округлением round-half-up.
func percentOf(amountMinor int64, percent float64) int64 {
	if percent <= 0 || amountMinor <= 0 {
		return 0
	}
	return int64(math.Floor(float64(amountMinor)*percent/100 + 0.5))
}
