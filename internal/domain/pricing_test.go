package domain_test

import (
	"testing"

	"github.com/tailorlink/negotiation/internal/domain"
)

func TestCalculatePricing(t *testing.T) {
	cases := []struct {
		name string
		in   domain.PricingInput
		want domain.Pricing
	}{
		{
			name: "voucher and tax",
			in: domain.PricingInput{
				BaseServicesSubtotalMinor: 1000,
				VoucherDiscountPercent:    10,
				TaxRatePercent:            10,
				ShippingFlatFeeMinor:      200,
			},
			want: domain.Pricing{
				SubtotalMinor:        1000,
				VoucherDiscountMinor: 100,
				TaxMinor:             90,
				ShippingMinor:        200,
				TotalMinor:           1190,
			},
		},
		{
			name: "no voucher",
			in: domain.PricingInput{
				BaseServicesSubtotalMinor:  600,
				ExtraServicesSubtotalMinor: 400,
				TaxRatePercent:             10,
				ShippingFlatFeeMinor:       200,
			},
			want: domain.Pricing{
				SubtotalMinor: 1000,
				TaxMinor:      100,
				ShippingMinor: 200,
				TotalMinor:    1300,
			},
		},
		{
			name: "everything zero",
			in:   domain.PricingInput{},
			want: domain.Pricing{},
		},
		{
			name: "half rounds up",
			in: domain.PricingInput{
				BaseServicesSubtotalMinor: 125,
				VoucherDiscountPercent:    10, // 12.5 -> 13
			},
			want: domain.Pricing{
				SubtotalMinor:        125,
				VoucherDiscountMinor: 13,
				TotalMinor:           112,
			},
		},
		{
			name: "tax on discounted base",
			in: domain.PricingInput{
				BaseServicesSubtotalMinor: 333,
				VoucherDiscountPercent:    15,   // 49.95 -> 50
				TaxRatePercent:            7.25, // (333-50)*7.25% = 20.5175 -> 21
			},
			want: domain.Pricing{
				SubtotalMinor:        333,
				VoucherDiscountMinor: 50,
				TaxMinor:             21,
				TotalMinor:           304,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.CalculatePricing(tc.in)
			if got != tc.want {
				t.Fatalf("unexpected pricing: got %+v, want %+v", got, tc.want)
			}
			if !got.Consistent() {
				t.Fatalf("pricing breakdown is inconsistent: %+v", got)
			}
		})
	}
}
