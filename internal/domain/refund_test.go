package domain_test

import (
	"testing"
	"time"

	"github.com/tailorlink/negotiation/internal/domain"
)

func makeRefundRequest() domain.RefundRequest {
	now := time.Now().UTC()
	return domain.RefundRequest{
		ID:                  "refund-1",
		OrderID:             "order-1",
		CustomerID:          "customer-1",
		Reason:              "sleeves are too short",
		Currency:            "USD",
		AmountMinor:         6800,
		OriginalAmountMinor: 6800,
		Status:              domain.RefundStatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestRefundValidateInvariants_Ok(t *testing.T) {
	request := makeRefundRequest()
	if errs := request.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestRefundValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(r *domain.RefundRequest)
	}{
		{
			name: "no order",
			mut: func(r *domain.RefundRequest) {
				r.OrderID = ""
			},
		},
		{
			name: "no reason",
			mut: func(r *domain.RefundRequest) {
				r.Reason = ""
			},
		},
		{
			name: "zero amount",
			mut: func(r *domain.RefundRequest) {
				r.AmountMinor = 0
			},
		},
		{
			name: "amount above original",
			mut: func(r *domain.RefundRequest) {
				r.AmountMinor = r.OriginalAmountMinor + 1
			},
		},
		{
			name: "unknown status",
			mut: func(r *domain.RefundRequest) {
				r.Status = "escalated"
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			request := makeRefundRequest()
			tc.mut(&request)

			if len(request.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestRefundStatusTerminal(t *testing.T) {
	if domain.RefundStatusPending.Terminal() || domain.RefundStatusApproved.Terminal() {
		t.Fatal("pending and approved must not be terminal")
	}
	if !domain.RefundStatusRejected.Terminal() || !domain.RefundStatusProcessed.Terminal() {
		t.Fatal("rejected and processed must be terminal")
	}
}
