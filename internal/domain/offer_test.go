package domain_test

import (
	"testing"
	"time"

	"github.com/tailorlink/negotiation/internal/domain"
)

// helper для создания базового оффера с одной услугой.
func makeOffer() domain.Offer {
	now := time.Now().UTC()
	return domain.Offer{
		ID:         "offer-1",
		CustomerID: "customer-1",
		TailorID:   "tailor-1",
		Currency:   "USD",
		SelectedServices: []domain.ServiceLine{
			{ServiceID: "svc-1", ServiceName: "suit stitching", Qty: 1, UnitPriceMinor: 5000},
		},
		AmountMinor: 5000,
		Status:      domain.OfferStatusPending,
		Version:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestOfferValidateInvariants_Ok(t *testing.T) {
	offer := makeOffer()
	if errs := offer.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOfferValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Offer)
	}{
		{
			name: "no customer",
			mut: func(o *domain.Offer) {
				o.CustomerID = ""
			},
		},
		{
			name: "no tailor",
			mut: func(o *domain.Offer) {
				o.TailorID = ""
			},
		},
		{
			name: "no currency",
			mut: func(o *domain.Offer) {
				o.Currency = ""
			},
		},
		{
			name: "no services",
			mut: func(o *domain.Offer) {
				o.SelectedServices = nil
			},
		},
		{
			name: "negative amount",
			mut: func(o *domain.Offer) {
				o.AmountMinor = -1
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.Offer) {
				o.SelectedServices[0].Qty = 0
			},
		},
		{
			name: "price invalid",
			mut: func(o *domain.Offer) {
				o.SelectedServices[0].UnitPriceMinor = -5
			},
		},
		{
			name: "unknown status",
			mut: func(o *domain.Offer) {
				o.Status = "haggling"
			},
		},
		{
			name: "order id before acceptance",
			mut: func(o *domain.Offer) {
				o.OrderID = "order-1"
				o.Status = domain.OfferStatusNegotiating
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			offer := makeOffer()
			tc.mut(&offer)

			if len(offer.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestOfferLatestAmountMinor_EmptyHistory(t *testing.T) {
	offer := makeOffer()
	if got := offer.LatestAmountMinor(); got != 5000 {
		t.Fatalf("expected original amount 5000, got %d", got)
	}
}

func TestOfferLatestAmountMinor_PicksNewestEntry(t *testing.T) {
	offer := makeOffer()
	base := time.Now().UTC()
	offer.History = []domain.NegotiationEntry{
		{ID: "n-1", AmountMinor: 5500, CreatedAt: base},
		{ID: "n-2", AmountMinor: 6000, CreatedAt: base.Add(time.Second)},
		{ID: "n-3", AmountMinor: 5800, CreatedAt: base.Add(500 * time.Millisecond)},
	}

	if got := offer.LatestAmountMinor(); got != 6000 {
		t.Fatalf("expected latest amount 6000, got %d", got)
	}
}

func TestOfferLatestAmountMinor_TieBreaksOnLaterEntry(t *testing.T) {
	offer := makeOffer()
	ts := time.Now().UTC()
	offer.History = []domain.NegotiationEntry{
		{ID: "n-1", AmountMinor: 5500, CreatedAt: ts},
		{ID: "n-2", AmountMinor: 6000, CreatedAt: ts},
	}

	// При равных CreatedAt побеждает более поздняя запись истории.
	if got := offer.LatestAmountMinor(); got != 6000 {
		t.Fatalf("expected tie-break amount 6000, got %d", got)
	}
}

func TestOfferPartyOf(t *testing.T) {
	offer := makeOffer()

	if role, ok := offer.PartyOf("customer-1"); !ok || role != domain.RoleCustomer {
		t.Fatalf("expected customer role, got %s ok=%v", role, ok)
	}
	if role, ok := offer.PartyOf("tailor-1"); !ok || role != domain.RoleTailor {
		t.Fatalf("expected tailor role, got %s ok=%v", role, ok)
	}
	if _, ok := offer.PartyOf("stranger"); ok {
		t.Fatal("expected stranger to be rejected")
	}
}

func TestOfferStatusTerminal(t *testing.T) {
	terminal := []domain.OfferStatus{
		domain.OfferStatusAccepted,
		domain.OfferStatusRejected,
		domain.OfferStatusCancelled,
	}
	open := []domain.OfferStatus{
		domain.OfferStatusPending,
		domain.OfferStatusNegotiating,
		domain.OfferStatusAcceptedByCustomer,
		domain.OfferStatusAcceptedByTailor,
	}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestOfferSubtotals(t *testing.T) {
	offer := makeOffer()
	offer.SelectedServices = []domain.ServiceLine{
		{ServiceID: "svc-1", Qty: 2, UnitPriceMinor: 300},
		{ServiceID: "svc-2", Qty: 1, UnitPriceMinor: 400},
	}
	offer.ExtraServices = []domain.ServiceLine{
		{ServiceID: "svc-3", Qty: 3, UnitPriceMinor: 100},
	}

	if got := offer.ServicesSubtotalMinor(); got != 1000 {
		t.Fatalf("expected services subtotal 1000, got %d", got)
	}
	if got := offer.ExtrasSubtotalMinor(); got != 300 {
		t.Fatalf("expected extras subtotal 300, got %d", got)
	}
}

func TestCounterpart(t *testing.T) {
	if got := domain.Counterpart(domain.RoleCustomer); got != domain.RoleTailor {
		t.Fatalf("expected tailor, got %s", got)
	}
	if got := domain.Counterpart(domain.RoleTailor); got != domain.RoleCustomer {
		t.Fatalf("expected customer, got %s", got)
	}
	if got := domain.Counterpart(domain.RoleAdmin); got != "" {
		t.Fatalf("expected empty counterpart for admin, got %s", got)
	}
}
