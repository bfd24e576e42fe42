package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/tailorlink/negotiation/internal/domain"
)

func integrationOffer(id string) domain.Offer {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Offer{
		ID:         id,
		CustomerID: "customer-1",
		TailorID:   "tailor-1",
		Currency:   "USD",
		SelectedServices: []domain.ServiceLine{
			{ServiceID: "svc-1", ServiceName: "suit stitching", Qty: 1, UnitPriceMinor: 5000},
			{ServiceID: "svc-2", ServiceName: "lining", Qty: 2, UnitPriceMinor: 750},
		},
		ExtraServices: []domain.ServiceLine{
			{ServiceID: "svc-9", ServiceName: "express fitting", Qty: 1, UnitPriceMinor: 1200},
		},
		AmountMinor: 7700,
		Status:      domain.OfferStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestOfferRepository_PostgresRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOfferRepository(store)

	offer := integrationOffer("offer-1")
	if err := repo.Create(offer); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	stored, err := repo.Get(offer.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if len(stored.SelectedServices) != 2 || len(stored.ExtraServices) != 1 {
		t.Fatalf("service lines lost: base=%d extra=%d", len(stored.SelectedServices), len(stored.ExtraServices))
	}
	if stored.SelectedServices[1].ServiceName != "lining" {
		t.Fatalf("service line order lost: %+v", stored.SelectedServices)
	}

	stored.Status = domain.OfferStatusNegotiating
	stored.AmountMinor = 8000
	stored.History = append(stored.History, domain.NegotiationEntry{
		ID:          "entry-1",
		By:          domain.Party{ID: "tailor-1", Role: domain.RoleTailor},
		AmountMinor: 8000,
		Message:     "fabric costs went up",
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	})
	if err := repo.Save(stored); err != nil {
		t.Fatalf("save offer: %v", err)
	}

	updated, err := repo.Get(offer.ID)
	if err != nil {
		t.Fatalf("get updated offer: %v", err)
	}
	if updated.Version != stored.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}
	if len(updated.History) != 1 || updated.History[0].By.Role != domain.RoleTailor {
		t.Fatalf("history lost: %+v", updated.History)
	}

	// Повторный Save с той же историей не должен дублировать записи.
	if err := repo.Save(updated); err != nil {
		t.Fatalf("second save: %v", err)
	}
	again, err := repo.Get(offer.ID)
	if err != nil {
		t.Fatalf("get after second save: %v", err)
	}
	if len(again.History) != 1 {
		t.Fatalf("history duplicated: %d entries", len(again.History))
	}
}

func TestOfferRepository_PostgresVersionConflict(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOfferRepository(store)

	offer := integrationOffer("offer-1")
	if err := repo.Create(offer); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	offer.Version = 42
	if err := repo.Save(offer); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	missing := integrationOffer("offer-missing")
	if err := repo.Save(missing); !errors.Is(err, domain.ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound, got %v", err)
	}
}

func TestOfferRepository_PostgresListByParty(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOfferRepository(store)

	first := integrationOffer("offer-1")
	first.CreatedAt = first.CreatedAt.Add(-time.Hour)
	first.UpdatedAt = first.CreatedAt
	if err := repo.Create(first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	second := integrationOffer("offer-2")
	if err := repo.Create(second); err != nil {
		t.Fatalf("create second: %v", err)
	}

	offers, err := repo.ListByParty("tailor-1", 10)
	if err != nil {
		t.Fatalf("list by tailor: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(offers))
	}
	if offers[0].ID != "offer-2" {
		t.Fatalf("expected newest first, got %s", offers[0].ID)
	}

	limited, err := repo.ListByParty("customer-1", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}
