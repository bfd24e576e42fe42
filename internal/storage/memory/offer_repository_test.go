package memory

import (
	"testing"
	"time"

	"github.com/tailorlink/negotiation/internal/domain"
)

func newOffer() domain.Offer {
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

func TestOfferRepository_CreateGet(t *testing.T) {
	repo := NewOfferRepository()
	offer := newOffer()

	if err := repo.Create(offer); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(offer.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != offer.ID {
		t.Fatalf("expected id %s, got %s", offer.ID, stored.ID)
	}
}

func TestOfferRepository_GetNotFound(t *testing.T) {
	repo := NewOfferRepository()
	if _, err := repo.Get("missing"); err != domain.ErrOfferNotFound {
		t.Fatalf("expected ErrOfferNotFound, got %v", err)
	}
}

func TestOfferRepository_ListByParty(t *testing.T) {
	repo := NewOfferRepository()
	offer := newOffer()
	if err := repo.Create(offer); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	for _, partyID := range []string{offer.CustomerID, offer.TailorID} {
		offers, err := repo.ListByParty(partyID, 10)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(offers) != 1 {
			t.Fatalf("expected 1 offer for %s, got %d", partyID, len(offers))
		}
	}

	offers, err := repo.ListByParty("stranger", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(offers) != 0 {
		t.Fatalf("expected no offers for stranger, got %d", len(offers))
	}
}

func TestOfferRepository_SaveIncrementsVersion(t *testing.T) {
	repo := NewOfferRepository()
	offer := newOffer()
	if err := repo.Create(offer); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(offer.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	stored.AmountMinor = 6000
	if err := repo.Save(stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	updated, err := repo.Get(offer.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.AmountMinor != 6000 {
		t.Fatalf("expected amount 6000, got %d", updated.AmountMinor)
	}
	if updated.Version != stored.Version+1 {
		t.Fatalf("expected version increment, got %d", updated.Version)
	}
}

func TestOfferRepository_SaveVersionConflict(t *testing.T) {
	repo := NewOfferRepository()
	offer := newOffer()
	if err := repo.Create(offer); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	offer.Version = 42
	if err := repo.Save(offer); !domain.IsConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestOfferRepository_HistoryIsIsolated(t *testing.T) {
	repo := NewOfferRepository()
	offer := newOffer()
	offer.History = []domain.NegotiationEntry{
		{ID: "n-1", AmountMinor: 5000, CreatedAt: time.Now().UTC()},
	}
	if err := repo.Create(offer); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Мутация полученной копии не должна протекать в хранилище.
	got, err := repo.Get(offer.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got.History[0].AmountMinor = 1

	fresh, err := repo.Get(offer.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if fresh.History[0].AmountMinor != 5000 {
		t.Fatalf("stored history mutated through returned copy: %d", fresh.History[0].AmountMinor)
	}
}
