package memory

import (
	"sort"
	"sync"

	"github.com/tailorlink/negotiation/internal/domain"
)

// offerRepositoryInMemory — простая in-memory реализация OfferRepository.
type offerRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Offer
}

// NewOfferRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOfferRepository() *offerRepositoryInMemory {
	return &offerRepositoryInMemory{
		items: make(map[string]domain.Offer),
	}
}

// Create сохраняет новый оффер, если ID ещё не занят.
func (r *offerRepositoryInMemory) Create(offer domain.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[offer.ID]; exists {
		return domain.ErrVersionConflict
	}
	// Сохраняем глубокую копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[offer.ID] = cloneOffer(offer)
	return nil
}

// Get возвращает оффер или ErrOfferNotFound, если его нет.
func (r *offerRepositoryInMemory) Get(id string) (domain.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	offer, ok := r.items[id]
	if !ok {
		return domain.Offer{}, domain.ErrOfferNotFound
	}
	return cloneOffer(offer), nil
}

// ListByParty возвращает офферы участника, ограничивая выборку limit (если >0).
func (r *offerRepositoryInMemory) ListByParty(partyID string, limit int) ([]domain.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Offer, 0, len(r.items))
	for _, offer := range r.items {
		if offer.CustomerID != partyID && offer.TailorID != partyID {
			continue
		}
		result = append(result, cloneOffer(offer))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает оффер, проверяя версию (optimistic locking).
func (r *offerRepositoryInMemory) Save(offer domain.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[offer.ID]
	if !ok {
		return domain.ErrOfferNotFound
	}
	if current.Version != offer.Version {
		return domain.ErrVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	offer.Version++
	r.items[offer.ID] = cloneOffer(offer)
	return nil
}

func cloneOffer(src domain.Offer) domain.Offer {
	dst := src
	dst.SelectedServices = append([]domain.ServiceLine(nil), src.SelectedServices...)
	dst.ExtraServices = append([]domain.ServiceLine(nil), src.ExtraServices...)
	dst.History = append([]domain.NegotiationEntry(nil), src.History...)
	return dst
}

var _ domain.OfferRepository = (*offerRepositoryInMemory)(nil)
