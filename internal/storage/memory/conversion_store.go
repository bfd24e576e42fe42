package memory

import (
	"github.com/tailorlink/negotiation/internal/domain"
)

// conversionStore атомарно фиксирует конвертацию оффера в заказ поверх
// in-memory репозиториев: оба замка берутся на время фиксации, поэтому
// частичный результат (принятый оффер без заказа) не наблюдаем.
type conversionStore struct {
	offers *offerRepositoryInMemory
	orders *orderRepositoryInMemory
}

// NewConversionStore связывает in-memory репозитории офферов и заказов.
func NewConversionStore(offers *offerRepositoryInMemory, orders *orderRepositoryInMemory) domain.ConversionStore {
	return &conversionStore{offers: offers, orders: orders}
}

// CommitAcceptance сохраняет принятый оффер и создаёт заказ одним шагом.
// Проверка версии оффера гарантирует, что из конкурирующих акцептов
// победит ровно один и заказ не будет создан дважды.
func (s *conversionStore) CommitAcceptance(offer domain.Offer, order domain.Order) error {
	s.offers.mu.Lock()
	defer s.offers.mu.Unlock()
	s.orders.mu.Lock()
	defer s.orders.mu.Unlock()

	current, ok := s.offers.items[offer.ID]
	if !ok {
		return domain.ErrOfferNotFound
	}
	if current.Version != offer.Version {
		return domain.ErrVersionConflict
	}
	if _, exists := s.orders.items[order.ID]; exists {
		return domain.ErrVersionConflict
	}

	offer.Version++
	s.offers.items[offer.ID] = cloneOffer(offer)
	s.orders.items[order.ID] = cloneOrder(order)
	return nil
}

var _ domain.ConversionStore = (*conversionStore)(nil)
