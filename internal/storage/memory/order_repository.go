package memory

import (
	"sort"
	"sync"

	"github.com/tailorlink/negotiation/internal/domain"
)

// orderRepositoryInMemory хранит заказы в map под RWMutex.
// Все методы работают с копиями, чтобы вызывающий код не мог
// мутировать состояние репозитория через возвращённые значения.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() *orderRepositoryInMemory {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ. Повторный ID считаем конфликтом версий:
// так ведёт себя и постгресовая реализация на PRIMARY KEY.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByParty возвращает заказы участника (клиента или портного).
func (r *orderRepositoryInMemory) ListByParty(partyID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.CustomerID == partyID || order.TailorID == partyID {
			result = append(result, cloneOrder(order))
		}
	}

	// Свежие заказы первыми; ID разруливает одинаковые метки времени.
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

// Save перезаписывает заказ по правилам optimistic locking: версия в
// аргументе должна совпадать с сохранённой, иначе ErrVersionConflict.
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrVersionConflict
	}
	order.Version++
	r.items[order.ID] = cloneOrder(order)
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.UtilizedServices = append([]domain.ServiceLine(nil), src.UtilizedServices...)
	dst.ExtraServices = append([]domain.ServiceLine(nil), src.ExtraServices...)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
