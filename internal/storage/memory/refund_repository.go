package memory

import (
	"sort"
	"sync"

	"github.com/tailorlink/negotiation/internal/domain"
)

// refundRepositoryInMemory — простая in-memory реализация RefundRepository.
type refundRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.RefundRequest
}

// NewRefundRepository возвращает in-memory репозиторий заявок на возврат.
func NewRefundRepository() *refundRepositoryInMemory {
	return &refundRepositoryInMemory{
		items: make(map[string]domain.RefundRequest),
	}
}

// Create сохраняет новую заявку, охраняя инвариант "не более одной pending на заказ".
func (r *refundRepositoryInMemory) Create(request domain.RefundRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[request.ID]; exists {
		return domain.ErrVersionConflict
	}
	for _, existing := range r.items {
		if existing.OrderID == request.OrderID && existing.Status == domain.RefundStatusPending {
			return domain.ErrDuplicateRequest
		}
	}
	r.items[request.ID] = request
	return nil
}

// Get возвращает заявку или ErrRefundNotFound, если её нет.
func (r *refundRepositoryInMemory) Get(id string) (domain.RefundRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	request, ok := r.items[id]
	if !ok {
		return domain.RefundRequest{}, domain.ErrRefundNotFound
	}
	return request, nil
}

// ListByOrder возвращает заявки по заказу в порядке создания.
func (r *refundRepositoryInMemory) ListByOrder(orderID string) ([]domain.RefundRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.RefundRequest, 0)
	for _, request := range r.items {
		if request.OrderID == orderID {
			result = append(result, request)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Save перезаписывает заявку, проверяя версию (optimistic locking).
func (r *refundRepositoryInMemory) Save(request domain.RefundRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[request.ID]
	if !ok {
		return domain.ErrRefundNotFound
	}
	if current.Version != request.Version {
		return domain.ErrVersionConflict
	}
	request.Version++
	r.items[request.ID] = request
	return nil
}

var _ domain.RefundRepository = (*refundRepositoryInMemory)(nil)
