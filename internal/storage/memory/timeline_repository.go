package memory

import (
	"sort"
	"sync"

	"github.com/tailorlink/negotiation/internal/domain"
)

// timelineRepositoryInMemory держит журнал переходов в памяти.
// Используется в локальной разработке и юнит-тестах сервисов.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() *timelineRepositoryInMemory {
	return &timelineRepositoryInMemory{events: make(map[string][]domain.TimelineEvent)}
}

// Append дописывает событие в журнал агрегата.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.AggregateID] = append(r.events[event.AggregateID], event)
	return nil
}

// List возвращает копию журнала агрегата в хронологическом порядке.
// Стабильная сортировка сохраняет порядок вставки для событий
// с одинаковым Occurred.
func (r *timelineRepositoryInMemory) List(aggregateID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[aggregateID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Occurred.Before(result[j].Occurred)
	})

	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
