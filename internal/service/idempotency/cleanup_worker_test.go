package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tailorlink/negotiation/internal/domain"
)

var _ domain.IdempotencyRepository = (*fakeKeysRepo)(nil)

func TestCleanupWorker_DeleteExpired_Batches(t *testing.T) {
	t.Parallel()

	repo := &fakeKeysRepo{
		deleteResults: []int{2, 2, 1},
	}

	worker := NewCleanupWorker(repo, WithBatchSize(2))

	cutoff := time.Now().UTC()
	deleted, err := worker.DeleteExpired(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}

	if deleted != 5 {
		t.Fatalf("unexpected deleted total: got=%d want=5", deleted)
	}

	if calls := repo.calls(); calls != 3 {
		t.Fatalf("unexpected delete calls: got=%d want=3", calls)
	}

	// Граница cutoff не должна сдвигаться между порциями одного прохода.
	for _, seen := range repo.seenBefore {
		if !seen.Equal(cutoff) {
			t.Fatalf("cutoff drifted between batches: %s vs %s", seen, cutoff)
		}
	}
}

func TestCleanupWorker_DeleteExpired_Error(t *testing.T) {
	t.Parallel()

	repo := &fakeKeysRepo{
		deleteErrors: []error{errors.New("boom")},
	}

	worker := NewCleanupWorker(repo, WithBatchSize(10))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected DeleteExpired error")
	}
	if deleted != 0 {
		t.Fatalf("unexpected deleted total: got=%d want=0", deleted)
	}
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &fakeKeysRepo{
		deleteResults: []int{0, 0, 0},
	}

	worker := NewCleanupWorker(
		repo,
		WithInterval(5*time.Millisecond),
		WithBatchSize(10),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}

	if calls := repo.calls(); calls == 0 {
		t.Fatal("expected cleanup to be called at least once")
	}
}

// fakeKeysRepo реализует только DeleteExpired: остальные методы
// репозитория воркеру очистки не нужны.
type fakeKeysRepo struct {
	mu sync.Mutex

	deleteResults []int
	deleteErrors  []error
	seenBefore    []time.Time
	callCount     int
}

func (s *fakeKeysRepo) CreateProcessing(string, string, time.Time) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *fakeKeysRepo) Get(string) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *fakeKeysRepo) MarkDone(string, []byte, int) error {
	panic("not implemented")
}

func (s *fakeKeysRepo) MarkFailed(string, []byte, int) error {
	panic("not implemented")
}

func (s *fakeKeysRepo) DeleteExpired(before time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.seenBefore = append(s.seenBefore, before)

	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return 0, err
		}
	}

	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *fakeKeysRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}
