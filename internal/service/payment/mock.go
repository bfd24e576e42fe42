package payment

import (
	"context"
	"sync"
	"time"

	"github.com/tailorlink/negotiation/internal/domain"
)

// MockService — конфигурируемая заглушка PaymentService для тестов.
type MockService struct {
	mu sync.Mutex

	ChargeRef string
	ChargeErr error
	RefundRef string
	RefundErr error

	// Delay имитирует медленного провайдера; вызов уважает дедлайн ctx.
	Delay time.Duration

	ChargeCalls int
	RefundCalls int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		ChargeRef: "pay-mock-charge",
		RefundRef: "pay-mock-refund",
	}
}

// Charge возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) Charge(ctx context.Context, orderID string, amountMinor int64, currency string) (domain.PaymentReceipt, error) {
	m.mu.Lock()
	m.ChargeCalls++
	ref, callErr, delay := m.ChargeRef, m.ChargeErr, m.Delay
	m.mu.Unlock()

	if err := m.wait(ctx, delay); err != nil {
		return domain.PaymentReceipt{}, err
	}
	if callErr != nil {
		return domain.PaymentReceipt{}, callErr
	}
	return domain.PaymentReceipt{Reference: ref}, nil
}

// Refund возвращает настроенный результат и считает вызовы.
func (m *MockService) Refund(ctx context.Context, orderID, paymentRef string, amountMinor int64, currency string) (domain.PaymentReceipt, error) {
	m.mu.Lock()
	m.RefundCalls++
	ref, callErr, delay := m.RefundRef, m.RefundErr, m.Delay
	m.mu.Unlock()

	if err := m.wait(ctx, delay); err != nil {
		return domain.PaymentReceipt{}, err
	}
	if callErr != nil {
		return domain.PaymentReceipt{}, callErr
	}
	return domain.PaymentReceipt{Reference: ref}, nil
}

func (m *MockService) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Calls возвращает счётчики вызовов под блокировкой.
func (m *MockService) Calls() (charges, refunds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ChargeCalls, m.RefundCalls
}

var _ domain.PaymentService = (*MockService)(nil)
