package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tailorlink/negotiation/internal/domain"
)

type conversionStore struct {
	db *sql.DB
}

// NewConversionStore создаёт PostgreSQL-реализацию ConversionStore.
// Фиксация акцепта и создание заказа выполняются в одной транзакции.
func NewConversionStore(store *Store) domain.ConversionStore {
	return &conversionStore{db: store.DB()}
}

// CommitAcceptance атомарно переводит оффер в accepted и создаёт заказ.
// Optimistic lock по версии оффера плюс UNIQUE (offer_id) на orders
// гарантируют ровно один заказ при конкурирующих акцептах.
func (s *conversionStore) CommitAcceptance(offer domain.Offer, order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = updateOfferTx(ctx, tx, offer); err != nil {
		return err
	}

	if err = insertOrderTx(ctx, tx, order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit acceptance: %w", err)
	}

	return nil
}

var _ domain.ConversionStore = (*conversionStore)(nil)
