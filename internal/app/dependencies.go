package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/tailorlink/negotiation/internal/domain"
	"github.com/tailorlink/negotiation/internal/storage/memory"
	"github.com/tailorlink/negotiation/internal/storage/postgres"
)

// runtimeDependencies собирает репозитории, выбранные по конфигурации.
type runtimeDependencies struct {
	offers      domain.OfferRepository
	orders      domain.OrderRepository
	conversion  domain.ConversionStore
	refunds     domain.RefundRepository
	outbox      domain.OutboxRepository
	timeline    domain.TimelineRepository
	idempotency domain.IdempotencyRepository

	// store не nil только для postgres: нужен для health-чека и Close.
	store *postgres.Store
}

// initRuntimeDependencies создаёт хранилище по выбранному драйверу.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		offers := memory.NewOfferRepository()
		orders := memory.NewOrderRepository()
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			offers:      offers,
			orders:      orders,
			conversion:  memory.NewConversionStore(offers, orders),
			refunds:     memory.NewRefundRepository(),
			outbox:      memory.NewOutboxRepository(),
			timeline:    memory.NewTimelineRepository(),
			idempotency: memory.NewIdempotencyRepository(),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires NGE_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("init postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return &runtimeDependencies{
			offers:      postgres.NewOfferRepository(store),
			orders:      postgres.NewOrderRepository(store),
			conversion:  postgres.NewConversionStore(store),
			refunds:     postgres.NewRefundRepository(store),
			outbox:      postgres.NewOutboxRepository(store),
			timeline:    postgres.NewTimelineRepository(store),
			idempotency: postgres.NewIdempotencyRepository(store),
			store:       store,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// close освобождает ресурсы хранилища.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.store == nil {
		return
	}
	if err := d.store.Close(); err != nil {
		logger.WithError(err).Warn("failed to close postgres store")
	}
}
