package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/tailorlink/negotiation/internal/health"
	"github.com/tailorlink/negotiation/internal/messaging/kafka"
	"github.com/tailorlink/negotiation/internal/service/idempotency"
	"github.com/tailorlink/negotiation/internal/service/negotiation"
	"github.com/tailorlink/negotiation/internal/service/order"
	"github.com/tailorlink/negotiation/internal/service/outbox"
	"github.com/tailorlink/negotiation/internal/service/payment"
	"github.com/tailorlink/negotiation/internal/service/refund"
	"github.com/tailorlink/negotiation/internal/transport/httpapi"
	"github.com/tailorlink/negotiation/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает зависимости по конфигурации и обслуживает HTTP API до отмены
// ctx. Возвращает ctx.Err() при штатной остановке.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	// Kafka опционален: без брокера события копятся в outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	pricing := order.PricingConfig{
		VoucherDiscountPercent: cfg.VoucherDiscountPercent,
		TaxRatePercent:         cfg.TaxRatePercent,
		ShippingFlatFeeMinor:   cfg.ShippingFlatFeeMinor,
	}

	// NOTE: mock платёжного провайдера; в production заменяется клиентом
	// реального платёжного сервиса.
	paymentSvc := payment.NewMockService()

	engine := negotiation.NewEngine(
		deps.offers, deps.conversion, deps.outbox, deps.timeline,
		pricing, logger.WithField("layer", "negotiation"),
	)
	manager := order.NewManager(
		deps.orders, deps.outbox, deps.timeline,
		logger.WithField("layer", "order"),
	)
	workflow := refund.NewWorkflow(
		deps.refunds, deps.orders, paymentSvc, deps.outbox, deps.timeline,
		cfg.PaymentTimeout, logger.WithField("layer", "refund"),
	)

	if kafkaProducer != nil {
		worker := outbox.NewWorker(
			deps.outbox,
			kafka.NewOutboxPublisher(kafkaProducer),
			outbox.WithLogger(logger.WithField("layer", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(kafkaProducer)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go worker.Run(ctx)
	} else {
		logger.Info("kafka is not configured, outbox worker is disabled")
	}

	cleanupWorker := idempotency.NewCleanupWorker(
		deps.idempotency,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	go cleanupWorker.Run(ctx)

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.store != nil {
		store := deps.store
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			return store.Ping(context.Background())
		}))
	}

	opsSrv := startOpsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	server := httpapi.NewServer(engine, manager, workflow, deps.idempotency, log.StandardLogger())
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router()}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(opsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(opsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startOpsServer запускает служебный HTTP-сервер: метрики и health checks.
func startOpsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
