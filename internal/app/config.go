package app

import (
	"fmt"
	"strconv"
	"time"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// Параметры прайсинга, фиксируемые в заказе при конвертации оффера.
	// Процентные ставки дробные: 7.25 означает 7.25%.
	TaxRatePercent         float64
	VoucherDiscountPercent float64
	ShippingFlatFeeMinor   int64

	PaymentTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних
// зависимостей: in-memory хранилище, без Kafka.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    20,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		TaxRatePercent:       10,
		ShippingFlatFeeMinor: 200,

		PaymentTimeout: 5 * time.Second,
	}
}

// EnvLookup абстрагирует os.LookupEnv, чтобы чтение конфигурации было
// тестируемым без манипуляций с окружением процесса.
type EnvLookup func(name string) (string, bool)

// ConfigFromEnv накладывает переменные окружения NGE_* на DefaultConfig.
// Невалидные значения не прерывают запуск: параметр остаётся дефолтным,
// а предупреждение возвращается вызывающей стороне для логирования.
func ConfigFromEnv(lookup EnvLookup) (Config, []string) {
	cfg := DefaultConfig()
	var warnings []string

	readString(lookup, "NGE_HTTP_ADDR", &cfg.HTTPAddr)
	readString(lookup, "NGE_METRICS_ADDR", &cfg.MetricsAddr)
	readString(lookup, "NGE_POSTGRES_DSN", &cfg.PostgresDSN)
	readString(lookup, "NGE_KAFKA_BROKERS", &cfg.KafkaBrokers)

	if raw, ok := lookup("NGE_STORAGE_DRIVER"); ok && raw != "" {
		switch StorageDriver(raw) {
		case StorageDriverMemory, StorageDriverPostgres:
			cfg.StorageDriver = StorageDriver(raw)
		default:
			warnings = append(warnings, fmt.Sprintf("NGE_STORAGE_DRIVER: unsupported driver %q, using %q", raw, cfg.StorageDriver))
		}
	} else if cfg.PostgresDSN != "" {
		// DSN без явного драйвера означает postgres.
		cfg.StorageDriver = StorageDriverPostgres
	}

	warnings = append(warnings, readBool(lookup, "NGE_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)...)

	warnings = append(warnings, readDuration(lookup, "NGE_OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)...)
	warnings = append(warnings, readInt(lookup, "NGE_OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)...)
	warnings = append(warnings, readInt(lookup, "NGE_OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)...)
	warnings = append(warnings, readDuration(lookup, "NGE_OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)...)

	warnings = append(warnings, readDuration(lookup, "NGE_IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)...)
	warnings = append(warnings, readInt(lookup, "NGE_IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)...)

	warnings = append(warnings, readFloat(lookup, "NGE_TAX_RATE_PERCENT", &cfg.TaxRatePercent)...)
	warnings = append(warnings, readFloat(lookup, "NGE_VOUCHER_DISCOUNT_PERCENT", &cfg.VoucherDiscountPercent)...)
	warnings = append(warnings, readInt64(lookup, "NGE_SHIPPING_FEE_MINOR", &cfg.ShippingFlatFeeMinor)...)

	warnings = append(warnings, readDuration(lookup, "NGE_PAYMENT_TIMEOUT", &cfg.PaymentTimeout)...)

	return cfg, warnings
}

func readString(lookup EnvLookup, name string, target *string) {
	if raw, ok := lookup(name); ok && raw != "" {
		*target = raw
	}
}

func readBool(lookup EnvLookup, name string, target *bool) []string {
	raw, ok := lookup(name)
	if !ok || raw == "" {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return []string{fmt.Sprintf("%s: invalid bool %q, using default", name, raw)}
	}
	*target = value
	return nil
}

func readInt(lookup EnvLookup, name string, target *int) []string {
	raw, ok := lookup(name)
	if !ok || raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return []string{fmt.Sprintf("%s: invalid positive int %q, using default", name, raw)}
	}
	*target = value
	return nil
}

func readInt64(lookup EnvLookup, name string, target *int64) []string {
	raw, ok := lookup(name)
	if !ok || raw == "" {
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return []string{fmt.Sprintf("%s: invalid non-negative int %q, using default", name, raw)}
	}
	*target = value
	return nil
}

func readFloat(lookup EnvLookup, name string, target *float64) []string {
	raw, ok := lookup(name)
	if !ok || raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return []string{fmt.Sprintf("%s: invalid non-negative number %q, using default", name, raw)}
	}
	*target = value
	return nil
}

func readDuration(lookup EnvLookup, name string, target *time.Duration) []string {
	raw, ok := lookup(name)
	if !ok || raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return []string{fmt.Sprintf("%s: invalid duration %q, using default", name, raw)}
	}
	*target = value
	return nil
}
