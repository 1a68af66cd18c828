package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/app"
)

const (
	envGRPCAddr            = "SHOP_GRPC_ADDR"
	envMetricsAddr         = "SHOP_METRICS_ADDR"
	envStorageDriver       = "SHOP_STORAGE_DRIVER"
	envPostgresDSN         = "SHOP_POSTGRES_DSN"
	envPostgresAutoMigrate = "SHOP_POSTGRES_AUTO_MIGRATE"
	envTxMaxAttempts       = "SHOP_TX_MAX_ATTEMPTS"
	envKafkaBrokers        = "SHOP_KAFKA_BROKERS"
	envKafkaTopic          = "SHOP_KAFKA_TOPIC"
	envKafkaDLQTopic       = "SHOP_KAFKA_DLQ_TOPIC"
	envRedisAddr           = "SHOP_REDIS_ADDR"
	envProductCacheTTL     = "SHOP_PRODUCT_CACHE_TTL"
	envOutboxPollInterval  = "SHOP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "SHOP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "SHOP_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "SHOP_OUTBOX_RETRY_DELAY"
	envLogLevel            = "SHOP_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// configWarning описывает значение переменной окружения, отброшенное в пользу значения по умолчанию.
type configWarning struct {
	Key   string
	Value string
	Err   error
}

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).WithField("value", raw).Warn("invalid log level, using info")
			return
		}
		log.SetLevel(level)
	}
}

// readConfigFromEnv формирует конфигурацию приложения из переменных окружения.
// Невалидные значения не прерывают запуск: остаётся значение по умолчанию и
// возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []configWarning) {
	cfg := app.DefaultConfig()
	var warnings []configWarning

	readString := func(key string, target *string) {
		if value, ok := lookupTrimmed(lookup, key); ok {
			*target = value
		}
	}
	warn := func(key, value string, err error) {
		warnings = append(warnings, configWarning{Key: key, Value: value, Err: err})
	}
	positive := func(v int) bool { return v > 0 }

	readString(envGRPCAddr, &cfg.GRPCAddr)
	readString(envMetricsAddr, &cfg.MetricsAddr)
	readString(envPostgresDSN, &cfg.PostgresDSN)
	readString(envKafkaTopic, &cfg.KafkaTopic)
	readString(envRedisAddr, &cfg.RedisAddr)

	// Пустое значение выключает DLQ.
	if value, ok := lookup(envKafkaDLQTopic); ok {
		cfg.KafkaDLQTopic = strings.TrimSpace(value)
	}
	if value, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(value))
	}
	if value, ok := lookupTrimmed(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(value)
	}

	if value, ok := lookupTrimmed(lookup, envPostgresAutoMigrate); ok {
		parsed, err := parseBool(value)
		if err != nil {
			warn(envPostgresAutoMigrate, value, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	intSettings := []struct {
		key    string
		target *int
	}{
		{envTxMaxAttempts, &cfg.TxMaxAttempts},
		{envOutboxBatchSize, &cfg.OutboxBatchSize},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts},
	}
	for _, setting := range intSettings {
		value, ok := lookupTrimmed(lookup, setting.key)
		if !ok {
			continue
		}
		parsed, err := parseInt(value, positive, "must be > 0")
		if err != nil {
			warn(setting.key, value, err)
			continue
		}
		*setting.target = parsed
	}

	durationSettings := []struct {
		key     string
		target  *time.Duration
		isValid func(time.Duration) bool
		rule    string
	}{
		{envProductCacheTTL, &cfg.ProductCacheTTL, func(v time.Duration) bool { return v > 0 }, "must be > 0"},
		{envOutboxPollInterval, &cfg.OutboxPollInterval, func(v time.Duration) bool { return v > 0 }, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0"},
	}
	for _, setting := range durationSettings {
		value, ok := lookupTrimmed(lookup, setting.key)
		if !ok {
			continue
		}
		parsed, err := parseDuration(value, setting.isValid, setting.rule)
		if err != nil {
			warn(setting.key, value, err)
			continue
		}
		*setting.target = parsed
	}

	return cfg, warnings
}

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	value, ok := lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, isValid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if isValid != nil && !isValid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, isValid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if isValid != nil && !isValid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.WithError(w.Err).WithFields(log.Fields{
			"env":   w.Key,
			"value": w.Value,
		}).Warn("invalid environment value, using default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  len(cfg.KafkaBrokers) > 0,
		"cache_enabled":  cfg.RedisAddr != "",
	}).Info("запускаем ShopService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("ShopService остановлен")
}
