package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/cache"
	"github.com/vladislavdragonenkov/shop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

// storage — общая поверхность memory и postgres хранилищ.
type storage interface {
	domain.Transactor
	Products() domain.ProductRepository
	Orders() domain.OrderRepository
	Outbox() domain.OutboxRepository
}

// runtimeDependencies содержит инфраструктуру, собранную по конфигурации.
type runtimeDependencies struct {
	store          storage
	productCache   *cache.ProductCache
	storageChecker healthcheck.Checker
	cacheChecker   healthcheck.Checker
	closers        []func() error
}

// close освобождает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &runtimeDependencies{}
	if err := initStorage(ctx, cfg, logger, deps); err != nil {
		return nil, err
	}
	initProductCache(ctx, cfg, logger, deps)
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		deps.store = memory.NewStore()
		logger.WithField("storage", StorageDriverMemory).Info("storage initialized")
		return nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("postgres dsn is required for postgres storage")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN,
			postgres.WithLogger(logger.WithField("layer", "postgres")),
			postgres.WithTxMaxAttempts(cfg.TxMaxAttempts),
		)
		if err != nil {
			return fmt.Errorf("init postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.store = store
		deps.storageChecker = healthcheck.NewPingChecker("postgres", store.Ping)
		deps.closers = append(deps.closers, store.Close)
		logger.WithField("storage", StorageDriverPostgres).Info("storage initialized")
		return nil
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// initProductCache подключает Redis, если он настроен. Недоступный Redis
// не мешает старту: сервис работает без кэша.
func initProductCache(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) {
	if cfg.RedisAddr == "" {
		return
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		logger.WithError(err).Warn("redis is unavailable, continuing without product cache")
		return
	}

	deps.productCache = cache.NewProductCache(client,
		cache.WithTTL(cfg.ProductCacheTTL),
		cache.WithLogger(logger.WithField("layer", "cache")),
	)
	deps.cacheChecker = healthcheck.NewPingChecker("redis", deps.productCache.Ping)
	deps.closers = append(deps.closers, client.Close)
	logger.WithField("addr", cfg.RedisAddr).Info("product cache initialized")
}
