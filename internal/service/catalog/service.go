// Package catalog управляет карточками товаров: создание и чтение через кэш.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// Service создаёт товары и отдаёт их карточки.
type Service struct {
	tx       domain.Transactor
	products domain.ProductRepository
	cache    domain.ProductCache
	metrics  *metrics.ShopMetrics
	logger   *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithCache включает read-through кэш карточек.
func WithCache(cache domain.ProductCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithMetrics задаёт бизнес-метрики.
func WithMetrics(m *metrics.ShopMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService создаёт сервис каталога.
func NewService(tx domain.Transactor, products domain.ProductRepository, options ...Option) *Service {
	s := &Service{tx: tx, products: products}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "catalog-service")
	}
	return s
}

// CreateProduct добавляет товар в каталог. Название сравнивается точно,
// существующий товар с тем же названием даёт KindProductConflict.
func (s *Service) CreateProduct(ctx context.Context, name string, price decimal.Decimal, quantity int64) (domain.Product, error) {
	candidate := domain.Product{Name: name, Price: price, Quantity: quantity}
	if errs := candidate.Validate(); len(errs) > 0 {
		return domain.Product{}, domain.NewInvalidArgument(errs...)
	}

	var created domain.Product
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		existing, err := repos.Products.FindByName(ctx, name)
		switch {
		case err == nil:
			return domain.NewProductConflict(existing.Name)
		case domain.KindOf(err) != domain.KindProductNotFound:
			return err
		}

		product, err := repos.Products.Create(ctx, candidate)
		if err != nil {
			return err
		}

		msg, err := domain.NewProductCreatedMessage(product)
		if err != nil {
			return err
		}
		if _, err := repos.Outbox.Enqueue(ctx, msg); err != nil {
			return err
		}

		created = product
		return nil
	})
	if err != nil {
		entry := s.logger.WithError(err).WithField("name", name)
		if kind := domain.KindOf(err); kind != "" {
			entry.WithField("kind", kind).Warn("product rejected")
		} else {
			entry.Error("product creation failed")
		}
		return domain.Product{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, created); err != nil {
			s.logger.WithError(err).WithField("product_id", created.ID).Warn("failed to cache product")
		}
	}
	s.metrics.RecordProductCreated()
	s.logger.WithFields(log.Fields{
		"product_id": created.ID,
		"name":       created.Name,
		"price":      created.Price.StringFixed(2),
		"quantity":   created.Quantity,
	}).Info("product created")

	return created, nil
}

// GetProduct возвращает карточку товара. Сначала проверяется кэш, промах
// дочитывается из хранилища и кладётся в кэш. Ошибки кэша не прерывают чтение.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, domain.NewInvalidArgument(errors.New("product id is required"))
	}

	if s.cache != nil {
		product, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("product_id", id).Warn("product cache read failed")
		}
		if ok {
			return product, nil
		}
	}

	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if domain.KindOf(err) == "" {
			return domain.Product{}, fmt.Errorf("find product %s: %w", id, err)
		}
		return domain.Product{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, product); err != nil {
			s.logger.WithError(err).WithField("product_id", id).Warn("failed to cache product")
		} else {
			s.dropIfChanged(ctx, product)
		}
	}
	return product, nil
}

// dropIfChanged перечитывает товар после записи в кэш. Если между чтением и
// Set успел закоммититься заказ, его инвалидация уже прошла, и в кэше осталась
// старая запись: её нужно удалить самим.
func (s *Service) dropIfChanged(ctx context.Context, cached domain.Product) {
	fresh, err := s.products.FindByID(ctx, cached.ID)
	if err == nil && fresh.Quantity == cached.Quantity && fresh.UpdatedAt.Equal(cached.UpdatedAt) {
		return
	}
	if err := s.cache.Invalidate(ctx, cached.ID); err != nil {
		s.logger.WithError(err).WithField("product_id", cached.ID).Warn("failed to drop stale cached product")
	}
}
