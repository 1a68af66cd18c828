// Package order реализует оформление заказов и чтение истории заказов.
package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Service оформляет заказы в одной единице работы: проверка клиента,
// товаров и остатков, списание остатков и сохранение заказа.
type Service struct {
	tx      domain.Transactor
	orders  domain.OrderRepository
	cache   domain.ProductCache
	metrics *metrics.ShopMetrics
	logger  *log.Entry
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithCache задаёт кэш товаров, который инвалидируется после списания остатков.
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

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт сервис заказов. orders используется только для чтения.
func NewService(tx domain.Transactor, orders domain.OrderRepository, options ...Option) *Service {
	s := &Service{
		tx:     tx,
		orders: orders,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "order-service")
	}
	return s
}

// CreateOrder оформляет заказ клиента. Возможные ошибки: KindInvalidArgument,
// KindCustomerNotFound, KindProductNotFound, KindInsufficientStock; при любой
// из них остатки не меняются и заказ не создаётся.
func (s *Service) CreateOrder(ctx context.Context, customerID string, lines []domain.OrderLine) (domain.Order, error) {
	started := time.Now()
	s.metrics.RecordOrderStarted()

	order, err := s.createOrder(ctx, customerID, lines)

	var units int64
	for _, item := range order.Items {
		units += item.Quantity
	}
	s.metrics.RecordOrderFinished(failureKind(err), len(order.Items), units, time.Since(started))

	if err != nil {
		entry := s.logger.WithError(err).WithField("customer_id", customerID)
		if kind := domain.KindOf(err); kind != "" {
			entry.WithField("kind", kind).Warn("order rejected")
		} else {
			entry.Error("order placement failed")
		}
		return domain.Order{}, err
	}

	s.invalidateProducts(ctx, order.Items)
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"items":       len(order.Items),
		"total":       order.Total.StringFixed(2),
	}).Info("order created")

	return order, nil
}

func (s *Service) createOrder(ctx context.Context, customerID string, lines []domain.OrderLine) (domain.Order, error) {
	if err := validateOrderRequest(customerID, lines); err != nil {
		return domain.Order{}, err
	}

	var created domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		customer, err := repos.Customers.FindByID(ctx, customerID)
		if err != nil {
			return err
		}

		productIDs := distinctProductIDs(lines)
		found, err := repos.Products.FindByIDs(ctx, productIDs)
		if err != nil {
			return err
		}
		products := make(map[string]domain.Product, len(found))
		for _, product := range found {
			products[product.ID] = product
		}

		var missing []string
		for _, id := range productIDs {
			if _, ok := products[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return domain.NewProductNotFound(missing...)
		}

		requested := requestedByProduct(lines)

		var shortages []domain.StockShortage
		updates := make([]domain.StockUpdate, 0, len(productIDs))
		for _, id := range productIDs {
			available := products[id].Quantity
			if requested[id] > available {
				shortages = append(shortages, domain.StockShortage{
					ProductID: id,
					Requested: requested[id],
					Available: available,
				})
				continue
			}
			updates = append(updates, domain.StockUpdate{ProductID: id, Quantity: available - requested[id]})
		}
		if len(shortages) > 0 {
			return domain.NewInsufficientStock(shortages...)
		}

		updated, err := repos.Products.UpdateQuantities(ctx, updates)
		if err != nil {
			return err
		}
		// Цена позиции берётся из записи, которую вернуло обновление остатков.
		updatedByID := make(map[string]domain.Product, len(updated))
		for _, product := range updated {
			updatedByID[product.ID] = product
		}

		now := s.now()
		order := domain.Order{
			ID:         uuid.NewString(),
			CustomerID: customer.ID,
			Items:      make([]domain.OrderItem, 0, len(lines)),
			CreatedAt:  now,
		}
		for _, line := range lines {
			product, ok := updatedByID[line.ProductID]
			if !ok {
				return fmt.Errorf("stock update did not return product %s", line.ProductID)
			}
			order.Items = append(order.Items, domain.OrderItem{
				ID:        uuid.NewString(),
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     product.Price,
				CreatedAt: now,
			})
		}
		order.Total = order.CalculateTotal()

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return fmt.Errorf("order invariants violated: %w", errors.Join(errs...))
		}

		inserted, err := repos.Orders.Insert(ctx, order)
		if err != nil {
			return err
		}

		msg, err := domain.NewOrderCreatedMessage(inserted)
		if err != nil {
			return err
		}
		if _, err := repos.Outbox.Enqueue(ctx, msg); err != nil {
			return err
		}

		created = inserted
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	return created, nil
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Order{}, domain.NewInvalidArgument(fmt.Errorf("order id is required"))
	}
	return s.orders.Get(ctx, id)
}

// ListOrders возвращает заказы клиента, новые первыми. limit<=0 заменяется
// значением по умолчанию, слишком большой limit ограничивается.
func (s *Service) ListOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, domain.NewInvalidArgument(domain.ErrCustomerRequired)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.orders.ListByCustomer(ctx, customerID, limit)
}

func (s *Service) invalidateProducts(ctx context.Context, items []domain.OrderItem) {
	if s.cache == nil {
		return
	}
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.logger.WithError(err).WithField("product_ids", ids).Warn("failed to invalidate product cache")
	}
}

func validateOrderRequest(customerID string, lines []domain.OrderLine) error {
	var reasons []error
	if strings.TrimSpace(customerID) == "" {
		reasons = append(reasons, domain.ErrCustomerRequired)
	}
	if len(lines) == 0 {
		reasons = append(reasons, domain.ErrItemsRequired)
	}
	for i, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" {
			reasons = append(reasons, fmt.Errorf("items[%d]: %w", i, domain.ErrItemProductRequired))
		}
		if line.Quantity <= 0 {
			reasons = append(reasons, fmt.Errorf("items[%d]: %w", i, domain.ErrItemQtyInvalid))
		}
	}
	if len(reasons) > 0 {
		return domain.NewInvalidArgument(reasons...)
	}
	return nil
}

// distinctProductIDs сохраняет порядок первого упоминания.
func distinctProductIDs(lines []domain.OrderLine) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}

func failureKind(err error) string {
	if err == nil {
		return ""
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return "INTERNAL"
}

// requestedByProduct суммирует количества по товару. Сумма насыщается на
// math.MaxInt64: такой запрос заведомо больше любого остатка.
func requestedByProduct(lines []domain.OrderLine) map[string]int64 {
	requested := make(map[string]int64, len(lines))
	for _, line := range lines {
		sum := requested[line.ProductID]
		if sum > math.MaxInt64-line.Quantity {
			requested[line.ProductID] = math.MaxInt64
			continue
		}
		requested[line.ProductID] = sum + line.Quantity
	}
	return requested
}
