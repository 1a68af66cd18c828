package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/order"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

type fixture struct {
	store    *memory.Store
	customer domain.Customer
	a        domain.Product
	b        domain.Product
}

// newFixture готовит каталог: A — 10 шт. по 5.00, B — 2 шт. по 3.00.
func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	customer, err := store.Customers().Create(ctx, domain.Customer{Name: "Alice", Email: "alice@example.com"})
	require.NoError(t, err)
	a, err := store.Products().Create(ctx, domain.Product{Name: "A", Price: decimal.RequireFromString("5.00"), Quantity: 10})
	require.NoError(t, err)
	b, err := store.Products().Create(ctx, domain.Product{Name: "B", Price: decimal.RequireFromString("3.00"), Quantity: 2})
	require.NoError(t, err)

	return fixture{store: store, customer: customer, a: a, b: b}
}

func (f fixture) quantity(t *testing.T, id string) int64 {
	t.Helper()
	product, err := f.store.Products().FindByID(context.Background(), id)
	require.NoError(t, err)
	return product.Quantity
}

func (f fixture) pendingEvents(t *testing.T) []domain.OutboxMessage {
	t.Helper()
	pending, err := f.store.Outbox().PullPending(context.Background(), 100)
	require.NoError(t, err)
	return pending
}

func newService(f fixture, options ...order.Option) *order.Service {
	return order.NewService(f.store, f.store.Orders(), options...)
}

func TestCreateOrder_InsufficientThenSufficientExample(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{
		{ProductID: f.a.ID, Quantity: 3},
		{ProductID: f.b.ID, Quantity: 5},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))
	assert.Equal(t, int64(10), f.quantity(t, f.a.ID))
	assert.Equal(t, int64(2), f.quantity(t, f.b.ID))

	created, err := svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{
		{ProductID: f.a.ID, Quantity: 3},
		{ProductID: f.b.ID, Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.quantity(t, f.a.ID))
	assert.Equal(t, int64(0), f.quantity(t, f.b.ID))

	require.Len(t, created.Items, 2)
	assert.Equal(t, f.a.ID, created.Items[0].ProductID)
	assert.True(t, created.Items[0].Price.Equal(decimal.RequireFromString("5.00")))
	assert.Equal(t, f.b.ID, created.Items[1].ProductID)
	assert.True(t, created.Items[1].Price.Equal(decimal.RequireFromString("3.00")))
	assert.True(t, created.Total.Equal(decimal.RequireFromString("21.00")))
	assert.Equal(t, f.customer.ID, created.CustomerID)
	assert.NotEmpty(t, created.ID)
}

func TestCreateOrder_PersistsOrderAndOutboxEvent(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{{ProductID: f.a.ID, Quantity: 1}})
	require.NoError(t, err)

	stored, err := svc.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, stored.ID)
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("5")))

	events := f.pendingEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderCreated, events[0].EventType)
	assert.Equal(t, created.ID, events[0].AggregateID)

	var payload domain.OrderCreatedPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "5.00", payload.Total)
}

func TestCreateOrder_PriceSnapshotSurvivesCatalogChange(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{{ProductID: f.a.ID, Quantity: 1}})
	require.NoError(t, err)

	// Изменение карточки товара после оформления не затрагивает позиции заказа.
	_, err = f.store.Products().UpdateQuantities(ctx, []domain.StockUpdate{{ProductID: f.a.ID, Quantity: 100}})
	require.NoError(t, err)

	stored, err := svc.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Items[0].Price.Equal(decimal.RequireFromString("5.00")))
	assert.Equal(t, int64(1), stored.Items[0].Quantity)
}

func TestCreateOrder_CustomerNotFound(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)

	_, err := svc.CreateOrder(context.Background(), "ghost", []domain.OrderLine{{ProductID: f.a.ID, Quantity: 1}})

	var domainErr *domain.Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.KindCustomerNotFound, domainErr.Kind)
	assert.Equal(t, "ghost", domainErr.CustomerID)
	assert.Equal(t, int64(10), f.quantity(t, f.a.ID))
	assert.Empty(t, f.pendingEvents(t))
}

func TestCreateOrder_ProductNotFoundListsEveryMissingID(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)

	_, err := svc.CreateOrder(context.Background(), f.customer.ID, []domain.OrderLine{
		{ProductID: f.a.ID, Quantity: 1},
		{ProductID: "missing-1", Quantity: 1},
		{ProductID: "missing-2", Quantity: 1},
		{ProductID: "missing-1", Quantity: 2},
	})

	var domainErr *domain.Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.KindProductNotFound, domainErr.Kind)
	assert.Equal(t, []string{"missing-1", "missing-2"}, domainErr.ProductIDs)
	assert.Equal(t, int64(10), f.quantity(t, f.a.ID))
}

func TestCreateOrder_InsufficientStockReportsAllShortages(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)

	_, err := svc.CreateOrder(context.Background(), f.customer.ID, []domain.OrderLine{
		{ProductID: f.a.ID, Quantity: 11},
		{ProductID: f.b.ID, Quantity: 3},
	})

	var domainErr *domain.Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.KindInsufficientStock, domainErr.Kind)
	assert.Equal(t, []domain.StockShortage{
		{ProductID: f.a.ID, Requested: 11, Available: 10},
		{ProductID: f.b.ID, Requested: 3, Available: 2},
	}, domainErr.Shortages)
}

func TestCreateOrder_DuplicateProductLinesAreSummed(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{
		{ProductID: f.b.ID, Quantity: 2},
		{ProductID: f.b.ID, Quantity: 1},
	})
	require.True(t, errors.Is(err, domain.ErrInsufficientStock))
	assert.Equal(t, int64(2), f.quantity(t, f.b.ID))

	created, err := svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{
		{ProductID: f.a.ID, Quantity: 4},
		{ProductID: f.a.ID, Quantity: 6},
	})
	require.NoError(t, err)
	assert.Len(t, created.Items, 2)
	assert.Equal(t, int64(0), f.quantity(t, f.a.ID))
	assert.True(t, created.Total.Equal(decimal.RequireFromString("50")))
}

func TestCreateOrder_DuplicateLinesNearInt64LimitDoNotWrap(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()

	free, err := f.store.Products().Create(ctx, domain.Product{Name: "Free", Price: decimal.Zero, Quantity: 10})
	require.NoError(t, err)

	_, err = svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{
		{ProductID: free.ID, Quantity: math.MaxInt64},
		{ProductID: free.ID, Quantity: math.MaxInt64},
	})
	require.True(t, errors.Is(err, domain.ErrInsufficientStock))

	var domainErr *domain.Error
	require.True(t, errors.As(err, &domainErr))
	require.Len(t, domainErr.Shortages, 1)
	assert.Equal(t, int64(math.MaxInt64), domainErr.Shortages[0].Requested)
	assert.Equal(t, int64(10), domainErr.Shortages[0].Available)

	assert.Equal(t, int64(10), f.quantity(t, free.ID))
	assert.Empty(t, f.pendingEvents(t))
}

func TestCreateOrder_ExactStockIsAllowed(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)

	_, err := svc.CreateOrder(context.Background(), f.customer.ID, []domain.OrderLine{{ProductID: f.b.ID, Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.quantity(t, f.b.ID))
}

func TestCreateOrder_RejectsInvalidRequestBeforeLookups(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)

	cases := []struct {
		name       string
		customerID string
		lines      []domain.OrderLine
		reason     error
	}{
		{name: "empty customer", customerID: " ", lines: []domain.OrderLine{{ProductID: f.a.ID, Quantity: 1}}, reason: domain.ErrCustomerRequired},
		{name: "no items", customerID: "ghost", lines: nil, reason: domain.ErrItemsRequired},
		{name: "zero quantity", customerID: "ghost", lines: []domain.OrderLine{{ProductID: f.a.ID, Quantity: 0}}, reason: domain.ErrItemQtyInvalid},
		{name: "negative quantity", customerID: "ghost", lines: []domain.OrderLine{{ProductID: f.a.ID, Quantity: -5}}, reason: domain.ErrItemQtyInvalid},
		{name: "empty product", customerID: "ghost", lines: []domain.OrderLine{{ProductID: "", Quantity: 1}}, reason: domain.ErrItemProductRequired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tc.customerID, tc.lines)
			assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
			assert.True(t, errors.Is(err, tc.reason), "expected reason %v in %v", tc.reason, err)
			assert.Equal(t, int64(10), f.quantity(t, f.a.ID))
		})
	}
}

// failingOrders подменяет репозиторий заказов внутри транзакции.
type failingOrders struct {
	domain.OrderRepository
	err error
}

func (r failingOrders) Insert(context.Context, domain.Order) (domain.Order, error) {
	return domain.Order{}, r.err
}

type failingOrdersTx struct {
	store *memory.Store
	err   error
}

func (tx failingOrdersTx) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return tx.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		repos.Orders = failingOrders{OrderRepository: repos.Orders, err: tx.err}
		return fn(ctx, repos)
	})
}

func TestCreateOrder_OrderInsertFailureRestoresStock(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("disk full")
	svc := order.NewService(failingOrdersTx{store: f.store, err: boom}, f.store.Orders())

	_, err := svc.CreateOrder(context.Background(), f.customer.ID, []domain.OrderLine{{ProductID: f.a.ID, Quantity: 4}})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(10), f.quantity(t, f.a.ID))
	assert.Empty(t, f.pendingEvents(t))
}

func TestCreateOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)

	const workers = 40
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successes    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), f.customer.ID, []domain.OrderLine{{ProductID: f.a.ID, Quantity: 1}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, successes)
	assert.Equal(t, workers-10, insufficient)
	assert.Equal(t, int64(0), f.quantity(t, f.a.ID))

	orders, err := svc.ListOrders(context.Background(), f.customer.ID, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 10)
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Get(context.Context, string) (domain.Product, bool, error) {
	return domain.Product{}, false, nil
}

func (c *recordingCache) Set(context.Context, domain.Product) error { return nil }

func (c *recordingCache) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

func TestCreateOrder_InvalidatesTouchedProductsAfterCommit(t *testing.T) {
	f := newFixture(t)
	cache := &recordingCache{}
	svc := newService(f, order.WithCache(cache))
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{{ProductID: f.b.ID, Quantity: 5}})
	require.Error(t, err)
	assert.Empty(t, cache.invalidated)

	_, err = svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{
		{ProductID: f.a.ID, Quantity: 1},
		{ProductID: f.a.ID, Quantity: 1},
		{ProductID: f.b.ID, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{f.a.ID, f.b.ID}, cache.invalidated)
}

func TestCreateOrder_RecordsMetrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewShopMetricsWithRegisterer(reg)
	svc := newService(f, order.WithMetrics(m))
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{{ProductID: f.a.ID, Quantity: 2}})
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, f.customer.ID, []domain.OrderLine{{ProductID: f.b.ID, Quantity: 9}})
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "shop_orders_created_total", "shop_order_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCreateOrder_UsesInjectedClock(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newService(f, order.WithClock(func() time.Time { return fixed }))

	created, err := svc.CreateOrder(context.Background(), f.customer.ID, []domain.OrderLine{{ProductID: f.a.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.True(t, created.CreatedAt.Equal(fixed))
	assert.True(t, created.Items[0].CreatedAt.Equal(fixed))
}

func TestGetOrderAndListOrders_Validation(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()

	_, err := svc.GetOrder(ctx, "")
	assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))

	_, err = svc.GetOrder(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))

	_, err = svc.ListOrders(ctx, "", 10)
	assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))

	orders, err := svc.ListOrders(ctx, f.customer.ID, 5)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
