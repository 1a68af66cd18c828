package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Store — in-memory хранилище магазина для локальной разработки и тестов.
//
// Все репозитории разделяют один мьютекс. WithinTx держит его на запись
// всё время единицы работы, поэтому транзакции выполняются строго по одной.
type Store struct {
	mu sync.RWMutex

	customers map[string]domain.Customer
	products  map[string]domain.Product
	orders    map[string]domain.Order
	outbox    map[string]outboxRecord
	outboxSeq int64
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		customers: make(map[string]domain.Customer),
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
		outbox:    make(map[string]outboxRecord),
	}
}

// Repositories возвращает репозитории, каждый вызов которых атомарен сам по себе.
func (s *Store) Repositories() domain.Repositories {
	return s.repositories(false)
}

// Customers возвращает репозиторий клиентов вне транзакции.
func (s *Store) Customers() domain.CustomerRepository {
	return &customerRepository{store: s}
}

// Products возвращает репозиторий товаров вне транзакции.
func (s *Store) Products() domain.ProductRepository {
	return &productRepository{store: s}
}

// Orders возвращает репозиторий заказов вне транзакции.
func (s *Store) Orders() domain.OrderRepository {
	return &orderRepository{store: s}
}

// Outbox возвращает репозиторий outbox вне транзакции.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{store: s}
}

func (s *Store) repositories(inTx bool) domain.Repositories {
	return domain.Repositories{
		Customers: &customerRepository{store: s, inTx: inTx},
		Products:  &productRepository{store: s, inTx: inTx},
		Orders:    &orderRepository{store: s, inTx: inTx},
		Outbox:    &outboxRepository{store: s, inTx: inTx},
	}
}

// WithinTx выполняет fn под эксклюзивной блокировкой. При ошибке или панике
// состояние откатывается к снимку, сделанному перед началом.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	if err = fn(ctx, s.repositories(true)); err != nil {
		return err
	}
	// Отменённый контекст не должен приводить к фиксации.
	return ctx.Err()
}

type snapshot struct {
	customers map[string]domain.Customer
	products  map[string]domain.Product
	orders    map[string]domain.Order
	outbox    map[string]outboxRecord
	outboxSeq int64
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		customers: maps.Clone(s.customers),
		products:  maps.Clone(s.products),
		orders:    maps.Clone(s.orders),
		outbox:    maps.Clone(s.outbox),
		outboxSeq: s.outboxSeq,
	}
}

func (s *Store) restore(snap snapshot) {
	s.customers = snap.customers
	s.products = snap.products
	s.orders = snap.orders
	s.outbox = snap.outbox
	s.outboxSeq = snap.outboxSeq
}

// rlock блокирует хранилище на чтение, если вызов идёт вне транзакции.
func (s *Store) rlock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// lock блокирует хранилище на запись, если вызов идёт вне транзакции.
func (s *Store) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

var _ domain.Transactor = (*Store)(nil)
