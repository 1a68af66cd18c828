package domain

import (
	"context"
	"time"
)

// CustomerRepository описывает доступ к клиентам.
type CustomerRepository interface {
	// FindByID возвращает клиента или *Error с KindCustomerNotFound.
	FindByID(ctx context.Context, id string) (Customer, error)
	// FindByEmail возвращает клиента или *Error с KindCustomerNotFound.
	FindByEmail(ctx context.Context, email string) (Customer, error)
	// Create сохраняет нового клиента.
	Create(ctx context.Context, customer Customer) (Customer, error)
}

// ProductRepository описывает доступ к каталогу и остаткам.
type ProductRepository interface {
	// FindByIDs возвращает найденные товары; результат может быть короче ids,
	// порядок не гарантируется. Внутри транзакции строки блокируются до commit.
	FindByIDs(ctx context.Context, ids []string) ([]Product, error)
	// FindByID возвращает товар или *Error с KindProductNotFound.
	FindByID(ctx context.Context, id string) (Product, error)
	// FindByName ищет товар по точному названию; отсутствие — *Error с KindProductNotFound.
	FindByName(ctx context.Context, name string) (Product, error)
	// Create сохраняет новый товар; дубликат названия — *Error с KindProductConflict.
	Create(ctx context.Context, product Product) (Product, error)
	// UpdateQuantities пакетно выставляет новые остатки и возвращает обновлённые
	// товары в порядке updates. Отрицательный остаток отклоняется с KindInsufficientStock.
	UpdateQuantities(ctx context.Context, updates []StockUpdate) ([]Product, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Insert сохраняет заказ целиком вместе с позициями.
	Insert(ctx context.Context, order Order) (Order, error)
	// Get возвращает заказ по идентификатору или *Error с KindOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента, новые первыми; limit<=0 — без ограничения.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// Repositories — набор репозиториев, разделяющих одну единицу работы.
type Repositories struct {
	Customers CustomerRepository
	Products  ProductRepository
	Orders    OrderRepository
	Outbox    OutboxRepository
}

// Transactor выполняет fn атомарно: либо все изменения фиксируются, либо ни одно.
// Параллельные единицы работы над одними и теми же товарами сериализуются.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// ProductCache — кэш карточек товаров для чтения. Не участвует в решениях об остатках.
type ProductCache interface {
	// Get возвращает товар и true при попадании в кэш.
	Get(ctx context.Context, id string) (Product, bool, error)
	Set(ctx context.Context, product Product) error
	Invalidate(ctx context.Context, ids ...string) error
}
