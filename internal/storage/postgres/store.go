package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxConns        = 25
	defaultMinConns        = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
	defaultTxMaxAttempts   = 3

	opTimeout = 5 * time.Second
)

// DB — подмножество pgxpool.Pool, которым пользуется хранилище.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// querier выполняет запросы; реализуется и пулом, и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store оборачивает пул подключений к PostgreSQL.
type Store struct {
	db            DB
	logger        *log.Entry
	txMaxAttempts int
	txRetryDelay  time.Duration
}

// StoreOption настраивает Store.
type StoreOption func(*Store)

// WithLogger задаёт logger хранилища.
func WithLogger(logger *log.Entry) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithTxMaxAttempts задаёт число попыток транзакции при serialization failure/deadlock.
func WithTxMaxAttempts(attempts int) StoreOption {
	return func(s *Store) {
		s.txMaxAttempts = attempts
	}
}

// WithTxRetryDelay задаёт базовую задержку между повторами транзакции.
func WithTxRetryDelay(delay time.Duration) StoreOption {
	return func(s *Store) {
		s.txRetryDelay = delay
	}
}

// Open открывает пул подключений к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = defaultMaxConns
	cfg.MinConns = defaultMinConns
	cfg.MaxConnLifetime = defaultConnMaxLifetime
	cfg.MaxConnIdleTime = defaultConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewStore(pool, opts...), nil
}

// NewStore создаёт хранилище поверх готового пула (или pgxmock в тестах).
func NewStore(db DB, opts ...StoreOption) *Store {
	s := &Store{
		db:            db,
		txMaxAttempts: defaultTxMaxAttempts,
		txRetryDelay:  20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "postgres-store")
	}
	if s.txMaxAttempts <= 0 {
		s.txMaxAttempts = 1
	}
	return s
}

// DB возвращает пул, когда нужен низкоуровневый доступ.
func (s *Store) DB() DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.Ping(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает пул подключений.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.db.Close()
	return nil
}

// Repositories возвращает репозитории, работающие вне транзакции.
func (s *Store) Repositories() domain.Repositories {
	return repositoriesFor(s.db, false)
}

// Customers возвращает репозиторий клиентов вне транзакции.
func (s *Store) Customers() domain.CustomerRepository {
	return &customerRepository{q: s.db}
}

// Products возвращает репозиторий товаров вне транзакции.
func (s *Store) Products() domain.ProductRepository {
	return &productRepository{q: s.db}
}

// Orders возвращает репозиторий заказов вне транзакции.
func (s *Store) Orders() domain.OrderRepository {
	return &orderRepository{q: s.db}
}

// Outbox возвращает репозиторий outbox вне транзакции.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: s.db}
}

func repositoriesFor(q querier, inTx bool) domain.Repositories {
	return domain.Repositories{
		Customers: &customerRepository{q: q},
		Products:  &productRepository{q: q, lockRows: inTx},
		Orders:    &orderRepository{q: q},
		Outbox:    &outboxRepository{q: q},
	}
}
