// Package cache содержит read-through кэш каталога поверх Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	defaultTTL       = 5 * time.Minute
	defaultKeyPrefix = "shop:product:"
	opTimeout        = 500 * time.Millisecond
)

// cachedProduct — формат товара в Redis. Цена хранится строкой без потери точности.
type cachedProduct struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductCache хранит карточки товаров в Redis с TTL.
type ProductCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *log.Entry
}

// Option настраивает ProductCache.
type Option func(*ProductCache)

// WithTTL задаёт время жизни записи.
func WithTTL(ttl time.Duration) Option {
	return func(c *ProductCache) {
		c.ttl = ttl
	}
}

// WithKeyPrefix задаёт префикс ключей.
func WithKeyPrefix(prefix string) Option {
	return func(c *ProductCache) {
		c.prefix = prefix
	}
}

// WithLogger задаёт logger кэша.
func WithLogger(logger *log.Entry) Option {
	return func(c *ProductCache) {
		c.logger = logger
	}
}

// NewProductCache создаёт кэш поверх готового клиента.
func NewProductCache(client redis.UniversalClient, options ...Option) *ProductCache {
	c := &ProductCache{
		client: client,
		ttl:    defaultTTL,
		prefix: defaultKeyPrefix,
	}
	for _, option := range options {
		option(c)
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "product-cache")
	}
	return c
}

// NewRedisClient создаёт клиента Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (c *ProductCache) key(id string) string {
	return c.prefix + id
}

// Get читает товар из кэша. Промах возвращает false без ошибки.
func (c *ProductCache) Get(ctx context.Context, id string) (domain.Product, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, fmt.Errorf("redis get product %s: %w", id, err)
	}

	product, err := decodeProduct(data)
	if err != nil {
		// Повреждённую запись удаляем, следующее чтение пойдёт в хранилище.
		c.logger.WithError(err).WithField("product_id", id).Warn("dropping malformed cache entry")
		_ = c.client.Del(ctx, c.key(id)).Err()
		return domain.Product{}, false, nil
	}
	return product, true, nil
}

// Set сохраняет товар с TTL.
func (c *ProductCache) Set(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := encodeProduct(product)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(product.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set product %s: %w", product.ID, err)
	}
	return nil
}

// Invalidate удаляет записи указанных товаров.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.key(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis invalidate products: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (c *ProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func encodeProduct(product domain.Product) ([]byte, error) {
	data, err := json.Marshal(cachedProduct{
		ID:        product.ID,
		Name:      product.Name,
		Price:     product.Price.String(),
		Quantity:  product.Quantity,
		CreatedAt: product.CreatedAt,
		UpdatedAt: product.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode cached product: %w", err)
	}
	return data, nil
}

func decodeProduct(data []byte) (domain.Product, error) {
	var cached cachedProduct
	if err := json.Unmarshal(data, &cached); err != nil {
		return domain.Product{}, fmt.Errorf("decode cached product: %w", err)
	}
	price, err := decimal.NewFromString(cached.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("decode cached product price: %w", err)
	}
	return domain.Product{
		ID:        cached.ID,
		Name:      cached.Name,
		Price:     price,
		Quantity:  cached.Quantity,
		CreatedAt: cached.CreatedAt,
		UpdatedAt: cached.UpdatedAt,
	}, nil
}

var _ domain.ProductCache = (*ProductCache)(nil)
