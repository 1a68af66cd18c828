package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const productColumns = `id, name, price::text, quantity, created_at, updated_at`

type productRepository struct {
	q querier
	// lockRows включает SELECT ... FOR UPDATE в FindByIDs внутри транзакции.
	lockRows bool
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{q: store.DB()}
}

// FindByIDs возвращает найденные товары в порядке id. Блокировка строк идёт
// в том же порядке, поэтому встречные заказы не образуют deadlock.
func (r *productRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1)
		ORDER BY id`
	if r.lockRows {
		query += ` FOR UPDATE`
	}

	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0, len(ids))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return result, nil
}

func (r *productRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+`
		FROM products
		WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.NewProductNotFound(id)
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *productRepository) FindByName(ctx context.Context, name string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+`
		FROM products
		WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, &domain.Error{Kind: domain.KindProductNotFound, Field: "name", Value: name}
		}
		return domain.Product{}, fmt.Errorf("select product by name: %w", err)
	}
	return product, nil
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt

	if _, err := r.q.Exec(ctx, `
		INSERT INTO products (id, name, price, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, product.ID, product.Name, product.Price.String(), product.Quantity, product.CreatedAt, product.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, domain.NewProductConflict(product.Name)
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return product, nil
}

// UpdateQuantities выставляет абсолютные остатки. Атомарность пакета
// обеспечивает внешняя транзакция; CHECK (quantity >= 0) страхует от ухода в минус.
func (r *productRepository) UpdateQuantities(ctx context.Context, updates []domain.StockUpdate) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var shortages []domain.StockShortage
	for _, update := range updates {
		if update.Quantity >= 0 {
			continue
		}
		var available int64
		err := r.q.QueryRow(ctx, `SELECT quantity FROM products WHERE id = $1`, update.ProductID).Scan(&available)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, domain.NewProductNotFound(update.ProductID)
		case err != nil:
			return nil, fmt.Errorf("read product quantity: %w", err)
		}
		shortages = append(shortages, domain.StockShortage{
			ProductID: update.ProductID,
			Requested: available - update.Quantity,
			Available: available,
		})
	}
	if len(shortages) > 0 {
		return nil, domain.NewInsufficientStock(shortages...)
	}

	now := time.Now().UTC()
	result := make([]domain.Product, 0, len(updates))
	for _, update := range updates {
		product, err := scanProduct(r.q.QueryRow(ctx, `
			UPDATE products
			SET quantity = $2,
			    updated_at = $3
			WHERE id = $1
			RETURNING `+productColumns,
			update.ProductID, update.Quantity, now,
		))
		if err != nil {
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				return nil, domain.NewProductNotFound(update.ProductID)
			case isCheckViolation(err):
				// Транзакция уже прервана, остаток не перечитать: Requested остаётся нулём.
				return nil, domain.NewInsufficientStock(domain.StockShortage{ProductID: update.ProductID})
			default:
				return nil, fmt.Errorf("update product quantity: %w", err)
			}
		}
		result = append(result, product)
	}

	return result, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		product domain.Product
		price   string
	)
	if err := row.Scan(
		&product.ID,
		&product.Name,
		&price,
		&product.Quantity,
		&product.CreatedAt,
		&product.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}

	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse product price %q: %w", price, err)
	}
	product.Price = parsed
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return product, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
