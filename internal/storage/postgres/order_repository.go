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

type orderRepository struct {
	q querier
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{q: store.DB()}
}

// Insert сохраняет заказ и позиции одним выражением, поэтому операция атомарна
// и вне транзакции.
func (r *orderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	var (
		itemIDs    = make([]string, len(order.Items))
		productIDs = make([]string, len(order.Items))
		quantities = make([]int64, len(order.Items))
		prices     = make([]string, len(order.Items))
	)
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.NewString()
		}
		if order.Items[i].CreatedAt.IsZero() {
			order.Items[i].CreatedAt = order.CreatedAt
		}
		itemIDs[i] = order.Items[i].ID
		productIDs[i] = order.Items[i].ProductID
		quantities[i] = order.Items[i].Quantity
		prices[i] = order.Items[i].Price.String()
	}

	if _, err := r.q.Exec(ctx, `
		WITH new_order AS (
			INSERT INTO orders (id, customer_id, total, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		)
		INSERT INTO order_items (id, order_id, line_no, product_id, quantity, price, created_at)
		SELECT item.id, new_order.id, item.line_no, item.product_id, item.quantity, item.price::numeric, $4
		FROM new_order,
		     unnest($5::text[], $6::text[], $7::bigint[], $8::text[])
		         WITH ORDINALITY AS item(id, product_id, quantity, price, line_no)
	`,
		order.ID, order.CustomerID, order.Total.String(), order.CreatedAt,
		itemIDs, productIDs, quantities, prices,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, fmt.Errorf("order %s already exists: %w", order.ID, err)
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	return order, nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.q.QueryRow(ctx, `
		SELECT id, customer_id, total::text, created_at
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.NewOrderNotFound(id)
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]

	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, customer_id, total::text, created_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.Query(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.q.Query(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := r.q.Query(ctx, `
		SELECT order_id, id, product_id, quantity, price::text, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
			price   string
		)
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.Quantity, &price, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse order item price %q: %w", price, err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		result[orderID] = append(result[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return result, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order domain.Order
		total string
	)
	if err := row.Scan(&order.ID, &order.CustomerID, &total, &order.CreatedAt); err != nil {
		return domain.Order{}, err
	}

	parsed, err := decimal.NewFromString(total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse order total %q: %w", total, err)
	}
	order.Total = parsed
	order.CreatedAt = order.CreatedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
