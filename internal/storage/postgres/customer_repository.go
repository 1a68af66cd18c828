package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type customerRepository struct {
	q querier
}

// NewCustomerRepository создаёт PostgreSQL-реализацию CustomerRepository.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepository{q: store.DB()}
}

func (r *customerRepository) FindByID(ctx context.Context, id string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	customer, err := scanCustomer(r.q.QueryRow(ctx, `
		SELECT id, name, email, created_at
		FROM customers
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Customer{}, domain.NewCustomerNotFound(id)
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return customer, nil
}

func (r *customerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	customer, err := scanCustomer(r.q.QueryRow(ctx, `
		SELECT id, name, email, created_at
		FROM customers
		WHERE LOWER(email) = LOWER($1)
	`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Customer{}, &domain.Error{Kind: domain.KindCustomerNotFound, Field: "email", Value: email}
		}
		return domain.Customer{}, fmt.Errorf("select customer by email: %w", err)
	}
	return customer, nil
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	if _, err := r.q.Exec(ctx, `
		INSERT INTO customers (id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
	`, customer.ID, customer.Name, customer.Email, customer.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.Customer{}, domain.NewCustomerConflict(customer.Email)
		}
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}

	return customer, nil
}

func scanCustomer(row pgx.Row) (domain.Customer, error) {
	var customer domain.Customer
	if err := row.Scan(&customer.ID, &customer.Name, &customer.Email, &customer.CreatedAt); err != nil {
		return domain.Customer{}, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return customer, nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
