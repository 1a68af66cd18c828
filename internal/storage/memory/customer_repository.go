package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type customerRepository struct {
	store *Store
	inTx  bool
}

func (r *customerRepository) FindByID(_ context.Context, id string) (domain.Customer, error) {
	defer r.store.rlock(r.inTx)()

	customer, ok := r.store.customers[id]
	if !ok {
		return domain.Customer{}, domain.NewCustomerNotFound(id)
	}
	return customer, nil
}

func (r *customerRepository) FindByEmail(_ context.Context, email string) (domain.Customer, error) {
	defer r.store.rlock(r.inTx)()

	for _, customer := range r.store.customers {
		if strings.EqualFold(customer.Email, email) {
			return customer, nil
		}
	}
	return domain.Customer{}, &domain.Error{Kind: domain.KindCustomerNotFound, Field: "email", Value: email}
}

// Create сохраняет клиента; email сравнивается без учёта регистра.
func (r *customerRepository) Create(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	defer r.store.lock(r.inTx)()

	for _, existing := range r.store.customers {
		if strings.EqualFold(existing.Email, customer.Email) {
			return domain.Customer{}, domain.NewCustomerConflict(customer.Email)
		}
	}

	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	r.store.customers[customer.ID] = customer
	return customer, nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
