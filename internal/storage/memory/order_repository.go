package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// orderRepository — in-memory реализация OrderRepository.
type orderRepository struct {
	store *Store
	inTx  bool
}

// Insert сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepository) Insert(_ context.Context, order domain.Order) (domain.Order, error) {
	defer r.store.lock(r.inTx)()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, exists := r.store.orders[order.ID]; exists {
		return domain.Order{}, fmt.Errorf("order %s already exists", order.ID)
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.NewString()
		}
	}
	// Сохраняем копию позиций, чтобы избежать непредсказуемых мутаций извне.
	order.Items = slices.Clone(order.Items)
	r.store.orders[order.ID] = order
	return cloneOrder(order), nil
}

// Get возвращает заказ или ошибку KindOrderNotFound, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	defer r.store.rlock(r.inTx)()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.NewOrderNotFound(id)
	}
	return cloneOrder(order), nil
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepository) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	defer r.store.rlock(r.inTx)()

	result := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	return order
}

var _ domain.OrderRepository = (*orderRepository)(nil)
