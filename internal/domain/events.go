package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	AggregateCustomer = "customer"
	AggregateProduct  = "product"
	AggregateOrder    = "order"

	EventCustomerCreated = "customer.created"
	EventProductCreated  = "product.created"
	EventOrderCreated    = "order.created"
)

// OrderCreatedPayload — тело события order.created.
type OrderCreatedPayload struct {
	OrderID    string             `json:"order_id"`
	CustomerID string             `json:"customer_id"`
	Total      string             `json:"total"`
	Items      []OrderItemPayload `json:"items"`
	CreatedAt  time.Time          `json:"created_at"`
}

// OrderItemPayload — позиция в событии order.created.
type OrderItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
}

// ProductCreatedPayload — тело события product.created.
type ProductCreatedPayload struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerCreatedPayload — тело события customer.created.
type CustomerCreatedPayload struct {
	CustomerID string    `json:"customer_id"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewOrderCreatedMessage собирает outbox-сообщение для созданного заказа.
func NewOrderCreatedMessage(order Order) (OutboxMessage, error) {
	items := make([]OrderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
		})
	}

	return newOutboxMessage(AggregateOrder, order.ID, EventOrderCreated, OrderCreatedPayload{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Total:      order.Total.StringFixed(2),
		Items:      items,
		CreatedAt:  order.CreatedAt,
	})
}

// NewProductCreatedMessage собирает outbox-сообщение для созданного товара.
func NewProductCreatedMessage(product Product) (OutboxMessage, error) {
	return newOutboxMessage(AggregateProduct, product.ID, EventProductCreated, ProductCreatedPayload{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price.StringFixed(2),
		Quantity:  product.Quantity,
		CreatedAt: product.CreatedAt,
	})
}

// NewCustomerCreatedMessage собирает outbox-сообщение для нового клиента.
func NewCustomerCreatedMessage(customer Customer) (OutboxMessage, error) {
	return newOutboxMessage(AggregateCustomer, customer.ID, EventCustomerCreated, CustomerCreatedPayload{
		CustomerID: customer.ID,
		Email:      customer.Email,
		CreatedAt:  customer.CreatedAt,
	})
}

func newOutboxMessage(aggregateType, aggregateID, eventType string, payload any) (OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}, nil
}
