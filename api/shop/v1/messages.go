// Package shopv1 описывает публичный gRPC-контракт сервиса магазина.
//
// Сообщения передаются JSON-кодеком (content-subtype "json"), поэтому
// контракт задаётся обычными Go-структурами с json-тегами.
package shopv1

// Customer — клиент магазина.
type Customer struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// Product — товар каталога. Цена передаётся десятичной строкой.
type Product struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// OrderItem — позиция заказа со снимком цены.
type OrderItem struct {
	Id        string `json:"id"`
	ProductId string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
}

// Order — оформленный заказ.
type Order struct {
	Id         string       `json:"id"`
	CustomerId string       `json:"customer_id"`
	Items      []*OrderItem `json:"items"`
	Total      string       `json:"total"`
	CreatedAt  string       `json:"created_at"`
}

type CreateCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CreateCustomerResponse struct {
	Customer *Customer `json:"customer"`
}

type CreateProductRequest struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

type CreateProductResponse struct {
	Product *Product `json:"product"`
}

type GetProductRequest struct {
	Id string `json:"id"`
}

type GetProductResponse struct {
	Product *Product `json:"product"`
}

// OrderLine — строка запроса CreateOrder.
type OrderLine struct {
	ProductId string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type CreateOrderRequest struct {
	CustomerId string       `json:"customer_id"`
	Items      []*OrderLine `json:"items"`
}

type CreateOrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	Id string `json:"id"`
}

type GetOrderResponse struct {
	Order *Order `json:"order"`
}

type ListOrdersRequest struct {
	CustomerId string `json:"customer_id"`
	Limit      int32  `json:"limit"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}
