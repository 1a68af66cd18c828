package grpcsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	shopv1 "github.com/vladislavdragonenkov/shop/api/shop/v1"
	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// CustomerService — сценарии регистрации клиентов.
type CustomerService interface {
	CreateCustomer(ctx context.Context, name, email string) (domain.Customer, error)
}

// CatalogService — сценарии каталога.
type CatalogService interface {
	CreateProduct(ctx context.Context, name string, price decimal.Decimal, quantity int64) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

// OrderService — сценарии оформления и чтения заказов.
type OrderService interface {
	CreateOrder(ctx context.Context, customerID string, lines []domain.OrderLine) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
}

// ShopService реализует gRPC API магазина поверх доменных сценариев.
type ShopService struct {
	shopv1.UnimplementedShopServiceServer

	customers CustomerService
	catalog   CatalogService
	orders    OrderService
	logger    *log.Entry
}

// NewShopService конструирует сервис с зависимостями.
func NewShopService(customers CustomerService, catalog CatalogService, orders OrderService, logger *log.Entry) *ShopService {
	if logger == nil {
		logger = log.New().WithField("component", "shop-grpc")
	}
	return &ShopService{
		customers: customers,
		catalog:   catalog,
		orders:    orders,
		logger:    logger,
	}
}

// CreateCustomer регистрирует клиента.
func (s *ShopService) CreateCustomer(ctx context.Context, req *shopv1.CreateCustomerRequest) (*shopv1.CreateCustomerResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	customer, err := s.customers.CreateCustomer(ctx, req.Name, req.Email)
	if err != nil {
		return nil, s.toStatus(err, "CreateCustomer")
	}
	return &shopv1.CreateCustomerResponse{Customer: toProtoCustomer(customer)}, nil
}

// CreateProduct добавляет товар в каталог.
func (s *ShopService) CreateProduct(ctx context.Context, req *shopv1.CreateProductRequest) (*shopv1.CreateProductResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return nil, s.toStatus(domain.NewInvalidArgument(fmt.Errorf("price %q: %w", req.Price, domain.ErrProductPriceInvalid)), "CreateProduct")
	}

	product, err := s.catalog.CreateProduct(ctx, req.Name, price, req.Quantity)
	if err != nil {
		return nil, s.toStatus(err, "CreateProduct")
	}
	return &shopv1.CreateProductResponse{Product: toProtoProduct(product)}, nil
}

// GetProduct возвращает карточку товара.
func (s *ShopService) GetProduct(ctx context.Context, req *shopv1.GetProductRequest) (*shopv1.GetProductResponse, error) {
	if req == nil || req.Id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	product, err := s.catalog.GetProduct(ctx, req.Id)
	if err != nil {
		return nil, s.toStatus(err, "GetProduct")
	}
	return &shopv1.GetProductResponse{Product: toProtoProduct(product)}, nil
}

// CreateOrder оформляет заказ.
func (s *ShopService) CreateOrder(ctx context.Context, req *shopv1.CreateOrderRequest) (*shopv1.CreateOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	lines := make([]domain.OrderLine, 0, len(req.Items))
	for idx, item := range req.Items {
		if item == nil {
			return nil, status.Errorf(codes.InvalidArgument, "items[%d] is nil", idx)
		}
		lines = append(lines, domain.OrderLine{ProductID: item.ProductId, Quantity: item.Quantity})
	}

	order, err := s.orders.CreateOrder(ctx, req.CustomerId, lines)
	if err != nil {
		return nil, s.toStatus(err, "CreateOrder")
	}
	return &shopv1.CreateOrderResponse{Order: toProtoOrder(order)}, nil
}

// GetOrder возвращает заказ по идентификатору.
func (s *ShopService) GetOrder(ctx context.Context, req *shopv1.GetOrderRequest) (*shopv1.GetOrderResponse, error) {
	if req == nil || req.Id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	order, err := s.orders.GetOrder(ctx, req.Id)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}
	return &shopv1.GetOrderResponse{Order: toProtoOrder(order)}, nil
}

// ListOrders возвращает заказы клиента.
func (s *ShopService) ListOrders(ctx context.Context, req *shopv1.ListOrdersRequest) (*shopv1.ListOrdersResponse, error) {
	if req == nil || req.CustomerId == "" {
		return nil, status.Error(codes.InvalidArgument, "customer_id is required")
	}

	orders, err := s.orders.ListOrders(ctx, req.CustomerId, int(req.Limit))
	if err != nil {
		return nil, s.toStatus(err, "ListOrders")
	}

	resp := &shopv1.ListOrdersResponse{Orders: make([]*shopv1.Order, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toProtoOrder(order))
	}
	return resp, nil
}

func (s *ShopService) toStatus(err error, operation string) error {
	st := statusFromError(err)
	if st.Code() == codes.Internal {
		s.logger.WithError(err).WithField("operation", operation).Error("request failed")
	}
	return st.Err()
}

func toProtoCustomer(customer domain.Customer) *shopv1.Customer {
	return &shopv1.Customer{
		Id:        customer.ID,
		Name:      customer.Name,
		Email:     customer.Email,
		CreatedAt: formatTime(customer.CreatedAt),
	}
}

func toProtoProduct(product domain.Product) *shopv1.Product {
	return &shopv1.Product{
		Id:        product.ID,
		Name:      product.Name,
		Price:     product.Price.StringFixed(2),
		Quantity:  product.Quantity,
		CreatedAt: formatTime(product.CreatedAt),
		UpdatedAt: formatTime(product.UpdatedAt),
	}
}

func toProtoOrder(order domain.Order) *shopv1.Order {
	items := make([]*shopv1.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, &shopv1.OrderItem{
			Id:        item.ID,
			ProductId: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
		})
	}

	return &shopv1.Order{
		Id:         order.ID,
		CustomerId: order.CustomerID,
		Items:      items,
		Total:      order.Total.StringFixed(2),
		CreatedAt:  formatTime(order.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
