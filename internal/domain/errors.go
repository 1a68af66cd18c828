package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind задаёт закрытый набор бизнес-ошибок магазина.
type ErrorKind string

const (
	// KindCustomerNotFound — клиент с указанным идентификатором не найден.
	KindCustomerNotFound ErrorKind = "CUSTOMER_NOT_FOUND"
	// KindProductNotFound — один или несколько товаров не найдены.
	KindProductNotFound ErrorKind = "PRODUCT_NOT_FOUND"
	// KindOrderNotFound — заказ не найден.
	KindOrderNotFound ErrorKind = "ORDER_NOT_FOUND"
	// KindInsufficientStock — запрошенное количество превышает остаток.
	KindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	// KindProductConflict — товар с таким названием уже существует.
	KindProductConflict ErrorKind = "PRODUCT_CONFLICT"
	// KindCustomerConflict — клиент с таким email уже существует.
	KindCustomerConflict ErrorKind = "CUSTOMER_CONFLICT"
	// KindInvalidArgument — запрос не прошёл валидацию.
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
)

var (
	// ErrCustomerNotFound — sentinel для errors.Is по KindCustomerNotFound.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrProductNotFound — sentinel для errors.Is по KindProductNotFound.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInsufficientStock — sentinel для errors.Is по KindInsufficientStock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductConflict — sentinel для errors.Is по KindProductConflict.
	ErrProductConflict = errors.New("product already exists")
	// ErrCustomerConflict — sentinel для errors.Is по KindCustomerConflict.
	ErrCustomerConflict = errors.New("customer already exists")
	// ErrInvalidArgument — sentinel для errors.Is по KindInvalidArgument.
	ErrInvalidArgument = errors.New("invalid argument")

	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrItemProductRequired = errors.New("item product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrTotalMismatch = errors.New("order total does not match items sum")
	// Ошибка пустого названия товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены товара.
	ErrProductPriceInvalid = errors.New("product price must be non-negative")
	// Ошибка цены с точностью больше PriceScale знаков.
	ErrProductPriceScale = errors.New("product price must have at most 2 decimal places")
	// Ошибка отрицательного остатка товара.
	ErrProductQtyInvalid = errors.New("product quantity must be non-negative")
	// Ошибка пустого email клиента.
	ErrCustomerEmailRequired = errors.New("customer email is required")
	// Ошибка пустого имени клиента.
	ErrCustomerNameRequired = errors.New("customer name is required")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

var kindSentinels = map[ErrorKind]error{
	KindCustomerNotFound:  ErrCustomerNotFound,
	KindProductNotFound:   ErrProductNotFound,
	KindOrderNotFound:     ErrOrderNotFound,
	KindInsufficientStock: ErrInsufficientStock,
	KindProductConflict:   ErrProductConflict,
	KindCustomerConflict:  ErrCustomerConflict,
	KindInvalidArgument:   ErrInvalidArgument,
}

// StockShortage описывает нехватку остатка по одному товару.
// Requested и Available равны нулю, если хранилище не смогло их прочитать.
type StockShortage struct {
	ProductID string
	Requested int64
	Available int64
}

// Error — бизнес-ошибка с типом и структурированным контекстом.
type Error struct {
	Kind ErrorKind
	// CustomerID заполняется для KindCustomerNotFound.
	CustomerID string
	// ProductIDs — ненайденные товары для KindProductNotFound.
	ProductIDs []string
	// OrderID заполняется для KindOrderNotFound.
	OrderID string
	// Shortages — все позиции с нехваткой для KindInsufficientStock.
	Shortages []StockShortage
	// Field и Value описывают конфликт уникальности или невалидное поле.
	Field string
	Value string
	// Reasons — причины невалидности запроса.
	Reasons []error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindCustomerNotFound:
		return fmt.Sprintf("customer %q not found", e.CustomerID)
	case KindProductNotFound:
		return fmt.Sprintf("products not found: %s", strings.Join(e.ProductIDs, ", "))
	case KindOrderNotFound:
		return fmt.Sprintf("order %q not found", e.OrderID)
	case KindInsufficientStock:
		parts := make([]string, 0, len(e.Shortages))
		for _, s := range e.Shortages {
			if s.Requested == 0 {
				parts = append(parts, s.ProductID)
				continue
			}
			parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
		}
		return "insufficient stock: " + strings.Join(parts, "; ")
	case KindProductConflict:
		return fmt.Sprintf("product with %s %q already exists", e.Field, e.Value)
	case KindCustomerConflict:
		return fmt.Sprintf("customer with %s %q already exists", e.Field, e.Value)
	case KindInvalidArgument:
		if len(e.Reasons) == 0 {
			return "invalid argument"
		}
		return "invalid argument: " + errors.Join(e.Reasons...).Error()
	default:
		return string(e.Kind)
	}
}

// Is позволяет сравнивать *Error с sentinel-ошибками своего типа.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Unwrap отдаёт причины невалидности для errors.Is/As.
func (e *Error) Unwrap() []error {
	return e.Reasons
}

// KindOf возвращает тип бизнес-ошибки или пустую строку для остальных ошибок.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// NewCustomerNotFound создаёт ошибку отсутствующего клиента.
func NewCustomerNotFound(customerID string) *Error {
	return &Error{Kind: KindCustomerNotFound, CustomerID: customerID}
}

// NewProductNotFound создаёт ошибку отсутствующих товаров.
func NewProductNotFound(productIDs ...string) *Error {
	return &Error{Kind: KindProductNotFound, ProductIDs: productIDs}
}

// NewOrderNotFound создаёт ошибку отсутствующего заказа.
func NewOrderNotFound(orderID string) *Error {
	return &Error{Kind: KindOrderNotFound, OrderID: orderID}
}

// NewInsufficientStock создаёт ошибку нехватки остатков.
func NewInsufficientStock(shortages ...StockShortage) *Error {
	return &Error{Kind: KindInsufficientStock, Shortages: shortages}
}

// NewProductConflict создаёт ошибку дубликата товара по названию.
func NewProductConflict(name string) *Error {
	return &Error{Kind: KindProductConflict, Field: "name", Value: name}
}

// NewCustomerConflict создаёт ошибку дубликата клиента по email.
func NewCustomerConflict(email string) *Error {
	return &Error{Kind: KindCustomerConflict, Field: "email", Value: email}
}

// NewInvalidArgument собирает ошибки валидации в одну бизнес-ошибку.
func NewInvalidArgument(reasons ...error) *Error {
	return &Error{Kind: KindInvalidArgument, Reasons: reasons}
}
