package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine — одна строка запроса на оформление заказа.
type OrderLine struct {
	ProductID string
	Quantity  int64
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// ProductID — ссылка на товар без владения: изменения товара позицию не затрагивают.
	ProductID string
	// Quantity — количество единиц товара, как в запросе.
	Quantity int64
	// Price — снимок цены товара на момент покупки.
	Price decimal.Decimal
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Subtotal возвращает стоимость позиции: количество × цена.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// Order агрегирует заказ клиента и его позиции. Позиции принадлежат заказу.
type Order struct {
	ID         string
	CustomerID string
	Items      []OrderItem
	Total      decimal.Decimal
	CreatedAt  time.Time
}

// CalculateTotal суммирует стоимость всех позиций.
func (o *Order) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if !o.CalculateTotal().Equal(o.Total) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
