package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale — число знаков после запятой в ценах и суммах, как в NUMERIC(12, 2).
const PriceScale = 2

// Product — позиция каталога с текущей ценой и остатком на складе.
type Product struct {
	ID   string
	Name string
	// Price — текущая цена каталога, валюта не задаётся.
	Price decimal.Decimal
	// Quantity — остаток на складе, никогда не становится отрицательным.
	Quantity  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет поля товара перед созданием.
func (p *Product) Validate() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrProductPriceInvalid)
	}
	if !p.Price.Equal(p.Price.Round(PriceScale)) {
		errs = append(errs, ErrProductPriceScale)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrProductQtyInvalid)
	}

	return errs
}

// StockUpdate задаёт новый остаток товара в пакетном обновлении.
type StockUpdate struct {
	ProductID string
	Quantity  int64
}
