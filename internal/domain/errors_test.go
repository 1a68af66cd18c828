package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsSentinel(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "customer not found",
			err:    NewCustomerNotFound("c-1"),
			target: ErrCustomerNotFound,
			want:   true,
		},
		{
			name:   "wrapped product not found",
			err:    fmt.Errorf("create order: %w", NewProductNotFound("p-1", "p-2")),
			target: ErrProductNotFound,
			want:   true,
		},
		{
			name:   "insufficient stock",
			err:    NewInsufficientStock(StockShortage{ProductID: "p-1", Requested: 2, Available: 1}),
			target: ErrInsufficientStock,
			want:   true,
		},
		{
			name:   "conflict does not match not found",
			err:    NewProductConflict("Widget"),
			target: ErrProductNotFound,
			want:   false,
		},
		{
			name:   "invalid argument exposes reasons",
			err:    NewInvalidArgument(ErrItemQtyInvalid),
			target: ErrItemQtyInvalid,
			want:   true,
		},
		{
			name:   "nil error",
			err:    nil,
			target: ErrOrderNotFound,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "typed error", err: NewOrderNotFound("o-1"), want: KindOrderNotFound},
		{name: "wrapped typed error", err: fmt.Errorf("tx: %w", NewCustomerConflict("a@b.c")), want: KindCustomerConflict},
		{name: "bare sentinel", err: fmt.Errorf("lookup: %w", ErrInsufficientStock), want: KindInsufficientStock},
		{name: "unknown error", err: errors.New("boom"), want: ""},
		{name: "nil error", err: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "customer not found",
			err:  NewCustomerNotFound("c-9"),
			want: `customer "c-9" not found`,
		},
		{
			name: "product not found lists ids",
			err:  NewProductNotFound("p-1", "p-2"),
			want: "products not found: p-1, p-2",
		},
		{
			name: "insufficient stock lists every shortage",
			err: NewInsufficientStock(
				StockShortage{ProductID: "A", Requested: 6, Available: 5},
				StockShortage{ProductID: "B", Requested: 4, Available: 3},
			),
			want: "insufficient stock: A (requested 6, available 5); B (requested 4, available 3)",
		},
		{
			name: "product conflict",
			err:  NewProductConflict("Widget"),
			want: `product with name "Widget" already exists`,
		},
		{
			name: "invalid argument without reasons",
			err:  NewInvalidArgument(),
			want: "invalid argument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorAsExposesContext(t *testing.T) {
	err := fmt.Errorf("create order: %w", NewInsufficientStock(StockShortage{ProductID: "A", Requested: 6, Available: 5}))

	var domainErr *Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected *Error in chain, got %T", err)
	}
	if len(domainErr.Shortages) != 1 || domainErr.Shortages[0].Available != 5 {
		t.Fatalf("unexpected shortages: %+v", domainErr.Shortages)
	}
}
