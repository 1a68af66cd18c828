package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestStatusFromError_Codes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{name: "customer not found", err: domain.NewCustomerNotFound("c1"), code: codes.NotFound},
		{name: "product not found", err: domain.NewProductNotFound("p1"), code: codes.NotFound},
		{name: "order not found", err: domain.NewOrderNotFound("o1"), code: codes.NotFound},
		{name: "insufficient stock", err: domain.NewInsufficientStock(domain.StockShortage{ProductID: "p1", Requested: 2, Available: 1}), code: codes.FailedPrecondition},
		{name: "product conflict", err: domain.NewProductConflict("A"), code: codes.AlreadyExists},
		{name: "customer conflict", err: domain.NewCustomerConflict("a@b.c"), code: codes.AlreadyExists},
		{name: "invalid argument", err: domain.NewInvalidArgument(domain.ErrItemQtyInvalid), code: codes.InvalidArgument},
		{name: "wrapped domain error", err: fmt.Errorf("tx: %w", domain.NewCustomerNotFound("c1")), code: codes.NotFound},
		{name: "bare sentinel", err: domain.ErrOrderNotFound, code: codes.NotFound},
		{name: "storage failure", err: errors.New("connection reset"), code: codes.Internal},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), code: codes.DeadlineExceeded},
		{name: "status passthrough", err: status.Error(codes.Unavailable, "down"), code: codes.Unavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, statusFromError(tc.err).Code())
		})
	}
}

func TestStatusFromError_InternalHidesCause(t *testing.T) {
	st := statusFromError(errors.New("password=secret"))
	assert.Equal(t, "internal error", st.Message())
	_, ok := ErrorInfoFromStatus(st)
	assert.False(t, ok)
}

func TestStatusFromError_InsufficientStockDetails(t *testing.T) {
	err := domain.NewInsufficientStock(
		domain.StockShortage{ProductID: "a", Requested: 3, Available: 1},
		domain.StockShortage{ProductID: "b", Requested: 5, Available: 2},
	)

	info, ok := ErrorInfoFromStatus(statusFromError(err))
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_STOCK", info.GetReason())
	assert.Equal(t, ErrorDomain, info.GetDomain())
	assert.Equal(t, map[string]string{
		"product_ids": "a,b",
		"a.requested": "3",
		"a.available": "1",
		"b.requested": "5",
		"b.available": "2",
	}, info.GetMetadata())
}

func TestStatusFromError_InsufficientStockWithUnknownQuantities(t *testing.T) {
	err := domain.NewInsufficientStock(domain.StockShortage{ProductID: "a"})

	st := statusFromError(err)
	info, ok := ErrorInfoFromStatus(st)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"product_ids": "a"}, info.GetMetadata())
	assert.Equal(t, "insufficient stock: a", st.Message())
}

func TestStatusFromError_NotFoundDetails(t *testing.T) {
	info, ok := ErrorInfoFromStatus(statusFromError(domain.NewProductNotFound("x", "y")))
	require.True(t, ok)
	assert.Equal(t, "PRODUCT_NOT_FOUND", info.GetReason())
	assert.Equal(t, "x,y", info.GetMetadata()["product_ids"])

	info, ok = ErrorInfoFromStatus(statusFromError(domain.NewCustomerNotFound("c-1")))
	require.True(t, ok)
	assert.Equal(t, "c-1", info.GetMetadata()["customer_id"])
}
