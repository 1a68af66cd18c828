package grpcsvc

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// ErrorDomain — значение ErrorInfo.Domain для бизнес-ошибок магазина.
const ErrorDomain = "shop.v1"

// statusFromError переводит доменную ошибку в gRPC-статус с ErrorInfo.
// Ошибки вне закрытого набора отдаются как Internal без подробностей.
func statusFromError(err error) *status.Status {
	if st, ok := status.FromError(err); ok {
		return st
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err)
	}

	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		if kind := domain.KindOf(err); kind != "" {
			domainErr = &domain.Error{Kind: kind}
		} else {
			return status.New(codes.Internal, "internal error")
		}
	}

	st := status.New(codeForKind(domainErr.Kind), domainErr.Error())
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(domainErr.Kind),
		Domain:   ErrorDomain,
		Metadata: errorMetadata(domainErr),
	})
	if detailErr != nil {
		return st
	}
	return detailed
}

func codeForKind(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindCustomerNotFound, domain.KindProductNotFound, domain.KindOrderNotFound:
		return codes.NotFound
	case domain.KindInsufficientStock:
		return codes.FailedPrecondition
	case domain.KindProductConflict, domain.KindCustomerConflict:
		return codes.AlreadyExists
	case domain.KindInvalidArgument:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// errorMetadata раскладывает контекст ошибки в плоские ключи ErrorInfo.
// Нехватка остатков описывается ключами "<product_id>.requested" и "<product_id>.available".
func errorMetadata(err *domain.Error) map[string]string {
	md := make(map[string]string)
	if err.CustomerID != "" {
		md["customer_id"] = err.CustomerID
	}
	if err.OrderID != "" {
		md["order_id"] = err.OrderID
	}
	if len(err.ProductIDs) > 0 {
		md["product_ids"] = strings.Join(err.ProductIDs, ",")
	}
	if err.Field != "" {
		md["field"] = err.Field
		md["value"] = err.Value
	}
	if len(err.Shortages) > 0 {
		ids := make([]string, 0, len(err.Shortages))
		for _, shortage := range err.Shortages {
			ids = append(ids, shortage.ProductID)
			// Нулевой Requested означает, что количества неизвестны.
			if shortage.Requested == 0 {
				continue
			}
			md[shortage.ProductID+".requested"] = strconv.FormatInt(shortage.Requested, 10)
			md[shortage.ProductID+".available"] = strconv.FormatInt(shortage.Available, 10)
		}
		md["product_ids"] = strings.Join(ids, ",")
	}
	for i, reason := range err.Reasons {
		md["reason."+strconv.Itoa(i)] = reason.Error()
	}
	return md
}

// ErrorInfoFromStatus достаёт ErrorInfo из статуса, если он есть.
func ErrorInfoFromStatus(st *status.Status) (*errdetails.ErrorInfo, bool) {
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			return info, true
		}
	}
	return nil, false
}
