package shopv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "shop.v1.ShopService"

const (
	ShopService_CreateCustomer_FullMethodName = "/" + ServiceName + "/CreateCustomer"
	ShopService_CreateProduct_FullMethodName  = "/" + ServiceName + "/CreateProduct"
	ShopService_GetProduct_FullMethodName     = "/" + ServiceName + "/GetProduct"
	ShopService_CreateOrder_FullMethodName    = "/" + ServiceName + "/CreateOrder"
	ShopService_GetOrder_FullMethodName       = "/" + ServiceName + "/GetOrder"
	ShopService_ListOrders_FullMethodName     = "/" + ServiceName + "/ListOrders"
)

// ShopServiceServer — серверная часть контракта.
type ShopServiceServer interface {
	CreateCustomer(context.Context, *CreateCustomerRequest) (*CreateCustomerResponse, error)
	CreateProduct(context.Context, *CreateProductRequest) (*CreateProductResponse, error)
	GetProduct(context.Context, *GetProductRequest) (*GetProductResponse, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	mustEmbedUnimplementedShopServiceServer()
}

// UnimplementedShopServiceServer нужно встраивать в реализации для совместимости вперёд.
type UnimplementedShopServiceServer struct{}

func (UnimplementedShopServiceServer) CreateCustomer(context.Context, *CreateCustomerRequest) (*CreateCustomerResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateCustomer not implemented")
}

func (UnimplementedShopServiceServer) CreateProduct(context.Context, *CreateProductRequest) (*CreateProductResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateProduct not implemented")
}

func (UnimplementedShopServiceServer) GetProduct(context.Context, *GetProductRequest) (*GetProductResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetProduct not implemented")
}

func (UnimplementedShopServiceServer) CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateOrder not implemented")
}

func (UnimplementedShopServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}

func (UnimplementedShopServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOrders not implemented")
}

func (UnimplementedShopServiceServer) mustEmbedUnimplementedShopServiceServer() {}

// RegisterShopServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterShopServiceServer(s grpc.ServiceRegistrar, srv ShopServiceServer) {
	s.RegisterService(&ShopService_ServiceDesc, srv)
}

// unaryHandler связывает метод сервера с дескриптором и цепочкой interceptor'ов.
func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(ShopServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ShopServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ShopServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ShopService_ServiceDesc — дескриптор сервиса для grpc.Server.
var ShopService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ShopServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateCustomer",
			Handler:    unaryHandler(ShopService_CreateCustomer_FullMethodName, ShopServiceServer.CreateCustomer),
		},
		{
			MethodName: "CreateProduct",
			Handler:    unaryHandler(ShopService_CreateProduct_FullMethodName, ShopServiceServer.CreateProduct),
		},
		{
			MethodName: "GetProduct",
			Handler:    unaryHandler(ShopService_GetProduct_FullMethodName, ShopServiceServer.GetProduct),
		},
		{
			MethodName: "CreateOrder",
			Handler:    unaryHandler(ShopService_CreateOrder_FullMethodName, ShopServiceServer.CreateOrder),
		},
		{
			MethodName: "GetOrder",
			Handler:    unaryHandler(ShopService_GetOrder_FullMethodName, ShopServiceServer.GetOrder),
		},
		{
			MethodName: "ListOrders",
			Handler:    unaryHandler(ShopService_ListOrders_FullMethodName, ShopServiceServer.ListOrders),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shop/v1/shop.proto",
}
