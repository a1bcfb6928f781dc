package nftflowgrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const serviceName = "nftflow.v1.GatewayService"

// GatewayServiceServer is the server-side interface for the gateway
// gRPC service.
type GatewayServiceServer interface {
	SubmitAndSign(context.Context, *SubmitRequest) (*SubmitResponse, error)
	WaitForFinality(context.Context, *WaitRequest) (*WireTx, error)
	ReadBalance(context.Context, *AddressRequest) (*BalanceResponse, error)
	ReadHistory(context.Context, *AddressRequest) (*HistoryResponse, error)
	Account(context.Context, *AccountRequest) (*AccountResponse, error)
}

// RegisterGatewayServiceServer registers the service on a gRPC server.
func RegisterGatewayServiceServer(s *grpc.Server, srv GatewayServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// --- Handler functions ---

func handlerSubmitAndSign(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(SubmitRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(GatewayServiceServer).SubmitAndSign(ctx, req)
}

func handlerWaitForFinality(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(WaitRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(GatewayServiceServer).WaitForFinality(ctx, req)
}

func handlerReadBalance(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(AddressRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(GatewayServiceServer).ReadBalance(ctx, req)
}

func handlerReadHistory(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(AddressRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(GatewayServiceServer).ReadHistory(ctx, req)
}

func handlerAccount(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(AccountRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(GatewayServiceServer).Account(ctx, req)
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

// serviceDesc is the manual gRPC service descriptor for the gateway.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*GatewayServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitAndSign", Handler: handlerSubmitAndSign},
		{MethodName: "WaitForFinality", Handler: handlerWaitForFinality},
		{MethodName: "ReadBalance", Handler: handlerReadBalance},
		{MethodName: "ReadHistory", Handler: handlerReadHistory},
		{MethodName: "Account", Handler: handlerAccount},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nftflow/v1/gateway.cram",
}
