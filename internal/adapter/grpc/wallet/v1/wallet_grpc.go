// Package walletv1 holds the client and server bindings of
// api/wallet/v1/wallet.proto. Every message is a protobuf well-known type.
package walletv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	WalletService_SaveTransaction_FullMethodName = "/wallet.v1.WalletService/SaveTransaction"
	WalletService_FetchPage_FullMethodName       = "/wallet.v1.WalletService/FetchPage"
	WalletService_FetchBalance_FullMethodName    = "/wallet.v1.WalletService/FetchBalance"
	WalletService_CurrentRate_FullMethodName     = "/wallet.v1.WalletService/CurrentRate"
	WalletService_WatchRate_FullMethodName       = "/wallet.v1.WalletService/WatchRate"
	WalletService_GetValuation_FullMethodName    = "/wallet.v1.WalletService/GetValuation"
	WalletService_QueryEvents_FullMethodName     = "/wallet.v1.WalletService/QueryEvents"
)

// WalletServiceClient is the client API for WalletService.
type WalletServiceClient interface {
	SaveTransaction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	FetchPage(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.Struct, error)
	FetchBalance(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	CurrentRate(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	WatchRate(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
	GetValuation(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	QueryEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type walletServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewWalletServiceClient creates a client bound to cc
func NewWalletServiceClient(cc grpc.ClientConnInterface) WalletServiceClient {
	return &walletServiceClient{cc}
}

func (c *walletServiceClient) SaveTransaction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, WalletService_SaveTransaction_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *walletServiceClient) FetchPage(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, WalletService_FetchPage_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *walletServiceClient) FetchBalance(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, WalletService_FetchBalance_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *walletServiceClient) CurrentRate(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, WalletService_CurrentRate_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *walletServiceClient) WatchRate(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &WalletService_ServiceDesc.Streams[0], WalletService_WatchRate_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *walletServiceClient) GetValuation(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, WalletService_GetValuation_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *walletServiceClient) QueryEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, WalletService_QueryEvents_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WalletServiceServer is the server API for WalletService.
// Implementations must embed UnimplementedWalletServiceServer.
type WalletServiceServer interface {
	SaveTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FetchPage(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error)
	FetchBalance(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	CurrentRate(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchRate(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
	GetValuation(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	QueryEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	mustEmbedUnimplementedWalletServiceServer()
}

// UnimplementedWalletServiceServer must be embedded by value
type UnimplementedWalletServiceServer struct{}

func (UnimplementedWalletServiceServer) SaveTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SaveTransaction not implemented")
}
func (UnimplementedWalletServiceServer) FetchPage(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method FetchPage not implemented")
}
func (UnimplementedWalletServiceServer) FetchBalance(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method FetchBalance not implemented")
}
func (UnimplementedWalletServiceServer) CurrentRate(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CurrentRate not implemented")
}
func (UnimplementedWalletServiceServer) WatchRate(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Errorf(codes.Unimplemented, "method WatchRate not implemented")
}
func (UnimplementedWalletServiceServer) GetValuation(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetValuation not implemented")
}
func (UnimplementedWalletServiceServer) QueryEvents(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method QueryEvents not implemented")
}
func (UnimplementedWalletServiceServer) mustEmbedUnimplementedWalletServiceServer() {}

// RegisterWalletServiceServer registers srv on s
func RegisterWalletServiceServer(s grpc.ServiceRegistrar, srv WalletServiceServer) {
	s.RegisterService(&WalletService_ServiceDesc, srv)
}

func _WalletService_SaveTransaction_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletServiceServer).SaveTransaction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: WalletService_SaveTransaction_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WalletServiceServer).SaveTransaction(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _WalletService_FetchPage_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletServiceServer).FetchPage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: WalletService_FetchPage_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WalletServiceServer).FetchPage(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func _WalletService_FetchBalance_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletServiceServer).FetchBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: WalletService_FetchBalance_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WalletServiceServer).FetchBalance(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _WalletService_CurrentRate_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletServiceServer).CurrentRate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: WalletService_CurrentRate_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WalletServiceServer).CurrentRate(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _WalletService_WatchRate_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(WalletServiceServer).WatchRate(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

func _WalletService_GetValuation_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletServiceServer).GetValuation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: WalletService_GetValuation_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WalletServiceServer).GetValuation(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _WalletService_QueryEvents_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletServiceServer).QueryEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: WalletService_QueryEvents_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WalletServiceServer).QueryEvents(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// WalletService_ServiceDesc is the grpc.ServiceDesc for WalletService
var WalletService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "wallet.v1.WalletService",
	HandlerType: (*WalletServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SaveTransaction", Handler: _WalletService_SaveTransaction_Handler},
		{MethodName: "FetchPage", Handler: _WalletService_FetchPage_Handler},
		{MethodName: "FetchBalance", Handler: _WalletService_FetchBalance_Handler},
		{MethodName: "CurrentRate", Handler: _WalletService_CurrentRate_Handler},
		{MethodName: "GetValuation", Handler: _WalletService_GetValuation_Handler},
		{MethodName: "QueryEvents", Handler: _WalletService_QueryEvents_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchRate",
			Handler:       _WalletService_WatchRate_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "wallet/v1/wallet.proto",
}
