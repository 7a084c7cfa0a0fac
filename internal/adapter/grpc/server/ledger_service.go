package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// LedgerServiceName is the fully qualified gRPC service name.
const LedgerServiceName = "goescrow.ledger.v1.LedgerService"

// Full method names of LedgerService.
const (
	MethodRecordTransaction     = "/" + LedgerServiceName + "/RecordTransaction"
	MethodGetBalance            = "/" + LedgerServiceName + "/GetBalance"
	MethodReverseTransaction    = "/" + LedgerServiceName + "/ReverseTransaction"
	MethodApprovePaymentRequest = "/" + LedgerServiceName + "/ApprovePaymentRequest"
	MethodResolveDispute        = "/" + LedgerServiceName + "/ResolveDispute"
)

// LedgerServiceServer is the server API for LedgerService. Messages are
// google.protobuf.Struct so that no generated code is needed.
type LedgerServiceServer interface {
	RecordTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReverseTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApprovePaymentRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveDispute(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterLedgerServiceServer registers srv on s.
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

// LedgerServiceDesc is the grpc.ServiceDesc for LedgerService.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RecordTransaction",
			Handler:    unaryHandler(MethodRecordTransaction, LedgerServiceServer.RecordTransaction),
		},
		{
			MethodName: "GetBalance",
			Handler:    unaryHandler(MethodGetBalance, LedgerServiceServer.GetBalance),
		},
		{
			MethodName: "ReverseTransaction",
			Handler:    unaryHandler(MethodReverseTransaction, LedgerServiceServer.ReverseTransaction),
		},
		{
			MethodName: "ApprovePaymentRequest",
			Handler:    unaryHandler(MethodApprovePaymentRequest, LedgerServiceServer.ApprovePaymentRequest),
		},
		{
			MethodName: "ResolveDispute",
			Handler:    unaryHandler(MethodResolveDispute, LedgerServiceServer.ResolveDispute),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "goescrow/ledger/v1/ledger.proto",
}

type unaryMethod func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*structpb.Struct))
		}

		return interceptor(ctx, in, info, handler)
	}
}

// LedgerServiceClient is the client API for LedgerService.
type LedgerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerServiceClient creates a client on cc.
func NewLedgerServiceClient(cc grpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{cc: cc}
}

// Call invokes fullMethod with in.
func (c *LedgerServiceClient) Call(ctx context.Context, fullMethod string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
