package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/piccolo-project/piccolo/internal/proto"
)

// FaultSinkServer is the server side of the fault source connection (spec
// §6 "Fault source"), implemented by internal/faultsink.Sink.
type FaultSinkServer interface {
	NotifyFault(ctx context.Context, fault proto.FaultInfo) proto.FaultResponse
}

func notifyFaultHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.FaultInfo)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		resp := srv.(FaultSinkServer).NotifyFault(ctx, *in)
		return &resp, nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/piccolo.FaultSink/NotifyFault"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		resp := srv.(FaultSinkServer).NotifyFault(ctx, *req.(*proto.FaultInfo))
		return &resp, nil
	}
	return interceptor(ctx, in, info, handler)
}

// FaultSinkServiceDesc is the hand-maintained gRPC ServiceDesc for the fault
// source connection.
var FaultSinkServiceDesc = grpc.ServiceDesc{
	ServiceName: "piccolo.FaultSink",
	HandlerType: (*FaultSinkServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NotifyFault", Handler: notifyFaultHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "piccolo/faultsink.proto",
}

// RegisterFaultSinkServer registers srv on s.
func RegisterFaultSinkServer(s *grpc.Server, srv FaultSinkServer) {
	s.RegisterService(&FaultSinkServiceDesc, srv)
}
