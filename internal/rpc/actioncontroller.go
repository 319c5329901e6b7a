package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/piccolo-project/piccolo/internal/proto"
)

// ActionControllerServer is the server side of ActionControllerConnection
// (spec §6), implemented by internal/reconciler.Reconciler.ReconcileDesired.
type ActionControllerServer interface {
	Reconcile(ctx context.Context, req proto.ReconcileRequest) (proto.ReconcileResponse, error)
}

func reconcileHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.ReconcileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ActionControllerServer).Reconcile(ctx, *in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/piccolo.ActionController/Reconcile"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ActionControllerServer).Reconcile(ctx, *req.(*proto.ReconcileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ActionControllerServiceDesc is the hand-maintained gRPC ServiceDesc for
// ActionControllerConnection.
var ActionControllerServiceDesc = grpc.ServiceDesc{
	ServiceName: "piccolo.ActionController",
	HandlerType: (*ActionControllerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reconcile", Handler: reconcileHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "piccolo/actioncontroller.proto",
}

// RegisterActionControllerServer registers srv on s.
func RegisterActionControllerServer(s *grpc.Server, srv ActionControllerServer) {
	s.RegisterService(&ActionControllerServiceDesc, srv)
}

// ActionControllerClient is the client side of ActionControllerConnection.
type ActionControllerClient struct {
	cc *grpc.ClientConn
}

// NewActionControllerClient wraps a dialed connection.
func NewActionControllerClient(cc *grpc.ClientConn) *ActionControllerClient {
	return &ActionControllerClient{cc: cc}
}

func (c *ActionControllerClient) Reconcile(ctx context.Context, req proto.ReconcileRequest) (proto.ReconcileResponse, error) {
	out := new(proto.ReconcileResponse)
	err := c.cc.Invoke(ctx, "/piccolo.ActionController/Reconcile", &req, out, grpc.CallContentSubtype(CodecName))
	return *out, err
}
