package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/piccolo-project/piccolo/internal/proto"
)

// StateManagerServer is the server side of StateManagerConnection (spec §6).
type StateManagerServer interface {
	SendStateChange(ctx context.Context, sc *proto.StateChange) (*proto.TransitionResponse, error)
	SendChangedContainerList(ctx context.Context, list *proto.ContainerList) (*proto.ReconcileResponse, error)
}

func sendStateChangeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.StateChange)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StateManagerServer).SendStateChange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/piccolo.StateManager/SendStateChange"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StateManagerServer).SendStateChange(ctx, req.(*proto.StateChange))
	}
	return interceptor(ctx, in, info, handler)
}

func sendChangedContainerListHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.ContainerList)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StateManagerServer).SendChangedContainerList(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/piccolo.StateManager/SendChangedContainerList"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StateManagerServer).SendChangedContainerList(ctx, req.(*proto.ContainerList))
	}
	return interceptor(ctx, in, info, handler)
}

// StateManagerServiceDesc is the hand-maintained gRPC ServiceDesc for
// StateManagerConnection.
var StateManagerServiceDesc = grpc.ServiceDesc{
	ServiceName: "piccolo.StateManager",
	HandlerType: (*StateManagerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendStateChange", Handler: sendStateChangeHandler},
		{MethodName: "SendChangedContainerList", Handler: sendChangedContainerListHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "piccolo/statemanager.proto",
}

// RegisterStateManagerServer registers srv on s.
func RegisterStateManagerServer(s *grpc.Server, srv StateManagerServer) {
	s.RegisterService(&StateManagerServiceDesc, srv)
}

// StateManagerClient is the client side of StateManagerConnection.
type StateManagerClient struct {
	cc *grpc.ClientConn
}

// NewStateManagerClient wraps a dialed connection.
func NewStateManagerClient(cc *grpc.ClientConn) *StateManagerClient {
	return &StateManagerClient{cc: cc}
}

func (c *StateManagerClient) SendStateChange(ctx context.Context, sc *proto.StateChange) (*proto.TransitionResponse, error) {
	out := new(proto.TransitionResponse)
	err := c.cc.Invoke(ctx, "/piccolo.StateManager/SendStateChange", sc, out, grpc.CallContentSubtype(CodecName))
	return out, err
}

func (c *StateManagerClient) SendChangedContainerList(ctx context.Context, list *proto.ContainerList) (*proto.ReconcileResponse, error) {
	out := new(proto.ReconcileResponse)
	err := c.cc.Invoke(ctx, "/piccolo.StateManager/SendChangedContainerList", list, out, grpc.CallContentSubtype(CodecName))
	return out, err
}
