package rpc

import (
	"context"
	"sync"

	"google.golang.org/grpc"

	"github.com/piccolo-project/piccolo/internal/proto"
)

// NodeAgentServer is the server side of NodeAgentConnection (spec §6),
// implemented by internal/nodeagent.Dispatcher.
type NodeAgentServer interface {
	HandleWorkload(ctx context.Context, cmd proto.WorkloadCommand) (proto.ReconcileResponse, error)
}

func handleWorkloadHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.WorkloadCommand)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeAgentServer).HandleWorkload(ctx, *in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/piccolo.NodeAgent/HandleWorkload"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeAgentServer).HandleWorkload(ctx, *req.(*proto.WorkloadCommand))
	}
	return interceptor(ctx, in, info, handler)
}

// NodeAgentServiceDesc is the hand-maintained gRPC ServiceDesc for
// NodeAgentConnection.
var NodeAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: "piccolo.NodeAgent",
	HandlerType: (*NodeAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HandleWorkload", Handler: handleWorkloadHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "piccolo/nodeagent.proto",
}

// RegisterNodeAgentServer registers srv on s.
func RegisterNodeAgentServer(s *grpc.Server, srv NodeAgentServer) {
	s.RegisterService(&NodeAgentServiceDesc, srv)
}

// NodeAgentClient dials one NodeAgentConnection per node address and caches
// the connection, implementing reconciler.NodeAgentClient across the whole
// fleet of nodes (spec §4.9 dispatches to a named node per model).
type NodeAgentClient struct {
	dialOpts []grpc.DialOption
	resolve  func(node string) (addr string, err error)

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewNodeAgentClient builds a fleet-wide client. resolve maps a node name
// (as stored in a ModelRef) to its gRPC dial address.
func NewNodeAgentClient(resolve func(node string) (string, error), dialOpts ...grpc.DialOption) *NodeAgentClient {
	return &NodeAgentClient{dialOpts: dialOpts, resolve: resolve, conns: make(map[string]*grpc.ClientConn)}
}

func (c *NodeAgentClient) connFor(node string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.conns[node]; ok {
		return cc, nil
	}
	addr, err := c.resolve(node)
	if err != nil {
		return nil, err
	}
	cc, err := grpc.Dial(addr, c.dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conns[node] = cc
	return cc, nil
}

// HandleWorkload implements reconciler.NodeAgentClient.
func (c *NodeAgentClient) HandleWorkload(ctx context.Context, node string, cmd proto.WorkloadCommand) (proto.ReconcileResponse, error) {
	cc, err := c.connFor(node)
	if err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "node unreachable"}, err
	}
	out := new(proto.ReconcileResponse)
	err = cc.Invoke(ctx, "/piccolo.NodeAgent/HandleWorkload", &cmd, out, grpc.CallContentSubtype(CodecName))
	return *out, err
}

// Close tears down every cached connection.
func (c *NodeAgentClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for node, cc := range c.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, node)
	}
	return firstErr
}
