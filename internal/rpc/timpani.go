package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/piccolo-project/piccolo/internal/proto"
)

// TimpaniClient dials the real-time scheduler's SchedInfo sink (spec §6).
// Timpani is specified only at its interface and treated as an external
// collaborator: PICCOLO never implements its server side.
type TimpaniClient struct {
	cc *grpc.ClientConn
}

// NewTimpaniClient wraps a dialed connection.
func NewTimpaniClient(cc *grpc.ClientConn) *TimpaniClient {
	return &TimpaniClient{cc: cc}
}

// AddSchedInfo posts a workload's scheduling info, implementing
// reconciler.TimpaniClient.
func (c *TimpaniClient) AddSchedInfo(ctx context.Context, info proto.SchedInfo) error {
	out := new(proto.FaultResponse)
	return c.cc.Invoke(ctx, "/timpani.Scheduler/AddSchedInfo", &info, out, grpc.CallContentSubtype(CodecName))
}
