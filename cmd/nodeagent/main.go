// Command nodeagent runs the Node Agent Workload Dispatcher (C10) and the
// Fault Sink (C11), fronted by NodeAgentConnection over gRPC and driving the
// local container engine over a UNIX socket.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/piccolo-project/piccolo/internal/audit"
	"github.com/piccolo-project/piccolo/internal/faultsink"
	"github.com/piccolo-project/piccolo/internal/nodeagent"
	"github.com/piccolo-project/piccolo/internal/nodeagent/podman"
	"github.com/piccolo-project/piccolo/internal/proto"
	"github.com/piccolo-project/piccolo/internal/rpc"
	picccli "github.com/piccolo-project/piccolo/pkg/cli"
	"github.com/piccolo-project/piccolo/pkg/log"
	"github.com/piccolo-project/piccolo/pkg/metrics"
	"github.com/piccolo-project/piccolo/pkg/signals"
)

// reportInterval bounds how often the node agent forwards its observed
// container list to the state manager (spec §2: "C10 periodically forwards
// a ContainerList up to C8").
const reportInterval = 10 * time.Second

type stateChangeAdapter struct {
	client *rpc.StateManagerClient
}

func (a stateChangeAdapter) Submit(ctx context.Context, sc proto.StateChange) proto.TransitionResponse {
	resp, err := a.client.SendStateChange(ctx, &sc)
	if err != nil {
		logrus.WithError(err).Warn("nodeagent: statemanager unreachable")
		return proto.TransitionResponse{TransitionID: sc.TransitionID, ErrorCode: proto.ErrorCodeResourceUnavailable, ErrorDetails: err.Error()}
	}
	return *resp
}

type nodeAgentServer struct {
	d *nodeagent.Dispatcher
}

func (s nodeAgentServer) HandleWorkload(ctx context.Context, cmd proto.WorkloadCommand) (proto.ReconcileResponse, error) {
	return s.d.HandleWorkload(ctx, cmd)
}

type faultSinkServer struct {
	s *faultsink.Sink
}

func (f faultSinkServer) NotifyFault(ctx context.Context, fault proto.FaultInfo) proto.FaultResponse {
	return f.s.NotifyFault(ctx, fault)
}

func reportLoop(ctx context.Context, podmanClient *podman.Client, smClient *rpc.StateManagerClient) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			containers, err := podmanClient.ListContainers(ctx)
			if err != nil {
				logrus.WithError(err).Warn("nodeagent: failed to list containers")
				continue
			}
			list := &proto.ContainerList{Containers: containers}
			if _, err := smClient.SendChangedContainerList(ctx, list); err != nil {
				logrus.WithError(err).Warn("nodeagent: failed to forward container list")
			}
		}
	}
}

func run(c *cli.Context) error {
	if err := log.Setup(c.String("log-level"), c.String("log-file")); err != nil {
		return errors.Wrap(err, "nodeagent: log setup")
	}

	ctx := signals.SetupSignalContext()

	podmanClient := podman.NewClient(c.String("podman-socket"), 0)
	dispatcher := nodeagent.New(podmanClient, c.String("yaml-dir"))
	clock := audit.NewClock()

	smConn, err := grpc.NewClient(c.String("statemanager-addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return errors.Wrap(err, "nodeagent: dial statemanager")
	}
	defer smConn.Close()
	smClient := rpc.NewStateManagerClient(smConn)

	sink := faultsink.New(stateChangeAdapter{client: smClient}, clock)

	lis, err := net.Listen("tcp", c.String("grpc-addr"))
	if err != nil {
		return errors.Wrap(err, "nodeagent: listen")
	}
	grpcServer := grpc.NewServer()
	rpc.RegisterNodeAgentServer(grpcServer, nodeAgentServer{d: dispatcher})
	rpc.RegisterFaultSinkServer(grpcServer, faultSinkServer{s: sink})

	go func() {
		if err := metrics.ListenAndServe(ctx, c.String("metrics-addr")); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warn("nodeagent: metrics server exited")
		}
	}()

	go reportLoop(ctx, podmanClient, smClient)
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logrus.WithField("addr", c.String("grpc-addr")).Info("nodeagent listening")
	return grpcServer.Serve(lis)
}

func main() {
	app := picccli.NewNodeAgentApp(run)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
