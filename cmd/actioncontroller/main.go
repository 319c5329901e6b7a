// Command actioncontroller runs the Reconciler / Action Controller (C9),
// fronted by ActionControllerConnection over gRPC.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	cliapp "github.com/urfave/cli/v2"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/piccolo-project/piccolo/internal/artifact"
	"github.com/piccolo-project/piccolo/internal/audit"
	"github.com/piccolo-project/piccolo/internal/kvstore"
	"github.com/piccolo-project/piccolo/internal/proto"
	"github.com/piccolo-project/piccolo/internal/reconciler"
	"github.com/piccolo-project/piccolo/internal/rpc"
	picccli "github.com/piccolo-project/piccolo/pkg/cli"
	"github.com/piccolo-project/piccolo/pkg/log"
	"github.com/piccolo-project/piccolo/pkg/metrics"
	"github.com/piccolo-project/piccolo/pkg/signals"
)

// stateChangeAdapter adapts rpc.StateManagerClient to reconciler.StateChangeSubmitter.
type stateChangeAdapter struct {
	client *rpc.StateManagerClient
}

func (a stateChangeAdapter) Submit(ctx context.Context, sc proto.StateChange) proto.TransitionResponse {
	resp, err := a.client.SendStateChange(ctx, &sc)
	if err != nil {
		logrus.WithError(err).Warn("actioncontroller: statemanager unreachable")
		return proto.TransitionResponse{TransitionID: sc.TransitionID, ErrorCode: proto.ErrorCodeResourceUnavailable, ErrorDetails: err.Error()}
	}
	return *resp
}

// actionControllerServer adapts *reconciler.Reconciler to rpc.ActionControllerServer.
type actionControllerServer struct {
	r *reconciler.Reconciler
}

func (s actionControllerServer) Reconcile(ctx context.Context, req proto.ReconcileRequest) (proto.ReconcileResponse, error) {
	return s.r.ReconcileDesired(ctx, req)
}

func run(c *cliapp.Context) error {
	if err := log.Setup(c.String("log-level"), c.String("log-file")); err != nil {
		return errors.Wrap(err, "actioncontroller: log setup")
	}

	ctx := signals.SetupSignalContext()

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   c.StringSlice("etcd-endpoint"),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return errors.Wrap(err, "actioncontroller: etcd client")
	}
	defer client.Close()

	gw := kvstore.New(client, 0)
	registry := artifact.New(gw, nil)
	clock := audit.NewClock()

	smConn, err := grpc.NewClient(c.String("statemanager-addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return errors.Wrap(err, "actioncontroller: dial statemanager")
	}
	defer smConn.Close()
	submitter := stateChangeAdapter{client: rpc.NewStateManagerClient(smConn)}

	var timpani *rpc.TimpaniClient
	if addr := c.String("timpani-addr"); addr != "" {
		tConn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return errors.Wrap(err, "actioncontroller: dial timpani")
		}
		defer tConn.Close()
		timpani = rpc.NewTimpaniClient(tConn)
	}

	nodeAgentClient := rpc.NewNodeAgentClient(func(node string) (string, error) {
		return node, nil // node names are dial addresses in this deployment model
	}, grpc.WithTransportCredentials(insecure.NewCredentials()))
	defer nodeAgentClient.Close()

	var timpaniClient reconciler.TimpaniClient
	if timpani != nil {
		timpaniClient = timpani
	}

	r := reconciler.New(registry, gw, nodeAgentClient, timpaniClient, submitter, clock, nil)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1m", func() { r.Sweep(ctx) }); err != nil {
		return errors.Wrap(err, "actioncontroller: schedule sweep")
	}
	sweeper.Start()
	go func() {
		<-ctx.Done()
		sweeper.Stop()
	}()

	go func() {
		if err := metrics.ListenAndServe(ctx, c.String("metrics-addr")); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warn("actioncontroller: metrics server exited")
		}
	}()

	lis, err := net.Listen("tcp", c.String("grpc-addr"))
	if err != nil {
		return errors.Wrap(err, "actioncontroller: listen")
	}
	grpcServer := grpc.NewServer()
	rpc.RegisterActionControllerServer(grpcServer, actionControllerServer{r: r})

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logrus.WithField("addr", c.String("grpc-addr")).Info("actioncontroller listening")
	return grpcServer.Serve(lis)
}

func main() {
	app := picccli.NewActionControllerApp(run)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
