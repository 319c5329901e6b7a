// Command statemanager runs the state-management core: the evaluators
// (C4-C6), scenario state machine (C7) and transition engine (C8), fronted
// by StateManagerConnection over gRPC.
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
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/piccolo-project/piccolo/internal/artifact"
	"github.com/piccolo-project/piccolo/internal/audit"
	"github.com/piccolo-project/piccolo/internal/kvstore"
	"github.com/piccolo-project/piccolo/internal/proto"
	"github.com/piccolo-project/piccolo/internal/rpc"
	"github.com/piccolo-project/piccolo/internal/statestore"
	"github.com/piccolo-project/piccolo/internal/transition"
	picccli "github.com/piccolo-project/piccolo/pkg/cli"
	"github.com/piccolo-project/piccolo/pkg/log"
	"github.com/piccolo-project/piccolo/pkg/metrics"
	"github.com/piccolo-project/piccolo/pkg/signals"
)

// stateManagerServer adapts *transition.Engine to rpc.StateManagerServer.
type stateManagerServer struct {
	engine *transition.Engine
}

func (s stateManagerServer) SendStateChange(ctx context.Context, sc *proto.StateChange) (*proto.TransitionResponse, error) {
	resp := s.engine.Submit(ctx, *sc)
	return &resp, nil
}

func (s stateManagerServer) SendChangedContainerList(ctx context.Context, list *proto.ContainerList) (*proto.ReconcileResponse, error) {
	resp := s.engine.IngestContainerList(ctx, *list)
	return &resp, nil
}

func run(c *cli.Context) error {
	if err := log.Setup(c.String("log-level"), c.String("log-file")); err != nil {
		return errors.Wrap(err, "statemanager: log setup")
	}

	ctx := signals.SetupSignalContext()

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   c.StringSlice("etcd-endpoint"),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return errors.Wrap(err, "statemanager: etcd client")
	}
	defer client.Close()

	gw := kvstore.New(client, 0)
	store := statestore.New(gw)
	registry := artifact.New(gw, nil)
	clock := audit.NewClock()
	engine := transition.New(store, clock, c.Int("queue-size"))

	acConn, err := grpc.NewClient(c.String("actioncontroller-addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return errors.Wrap(err, "statemanager: dial actioncontroller")
	}
	defer acConn.Close()
	actionController := rpc.NewActionControllerClient(acConn)

	engine.OnEnter("playing", func(ctx context.Context, sc proto.StateChange) error {
		resp, err := actionController.Reconcile(ctx, proto.ReconcileRequest{
			ScenarioName: sc.ResourceName,
			Current:      sc.CurrentState,
			Desired:      "Running",
		})
		if err != nil {
			logrus.WithError(err).WithField("scenario", sc.ResourceName).Warn("reconcile_do request failed")
			return nil
		}
		logrus.WithFields(logrus.Fields{"scenario": sc.ResourceName, "desc": resp.Desc}).Info("scenario entered playing, reconcile_do requested")
		return nil
	})
	engine.SetPackageErrorHook(func(ctx context.Context, packageName string, problematicModels []string) {
		scenarios, err := registry.ScenariosTargeting(ctx, packageName)
		if err != nil {
			logrus.WithError(err).WithField("package", packageName).Warn("failed to resolve scenarios targeting errored package")
			return
		}
		for _, sc := range scenarios {
			current, _ := store.GetScenarioState(ctx, sc.Name)
			_, err := actionController.Reconcile(ctx, proto.ReconcileRequest{
				ScenarioName: sc.Name,
				Current:      current,
				Desired:      "Running",
			})
			if err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"package":  packageName,
					"scenario": sc.Name,
					"models":   problematicModels,
				}).Warn("reconcile_do request failed for errored package")
			}
		}
	})
	engine.Run(ctx)

	go func() {
		if err := metrics.ListenAndServe(ctx, c.String("metrics-addr")); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warn("statemanager: metrics server exited")
		}
	}()

	lis, err := net.Listen("tcp", c.String("grpc-addr"))
	if err != nil {
		return errors.Wrap(err, "statemanager: listen")
	}
	grpcServer := grpc.NewServer()
	rpc.RegisterStateManagerServer(grpcServer, stateManagerServer{engine: engine})

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logrus.WithField("addr", c.String("grpc-addr")).Info("statemanager listening")
	return grpcServer.Serve(lis)
}

func main() {
	app := picccli.NewStateManagerApp(run)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
