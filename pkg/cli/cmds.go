// Package cli builds the urfave/cli App for each PICCOLO binary, following
// k3s's pkg/cli/cmds pattern of one flag set per command with
// environment-variable fallback.
package cli

import (
	"github.com/urfave/cli/v2"
)

// CommonFlags are the flags every binary accepts.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "log file path; empty logs to stderr",
			EnvVars: []string{"PICCOLO_LOG_FILE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "panic|fatal|error|warn|info|debug|trace",
			Value:   "info",
			EnvVars: []string{"PICCOLO_LOG_LEVEL"},
		},
		&cli.StringSliceFlag{
			Name:    "etcd-endpoint",
			Usage:   "etcd client endpoint, repeatable",
			Value:   cli.NewStringSlice("127.0.0.1:2379"),
			EnvVars: []string{"PICCOLO_ETCD_ENDPOINTS"},
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "address to serve /metrics on",
			Value:   ":9100",
			EnvVars: []string{"PICCOLO_METRICS_ADDR"},
		},
	}
}

// NewStateManagerApp builds the statemanager binary's CLI.
func NewStateManagerApp(action cli.ActionFunc) *cli.App {
	app := cli.NewApp()
	app.Name = "statemanager"
	app.Usage = "PICCOLO resource state manager: evaluators, transition engine, audit envelope"
	app.Flags = append(CommonFlags(),
		&cli.IntFlag{Name: "queue-size", Value: 100, Usage: "per-resource-type transition queue bound"},
		&cli.StringFlag{Name: "grpc-addr", Value: ":8081", Usage: "gRPC listen address for StateManagerConnection"},
		&cli.StringFlag{Name: "actioncontroller-addr", Value: "127.0.0.1:8083", Usage: "ActionControllerConnection address"},
	)
	app.Action = action
	return app
}

// NewActionControllerApp builds the actioncontroller binary's CLI.
func NewActionControllerApp(action cli.ActionFunc) *cli.App {
	app := cli.NewApp()
	app.Name = "actioncontroller"
	app.Usage = "PICCOLO reconciler: resolves scenarios to node-agent workload commands"
	app.Flags = append(CommonFlags(),
		&cli.StringFlag{Name: "statemanager-addr", Value: "127.0.0.1:8081", Usage: "StateManagerConnection address"},
		&cli.StringFlag{Name: "timpani-addr", Usage: "Timpani SchedInfo sink address, empty disables"},
		&cli.StringFlag{Name: "grpc-addr", Value: ":8083", Usage: "gRPC listen address for ActionControllerConnection"},
	)
	app.Action = action
	return app
}

// NewNodeAgentApp builds the nodeagent binary's CLI.
func NewNodeAgentApp(action cli.ActionFunc) *cli.App {
	app := cli.NewApp()
	app.Name = "nodeagent"
	app.Usage = "PICCOLO node agent: workload dispatcher and fault sink"
	app.Flags = append(CommonFlags(),
		&cli.StringFlag{Name: "podman-socket", Value: "/var/run/podman/podman.sock", Usage: "libpod REST socket path"},
		&cli.StringFlag{Name: "yaml-dir", Value: "/etc/piccolo/yaml", Usage: "Pod YAML materialization directory"},
		&cli.StringFlag{Name: "grpc-addr", Value: ":8082", Usage: "gRPC listen address for NodeAgentConnection"},
		&cli.StringFlag{Name: "statemanager-addr", Value: "127.0.0.1:8081", Usage: "StateManagerConnection address"},
	)
	app.Action = action
	return app
}

// NewAPIServerApp builds the apiserver binary's CLI.
func NewAPIServerApp(action cli.ActionFunc) *cli.App {
	app := cli.NewApp()
	app.Name = "apiserver"
	app.Usage = "PICCOLO API server: artifact admission front door"
	app.Flags = append(CommonFlags(),
		&cli.StringFlag{Name: "http-addr", Value: ":8080", Usage: "HTTP listen address for artifact admission"},
	)
	app.Action = action
	return app
}
