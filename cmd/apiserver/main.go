// Command apiserver runs the artifact admission front door: an HTTP API in
// front of the Artifact Registry (C2). Spec §4 marks artifact arrival itself
// "out of scope"; this binary is the concrete, minimal front door a real
// deployment needs, built on the same pkg/cli + gorilla/mux wiring the other
// binaries use.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/piccolo-project/piccolo/internal/artifact"
	"github.com/piccolo-project/piccolo/internal/kvstore"
	"github.com/piccolo-project/piccolo/internal/statestore"
	picclog "github.com/piccolo-project/piccolo/pkg/cli"
	"github.com/piccolo-project/piccolo/pkg/log"
	"github.com/piccolo-project/piccolo/pkg/metrics"
	"github.com/piccolo-project/piccolo/pkg/signals"
)

type scenarioSeeder struct{ store *statestore.Store }

func (s scenarioSeeder) SeedIdle(ctx context.Context, name string) error {
	return s.store.PutScenarioState(ctx, name, "idle")
}

func run(c *cli.Context) error {
	if err := log.Setup(c.String("log-level"), c.String("log-file")); err != nil {
		return errors.Wrap(err, "apiserver: log setup")
	}

	ctx := signals.SetupSignalContext()

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   c.StringSlice("etcd-endpoint"),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return errors.Wrap(err, "apiserver: etcd client")
	}
	defer client.Close()

	gw := kvstore.New(client, 0)
	store := statestore.New(gw)
	registry := artifact.New(gw, scenarioSeeder{store: store})

	router := mux.NewRouter()
	registerArtifactRoutes(router, registry)

	metricsCfg := metrics.Config{Router: func(ctx context.Context) (*mux.Router, error) { return router, nil }}
	if err := metricsCfg.Start(ctx); err != nil {
		return errors.Wrap(err, "apiserver: metrics")
	}

	srv := &http.Server{Addr: c.String("http-addr"), Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logrus.WithField("addr", srv.Addr).Info("apiserver listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "apiserver: serve")
	}
	return nil
}

func registerArtifactRoutes(r *mux.Router, registry *artifact.Registry) {
	r.HandleFunc("/artifacts/scenarios", putJSON(func(ctx context.Context, body []byte) error {
		var s artifact.Scenario
		if err := json.Unmarshal(body, &s); err != nil {
			return err
		}
		return registry.PutScenario(ctx, s)
	})).Methods(http.MethodPost)

	r.HandleFunc("/artifacts/scenarios/{name}", getJSON(func(ctx context.Context, name string) (interface{}, error) {
		return registry.GetScenario(ctx, name)
	})).Methods(http.MethodGet)

	r.HandleFunc("/artifacts/packages", putJSON(func(ctx context.Context, body []byte) error {
		var p artifact.Package
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		return registry.PutPackage(ctx, p)
	})).Methods(http.MethodPost)

	r.HandleFunc("/artifacts/packages/{name}", getJSON(func(ctx context.Context, name string) (interface{}, error) {
		return registry.GetPackage(ctx, name)
	})).Methods(http.MethodGet)

	r.HandleFunc("/artifacts/models", putJSON(func(ctx context.Context, body []byte) error {
		var m artifact.Model
		if err := json.Unmarshal(body, &m); err != nil {
			return err
		}
		return registry.PutModel(ctx, m)
	})).Methods(http.MethodPost)

	r.HandleFunc("/artifacts/models/{name}", getJSON(func(ctx context.Context, name string) (interface{}, error) {
		return registry.GetModel(ctx, name)
	})).Methods(http.MethodGet)

	r.HandleFunc("/artifacts/scenarios/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		if err := registry.Withdraw(req.Context(), artifact.KindScenario, name); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)
}

func putJSON(fn func(ctx context.Context, body []byte) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fn(req.Context(), body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func getJSON(fn func(ctx context.Context, name string) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		out, err := fn(req.Context(), name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

func main() {
	app := picclog.NewAPIServerApp(run)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
