package metrics

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultRegisterer is the implementation of the prometheus Registerer
// interface that all PICCOLO metrics operations use.
var DefaultRegisterer = prometheus.DefaultRegisterer

// DefaultGatherer is the implementation of the prometheus Gatherer
// interface that all PICCOLO metrics operations use.
var DefaultGatherer = prometheus.DefaultGatherer

// RouterFunc supplies the router that the metrics handler is bound onto.
type RouterFunc func(ctx context.Context) (*mux.Router, error)

// Config holds fields for the metrics listener.
type Config struct {
	// Router will be called to add the metrics API handler to an existing router.
	Router RouterFunc
}

// Start binds the metrics endpoint to an existing HTTP router.
func (c *Config) Start(ctx context.Context) error {
	mRouter, err := c.Router(ctx)
	if err != nil {
		return err
	}
	mRouter.Handle("/metrics", promhttp.HandlerFor(DefaultGatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return nil
}

// ListenAndServe binds a dedicated /metrics listener on addr. It is used by
// the three binaries (statemanager, actioncontroller, nodeagent) whose
// primary listener is gRPC rather than HTTP, so /metrics cannot share a
// router with the main API surface the way apiserver's does.
func ListenAndServe(ctx context.Context, addr string) error {
	router := mux.NewRouter()
	cfg := Config{Router: func(ctx context.Context) (*mux.Router, error) { return router, nil }}
	if err := cfg.Start(ctx); err != nil {
		return err
	}
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	return srv.ListenAndServe()
}
