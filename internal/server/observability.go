// HTTP endpoints for metrics, health, readiness and profiling
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/nainya/contentvc/internal/logger"
	"github.com/nainya/contentvc/internal/metrics"
	"github.com/nainya/contentvc/pkg/store"
)

// readinessCheckID is an id no repository is ever created with
const readinessCheckID = "__contentvc_readiness_check__"

// ObservabilityServer serves operational endpoints next to the engine
type ObservabilityServer struct {
	server *http.Server
	log    *logger.Logger
}

// NewObservabilityServer creates the HTTP server. The store backs /ready:
// a lookup that reaches the store and finds nothing means it is serving.
func NewObservabilityServer(addr string, m *metrics.Metrics, s store.Reader, log *logger.Logger) *ObservabilityServer {
	return &ObservabilityServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      Handler(m, s),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Handler returns the endpoint mux
func Handler(m *metrics.Metrics, s store.Reader) http.Handler {
	mux := http.NewServeMux()

	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, `{"status":"healthy","service":"contentvc"}`)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		_, err := s.GetRepository(ctx, readinessCheckID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeStatus(w, http.StatusServiceUnavailable, `{"status":"unavailable"}`)
			return
		}
		writeStatus(w, http.StatusOK, `{"status":"ready"}`)
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return mux
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// Addr returns the listen address
func (o *ObservabilityServer) Addr() string {
	return o.server.Addr
}

// Start serves until Shutdown
func (o *ObservabilityServer) Start() error {
	o.log.Info("starting observability server").
		Str("metrics", fmt.Sprintf("http://%s/metrics", o.server.Addr)).
		Str("health", fmt.Sprintf("http://%s/health", o.server.Addr)).
		Str("pprof", fmt.Sprintf("http://%s/debug/pprof/", o.server.Addr)).
		Send()

	if err := o.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("observability server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (o *ObservabilityServer) Shutdown(ctx context.Context) error {
	o.log.Info("shutting down observability server").Send()
	return o.server.Shutdown(ctx)
}
