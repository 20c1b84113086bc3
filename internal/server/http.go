// Package server exposes a property source over HTTP: liveness and
// readiness probes, the list of property names, a manual refresh trigger
// and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/conductor/vaultprops/internal/propertysource"
	"github.com/conductor/vaultprops/pkg/health"
	"github.com/conductor/vaultprops/pkg/log"
	"github.com/conductor/vaultprops/pkg/metrics"
	"github.com/conductor/vaultprops/pkg/tracing"
)

// PropertySource is the part of a property source served over HTTP.
type PropertySource interface {
	GetPropertyNames() []string
	Refresh(ctx context.Context) error
	Len() int
	LastRefresh() time.Time
	Mode() propertysource.Mode
}

// ReadinessCheck reports whether the vault behind the source is usable.
type ReadinessCheck interface {
	CheckDetailed(ctx context.Context) health.Result
}

// HTTPConfig configures the listener and optional instrumentation.
type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// EnableTracing wraps every route except /healthz and /metrics in a
	// server span.
	EnableTracing bool
	// Metrics, when set, is recorded per request and served on /metrics.
	Metrics *metrics.Metrics
}

// DefaultHTTPConfig listens on 8080 with 30s read and write timeouts.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}
}

// HTTPServer serves a property source over HTTP.
type HTTPServer struct {
	config HTTPConfig
	source PropertySource
	ready  ReadinessCheck
	server *http.Server
	logger log.Logger
}

// NewHTTPServer wires source and ready into a server. Nothing listens
// until Start.
func NewHTTPServer(cfg HTTPConfig, source PropertySource, ready ReadinessCheck, logger log.Logger) *HTTPServer {
	return &HTTPServer{
		config: cfg,
		source: source,
		ready:  ready,
		logger: logger.With("component", "http_server"),
	}
}

// Start listens on the configured port and blocks until ctx ends or the
// listener fails. It does not shut the server down; call Stop for that.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.logger.Info().
		Str("address", s.server.Addr).
		Bool("tracing", s.config.EnableTracing).
		Bool("metrics", s.config.Metrics != nil).
		Msg("listening")

	failed := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-failed:
		if !ok {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
}

// Stop drains in-flight requests until ctx expires.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("shutdown did not complete")
		return err
	}
	s.logger.Info().Msg("stopped")
	return nil
}

// Handler returns the route table wrapped, outermost first, in panic
// recovery, tracing, request logging and metrics.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /v1/properties", s.handleProperties)
	mux.HandleFunc("POST /v1/refresh", s.handleRefresh)
	if s.config.Metrics != nil {
		mux.Handle("GET /metrics", s.config.Metrics.Handler())
	}

	var handler http.Handler = mux

	if s.config.Metrics != nil {
		handler = s.recordMetrics(handler)
	}
	handler = log.HTTPMiddleware(s.logger)(handler)

	if s.config.EnableTracing {
		handler = tracing.Middleware("/healthz", "/metrics")(handler)
	}

	handler = s.recoverPanics(handler)

	return handler
}
