package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conductor/vaultprops/internal/propertysource"
	"github.com/conductor/vaultprops/internal/server"
	"github.com/conductor/vaultprops/pkg/health"
	"github.com/conductor/vaultprops/pkg/metrics"
	"github.com/conductor/vaultprops/pkg/tracing"
)

// serveCmd runs the property source behind the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve properties over HTTP",
	Long: `Load the vault into memory, keep it fresh and expose it over HTTP.

Endpoints:
  GET  /healthz         Liveness, always 200 while the process answers
  GET  /readyz          Vault reachability and snapshot freshness
  GET  /v1/properties   Property names (values are never served)
  POST /v1/refresh      Reload the snapshot now
  GET  /metrics         Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_time", BuildTime).
		Str("go_version", runtime.Version()).
		Str("provider", string(cfg.Provider())).
		Msg("starting vaultprops")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics()

	var tracer *tracing.Tracer
	if cfg.Observability.TracingEnabled {
		tracer, err = tracing.InitTracer(ctx, tracing.Config{
			ServiceName:    "vaultprops",
			ServiceVersion: Version,
			Endpoint:       cfg.Observability.TracingEndpoint,
			Insecure:       cfg.Observability.TracingInsecure,
			SampleRate:     cfg.Observability.TracingSampleRate,
			Environment:    cfg.Observability.Environment,
			Enabled:        true,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize tracing, continuing without tracing")
			tracer = nil
		} else {
			logger.Info().Str("endpoint", cfg.Observability.TracingEndpoint).Msg("tracing initialized")
		}
	}

	client, err := newClient(cfg, tracing.RoundTripper)
	if err != nil {
		return fmt.Errorf("create secrets client: %w", err)
	}

	opts := sourceOptions(cfg, logger)
	opts.Metrics = appMetrics.Source
	src, err := propertysource.New(ctx, client, opts)
	if err != nil {
		return err
	}

	ready := health.NewVaultCheck(src, health.WithMaxStaleness(cfg.Source.MaxStaleness))

	httpConfig := server.DefaultHTTPConfig()
	httpConfig.Port = cfg.Server.HTTPPort
	httpConfig.EnableTracing = tracer != nil
	httpConfig.Metrics = appMetrics
	httpServer := server.NewHTTPServer(httpConfig, src, ready, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err = <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
		}
	}
	stop()

	logger.Info().Msg("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := httpServer.Stop(shutdownCtx); err != nil {
		shutdownErr = err
	}
	if err := src.Close(); err != nil {
		logger.Error().Err(err).Msg("property source close error")
		shutdownErr = err
	}
	// Flush pending spans.
	if tracer != nil {
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown error")
			shutdownErr = err
		}
	}

	if shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}
	logger.Info().Msg("vaultprops stopped")
	return err
}
