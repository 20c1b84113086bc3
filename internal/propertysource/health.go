package propertysource

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/conductor/vaultprops/internal/secrets"
	"github.com/conductor/vaultprops/pkg/log"
	"github.com/conductor/vaultprops/pkg/tracing"
)

// IsUp probes the vault by reading the probe secret.
//
// A missing probe secret still proves the vault answered, so it counts as
// up. Request-level faults are logged and also count as up; server errors
// (5xx), any other error and a panicking client count as down.
func (s *Source) IsUp(ctx context.Context) bool {
	return probe(ctx, s.client, s.probeName, s.log, s.metrics)
}

// Probe classifies one read of the probe secret the way IsUp does, for
// callers that could not build a Source. An empty name selects
// DefaultProbeSecretName; a nil logger discards output.
func Probe(ctx context.Context, client secrets.Client, name string, logger log.Logger) bool {
	if name == "" {
		name = DefaultProbeSecretName
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return probe(ctx, client, name, logger.With("component", "propertysource"), nopRecorder{})
}

func probe(ctx context.Context, client secrets.Client, name string, base log.Logger, rec Recorder) (up bool) {
	ctx, span := tracing.StartSpan(ctx, "propertysource.probe",
		tracing.WithAttributes(tracing.AttrSecretName.String(name)),
	)
	logger := base.WithContext(ctx).With("probe_secret", name)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Any("panic", r).Msg("vault probe panicked")
			up = false
		}
		span.SetAttributes(tracing.AttrVaultUp.Bool(up))
		span.End()
		rec.RecordProbe(up, time.Since(start))
	}()

	resp, err := client.GetSecretWithResponse(ctx, name, "")
	return classifyProbe(logger, resp, err)
}

func classifyProbe(logger log.Logger, resp *secrets.Response, err error) bool {
	switch {
	case err == nil:
		if resp == nil {
			logger.Error().Msg("vault probe returned no response")
			return false
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			logger.Warn().Int("status", resp.StatusCode).Msg("vault probe got server error")
			return false
		}
		return true
	case errors.Is(err, secrets.ErrNotFound):
		return true
	case secrets.IsRequestError(err):
		logger.Error().Err(err).Msg("vault probe request failed")
		return true
	default:
		logger.Error().Err(err).Msg("vault probe failed")
		return false
	}
}
