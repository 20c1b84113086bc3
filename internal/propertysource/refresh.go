package propertysource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/conductor/vaultprops/internal/naming"
	"github.com/conductor/vaultprops/internal/secrets"
	"github.com/conductor/vaultprops/pkg/log"
	"github.com/conductor/vaultprops/pkg/tracing"
)

const (
	triggerInitial   = "initial"
	triggerScheduled = "scheduled"
	triggerManual    = "manual"
)

// Refresh reloads the snapshot from the vault. Either every secret is
// read and the new snapshot replaces the old one, or an error is returned
// and the previous snapshot stays in place.
func (s *Source) Refresh(ctx context.Context) error {
	return s.refresh(ctx, triggerManual)
}

func (s *Source) refresh(ctx context.Context, trigger string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	refreshID := uuid.NewString()
	ctx = log.ContextWithRefreshID(ctx, refreshID)
	ctx, span := tracing.StartSpan(ctx, "propertysource.refresh",
		tracing.WithAttributes(
			tracing.AttrRefreshID.String(refreshID),
			tracing.AttrRefreshMode.String(s.mode.String()),
			tracing.AttrRefreshTrigger.String(trigger),
		),
	)
	defer span.End()

	logger := s.log.WithContext(ctx)
	logger.Debug().Str("trigger", trigger).Msg("refresh started")

	start := time.Now()
	var (
		snap *snapshot
		err  error
	)
	switch s.mode {
	case ModeTargeted:
		snap, err = s.loadTargeted(ctx, logger)
	default:
		snap, err = s.loadAll(ctx, logger)
	}
	duration := time.Since(start)

	if err != nil {
		tracing.RecordError(ctx, err)
		s.metrics.RecordRefresh(s.mode.String(), err, duration, s.Len())
		logger.Error().
			Err(err).
			Str("trigger", trigger).
			Dur("duration", duration).
			Msg("refresh failed, keeping previous snapshot")
		return fmt.Errorf("refresh secrets: %w", err)
	}

	snap.refreshedAt = s.clock.Now()
	s.current.Store(snap)

	tracing.AddSpanAttributes(ctx, tracing.AttrSecretCount.Int(len(snap.values)))
	s.metrics.RecordRefresh(s.mode.String(), nil, duration, len(snap.values))
	logger.Info().
		Str("trigger", trigger).
		Int("secrets", len(snap.values)).
		Dur("duration", duration).
		Msg("refresh completed")

	return nil
}

// loadAll lists every enabled secret and reads its value. Entries are
// keyed by the name the vault reports.
func (s *Source) loadAll(ctx context.Context, logger log.Logger) (*snapshot, error) {
	var listed []secrets.SecretProperties
	if pager := s.client.ListSecretProperties(); pager != nil {
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				s.metrics.RecordFetchError(errorKind(err))
				return nil, fmt.Errorf("list secrets: %w", err)
			}
			for _, p := range page {
				if !p.Enabled {
					logger.Debug().Str("secret", p.Name).Msg("skipping disabled secret")
					continue
				}
				listed = append(listed, p)
			}
		}
	}

	results := make([]*secrets.Secret, len(listed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range listed {
		g.Go(func() error {
			secret, err := s.fetch(gctx, p.Name, p.Version)
			if err != nil {
				if s.skippable(logger, p.Name, err) {
					return nil
				}
				return fmt.Errorf("get secret %q: %w", p.Name, err)
			}
			results[i] = secret
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Clients may share the returned secrets, so they are only read here.
	snap := &snapshot{values: make(map[string]string, len(results))}
	for i, secret := range results {
		if secret == nil {
			continue
		}
		name := secret.Name
		if name == "" {
			name = listed[i].Name
		}
		snap.values[name] = secret.Value
	}
	if !s.caseSensitive {
		snap.indexAliases()
	}
	return snap, nil
}

// loadTargeted reads each configured key under its canonical vault name.
// Entries are keyed by the configured spelling.
func (s *Source) loadTargeted(ctx context.Context, logger log.Logger) (*snapshot, error) {
	results := make([]*secrets.Secret, len(s.keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, key := range s.keys {
		g.Go(func() error {
			name := naming.Canonical(key, s.caseSensitive)
			secret, err := s.fetch(gctx, name, "")
			if err != nil {
				if s.skippable(logger, name, err) {
					return nil
				}
				return fmt.Errorf("get secret %q for key %q: %w", name, key, err)
			}
			results[i] = secret
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &snapshot{values: make(map[string]string, len(s.keys))}
	for i, key := range s.keys {
		if results[i] != nil {
			snap.values[key] = results[i].Value
		}
	}
	if !s.caseSensitive {
		snap.indexAliases()
	}
	return snap, nil
}

// fetch reads one secret, turning a panicking client into an error.
func (s *Source) fetch(ctx context.Context, name, version string) (secret *secrets.Secret, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client panicked: %v", r)
		}
	}()
	secret, err = s.client.GetSecret(ctx, name, version)
	if err == nil && secret == nil {
		err = fmt.Errorf("client returned no secret for %q", name)
	}
	return secret, err
}

// skippable reports whether a fetch error leaves the secret out of the
// snapshot instead of failing the refresh.
func (s *Source) skippable(logger log.Logger, name string, err error) bool {
	switch {
	case errors.Is(err, secrets.ErrNotFound):
		logger.Debug().Str("secret", name).Msg("secret not found, skipping")
		return true
	case errors.Is(err, secrets.ErrInvalidName):
		logger.Warn().Err(err).Str("secret", name).Msg("secret name not addressable, skipping")
		return true
	case errors.Is(err, context.Canceled):
		return false
	}
	s.metrics.RecordFetchError(errorKind(err))
	return false
}

func errorKind(err error) string {
	var respErr *secrets.ResponseError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case secrets.IsRequestError(err):
		return "request"
	case errors.As(err, &respErr):
		return "response"
	default:
		return "other"
	}
}
