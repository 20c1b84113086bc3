package propertysource

import (
	"context"
	"fmt"
	"time"
)

// startRefresher runs scheduled refreshes until Close.
func (s *Source) startRefresher(ctx context.Context, interval time.Duration) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.refresher(ctx, interval)
}

// refresher fires at start + n*interval. Firings missed while a refresh
// overran are dropped.
func (s *Source) refresher(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	start := s.clock.Now()
	timer := s.clock.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
		}

		if err := s.scheduledRefresh(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("scheduled refresh failed")
		}

		now := s.clock.Now()
		timer.Reset(nextFiring(start, interval, now).Sub(now))
	}
}

// scheduledRefresh turns a panic in the client into an error so the
// refresher keeps running.
func (s *Source) scheduledRefresh(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
		}
	}()
	return s.refresh(ctx, triggerScheduled)
}

// nextFiring returns the first instant start + n*interval after now.
func nextFiring(start time.Time, interval time.Duration, now time.Time) time.Time {
	if now.Before(start) {
		return start.Add(interval)
	}
	n := now.Sub(start)/interval + 1
	return start.Add(n * interval)
}

// Close stops the background refresher and waits for it to exit. The
// snapshot stays readable. Close is idempotent.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		<-s.done
		s.log.Debug().Msg("refresher stopped")
	})
	return nil
}
