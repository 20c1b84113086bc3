package health

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/juju/clock"
)

// VaultSource is the view of a property source the vault check needs.
type VaultSource interface {
	// IsUp probes the vault.
	IsUp(ctx context.Context) bool
	// Len returns the number of secrets currently served.
	Len() int
	// LastRefresh returns when the served snapshot was loaded.
	LastRefresh() time.Time
}

// VaultCheck checks that the vault answers and that the served secrets
// are not stale.
type VaultCheck struct {
	source       VaultSource
	maxStaleness time.Duration
	clock        clock.Clock
}

// VaultCheckOption configures a VaultCheck.
type VaultCheckOption func(*VaultCheck)

// WithMaxStaleness sets the snapshot age above which the check reports
// degraded status. Zero disables the staleness check.
func WithMaxStaleness(d time.Duration) VaultCheckOption {
	return func(c *VaultCheck) {
		c.maxStaleness = d
	}
}

// WithClock sets the clock used to age the snapshot.
func WithClock(clk clock.Clock) VaultCheckOption {
	return func(c *VaultCheck) {
		c.clock = clk
	}
}

// NewVaultCheck creates a new vault health check.
func NewVaultCheck(source VaultSource, opts ...VaultCheckOption) *VaultCheck {
	c := &VaultCheck{
		source: source,
		clock:  clock.WallClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of the health check.
func (c *VaultCheck) Name() string {
	return "vault"
}

// Check reports an error when the vault is down.
func (c *VaultCheck) Check(ctx context.Context) error {
	if !c.source.IsUp(ctx) {
		return errors.New("vault is not reachable")
	}
	return nil
}

// CheckDetailed performs a detailed health check and returns a Result.
func (c *VaultCheck) CheckDetailed(ctx context.Context) Result {
	if !c.source.IsUp(ctx) {
		return Result{
			Name:    c.Name(),
			Status:  StatusUnhealthy,
			Message: "vault is not reachable",
		}
	}

	last := c.source.LastRefresh()
	age := c.clock.Now().Sub(last)
	details := map[string]string{
		"secrets":      strconv.Itoa(c.source.Len()),
		"last_refresh": last.UTC().Format(time.RFC3339),
		"age":          age.Truncate(time.Second).String(),
	}

	if c.maxStaleness > 0 && age > c.maxStaleness {
		return Result{
			Name:    c.Name(),
			Status:  StatusDegraded,
			Message: "secrets are stale, last refresh " + age.Truncate(time.Second).String() + " ago",
			Details: details,
		}
	}

	return Result{
		Name:    c.Name(),
		Status:  StatusHealthy,
		Message: "vault is reachable",
		Details: details,
	}
}
