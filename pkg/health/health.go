// Package health answers whether the vault behind a property source can
// still be reached, for readiness probes and the check command.
package health

import "context"

// Check is a named probe that fails with an error when its dependency is
// unusable.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// Status is the verdict of a probe.
type Status string

// Degraded means the vault answers but the data served is stale.
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Result is the JSON body of /readyz and of `vaultprops check -o json`.
type Result struct {
	Name    string            `json:"name"`
	Status  Status            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

var _ Check = (*VaultCheck)(nil)
