// Package secrets defines the vault client capability consumed by the
// property source and provides adapters for concrete secret stores.
package secrets

import (
	"context"
	"errors"
	"fmt"
)

// Provider identifies the secret backend.
type Provider string

const (
	ProviderAzure  Provider = "azure"
	ProviderVault  Provider = "hashicorp"
	ProviderMemory Provider = "memory"
)

var (
	// ErrNotFound is returned when the requested secret does not exist.
	ErrNotFound = errors.New("secrets: not found")
	// ErrInvalidName is returned for names a store cannot address.
	ErrInvalidName = errors.New("secrets: invalid secret name")
)

// SecretProperties identifies one secret version without its value.
type SecretProperties struct {
	Name    string
	Version string
	Enabled bool
}

// Secret is a resolved secret value.
type Secret struct {
	Name    string
	Version string
	Value   string
}

// Response carries the transport status alongside the secret, if any.
type Response struct {
	StatusCode int
	Secret     *Secret
}

// PropertiesPager walks a paged listing of secret identifiers.
type PropertiesPager interface {
	More() bool
	NextPage(ctx context.Context) ([]SecretProperties, error)
}

// Client is the subset of a vault API the property source relies on.
//
// GetSecret returns ErrNotFound when the secret is absent. An empty version
// selects the latest one.
type Client interface {
	ListSecretProperties() PropertiesPager
	GetSecret(ctx context.Context, name, version string) (*Secret, error)
	GetSecretWithResponse(ctx context.Context, name, version string) (*Response, error)
}

// RequestError reports a failure to complete a request at all: dial
// errors, TLS failures, timeouts, broken connections.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ResponseError reports a completed request the vault answered with an
// unexpected status.
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("vault returned status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("vault returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("vault returned status %d", e.StatusCode)
}

// IsRequestError reports whether err is, or wraps, a RequestError.
func IsRequestError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr)
}

// slicePager serves pre-fetched pages.
type slicePager struct {
	pages [][]SecretProperties
	next  int
}

// NewSlicePager returns a pager over the given pages.
func NewSlicePager(pages ...[]SecretProperties) PropertiesPager {
	return &slicePager{pages: pages}
}

func (p *slicePager) More() bool {
	return p.next < len(p.pages)
}

func (p *slicePager) NextPage(ctx context.Context) ([]SecretProperties, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.More() {
		return nil, nil
	}
	page := p.pages[p.next]
	p.next++
	return page, nil
}
