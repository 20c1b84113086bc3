package secrets

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/conductor/vaultprops/internal/naming"
)

const defaultMemoryPageSize = 25

// memorySecret keeps every value ever set. Version n is history[n-1].
type memorySecret struct {
	history []string
	enabled bool
}

func (s memorySecret) version() int { return len(s.history) }

// MemoryClient is an in-process Client, used for local development and
// tests. Each Set creates a new version of the secret; earlier versions
// stay readable, as they do in Key Vault.
type MemoryClient struct {
	mu       sync.RWMutex
	secrets  map[string]memorySecret
	pageSize int
}

// NewMemoryClient creates a MemoryClient seeded with the given values.
func NewMemoryClient(values map[string]string) *MemoryClient {
	c := &MemoryClient{
		secrets:  make(map[string]memorySecret, len(values)),
		pageSize: defaultMemoryPageSize,
	}
	for name, value := range values {
		c.secrets[name] = memorySecret{history: []string{value}, enabled: true}
	}
	return c
}

// memoryFile is the on-disk layout read by LoadMemoryFile.
type memoryFile struct {
	Secrets map[string]string `yaml:"secrets"`
}

// LoadMemoryFile reads a YAML document of the form
//
//	secrets:
//	  db-password: s3cr3t
//
// into a MemoryClient. Every name must already be vault-legal.
func LoadMemoryFile(path string) (*MemoryClient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	var file memoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid secrets file: %w", err)
	}
	for name := range file.Secrets {
		if !naming.Valid(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return NewMemoryClient(file.Secrets), nil
}

// Set stores a new version of the named secret.
func (c *MemoryClient) Set(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.secrets[name]
	c.secrets[name] = memorySecret{history: append(s.history[:len(s.history):len(s.history)], value), enabled: true}
}

// Delete removes the named secret.
func (c *MemoryClient) Delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, name)
}

// SetEnabled toggles whether the secret value can be read.
func (c *MemoryClient) SetEnabled(name string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.secrets[name]; ok {
		s.enabled = enabled
		c.secrets[name] = s
	}
}

// SetPageSize changes how many identifiers each listing page holds.
func (c *MemoryClient) SetPageSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.pageSize = n
	}
}

// ListSecretProperties returns a pager over a point-in-time listing,
// ordered by name.
func (c *MemoryClient) ListSecretProperties() PropertiesPager {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.secrets))
	for name := range c.secrets {
		names = append(names, name)
	}
	sort.Strings(names)

	var pages [][]SecretProperties
	for start := 0; start < len(names); start += c.pageSize {
		end := min(start+c.pageSize, len(names))
		page := make([]SecretProperties, 0, end-start)
		for _, name := range names[start:end] {
			s := c.secrets[name]
			page = append(page, SecretProperties{
				Name:    name,
				Version: strconv.Itoa(s.version()),
				Enabled: s.enabled,
			})
		}
		pages = append(pages, page)
	}
	return NewSlicePager(pages...)
}

// GetSecret returns the latest version of the secret, or the given
// version when one is requested. Unknown names and versions yield
// ErrNotFound.
func (c *MemoryClient) GetSecret(ctx context.Context, name, version string) (*Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RequestError{Op: "get secret", Err: err}
	}

	c.mu.RLock()
	s, ok := c.secrets[name]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	n := s.version()
	if version != "" {
		v, err := strconv.Atoi(version)
		if err != nil || v < 1 || v > s.version() {
			return nil, ErrNotFound
		}
		n = v
	}
	if !s.enabled {
		return nil, &ResponseError{StatusCode: http.StatusForbidden, Code: "Forbidden", Message: "secret is disabled"}
	}
	return &Secret{Name: name, Version: strconv.Itoa(n), Value: s.history[n-1]}, nil
}

// GetSecretWithResponse behaves like GetSecret and reports a 200 status on
// success.
func (c *MemoryClient) GetSecretWithResponse(ctx context.Context, name, version string) (*Response, error) {
	secret, err := c.GetSecret(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: http.StatusOK, Secret: secret}, nil
}
