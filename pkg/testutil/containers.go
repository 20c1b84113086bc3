// Package testutil provides test utilities and helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/conductor/vaultprops/internal/config"
	"github.com/conductor/vaultprops/internal/secrets"
)

// VaultContainer wraps a HashiCorp Vault dev server. The dev server
// mounts a KV v2 engine at secret/.
type VaultContainer struct {
	Container testcontainers.Container
	Address   string
	Token     string

	client *api.Client
}

// VaultContainerConfig holds configuration for creating a vault container.
type VaultContainerConfig struct {
	Token    string
	ImageTag string
}

// DefaultVaultConfig returns a default vault container configuration.
func DefaultVaultConfig() VaultContainerConfig {
	return VaultContainerConfig{
		Token:    "vaultprops-root",
		ImageTag: "1.15",
	}
}

// NewVaultContainer starts a vault dev server.
func NewVaultContainer(ctx context.Context, cfg VaultContainerConfig) (*VaultContainer, error) {
	if cfg.Token == "" {
		cfg = DefaultVaultConfig()
	}

	req := testcontainers.ContainerRequest{
		Image:        fmt.Sprintf("hashicorp/vault:%s", cfg.ImageTag),
		ExposedPorts: []string{"8200/tcp"},
		Env: map[string]string{
			"VAULT_DEV_ROOT_TOKEN_ID":  cfg.Token,
			"VAULT_DEV_LISTEN_ADDRESS": "0.0.0.0:8200",
			"SKIP_SETCAP":              "true",
		},
		WaitingFor: wait.ForHTTP("/v1/sys/health").WithPort("8200").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start vault container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "8200")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	address := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	apiCfg := api.DefaultConfig()
	apiCfg.Address = address
	client, err := api.NewClient(apiCfg)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &VaultContainer{
		Container: container,
		Address:   address,
		Token:     cfg.Token,
		client:    client,
	}, nil
}

// PutSecret writes value under the field vaultprops reads by default.
func (c *VaultContainer) PutSecret(ctx context.Context, name, value string) error {
	_, err := c.client.KVv2("secret").Put(ctx, name, map[string]interface{}{"value": value})
	if err != nil {
		return fmt.Errorf("put secret %s: %w", name, err)
	}
	return nil
}

// DeleteSecret removes every version of the named secret.
func (c *VaultContainer) DeleteSecret(ctx context.Context, name string) error {
	if err := c.client.KVv2("secret").DeleteMetadata(ctx, name); err != nil {
		return fmt.Errorf("delete secret %s: %w", name, err)
	}
	return nil
}

// Terminate stops and removes the container.
func (c *VaultContainer) Terminate(ctx context.Context) error {
	if c.Container != nil {
		return c.Container.Terminate(ctx)
	}
	return nil
}

// Config returns a configuration pointing vaultprops at the container.
func (c *VaultContainer) Config() *config.Config {
	cfg := config.Default()
	cfg.Vault.Provider = string(secrets.ProviderVault)
	cfg.Vault.URL = c.Address
	cfg.Vault.Token = c.Token
	cfg.Vault.Timeout = 5 * time.Second
	cfg.Vault.MaxRetries = 0
	cfg.Log.Level = "debug"
	return cfg
}

// IsDockerAvailable checks if Docker is available for running containers.
func IsDockerAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			// testcontainers panics when it cannot resolve a Docker host.
			available = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}

	return provider.Health(ctx) == nil
}
