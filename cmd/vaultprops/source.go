package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/conductor/vaultprops/internal/config"
	"github.com/conductor/vaultprops/internal/propertysource"
	"github.com/conductor/vaultprops/internal/secrets"
	"github.com/conductor/vaultprops/pkg/log"
)

// loadConfig reads the configuration and applies the log flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg *config.Config, w io.Writer) log.Logger {
	return log.NewWithWriter(cfg.Log.Level, cfg.Log.Format, w).With("service", "vaultprops")
}

// newClient builds the secrets client for the configured provider.
// wrap decorates the HTTP transport where the provider allows it.
func newClient(cfg *config.Config, wrap func(http.RoundTripper) http.RoundTripper) (secrets.Client, error) {
	v := cfg.Vault
	switch cfg.Provider() {
	case secrets.ProviderAzure:
		return secrets.NewAzureClient(secrets.AzureConfig{
			VaultURL:     v.URL,
			TenantID:     v.TenantID,
			ClientID:     v.ClientID,
			ClientSecret: v.ClientSecret,
			MaxRetries:   int32(v.MaxRetries),
			Timeout:      v.Timeout,
		})
	case secrets.ProviderVault:
		return secrets.NewVaultClient(secrets.VaultConfig{
			Address:       v.URL,
			Token:         v.Token,
			Namespace:     v.Namespace,
			Mount:         v.Mount,
			Prefix:        v.Prefix,
			Field:         v.Field,
			Timeout:       v.Timeout,
			MaxRetries:    v.MaxRetries,
			WrapTransport: wrap,
		})
	case secrets.ProviderMemory:
		if v.MemoryFile == "" {
			return secrets.NewMemoryClient(nil), nil
		}
		return secrets.LoadMemoryFile(v.MemoryFile)
	default:
		return nil, fmt.Errorf("unknown vault provider %q", v.Provider)
	}
}

// sourceOptions maps the source settings onto propertysource.Options.
func sourceOptions(cfg *config.Config, logger log.Logger) propertysource.Options {
	return propertysource.Options{
		SecretKeys:       cfg.Source.SecretKeys,
		CaseSensitive:    cfg.Source.CaseSensitive,
		RefreshInterval:  cfg.Source.RefreshInterval,
		FetchConcurrency: cfg.Source.FetchConcurrency,
		ProbeSecretName:  cfg.Source.ProbeSecretName,
		Logger:           logger,
	}
}

// openClient loads the configuration and builds the logger and the
// secrets client for the one-shot commands.
func openClient(errOut io.Writer) (*config.Config, log.Logger, secrets.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := newClient(cfg, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create secrets client: %w", err)
	}
	return cfg, newLogger(cfg, errOut), client, nil
}

// newOneShotSource performs one refresh with the background refresher
// disabled. Callers must Close the source.
func newOneShotSource(ctx context.Context, cfg *config.Config, logger log.Logger, client secrets.Client) (*propertysource.Source, error) {
	opts := sourceOptions(cfg, logger)
	opts.RefreshInterval = 0
	return propertysource.New(ctx, client, opts)
}

// openSource loads the configuration and performs one refresh.
func openSource(ctx context.Context, errOut io.Writer) (*propertysource.Source, error) {
	cfg, logger, client, err := openClient(errOut)
	if err != nil {
		return nil, err
	}
	return newOneShotSource(ctx, cfg, logger, client)
}
