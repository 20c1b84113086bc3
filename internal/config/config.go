// Package config provides configuration management for vaultprops.
// Settings come from built-in defaults, an optional YAML file and
// environment variables with the VAULTPROPS_ prefix, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conductor/vaultprops/internal/secrets"
)

// Config is the full runtime configuration. Defaults live in Default.
type Config struct {
	Vault         VaultConfig         `yaml:"vault"`
	Source        SourceConfig        `yaml:"source"`
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// VaultConfig selects the secret backend and how to reach it. Fields
// tagged with a provider name are ignored by the others.
type VaultConfig struct {
	// Provider is azure, hashicorp or memory.
	Provider string `yaml:"provider"`
	// URL is the Key Vault URI or the Vault server address.
	URL string `yaml:"url"`

	// azure: a client secret needs both IDs; without one the default
	// credential chain is used.
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// hashicorp: secrets are read from <Mount>/data/<Prefix>/<name> and the
	// value is taken from Field.
	Token     string `yaml:"token"`
	Namespace string `yaml:"namespace"`
	Mount     string `yaml:"mount"`
	Prefix    string `yaml:"prefix"`
	Field     string `yaml:"field"`

	// memory: optional YAML map of name to value.
	MemoryFile string `yaml:"memory_file"`

	// Timeout bounds a single request; MaxRetries applies on top.
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// SourceConfig controls what the property source loads and how often.
type SourceConfig struct {
	// SecretKeys switches the source to targeted mode, loading only these
	// keys. Empty enumerates the whole vault.
	SecretKeys    []string `yaml:"secret_keys"`
	CaseSensitive bool     `yaml:"case_sensitive"`
	// RefreshInterval of 0 disables background refresh.
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`
	// ProbeSecretName is read by the health probe. It need not exist.
	ProbeSecretName string `yaml:"probe_secret_name"`
	// MaxStaleness, when set, degrades readiness once the last successful
	// refresh is older than this.
	MaxStaleness time.Duration `yaml:"max_staleness"`
}

// ServerConfig configures the HTTP listener of the serve command.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig picks the level (debug, info, warn, error) and the format
// (json, console).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObservabilityConfig configures OTLP/HTTP trace export.
type ObservabilityConfig struct {
	TracingEnabled bool `yaml:"tracing_enabled"`
	// TracingEndpoint is a collector host:port such as "localhost:4318".
	TracingEndpoint   string  `yaml:"tracing_endpoint"`
	TracingInsecure   bool    `yaml:"tracing_insecure"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`
	Environment       string  `yaml:"environment"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Vault: VaultConfig{
			Provider:   string(secrets.ProviderAzure),
			Mount:      "secret",
			Field:      "value",
			Timeout:    10 * time.Second,
			MaxRetries: 2,
		},
		Source: SourceConfig{
			FetchConcurrency: 4,
			ProbeSecretName:  "should-not-be-empty",
		},
		Server: ServerConfig{
			HTTPPort:        8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			TracingInsecure:   true,
			TracingSampleRate: 1.0,
			Environment:       "development",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and VAULTPROPS_* environment variables, then
// validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	v, src, srv, obs := &c.Vault, &c.Source, &c.Server, &c.Observability

	fromEnv(&v.Provider, "VAULTPROPS_VAULT_PROVIDER", parseString)
	fromEnv(&v.URL, "VAULTPROPS_VAULT_URL", parseString)
	fromEnv(&v.TenantID, "VAULTPROPS_VAULT_TENANT_ID", parseString)
	fromEnv(&v.ClientID, "VAULTPROPS_VAULT_CLIENT_ID", parseString)
	fromEnv(&v.ClientSecret, "VAULTPROPS_VAULT_CLIENT_SECRET", parseString)
	fromEnv(&v.Token, "VAULTPROPS_VAULT_TOKEN", parseString)
	fromEnv(&v.Namespace, "VAULTPROPS_VAULT_NAMESPACE", parseString)
	fromEnv(&v.Mount, "VAULTPROPS_VAULT_MOUNT", parseString)
	fromEnv(&v.Prefix, "VAULTPROPS_VAULT_PREFIX", parseString)
	fromEnv(&v.Field, "VAULTPROPS_VAULT_FIELD", parseString)
	fromEnv(&v.MemoryFile, "VAULTPROPS_VAULT_MEMORY_FILE", parseString)
	fromEnv(&v.Timeout, "VAULTPROPS_VAULT_TIMEOUT", time.ParseDuration)
	fromEnv(&v.MaxRetries, "VAULTPROPS_VAULT_MAX_RETRIES", strconv.Atoi)

	fromEnv(&src.SecretKeys, "VAULTPROPS_SECRET_KEYS", parseList)
	fromEnv(&src.CaseSensitive, "VAULTPROPS_CASE_SENSITIVE", strconv.ParseBool)
	fromEnv(&src.RefreshInterval, "VAULTPROPS_REFRESH_INTERVAL", time.ParseDuration)
	fromEnv(&src.FetchConcurrency, "VAULTPROPS_FETCH_CONCURRENCY", strconv.Atoi)
	fromEnv(&src.ProbeSecretName, "VAULTPROPS_PROBE_SECRET_NAME", parseString)
	fromEnv(&src.MaxStaleness, "VAULTPROPS_MAX_STALENESS", time.ParseDuration)

	fromEnv(&srv.HTTPPort, "VAULTPROPS_HTTP_PORT", strconv.Atoi)
	fromEnv(&srv.ShutdownTimeout, "VAULTPROPS_SHUTDOWN_TIMEOUT", time.ParseDuration)

	fromEnv(&c.Log.Level, "VAULTPROPS_LOG_LEVEL", parseString)
	fromEnv(&c.Log.Format, "VAULTPROPS_LOG_FORMAT", parseString)

	fromEnv(&obs.TracingEnabled, "VAULTPROPS_TRACING_ENABLED", strconv.ParseBool)
	fromEnv(&obs.TracingEndpoint, "VAULTPROPS_TRACING_ENDPOINT", parseString)
	fromEnv(&obs.TracingInsecure, "VAULTPROPS_TRACING_INSECURE", strconv.ParseBool)
	fromEnv(&obs.TracingSampleRate, "VAULTPROPS_TRACING_SAMPLE_RATE", parseFloat)
	fromEnv(&obs.Environment, "VAULTPROPS_ENVIRONMENT", parseString)
}

// fromEnv overwrites *dst with the parsed value of key. Unset, empty and
// unparsable variables leave *dst alone.
func fromEnv[T any](dst *T, key string, parse func(string) (T, error)) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if v, err := parse(raw); err == nil {
		*dst = v
	}
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// parseList splits a comma-separated list and trims each entry.
func parseList(s string) ([]string, error) {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts, nil
}

// Validate reports every invalid setting at once as a *ValidationError.
func (c *Config) Validate() error {
	var errs []error
	check := func(bad bool, msg string) {
		if bad {
			errs = append(errs, errors.New(msg))
		}
	}

	v := c.Vault
	switch c.Provider() {
	case secrets.ProviderAzure:
		check(v.URL == "", "VAULTPROPS_VAULT_URL is required for the azure provider")
		check(v.ClientSecret != "" && (v.TenantID == "" || v.ClientID == ""),
			"VAULTPROPS_VAULT_TENANT_ID and VAULTPROPS_VAULT_CLIENT_ID are required with a client secret")
	case secrets.ProviderVault:
		check(v.URL == "", "VAULTPROPS_VAULT_URL is required for the hashicorp provider")
		check(v.Token == "", "VAULTPROPS_VAULT_TOKEN is required for the hashicorp provider")
	case secrets.ProviderMemory:
	default:
		check(true, "VAULTPROPS_VAULT_PROVIDER must be one of: azure, hashicorp, memory")
	}
	check(v.Timeout <= 0, "VAULTPROPS_VAULT_TIMEOUT must be greater than 0")
	check(v.MaxRetries < 0, "VAULTPROPS_VAULT_MAX_RETRIES cannot be negative")

	src := c.Source
	for i, key := range src.SecretKeys {
		check(strings.TrimSpace(key) == "", fmt.Sprintf("VAULTPROPS_SECRET_KEYS entry %d is blank", i))
	}
	check(src.RefreshInterval < 0, "VAULTPROPS_REFRESH_INTERVAL cannot be negative")
	check(src.FetchConcurrency < 1, "VAULTPROPS_FETCH_CONCURRENCY must be at least 1")
	check(src.ProbeSecretName == "", "VAULTPROPS_PROBE_SECRET_NAME is required")
	check(src.MaxStaleness < 0, "VAULTPROPS_MAX_STALENESS cannot be negative")

	check(c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535, "VAULTPROPS_HTTP_PORT must be between 1 and 65535")
	check(c.Server.ShutdownTimeout <= 0, "VAULTPROPS_SHUTDOWN_TIMEOUT must be greater than 0")

	check(!slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)),
		"VAULTPROPS_LOG_LEVEL must be one of: debug, info, warn, error")
	check(!slices.Contains([]string{"json", "console"}, strings.ToLower(c.Log.Format)),
		"VAULTPROPS_LOG_FORMAT must be one of: json, console")

	obs := c.Observability
	check(obs.TracingSampleRate < 0 || obs.TracingSampleRate > 1, "VAULTPROPS_TRACING_SAMPLE_RATE must be between 0 and 1")
	check(obs.TracingEnabled && obs.TracingEndpoint == "", "VAULTPROPS_TRACING_ENDPOINT is required when tracing is enabled")

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

// ValidationError collects every problem Validate found. errors.Is and
// errors.As see each of them.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	lines := make([]string, 0, len(e.Errors)+1)
	lines = append(lines, fmt.Sprintf("%d validation errors:", len(e.Errors)))
	for i, err := range e.Errors {
		lines = append(lines, fmt.Sprintf("  %d. %v", i+1, err))
	}
	return strings.Join(lines, "\n")
}

func (e *ValidationError) Unwrap() []error { return e.Errors }

// Provider returns the configured backend.
func (c *Config) Provider() secrets.Provider {
	return secrets.Provider(strings.ToLower(c.Vault.Provider))
}

// Targeted reports whether only the configured keys are loaded.
func (c *Config) Targeted() bool {
	return len(c.Source.SecretKeys) > 0
}
