package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

const (
	defaultVaultMount = "secret"
	defaultVaultField = "value"
)

// VaultConfig configures a HashiCorp Vault KV v2 client.
type VaultConfig struct {
	Address   string
	Token     string
	Namespace string
	// Mount is the KV v2 mount path (default: secret).
	Mount string
	// Prefix is prepended to every secret name, e.g. "apps/billing".
	Prefix string
	// Field is the key inside each KV entry holding the value (default: value).
	Field      string
	Timeout    time.Duration
	MaxRetries int
	// WrapTransport, when set, decorates the HTTP transport (tracing).
	WrapTransport func(http.RoundTripper) http.RoundTripper
}

// VaultClient adapts a Vault KV v2 mount to Client. Each secret is one KV
// entry whose Field holds the value.
type VaultClient struct {
	client *api.Client
	kv     *api.KVv2
	mount  string
	prefix string
	field  string
}

// NewVaultClient creates a new Vault-backed client.
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if cfg.Address == "" {
		return nil, errors.New("vault address is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("vault token is required")
	}
	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = defaultVaultMount
	}
	field := cfg.Field
	if field == "" {
		field = defaultVaultField
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = strings.TrimRight(cfg.Address, "/")
	apiCfg.Timeout = cfg.Timeout
	apiCfg.MaxRetries = cfg.MaxRetries
	if cfg.WrapTransport != nil {
		apiCfg.HttpClient.Transport = cfg.WrapTransport(apiCfg.HttpClient.Transport)
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &VaultClient{
		client: client,
		kv:     client.KVv2(mount),
		mount:  mount,
		prefix: prefix,
		field:  field,
	}, nil
}

// ListSecretProperties lists the entries directly under the prefix.
// Vault returns the whole listing at once, so the pager holds one page.
func (v *VaultClient) ListSecretProperties() PropertiesPager {
	return &vaultPager{v: v}
}

// GetSecret fetches a secret value from Vault.
func (v *VaultClient) GetSecret(ctx context.Context, name, version string) (*Secret, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	var (
		kvSecret *api.KVSecret
		err      error
	)
	path := v.prefix + name
	if version == "" {
		kvSecret, err = v.kv.Get(ctx, path)
	} else {
		n, convErr := strconv.Atoi(version)
		if convErr != nil {
			return nil, fmt.Errorf("version %q: %w", version, ErrNotFound)
		}
		kvSecret, err = v.kv.GetVersion(ctx, path, n)
	}
	if err != nil {
		return nil, translateVaultError("get secret", err)
	}
	return v.secretFromData(name, kvSecret.Data, kvSecret.VersionMetadata)
}

// GetSecretWithResponse reads the raw KV entry so the HTTP status is
// visible to the caller.
func (v *VaultClient) GetSecretWithResponse(ctx context.Context, name, version string) (*Response, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	path := fmt.Sprintf("%s/data/%s%s", v.mount, v.prefix, name)
	var query map[string][]string
	if version != "" {
		query = map[string][]string{"version": {version}}
	}

	resp, err := v.client.Logical().ReadRawWithDataWithContext(ctx, path, query)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, translateVaultError("get secret", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("get secret: %w", ErrNotFound)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &Response{StatusCode: resp.StatusCode}, nil
	}

	secret, err := api.ParseSecret(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode vault response: %w", err)
	}
	out := &Response{StatusCode: resp.StatusCode}
	if secret != nil {
		if data, ok := secret.Data["data"].(map[string]interface{}); ok {
			if s, err := v.secretFromData(name, data, nil); err == nil {
				out.Secret = s
			}
		}
	}
	return out, nil
}

func (v *VaultClient) secretFromData(name string, data map[string]interface{}, meta *api.KVVersionMetadata) (*Secret, error) {
	raw, ok := data[v.field]
	if !ok {
		return nil, fmt.Errorf("vault key %q not found for %s: %w", v.field, name, ErrNotFound)
	}
	value, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("vault key %q for %s is not a string", v.field, name)
	}
	s := &Secret{Name: name, Value: value}
	if meta != nil {
		s.Version = strconv.Itoa(meta.Version)
	}
	return s, nil
}

func (v *VaultClient) list(ctx context.Context) ([]SecretProperties, error) {
	path := fmt.Sprintf("%s/metadata/%s", v.mount, v.prefix)
	secret, err := v.client.Logical().ListWithContext(ctx, path)
	if err != nil {
		return nil, translateVaultError("list secrets", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	keys, _ := secret.Data["keys"].([]interface{})
	out := make([]SecretProperties, 0, len(keys))
	for _, k := range keys {
		name, ok := k.(string)
		// Trailing slashes mark nested folders.
		if !ok || strings.HasSuffix(name, "/") {
			continue
		}
		out = append(out, SecretProperties{Name: name, Enabled: true})
	}
	return out, nil
}

type vaultPager struct {
	v    *VaultClient
	done bool
}

func (p *vaultPager) More() bool {
	return !p.done
}

func (p *vaultPager) NextPage(ctx context.Context) ([]SecretProperties, error) {
	if p.done {
		return nil, nil
	}
	page, err := p.v.list(ctx)
	if err != nil {
		return nil, err
	}
	p.done = true
	return page, nil
}

// translateVaultError maps Vault API errors onto the package error model.
func translateVaultError(op string, err error) error {
	if errors.Is(err, api.ErrSecretNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var apiErr *api.ResponseError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return &ResponseError{
			StatusCode: apiErr.StatusCode,
			Message:    strings.Join(apiErr.Errors, ", "),
		}
	}
	return &RequestError{Op: op, Err: err}
}
