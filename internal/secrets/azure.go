package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/conductor/vaultprops/internal/naming"
)

// AzureConfig configures an Azure Key Vault client.
type AzureConfig struct {
	// VaultURL is the vault endpoint, e.g. https://myvault.vault.azure.net/.
	VaultURL string
	// TenantID, ClientID and ClientSecret select service principal
	// authentication. When ClientSecret is empty the default credential
	// chain (environment, workload identity, managed identity, CLI) is used.
	TenantID     string
	ClientID     string
	ClientSecret string
	// MaxRetries bounds the SDK's retry policy (default: 3).
	MaxRetries int32
	// Timeout bounds each attempt (default: 10s).
	Timeout time.Duration
}

// AzureClient adapts azsecrets.Client to Client.
type AzureClient struct {
	client *azsecrets.Client
}

// NewAzureClient creates an Azure Key Vault client.
func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	if cfg.VaultURL == "" {
		return nil, errors.New("azure vault url is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	credential, err := azureCredential(cfg)
	if err != nil {
		return nil, fmt.Errorf("create azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(cfg.VaultURL, credential, &azsecrets.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries: cfg.MaxRetries,
				TryTimeout: cfg.Timeout,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create azure secrets client: %w", err)
	}
	return &AzureClient{client: client}, nil
}

func azureCredential(cfg AzureConfig) (azcore.TokenCredential, error) {
	if cfg.ClientSecret != "" {
		return azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	}
	opts := &azidentity.DefaultAzureCredentialOptions{TenantID: cfg.TenantID}
	return azidentity.NewDefaultAzureCredential(opts)
}

// ListSecretProperties pages through every secret in the vault.
func (c *AzureClient) ListSecretProperties() PropertiesPager {
	return &azurePager{pager: c.client.NewListSecretPropertiesPager(nil)}
}

// GetSecret fetches a secret value by name and version.
func (c *AzureClient) GetSecret(ctx context.Context, name, version string) (*Secret, error) {
	if !naming.Valid(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	resp, err := c.client.GetSecret(ctx, name, version, nil)
	if err != nil {
		return nil, translateAzureError("get secret", err)
	}
	return fromAzureSecret(name, resp.Secret), nil
}

// GetSecretWithResponse fetches a secret and reports the HTTP status the
// vault answered with.
func (c *AzureClient) GetSecretWithResponse(ctx context.Context, name, version string) (*Response, error) {
	if !naming.Valid(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	var raw *http.Response
	resp, err := c.client.GetSecret(runtime.WithCaptureResponse(ctx, &raw), name, version, nil)
	if err != nil {
		return nil, translateAzureError("get secret", err)
	}
	out := &Response{StatusCode: http.StatusOK, Secret: fromAzureSecret(name, resp.Secret)}
	if raw != nil {
		out.StatusCode = raw.StatusCode
	}
	return out, nil
}

type azurePager struct {
	pager *runtime.Pager[azsecrets.ListSecretPropertiesResponse]
}

func (p *azurePager) More() bool {
	return p.pager.More()
}

func (p *azurePager) NextPage(ctx context.Context) ([]SecretProperties, error) {
	page, err := p.pager.NextPage(ctx)
	if err != nil {
		return nil, translateAzureError("list secrets", err)
	}
	return fromAzureProperties(page.Value), nil
}

func fromAzureProperties(items []*azsecrets.SecretProperties) []SecretProperties {
	out := make([]SecretProperties, 0, len(items))
	for _, item := range items {
		if item == nil || item.ID == nil {
			continue
		}
		enabled := true
		if item.Attributes != nil && item.Attributes.Enabled != nil {
			enabled = *item.Attributes.Enabled
		}
		out = append(out, SecretProperties{
			Name:    item.ID.Name(),
			Version: item.ID.Version(),
			Enabled: enabled,
		})
	}
	return out
}

func fromAzureSecret(name string, s azsecrets.Secret) *Secret {
	out := &Secret{Name: name}
	if s.ID != nil {
		out.Name = s.ID.Name()
		out.Version = s.ID.Version()
	}
	if s.Value != nil {
		out.Value = *s.Value
	}
	return out
}

// translateAzureError maps SDK errors onto the package error model:
// 404 becomes ErrNotFound, other HTTP answers become ResponseError,
// authentication failures pass through unchanged and everything else is
// treated as a request-level failure.
func translateAzureError(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return &ResponseError{
			StatusCode: respErr.StatusCode,
			Code:       respErr.ErrorCode,
			Message:    strings.ToLower(http.StatusText(respErr.StatusCode)),
		}
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return &RequestError{Op: op, Err: err}
}
