package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault serves a minimal KV v2 API for a single mount.
type fakeVault struct {
	entries map[string]string
	status  int // forced status for data reads, 0 = normal
	wrapped atomic.Int32
}

func (f *fakeVault) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/secret/metadata/"):
			keys := []string{"nested/"}
			for name := range f.entries {
				keys = append(keys, strings.TrimPrefix(name, "apps/"))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"keys": keys}})
		case strings.HasPrefix(r.URL.Path, "/v1/secret/data/"):
			if f.status != 0 {
				w.WriteHeader(f.status)
				_, _ = w.Write([]byte(`{"errors":["forced"]}`))
				return
			}
			name := strings.TrimPrefix(r.URL.Path, "/v1/secret/data/")
			value, ok := f.entries[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"errors":[]}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"data": map[string]any{"value": value},
					"metadata": map[string]any{
						"created_time":  "2024-01-01T00:00:00Z",
						"deletion_time": "",
						"destroyed":     false,
						"version":       3,
					},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestVaultClient(t *testing.T, f *fakeVault) *VaultClient {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	c, err := NewVaultClient(VaultConfig{
		Address: srv.URL,
		Token:   "test-token",
		Prefix:  "apps",
		WrapTransport: func(next http.RoundTripper) http.RoundTripper {
			f.wrapped.Add(1)
			return next
		},
	})
	require.NoError(t, err)
	return c
}

func TestNewVaultClient_Validation(t *testing.T) {
	_, err := NewVaultClient(VaultConfig{Token: "x"})
	assert.EqualError(t, err, "vault address is required")

	_, err = NewVaultClient(VaultConfig{Address: "http://127.0.0.1:8200"})
	assert.EqualError(t, err, "vault token is required")
}

func TestVaultClient_GetSecret(t *testing.T) {
	f := &fakeVault{entries: map[string]string{"apps/db-password": "s3cr3t"}}
	c := newTestVaultClient(t, f)

	s, err := c.GetSecret(context.Background(), "db-password", "")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", s.Value)
	assert.Equal(t, "3", s.Version)
	assert.Equal(t, int32(1), f.wrapped.Load())
}

func TestVaultClient_GetSecret_NotFound(t *testing.T) {
	c := newTestVaultClient(t, &fakeVault{entries: map[string]string{}})

	_, err := c.GetSecret(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVaultClient_GetSecret_InvalidName(t *testing.T) {
	c := newTestVaultClient(t, &fakeVault{})

	_, err := c.GetSecret(context.Background(), "a/b", "")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = c.GetSecret(context.Background(), "a", "latest")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVaultClient_GetSecret_Forbidden(t *testing.T) {
	c := newTestVaultClient(t, &fakeVault{status: http.StatusForbidden})

	_, err := c.GetSecret(context.Background(), "db-password", "")
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusForbidden, respErr.StatusCode)
}

func TestVaultClient_List(t *testing.T) {
	f := &fakeVault{entries: map[string]string{"apps/db-password": "s3cr3t", "apps/api-key": "k"}}
	c := newTestVaultClient(t, f)

	pages := drain(t, c.ListSecretProperties())
	require.Len(t, pages, 1)

	var names []string
	for _, p := range pages[0] {
		names = append(names, p.Name)
		assert.True(t, p.Enabled)
	}
	assert.ElementsMatch(t, []string{"db-password", "api-key"}, names)
}

func TestVaultClient_GetSecretWithResponse(t *testing.T) {
	f := &fakeVault{entries: map[string]string{"apps/db-password": "s3cr3t"}}
	c := newTestVaultClient(t, f)

	resp, err := c.GetSecretWithResponse(context.Background(), "db-password", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, resp.Secret)
	assert.Equal(t, "s3cr3t", resp.Secret.Value)

	_, err = c.GetSecretWithResponse(context.Background(), "should-not-be-empty", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVaultClient_RequestError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := NewVaultClient(VaultConfig{Address: addr, Token: "test-token"})
	require.NoError(t, err)

	_, err = c.GetSecret(context.Background(), "db-password", "")
	assert.True(t, IsRequestError(err), "got %v", err)
}
