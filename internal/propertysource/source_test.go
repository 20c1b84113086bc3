package propertysource

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/conductor/vaultprops/internal/secrets"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClient wraps a MemoryClient with injectable failures.
type fakeClient struct {
	*secrets.MemoryClient

	mu       sync.Mutex
	nilPager bool
	listErr  error
	getHook  func(name string) error
	probe    func(name string) (*secrets.Response, error)

	gets atomic.Int64
}

func newFakeClient(values map[string]string) *fakeClient {
	return &fakeClient{MemoryClient: secrets.NewMemoryClient(values)}
}

func (f *fakeClient) setGetHook(hook func(name string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getHook = hook
}

func (f *fakeClient) ListSecretProperties() secrets.PropertiesPager {
	f.mu.Lock()
	nilPager, listErr := f.nilPager, f.listErr
	f.mu.Unlock()

	if nilPager {
		return nil
	}
	if listErr != nil {
		return &errPager{err: listErr}
	}
	return f.MemoryClient.ListSecretProperties()
}

func (f *fakeClient) GetSecret(ctx context.Context, name, version string) (*secrets.Secret, error) {
	f.gets.Add(1)
	f.mu.Lock()
	hook := f.getHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(name); err != nil {
			return nil, err
		}
	}
	return f.MemoryClient.GetSecret(ctx, name, version)
}

func (f *fakeClient) GetSecretWithResponse(ctx context.Context, name, version string) (*secrets.Response, error) {
	f.mu.Lock()
	probe := f.probe
	f.mu.Unlock()

	if probe != nil {
		return probe(name)
	}
	return f.MemoryClient.GetSecretWithResponse(ctx, name, version)
}

type errPager struct {
	err  error
	done bool
}

func (p *errPager) More() bool { return !p.done }

func (p *errPager) NextPage(context.Context) ([]secrets.SecretProperties, error) {
	p.done = true
	return nil, p.err
}

type refreshRecord struct {
	mode string
	err  error
	size int
}

// fakeRecorder captures what the source reports.
type fakeRecorder struct {
	mu          sync.Mutex
	refreshes   []refreshRecord
	fetchErrors []string
	probes      []bool
}

func (r *fakeRecorder) RecordRefresh(mode string, err error, _ time.Duration, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes = append(r.refreshes, refreshRecord{mode: mode, err: err, size: size})
}

func (r *fakeRecorder) RecordFetchError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchErrors = append(r.fetchErrors, kind)
}

func (r *fakeRecorder) RecordProbe(up bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, up)
}

func (r *fakeRecorder) refreshCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refreshes)
}

func (r *fakeRecorder) lastRefresh() refreshRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes[len(r.refreshes)-1]
}

func newSource(t *testing.T, client secrets.Client, opts Options) *Source {
	t.Helper()
	s, err := New(context.Background(), client, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	assert.EqualError(t, err, "propertysource: client is required")

	for _, keys := range [][]string{{""}, {"db-password", "   "}, {"\t"}} {
		client := newFakeClient(nil)
		_, err := New(context.Background(), client, Options{SecretKeys: keys})
		assert.ErrorIs(t, err, ErrInvalidKey, "keys %q", keys)
		assert.Zero(t, client.gets.Load(), "vault must not be contacted for keys %q", keys)
	}
}

func TestNew_Defaults(t *testing.T) {
	s := newSource(t, newFakeClient(nil), Options{})

	assert.Equal(t, ModeEnumerate, s.Mode())
	assert.Equal(t, defaultFetchConcurrency, s.concurrency)
	assert.Equal(t, DefaultProbeSecretName, s.probeName)
	assert.False(t, s.CaseSensitive())
	assert.Nil(t, s.done, "no refresher without an interval")

	s = newSource(t, newFakeClient(nil), Options{SecretKeys: []string{"a"}, ProbeSecretName: "ping", FetchConcurrency: 9})
	assert.Equal(t, ModeTargeted, s.Mode())
	assert.Equal(t, 9, s.concurrency)
	assert.Equal(t, "ping", s.probeName)
}

func TestNew_InitialRefreshError(t *testing.T) {
	client := newFakeClient(map[string]string{"db-password": "s3cr3t"})
	client.setGetHook(func(string) error {
		return &secrets.ResponseError{StatusCode: http.StatusForbidden}
	})

	_, err := New(context.Background(), client, Options{})
	require.Error(t, err)

	var respErr *secrets.ResponseError
	assert.ErrorAs(t, err, &respErr)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "enumerate", ModeEnumerate.String())
	assert.Equal(t, "targeted", ModeTargeted.String())
	assert.Equal(t, "Mode(7)", Mode(7).String())
}

func TestTargeted_RelaxedKeyResolves(t *testing.T) {
	client := newFakeClient(map[string]string{"acme-myproject-person-firstname": "Alice"})
	s := newSource(t, client, Options{SecretKeys: []string{"acme.myProject.person.firstName"}})

	v, ok := s.GetProperty("acme.myProject.person.firstName")
	require.True(t, ok)
	assert.Equal(t, "Alice", v)

	for _, name := range []string{"acme.my-project.person.first-name", "acme.my_project.person.first_name", "acme-myproject-person-firstname"} {
		v, ok := s.GetProperty(name)
		assert.True(t, ok, name)
		assert.Equal(t, "Alice", v, name)
	}
}

func TestTargeted_UpperSnakeKey(t *testing.T) {
	client := newFakeClient(map[string]string{"db-password": "s3cr3t"})
	s := newSource(t, client, Options{SecretKeys: []string{"DB_PASSWORD"}})

	for _, name := range []string{"DB_PASSWORD", "db-password", "db.password", "Db-Password"} {
		v, ok := s.GetProperty(name)
		assert.True(t, ok, name)
		assert.Equal(t, "s3cr3t", v, name)
	}
	assert.Equal(t, []string{"DB_PASSWORD"}, s.GetPropertyNames())
}

func TestTargeted_MissingKeySkipped(t *testing.T) {
	client := newFakeClient(map[string]string{"present": "yes"})
	s := newSource(t, client, Options{SecretKeys: []string{"present", "absent"}})

	assert.Equal(t, 1, s.Len())
	_, ok := s.GetProperty("absent")
	assert.False(t, ok)
	assert.Equal(t, []string{"present"}, s.GetPropertyNames())
}

func TestTargeted_CaseSensitive(t *testing.T) {
	client := newFakeClient(map[string]string{"Db-Password": "s3cr3t"})
	s := newSource(t, client, Options{SecretKeys: []string{"Db-Password"}, CaseSensitive: true})

	v, ok := s.GetProperty("Db-Password")
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", v)

	_, ok = s.GetProperty("db-password")
	assert.False(t, ok)
	_, ok = s.GetProperty("Db.Password")
	assert.False(t, ok)
	assert.Equal(t, []string{"Db-Password"}, s.GetPropertyNames())
}

func TestTargeted_InvalidNameSkipped(t *testing.T) {
	client := newFakeClient(map[string]string{"ok": "1"})
	client.setGetHook(func(name string) error {
		if name == "bad" {
			return secrets.ErrInvalidName
		}
		return nil
	})
	s := newSource(t, client, Options{SecretKeys: []string{"ok", "bad"}})
	assert.Equal(t, 1, s.Len())
}

func TestEnumerate_NamesIncludeDottedForms(t *testing.T) {
	client := newFakeClient(map[string]string{"db-password": "s3cr3t"})
	s := newSource(t, client, Options{})

	assert.ElementsMatch(t, []string{"db-password", "db.password"}, s.GetPropertyNames())

	v, ok := s.GetProperty("db.password")
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", v)

	v, ok = s.GetProperty("DB_PASSWORD")
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", v)
}

func TestEnumerate_CaseSensitive(t *testing.T) {
	client := newFakeClient(map[string]string{"db-password": "s3cr3t", "Api-Key": "k"})
	s := newSource(t, client, Options{CaseSensitive: true})

	assert.Equal(t, []string{"Api-Key", "db-password"}, s.GetPropertyNames())
	_, ok := s.GetProperty("db.password")
	assert.False(t, ok)
	_, ok = s.GetProperty("api-key")
	assert.False(t, ok)
}

func TestEnumerate_EveryNameResolves(t *testing.T) {
	client := newFakeClient(map[string]string{
		"db-password":    "a",
		"api-key":        "b",
		"plain":          "c",
		"acme-x-y-z-123": "d",
		"Mixed-Case":     "e",
	})
	s := newSource(t, client, Options{})

	for _, name := range s.GetPropertyNames() {
		_, ok := s.GetProperty(name)
		assert.True(t, ok, name)
	}
}

func TestEnumerate_MixedCaseVaultName(t *testing.T) {
	client := newFakeClient(map[string]string{"DB-Password": "s3cr3t"})
	s := newSource(t, client, Options{})

	assert.Equal(t, []string{"DB-Password", "DB.Password"}, s.GetPropertyNames())
	for _, name := range []string{"DB-Password", "DB.Password", "db.password", "db-password", "DB_PASSWORD"} {
		v, ok := s.GetProperty(name)
		assert.True(t, ok, name)
		assert.Equal(t, "s3cr3t", v, name)
	}
}

func TestEnumerate_MixedCaseCollisionIsDeterministic(t *testing.T) {
	client := newFakeClient(map[string]string{"DB-Password": "upper", "db-Password": "lower"})

	for range 5 {
		s := newSource(t, client, Options{})
		v, ok := s.GetProperty("db.password")
		require.True(t, ok)
		assert.Equal(t, "upper", v)

		v, ok = s.GetProperty("db-Password")
		require.True(t, ok)
		assert.Equal(t, "lower", v, "an exact vault name is served as stored")
	}
}

// sharedSecretClient hands out the same *Secret on every read, as a
// caching client would.
type sharedSecretClient struct {
	*secrets.MemoryClient
	secret *secrets.Secret
}

func (c *sharedSecretClient) GetSecret(context.Context, string, string) (*secrets.Secret, error) {
	return c.secret, nil
}

func TestEnumerate_DoesNotModifyClientSecrets(t *testing.T) {
	client := &sharedSecretClient{
		MemoryClient: secrets.NewMemoryClient(map[string]string{"db-password": "ignored"}),
		secret:       &secrets.Secret{Value: "s3cr3t"},
	}
	s := newSource(t, client, Options{})

	assert.Empty(t, client.secret.Name)
	v, ok := s.GetProperty("db-password")
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", v)
}

func TestEnumerate_SkipsDisabled(t *testing.T) {
	client := newFakeClient(map[string]string{"live": "1", "retired": "2"})
	client.SetEnabled("retired", false)

	s := newSource(t, client, Options{})

	assert.Equal(t, 1, s.Len())
	_, ok := s.GetProperty("retired")
	assert.False(t, ok)
}

func TestEnumerate_WalksAllPages(t *testing.T) {
	client := newFakeClient(map[string]string{"a": "1", "b": "2", "c": "3", "d": "4", "e": "5"})
	client.SetPageSize(2)

	s := newSource(t, client, Options{})
	assert.Equal(t, 5, s.Len())
}

func TestEnumerate_VanishedSecretSkipped(t *testing.T) {
	client := newFakeClient(map[string]string{"stays": "1", "gone": "2"})
	client.setGetHook(func(name string) error {
		if name == "gone" {
			return secrets.ErrNotFound
		}
		return nil
	})

	s := newSource(t, client, Options{})
	assert.Equal(t, []string{"stays"}, s.GetPropertyNames())
}

func TestEnumerate_NilPager(t *testing.T) {
	client := newFakeClient(nil)
	client.nilPager = true

	s := newSource(t, client, Options{})
	assert.Zero(t, s.Len())
	assert.Empty(t, s.GetPropertyNames())
}

func TestEnumerate_EmptyVault(t *testing.T) {
	s := newSource(t, newFakeClient(nil), Options{})
	assert.Empty(t, s.GetPropertyNames())
	_, ok := s.GetProperty("anything")
	assert.False(t, ok)
}

func TestRefresh_Idempotent(t *testing.T) {
	client := newFakeClient(map[string]string{"db-password": "s3cr3t", "api-key": "k"})
	s := newSource(t, client, Options{})

	before := s.GetPropertyNames()
	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, before, s.GetPropertyNames())
	v, _ := s.GetProperty("db-password")
	assert.Equal(t, "s3cr3t", v)
}

func TestRefresh_PicksUpChanges(t *testing.T) {
	client := newFakeClient(map[string]string{"db-password": "old"})
	s := newSource(t, client, Options{})

	client.Set("db-password", "new")
	client.Set("api-key", "k")
	client.Delete("unrelated")
	require.NoError(t, s.Refresh(context.Background()))

	v, _ := s.GetProperty("db-password")
	assert.Equal(t, "new", v)
	assert.Equal(t, 2, s.Len())

	client.Delete("api-key")
	require.NoError(t, s.Refresh(context.Background()))
	_, ok := s.GetProperty("api-key")
	assert.False(t, ok)
}

func TestRefresh_AllOrNothing(t *testing.T) {
	client := newFakeClient(map[string]string{"a": "1", "b": "1", "c": "1"})
	rec := &fakeRecorder{}
	s := newSource(t, client, Options{Metrics: rec})
	firstRefresh := s.LastRefresh()

	client.Set("a", "2")
	client.Set("b", "2")
	client.Set("c", "2")
	client.setGetHook(func(name string) error {
		if name == "b" {
			return &secrets.ResponseError{StatusCode: http.StatusInternalServerError}
		}
		return nil
	})

	err := s.Refresh(context.Background())
	require.Error(t, err)
	for _, name := range []string{"a", "b", "c"} {
		v, _ := s.GetProperty(name)
		assert.Equal(t, "1", v, "previous snapshot must be kept for %s", name)
	}
	assert.Equal(t, firstRefresh, s.LastRefresh())

	last := rec.lastRefresh()
	assert.Error(t, last.err)
	assert.Equal(t, 3, last.size)
	assert.Contains(t, rec.fetchErrors, "response")

	client.setGetHook(nil)
	require.NoError(t, s.Refresh(context.Background()))
	for _, name := range []string{"a", "b", "c"} {
		v, _ := s.GetProperty(name)
		assert.Equal(t, "2", v, name)
	}
}

func TestRefresh_ListErrorKeepsSnapshot(t *testing.T) {
	client := newFakeClient(map[string]string{"db-password": "s3cr3t"})
	s := newSource(t, client, Options{})

	client.mu.Lock()
	client.listErr = &secrets.RequestError{Op: "list secrets", Err: errors.New("connection reset")}
	client.mu.Unlock()

	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, secrets.IsRequestError(err))

	v, ok := s.GetProperty("db-password")
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", v)
}

func TestRefresh_ClientPanicIsError(t *testing.T) {
	client := newFakeClient(map[string]string{"db-password": "s3cr3t"})
	s := newSource(t, client, Options{SecretKeys: []string{"db-password"}})

	client.setGetHook(func(string) error { panic("boom") })
	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client panicked: boom")

	v, _ := s.GetProperty("db-password")
	assert.Equal(t, "s3cr3t", v)
}

func TestRefresh_CanceledContext(t *testing.T) {
	client := newFakeClient(map[string]string{"db-password": "s3cr3t"})
	s := newSource(t, client, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Refresh(ctx))
	assert.Equal(t, 1, s.Len())
}

func TestRefresh_BoundedConcurrency(t *testing.T) {
	values := make(map[string]string)
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		values[n] = n
	}
	client := newFakeClient(values)

	var inFlight, peak atomic.Int32
	client.setGetHook(func(string) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	s := newSource(t, client, Options{FetchConcurrency: 2})
	assert.Equal(t, 8, s.Len())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRefresh_RecordsMetrics(t *testing.T) {
	rec := &fakeRecorder{}
	client := newFakeClient(map[string]string{"a": "1", "b": "2"})
	s := newSource(t, client, Options{SecretKeys: []string{"a", "b"}, Metrics: rec})

	require.NoError(t, s.Refresh(context.Background()))
	require.Equal(t, 2, rec.refreshCount())
	assert.Equal(t, refreshRecord{mode: "targeted", size: 2}, rec.lastRefresh())
}

func TestSnapshot_ReadersNeverSeeMixedState(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	values := make(map[string]string)
	for _, n := range names {
		values[n] = "0"
	}
	client := newFakeClient(values)
	s := newSource(t, client, Options{})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.current.Load()
				first := snap.values[names[0]]
				for _, n := range names[1:] {
					if snap.values[n] != first {
						t.Errorf("mixed snapshot: %s=%q, %s=%q", names[0], first, n, snap.values[n])
						return
					}
				}
				_, _ = s.GetProperty("a")
				_ = s.GetPropertyNames()
			}
		}()
	}

	for gen := 1; gen <= 20; gen++ {
		for _, n := range names {
			client.Set(n, time.Duration(gen).String())
		}
		require.NoError(t, s.Refresh(context.Background()))
	}
	close(stop)
	wg.Wait()
}

func TestSource_Canonical(t *testing.T) {
	s := newSource(t, newFakeClient(nil), Options{})
	assert.Equal(t, "db-password", s.Canonical("DB_PASSWORD"))

	s = newSource(t, newFakeClient(nil), Options{CaseSensitive: true})
	assert.Equal(t, "DB_PASSWORD", s.Canonical("DB_PASSWORD"))
}
