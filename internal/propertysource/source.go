// Package propertysource exposes the secrets of a vault as a read-only
// property source. Values are held in an in-memory snapshot that is
// rebuilt wholesale by each refresh and swapped in atomically, so lookups
// never touch the network and never observe a half-built view.
package propertysource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/conductor/vaultprops/internal/naming"
	"github.com/conductor/vaultprops/internal/secrets"
	"github.com/conductor/vaultprops/pkg/log"
)

// DefaultProbeSecretName is the secret read by IsUp when none is configured.
const DefaultProbeSecretName = "should-not-be-empty"

const defaultFetchConcurrency = 4

// ErrInvalidKey is returned by New for an empty or blank secret key.
var ErrInvalidKey = errors.New("propertysource: invalid secret key")

// Mode selects how a refresh discovers secrets.
type Mode int

const (
	// ModeEnumerate lists every secret in the vault.
	ModeEnumerate Mode = iota
	// ModeTargeted fetches only the configured keys.
	ModeTargeted
)

func (m Mode) String() string {
	switch m {
	case ModeEnumerate:
		return "enumerate"
	case ModeTargeted:
		return "targeted"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Recorder receives refresh and probe measurements.
// *metrics.SourceMetrics satisfies it.
type Recorder interface {
	RecordRefresh(mode string, err error, duration time.Duration, size int)
	RecordFetchError(kind string)
	RecordProbe(up bool, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRefresh(string, error, time.Duration, int) {}
func (nopRecorder) RecordFetchError(string)                         {}
func (nopRecorder) RecordProbe(bool, time.Duration)                 {}

// Options configures a Source.
type Options struct {
	// SecretKeys restricts the source to these keys. Empty means every
	// secret in the vault is loaded.
	SecretKeys []string
	// CaseSensitive disables name translation on lookup.
	CaseSensitive bool
	// RefreshInterval is the period of background refreshes. Zero or
	// negative disables them.
	RefreshInterval time.Duration
	// FetchConcurrency bounds parallel secret reads within one refresh.
	FetchConcurrency int
	// ProbeSecretName is the secret read by IsUp.
	ProbeSecretName string

	Logger  log.Logger
	Metrics Recorder
	Clock   clock.Clock
}

// Source is a property source backed by a vault.
// It is safe for concurrent use.
type Source struct {
	client        secrets.Client
	keys          []string
	caseSensitive bool
	mode          Mode
	concurrency   int
	probeName     string

	log     log.Logger
	metrics Recorder
	clock   clock.Clock

	current   atomic.Pointer[snapshot]
	refreshMu sync.Mutex

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Source, performs the initial refresh synchronously and,
// when opts.RefreshInterval is positive, starts the background refresher.
// Callers must Close the returned Source to stop the refresher.
func New(ctx context.Context, client secrets.Client, opts Options) (*Source, error) {
	if client == nil {
		return nil, errors.New("propertysource: client is required")
	}
	for i, key := range opts.SecretKeys {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: key %d is blank", ErrInvalidKey, i)
		}
	}

	s := &Source{
		client:        client,
		keys:          append([]string(nil), opts.SecretKeys...),
		caseSensitive: opts.CaseSensitive,
		mode:          ModeEnumerate,
		concurrency:   opts.FetchConcurrency,
		probeName:     opts.ProbeSecretName,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		clock:         opts.Clock,
	}
	if len(s.keys) > 0 {
		s.mode = ModeTargeted
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultFetchConcurrency
	}
	if s.probeName == "" {
		s.probeName = DefaultProbeSecretName
	}
	if s.log == nil {
		s.log = log.NewNop()
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.clock == nil {
		s.clock = clock.WallClock
	}
	s.log = s.log.With("component", "propertysource")
	s.current.Store(emptySnapshot())

	if err := s.refresh(ctx, triggerInitial); err != nil {
		return nil, fmt.Errorf("initial refresh: %w", err)
	}

	if opts.RefreshInterval > 0 {
		s.startRefresher(context.WithoutCancel(ctx), opts.RefreshInterval)
	}

	s.log.Info().
		Str("mode", s.mode.String()).
		Bool("case_sensitive", s.caseSensitive).
		Int("keys", len(s.keys)).
		Dur("refresh_interval", opts.RefreshInterval).
		Msg("property source ready")

	return s, nil
}

// GetProperty returns the value stored for name.
func (s *Source) GetProperty(name string) (string, bool) {
	return s.current.Load().lookup(name, s.caseSensitive)
}

// GetPropertyNames returns every name that GetProperty resolves for the
// current snapshot, sorted. In case-insensitive mode dashed names are
// also reported in their dotted form.
func (s *Source) GetPropertyNames() []string {
	return s.current.Load().names(s.caseSensitive)
}

// Len returns the number of secrets in the current snapshot.
func (s *Source) Len() int {
	return len(s.current.Load().values)
}

// LastRefresh returns when the current snapshot was published.
func (s *Source) LastRefresh() time.Time {
	return s.current.Load().refreshedAt
}

// Mode reports how the source discovers secrets.
func (s *Source) Mode() Mode {
	return s.mode
}

// CaseSensitive reports whether lookups bypass name translation.
func (s *Source) CaseSensitive() bool {
	return s.caseSensitive
}

// Canonical returns the vault name a lookup for name is translated to.
func (s *Source) Canonical(name string) string {
	return naming.Canonical(name, s.caseSensitive)
}
