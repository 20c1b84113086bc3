package propertysource

import (
	"sort"
	"time"

	"github.com/conductor/vaultprops/internal/naming"
)

// snapshot is an immutable view of the vault. A refresh builds a new one
// and publishes it; nothing mutates a published snapshot.
type snapshot struct {
	values map[string]string
	// aliases maps canonical names to stored keys whose spelling differs,
	// so case-insensitive lookups find mixed-case vault names and
	// configured keys.
	aliases     map[string]string
	refreshedAt time.Time
}

func emptySnapshot() *snapshot {
	return &snapshot{values: map[string]string{}}
}

// indexAliases records the canonical form of every stored key that is not
// already canonical. Keys are visited in sorted order so the first
// spelling wins when two keys share a canonical name.
func (s *snapshot) indexAliases() {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s.aliases = make(map[string]string)
	for _, key := range keys {
		canonical := naming.Canonical(key, false)
		if canonical == key {
			continue
		}
		if _, ok := s.aliases[canonical]; !ok {
			s.aliases[canonical] = key
		}
	}
}

// lookup tries the name as stored, then, unless caseSensitive, its
// canonical form and finally any stored key sharing that canonical form.
func (s *snapshot) lookup(name string, caseSensitive bool) (string, bool) {
	if v, ok := s.values[name]; ok || caseSensitive {
		return v, ok
	}

	canonical := naming.Canonical(name, false)
	if v, ok := s.values[canonical]; ok {
		return v, true
	}
	if key, ok := s.aliases[canonical]; ok {
		v, ok := s.values[key]
		return v, ok
	}
	return "", false
}

func (s *snapshot) names(caseSensitive bool) []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if caseSensitive {
		return keys
	}

	names := naming.Expand(keys, false)
	sort.Strings(names)
	return names
}
