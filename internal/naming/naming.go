// Package naming maps relaxed configuration property names onto the
// restricted secret-name alphabet of a vault, and back.
//
// Configuration frameworks accept several spellings of the same property:
//
//	acme.my-project.person.first-name
//	acme.myProject.person.firstName
//	acme.my_project.person.first_name
//	ACME_MYPROJECT_PERSON_FIRSTNAME
//
// A vault only accepts [0-9a-zA-Z-] and compares names case-insensitively,
// so all four spellings above map to acme-myproject-person-firstname.
package naming

import (
	"regexp"
	"strings"
)

var (
	// vaultName matches names already made of the vault alphabet.
	vaultName = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	// upperSnake matches environment-variable style names.
	upperSnake = regexp.MustCompile(`^[A-Z0-9_]+$`)

	separators = strings.NewReplacer("-", "", "_", "")
)

// Canonical returns the vault secret name for a property name.
//
// When caseSensitive is true the name is returned unchanged. Otherwise the
// first matching rule wins:
//  1. vault-legal names are lower-cased;
//  2. upper-snake names are lower-cased and '_' becomes '-';
//  3. anything else is lower-cased, '-' and '_' are dropped and '.'
//     becomes '-'.
func Canonical(name string, caseSensitive bool) string {
	if caseSensitive {
		return name
	}

	switch {
	case vaultName.MatchString(name):
		return strings.ToLower(name)
	case upperSnake.MatchString(name):
		return strings.ReplaceAll(strings.ToLower(name), "_", "-")
	default:
		collapsed := separators.Replace(strings.ToLower(name))
		return strings.ReplaceAll(collapsed, ".", "-")
	}
}

// Valid reports whether name can be used verbatim as a vault secret name.
func Valid(name string) bool {
	return vaultName.MatchString(name)
}

// Dotted returns name with every '-' replaced by '.'.
func Dotted(name string) string {
	return strings.ReplaceAll(name, "-", ".")
}

// Expand returns the names a configuration consumer may bind against.
//
// Case-sensitive sources expose their names as stored. Otherwise every name
// is accompanied by its dotted variant; duplicates are dropped and the
// first-seen order is kept.
func Expand(names []string, caseSensitive bool) []string {
	if caseSensitive {
		out := make([]string, len(names))
		copy(out, names)
		return out
	}

	seen := make(map[string]struct{}, len(names)*2)
	out := make([]string, 0, len(names)*2)
	add := func(n string) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for _, n := range names {
		add(n)
		add(Dotted(n))
	}
	return out
}
