package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonical_RelaxedSpellings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"kebab with dots", "acme.my-project.person.first-name", "acme-myproject-person-firstname"},
		{"camel with dots", "acme.myProject.person.firstName", "acme-myproject-person-firstname"},
		{"snake with dots", "acme.my_project.person.first_name", "acme-myproject-person-firstname"},
		{"upper snake", "ACME_MYPROJECT_PERSON_FIRSTNAME", "acme-myproject-person-firstname"},
		{"already canonical", "acme-myproject-person-firstname", "acme-myproject-person-firstname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonical(tt.input, false))
		})
	}
}

func TestCanonical_VaultAlphabetIsLowerCased(t *testing.T) {
	for _, input := range []string{"DB-Password", "abc", "ABC123", "a-b-c", "X9-"} {
		assert.Equal(t, strings.ToLower(input), Canonical(input, false), input)
	}
}

func TestCanonical_UpperSnake(t *testing.T) {
	for _, input := range []string{"DB_PASSWORD", "A_B_C", "SPRING_DATASOURCE_URL", "_LEADING"} {
		want := strings.ReplaceAll(strings.ToLower(input), "_", "-")
		assert.Equal(t, want, Canonical(input, false), input)
	}
}

func TestCanonical_RuleOrder(t *testing.T) {
	// Upper-case names without '_' also match rule 1, which only lower-cases.
	assert.Equal(t, "abc", Canonical("ABC", false))
	// Mixed-case snake names fall through to rule 3 and lose their separators.
	assert.Equal(t, "dbpassword", Canonical("db_Password", false))
	// A dot forces rule 3 even when the rest is upper-snake.
	assert.Equal(t, "spring-datasourceurl", Canonical("SPRING.DATASOURCE_URL", false))
}

func TestCanonical_CaseSensitiveIsIdentity(t *testing.T) {
	for _, input := range []string{
		"acme.myProject.person.firstName",
		"ACME_MYPROJECT",
		"Db-Password",
		"",
	} {
		assert.Equal(t, input, Canonical(input, true))
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("db-password"))
	assert.True(t, Valid("DB-Password1"))
	assert.False(t, Valid("db.password"))
	assert.False(t, Valid("db_password"))
	assert.False(t, Valid(""))
}

func TestExpand_AddsDottedVariants(t *testing.T) {
	got := Expand([]string{"db-password", "plain", "a-b"}, false)
	assert.Equal(t, []string{"db-password", "db.password", "plain", "a-b", "a.b"}, got)
}

func TestExpand_Deduplicates(t *testing.T) {
	got := Expand([]string{"a.b", "a-b"}, false)
	assert.Equal(t, []string{"a.b", "a-b"}, got)
}

func TestExpand_CaseSensitive(t *testing.T) {
	names := []string{"db-password", "Other-Name"}
	got := Expand(names, true)
	assert.Equal(t, names, got)

	got[0] = "changed"
	assert.Equal(t, "db-password", names[0], "Expand must not alias its input")
}

func TestExpand_Empty(t *testing.T) {
	assert.Empty(t, Expand(nil, false))
	assert.Empty(t, Expand(nil, true))
}
