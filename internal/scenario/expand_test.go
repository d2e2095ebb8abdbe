package scenario

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expandSuite(t *testing.T) *Suite {
	t.Helper()
	s, err := Parse([]byte(`
suite: expand
vars: {account: "", greeting: "Tere"}
messages: {empty: Sisestage palun kasutajatunnus}
translations:
  en: {submit_button: Enter}
  et: {submit_button: Sisenen}
default_language: et
groups:
  - name: g
    scenarios:
      - {name: s, pending: none}
`), "expand.yaml")
	require.NoError(t, err)
	return s
}

func TestRandomString(t *testing.T) {
	for _, n := range []int{0, 5, 6, 15, 17} {
		got := RandomString(n)
		assert.Len(t, got, n)
		for _, r := range got {
			assert.True(t, strings.ContainsRune(RandomCharset, r), "unexpected %q", r)
		}
	}
}

func TestExpand(t *testing.T) {
	env := NewEnv(expandSuite(t), map[string]string{"account": "DEMO1234567"})
	env.Random = func(n int) string { return strings.Repeat("x", n) }
	env.Set("typed", "ABCDEFGHIJKLMNO")

	tests := []struct {
		in, lang, want string
	}{
		{"plain text", "", "plain text"},
		{"${random:5}", "", "xxxxx"},
		{"${account}", "", "DEMO1234567"},
		{"${greeting}, ${account}", "", "Tere, DEMO1234567"},
		{"${typed:14}", "", "ABCDEFGHIJKLMN"},
		{"${typed:99}", "", "ABCDEFGHIJKLMNO"},
		{"${msg:empty}", "", "Sisestage palun kasutajatunnus"},
		{"${t:submit_button}", "", "Sisenen"},
		{"${t:submit_button}", "en", "Enter"},
		{"$ {not a placeholder}", "", "$ {not a placeholder}"},
	}
	for _, tt := range tests {
		t.Run(tt.in+"/"+tt.lang, func(t *testing.T) {
			got, err := env.Expand(tt.in, tt.lang)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandPrefixCountsRunes(t *testing.T) {
	env := NewEnv(expandSuite(t), nil)
	env.Set("word", "õigeõige")
	got, err := env.Expand("${word:3}", "")
	require.NoError(t, err)
	assert.Equal(t, "õig", got)
}

func TestExpandErrors(t *testing.T) {
	env := NewEnv(expandSuite(t), nil)

	for _, in := range []string{
		"${missing}",
		"${random:x}",
		"${random:-1}",
		"${random:100000}",
		"${msg:nope}",
		"${t:nope}",
		"${greeting:x}",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := env.Expand(in, "")
			assert.Error(t, err)
		})
	}

	_, err := env.Expand("${t:submit_button}", "ru")
	assert.Error(t, err)
}

func TestNewEnvDoesNotLeakIntoSuite(t *testing.T) {
	s := expandSuite(t)
	overrides := map[string]string{"account": "A"}
	env := NewEnv(s, overrides)
	env.Set("account", "B")
	env.Set("typed", "C")

	assert.Equal(t, "", s.Vars["account"])
	assert.Equal(t, "A", overrides["account"])
	_, ok := NewEnv(s, nil).Var("typed")
	assert.False(t, ok)
}
