package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(map[string]map[string]string{
		"en": {"login_option": "Log in with", "account_number": "User ID"},
		"et": {"login_option": "Logi sisse", "account_number": "Kasutajatunnus"},
		"ru": {"login_option": "Вход"},
	}, "et")
	require.NoError(t, err)
	return c
}

func TestLookupIsExact(t *testing.T) {
	c := loginCatalog(t)

	tests := []struct {
		lang, key string
		want      string
		ok        bool
	}{
		{"en", "login_option", "Log in with", true},
		{"et", "account_number", "Kasutajatunnus", true},
		{"ru", "login_option", "Вход", true},
		{"ru", "account_number", "", false},
		{"de", "login_option", "", false},
		{"not a tag!", "login_option", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.key, func(t *testing.T) {
			got, ok := c.Lookup(tt.lang, tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTFallsBack(t *testing.T) {
	c := loginCatalog(t)

	assert.Equal(t, "Kasutajatunnus", c.T("ru", "account_number"))
	assert.Equal(t, "Logi sisse", c.T("de", "login_option"))
	assert.Equal(t, "Log in with", c.T("en-US,en;q=0.8", "login_option"))
	assert.Equal(t, "nope", c.T("en", "nope"))
}

func TestMatch(t *testing.T) {
	c := loginCatalog(t)

	assert.Equal(t, "et", c.Match("").String())
	assert.Equal(t, "ru", c.Match("ru").String())
	assert.Equal(t, "en", c.Match("fr;q=0.9, en;q=0.5").String())
	assert.Equal(t, "et", c.Match("ja").String())
}

func TestTableReturnsCopy(t *testing.T) {
	c := loginCatalog(t)

	table := c.Table("en")
	table["login_option"] = "changed"
	got, _ := c.Lookup("en", "login_option")
	assert.Equal(t, "Log in with", got)

	assert.Nil(t, c.Table("fi"))
	assert.Equal(t, []string{"en", "et", "ru"}, c.Languages())
	assert.Equal(t, "et", c.Default())
	assert.True(t, c.Has("ru"))
	assert.False(t, c.Has("lv"))
}

func TestNewCatalogInputIsCopied(t *testing.T) {
	raw := map[string]map[string]string{"en": {"k": "v"}}
	c, err := NewCatalog(raw, "en")
	require.NoError(t, err)

	raw["en"]["k"] = "mutated"
	got, _ := c.Lookup("en", "k")
	assert.Equal(t, "v", got)
}

func TestNewCatalogErrors(t *testing.T) {
	_, err := NewCatalog(map[string]map[string]string{"xx-!!": {}}, "")
	assert.Error(t, err)

	_, err = NewCatalog(map[string]map[string]string{"en": {}}, "et")
	assert.Error(t, err)

	c, err := NewCatalog(nil, "")
	require.NoError(t, err)
	assert.Empty(t, c.Languages())
	assert.Equal(t, "", c.Default())
}

func TestMissing(t *testing.T) {
	c := loginCatalog(t)
	assert.Equal(t, []string{"account_number"}, c.Missing("ru"))
	assert.Empty(t, c.Missing("en"))
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"translations/en.json": {Data: []byte(`{"login": {"title": "Log in with"}, "submit": "Enter"}`)},
		"translations/et.json": {Data: []byte(`{"login": {"title": "Logi sisse"}, "submit": "Sisenen"}`)},
		"translations/README":  {Data: []byte("ignored")},
	}
	c, err := Load(fsys, "translations", "et")
	require.NoError(t, err)

	got, ok := c.Lookup("en", "login.title")
	require.True(t, ok)
	assert.Equal(t, "Log in with", got)
	assert.Equal(t, "Sisenen", c.T("et", "submit"))

	bad := fstest.MapFS{"translations/en.json": {Data: []byte(`{"n": 1}`)}}
	_, err = Load(bad, "translations", "en")
	assert.Error(t, err)

	broken := fstest.MapFS{"translations/en.json": {Data: []byte(`{`)}}
	_, err = Load(broken, "translations", "en")
	assert.Error(t, err)
}
