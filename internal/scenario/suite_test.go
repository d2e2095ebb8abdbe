package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qa-tooling/uiprobe/internal/locator"
	"github.com/qa-tooling/uiprobe/suites"
)

const minimal = `
suite: minimal
base_url: https://bank.test/
locators:
  user_id: xpath=//input[@id="userId"]
  title: css=h2#login-title-label
translations:
  en: {title: Log in with}
  et: {title: Logi sisse}
default_language: et
labels:
  title: title
groups:
  - name: basics
    setup:
      - action: navigate
    teardown:
      - action: screenshot
        name: after
    scenarios:
      - name: types
        requires: [account]
        steps:
          - action: send_keys
            target: user_id
            text: abc
      - name: later
        pending: not built yet
`

func TestParseMinimal(t *testing.T) {
	s, err := Parse([]byte(minimal), "minimal.yaml")
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, "minimal.yaml", s.Source)
	assert.Equal(t, "et", s.Catalog().Default())

	cases := s.Cases()
	require.Len(t, cases, 2)
	assert.Equal(t, "basics/types", cases[0].ID())
	assert.Equal(t, []Step{{Action: ActionNavigate}}, cases[0].Setup)
	assert.Equal(t, ActionScreenshot, cases[0].Teardown[0].Action)
	assert.Equal(t, []string{"account"}, cases[0].Requires)
	assert.Equal(t, "not built yet", cases[1].Pending)
}

func TestEmbeddedLoginSuite(t *testing.T) {
	s, err := LoadFS(suites.FS, "swedbank_login.yaml")
	require.NoError(t, err)

	assert.Equal(t, "Swedbank login", s.Name)
	assert.Equal(t, "https://www.swedbank.ee/", s.BaseURL)
	assert.Equal(t, []string{"en", "et", "ru"}, s.Catalog().Languages())
	require.Len(t, s.Groups, 2)

	cases := s.Cases()
	require.Len(t, cases, 18)
	for _, c := range cases[:15] {
		assert.Equal(t, "SmartId login", c.Group)
		require.NotEmpty(t, c.Setup)
		assert.Equal(t, "smartid_tab", c.Setup[0].Target)
	}

	right := cases[15]
	assert.Equal(t, "PIN-calc login/Login using right account details", right.ID())
	assert.Equal(t, []string{"pin_calculator", "account", "pin_secret"}, right.Requires)

	env := NewEnv(s, nil)
	assert.Equal(t, []string{"pin_calculator", "account", "pin_secret"}, right.Unmet(env))
	assert.Empty(t, cases[0].Unmet(env))

	msg, err := env.Expand("${msg:wrong_details}", "")
	require.NoError(t, err)
	assert.Contains(t, msg, "õige.\n\nPalun")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Source)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		problem string
	}{
		{
			name:    "missing suite name",
			doc:     "groups: [{name: g, scenarios: []}]",
			problem: "suite",
		},
		{
			name: "unknown action",
			doc: `suite: x
groups:
  - name: g
    scenarios:
      - name: s
        steps: [{action: hover, target: "//a"}]`,
			problem: "groups.0.scenarios.0.steps.0.action",
		},
		{
			name: "bad duration",
			doc: `suite: x
groups:
  - name: g
    scenarios:
      - name: s
        steps: [{action: click, target: "//a", timeout: 3 seconds}]`,
			problem: "groups.0.scenarios.0.steps.0.timeout",
		},
		{
			name: "unknown alias",
			doc: `suite: x
groups:
  - name: g
    scenarios:
      - name: s
        steps: [{action: click, target: user_idd}]`,
			problem: "unknown locator alias",
		},
		{
			name: "missing attribute name",
			doc: `suite: x
groups:
  - name: g
    scenarios:
      - name: s
        steps: [{action: assert_attribute, target: "//input", expected: a}]`,
			problem: "attribute name",
		},
		{
			name: "translation for unknown language",
			doc: `suite: x
locators: {t: "//h2"}
translations: {en: {title: Log in}}
labels: {title: t}
groups:
  - name: g
    scenarios:
      - name: s
        steps: [{action: assert_translation, language: fi}]`,
			problem: `no translations for language "fi"`,
		},
		{
			name: "label missing in a language",
			doc: `suite: x
locators: {t: "//h2"}
translations: {en: {title: Log in}, et: {}}
labels: {title: t}
groups:
  - name: g
    scenarios:
      - name: s
        pending: later`,
			problem: "no et translation",
		},
		{
			name: "two labels on one element",
			doc: `suite: x
locators: {t: "//h2"}
translations: {en: {title: Log in, heading: Welcome}}
labels: {title: t, heading: t}
groups:
  - name: g
    scenarios:
      - name: s
        steps: [{action: assert_translation, language: en}]`,
			problem: `labels.title: shows the same element as label "heading"`,
		},
		{
			name: "duplicate scenario",
			doc: `suite: x
groups:
  - name: g
    scenarios:
      - {name: s, pending: a}
      - {name: s, pending: b}`,
			problem: `duplicate scenario name "s"`,
		},
		{
			name: "empty scenario",
			doc: `suite: x
groups:
  - name: g
    scenarios:
      - name: s`,
			problem: "mark it pending",
		},
		{
			name: "save_as outside send_keys",
			doc: `suite: x
groups:
  - name: g
    scenarios:
      - name: s
        steps: [{action: click, target: "//a", save_as: v}]`,
			problem: "save_as",
		},
		{
			name: "bad key",
			doc: `suite: x
groups:
  - name: g
    scenarios:
      - name: s
        steps: [{action: send_keys, target: "//a", keys: [F13]}]`,
			problem: "invalid key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "doc.yaml")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSuite), "got %v", err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Error(), tt.problem)
		})
	}
}

func TestParseRejectsBrokenYAML(t *testing.T) {
	_, err := Parse([]byte("suite: [unclosed"), "broken.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")

	_, err = Parse(nil, "empty.yaml")
	assert.ErrorIs(t, err, ErrInvalidSuite)
}

func TestLocatorTargets(t *testing.T) {
	s, err := Parse([]byte(minimal), "minimal.yaml")
	require.NoError(t, err)

	tests := []struct {
		target string
		want   locator.Locator
		err    bool
	}{
		{"user_id", locator.ByXPath(`//input[@id="userId"]`), false},
		{"//div[@class='errorMsg']", locator.ByXPath("//div[@class='errorMsg']"), false},
		{"(//a)[2]", locator.ByXPath("(//a)[2]"), false},
		{"id=loginButton", locator.ByID("loginButton"), false},
		{"CSS=div.errorMsg", locator.ByCSS("div.errorMsg"), false},
		{"userid", locator.Locator{}, true},
		{"div.errorMsg", locator.Locator{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got, err := s.Locator(tt.target)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLabelSet(t *testing.T) {
	s, err := Parse([]byte(minimal), "minimal.yaml")
	require.NoError(t, err)

	labels, err := s.LabelSet("en")
	require.NoError(t, err)
	assert.Equal(t, map[locator.Locator]string{locator.ByCSS("h2#login-title-label"): "Log in with"}, labels)

	_, err = s.LabelSet("ru")
	assert.Error(t, err)
}

func TestWithBaseURLCopies(t *testing.T) {
	s, err := Parse([]byte(minimal), "minimal.yaml")
	require.NoError(t, err)

	local := s.WithBaseURL("http://127.0.0.1:8089/")
	assert.Equal(t, "http://127.0.0.1:8089/", local.BaseURL)
	assert.Equal(t, "https://bank.test/", s.BaseURL)
	assert.Len(t, local.Cases(), 2)
}

func TestSchemaIsCopied(t *testing.T) {
	a := Schema()
	a[0] = 'x'
	assert.Equal(t, byte('{'), Schema()[0])
}
