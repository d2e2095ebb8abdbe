package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qa-tooling/uiprobe/internal/i18n"
	"github.com/qa-tooling/uiprobe/internal/scenario"
	"github.com/qa-tooling/uiprobe/suites"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg, nil)
	require.NoError(t, err)
	return s
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func login(t *testing.T, s *Server, body LoginRequest) (int, LoginResponse) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestLoginPageMarkup(t *testing.T) {
	s := newServer(t, nil)
	w := get(t, s, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "et", w.Header().Get("Content-Language"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	body := w.Body.String()
	for _, fragment := range []string{
		`<html lang="et">`,
		`<li id="loginTab_SMART_ID"`,
		`<li id="loginTab_PIN_CALCULATOR">`,
		`<input type="text" id="userId" name="userId" maxlength="14">`,
		`<input type="password" id="authPwd" name="authPwd" maxlength="16">`,
		`<span id="passwordFieldContainer" class="field" style="display: none">`,
		`<span id="authPwdBlockLabel">Isikukood</span>`,
		`<h2 id="login-title-label">Logi sisse</h2>`,
		`<label for="userId">Kasutajatunnus</label>`,
		`<div id="loginButton"><a href="#" role="button">Sisenen</a></div>`,
		`aria-label="ENG"`,
		`aria-label="EST"`,
		`aria-label="RUS"`,
		`data-render-delay="150"`,
	} {
		assert.Contains(t, body, fragment)
	}
}

func TestLoginPageLanguages(t *testing.T) {
	s := newServer(t, nil)

	tests := []struct {
		query string
		lang  string
		title string
	}{
		{"", "et", "Logi sisse"},
		{"?lang=en", "en", "Log in with"},
		{"?lang=ru", "ru", "Вход"},
		{"?lang=en-GB", "en", "Log in with"},
		{"?lang=xx", "et", "Logi sisse"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+tt.query, func(t *testing.T) {
			w := get(t, s, "/"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.lang, w.Header().Get("Content-Language"))
			assert.Contains(t, w.Body.String(), `<h2 id="login-title-label">`+tt.title+`</h2>`)
			assert.Empty(t, w.Header().Get("Set-Cookie"))
		})
	}
}

func TestPINCalculatorTabCanBeDisabled(t *testing.T) {
	s := newServer(t, func(c *Config) { c.PINCalculator = false })
	assert.NotContains(t, get(t, s, "/").Body.String(), "loginTab_PIN_CALCULATOR")

	code, resp := login(t, s, LoginRequest{User: "12345678", Secret: "1111", Method: MethodPINCalculator})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", resp.Status)
}

func TestLogin(t *testing.T) {
	s := newServer(t, nil)
	suite, err := scenario.LoadFS(suites.FS, "swedbank_login.yaml")
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     LoginRequest
		code    int
		status  string
		message string
		title   string
	}{
		{
			name:    "empty user",
			req:     LoginRequest{},
			code:    http.StatusBadRequest,
			status:  "error",
			message: suite.Messages["empty_details"],
		},
		{
			name:    "unknown pair",
			req:     LoginRequest{User: "7654321", Secret: "abcdefghijk"},
			code:    http.StatusUnauthorized,
			status:  "error",
			message: suite.Messages["wrong_details"],
		},
		{
			name:    "pin secret on the smart id tab",
			req:     LoginRequest{User: "12345678", Secret: "1111", Method: MethodSmartID},
			code:    http.StatusUnauthorized,
			status:  "error",
			message: suite.Messages["wrong_details"],
		},
		{
			name:   "smart id",
			req:    LoginRequest{User: "12345678", Secret: "4242"},
			code:   http.StatusOK,
			status: "challenge",
			title:  "Teie kontrollkood:",
		},
		{
			name:   "pin calculator in russian",
			req:    LoginRequest{User: "12345678", Secret: "1111", Method: MethodPINCalculator, Lang: "ru"},
			code:   http.StatusOK,
			status: "challenge",
			title:  "Ваш контрольный код:",
		},
		{
			name:   "user id over the field limit",
			req:    LoginRequest{User: strings.Repeat("1", 15)},
			code:   http.StatusBadRequest,
			status: "error",
		},
		{
			name:   "unknown method",
			req:    LoginRequest{User: "12345678", Method: "PASSWORD"},
			code:   http.StatusBadRequest,
			status: "error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := login(t, s, tt.req)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, resp.Status)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Message)
			}
			if tt.title != "" {
				assert.Equal(t, tt.title, resp.Title)
				assert.Len(t, resp.Code, 4)
			}
		})
	}
}

// The page must show exactly the texts the login suite asserts.
func TestTranslationsMatchTheLoginSuite(t *testing.T) {
	s := newServer(t, nil)
	suite, err := scenario.LoadFS(suites.FS, "swedbank_login.yaml")
	require.NoError(t, err)

	for lang, table := range suite.Translations {
		for key, want := range table {
			got, ok := s.catalog.Lookup(lang, "labels."+key)
			assert.True(t, ok, "%s/%s", lang, key)
			assert.Equal(t, want, got, "%s/%s", lang, key)
		}
	}
	for key, want := range suite.Messages {
		got, ok := s.catalog.Lookup("et", "messages."+key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

func TestTranslationsEndpoint(t *testing.T) {
	s := newServer(t, nil)
	w := get(t, s, "/api/translations/en")
	require.Equal(t, http.StatusOK, w.Code)
	var table map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))
	assert.Equal(t, "User ID", table["labels.account_number"])

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/translations/fi").Code)
}

func TestCredentialsMustFitTheFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.User = strings.Repeat("9", MaxUserLength+1)
	_, err := New(cfg, nil)
	assert.Error(t, err)

	// limits count characters, not bytes
	cfg.User = strings.Repeat("ä", MaxUserLength)
	cfg.Secret = strings.Repeat("õ", MaxSecretLength)
	s, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.User, s.Config().User)

	cfg.Secret = strings.Repeat("õ", MaxSecretLength+1)
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestIncompleteTranslationsAreRejected(t *testing.T) {
	c, err := i18n.NewCatalog(map[string]map[string]string{
		"et": {"labels.account_number": "Kasutajatunnus", "labels.submit_button": "Sisenen"},
		"en": {"labels.account_number": "User ID", "labels.submit_button": "Log in"},
		"ru": {"labels.submit_button": "Войти"},
	}, "et")
	require.NoError(t, err)

	err = checkTranslations(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ru lacks labels.account_number")
	assert.NotContains(t, err.Error(), "en lacks")

	embedded, err := i18n.Load(assets, "translations", "et")
	require.NoError(t, err)
	assert.NoError(t, checkTranslations(embedded))
}

func TestStartAndStop(t *testing.T) {
	s := newServer(t, nil)
	base, stop, err := s.Start(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(base, "http://127.0.0.1:"))

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + "healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, stop())
	_, err = client.Get(base + "healthz")
	assert.Error(t, err)
}
