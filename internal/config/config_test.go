package config

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qa-tooling/uiprobe/internal/report"
)

// isolate keeps the developer's own config and .env out of a test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, name := range []string{"BASE_URL", "HEADLESS", "SCREENSHOTS"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func newLoader(t *testing.T, file string) *Loader {
	t.Helper()
	l := NewLoader(file)
	l.SetEnvFiles()
	return l
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := newLoader(t, "").Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPlaywright, cfg.Browser.Driver)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1250, cfg.Browser.Width)
	assert.Equal(t, 10*time.Second, cfg.Wait.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Wait.Interval)
	assert.Equal(t, 1, cfg.Run.Parallel)
	assert.Equal(t, []string{"text"}, cfg.Report.Formats)
	assert.Equal(t, "127.0.0.1:8089", cfg.Fixture.Addr)
	assert.Equal(t, "12345678", cfg.Fixture.User)
	assert.Empty(t, cfg.File)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "uiprobe.yaml", `
browser:
  driver: chromedp
  width: 1024
wait:
  timeout: 2s
  interval: 50ms
run:
  base_url: https://file.example/
  vars:
    Lang: en
report:
  formats: [junit, html]
`)
	t.Setenv("UIPROBE_BROWSER_HEADLESS", "false")
	t.Setenv("UIPROBE_WAIT_TIMEOUT", "3s")
	t.Setenv("UIPROBE_VAR_USER_ID", "777")

	cfg, err := newLoader(t, path).Load()
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, DriverChromedp, cfg.Browser.Driver)
	assert.Equal(t, 1024, cfg.Browser.Width)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 3*time.Second, cfg.Wait.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Wait.Interval)
	assert.Equal(t, "https://file.example/", cfg.Run.BaseURL)
	assert.Equal(t, map[string]string{"lang": "en", "user_id": "777"}, cfg.Run.Vars)

	formats, err := cfg.ReportFormats()
	require.NoError(t, err)
	assert.Equal(t, []report.Format{report.FormatJUnit, report.FormatHTML}, formats)
}

func TestLegacyEnvironmentNames(t *testing.T) {
	isolate(t)
	t.Setenv("BASE_URL", "http://legacy.example/")
	t.Setenv("HEADLESS", "false")
	t.Setenv("SCREENSHOTS", "false")

	cfg, err := newLoader(t, "").Load()
	require.NoError(t, err)
	assert.Equal(t, "http://legacy.example/", cfg.Run.BaseURL)
	assert.False(t, cfg.Browser.Headless)
	assert.False(t, cfg.Run.Screenshots)

	t.Setenv("UIPROBE_RUN_BASE_URL", "http://prefixed.example/")
	cfg, err = newLoader(t, "").Load()
	require.NoError(t, err)
	assert.Equal(t, "http://prefixed.example/", cfg.Run.BaseURL)
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "UIPROBE_WAIT_INTERVAL=20ms\nUIPROBE_LOGGING_LEVEL=debug\n")
	t.Setenv("UIPROBE_LOGGING_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("UIPROBE_WAIT_INTERVAL") })

	l := NewLoader("")
	l.SetEnvFiles(envFile, filepath.Join(dir, "missing.env"))
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, cfg.Wait.Interval)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestSecretsInConfigFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "uiprobe.yaml", `
run:
  vars:
    account: "12345678"
    secret: "4242"
    lang: et
fixture:
  addr: 0.0.0.0:8089
`)

	cfg, err := newLoader(t, path).Load()
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 3)
	assert.Contains(t, cfg.Warnings[0], "run.vars.account")
	assert.Contains(t, cfg.Warnings[0], "UIPROBE_VAR_ACCOUNT")
	assert.Contains(t, cfg.Warnings[1], "run.vars.secret")
	assert.Contains(t, cfg.Warnings[2], "fixture.addr")
	assert.Equal(t, "4242", cfg.Run.Vars["secret"])

	t.Setenv("UIPROBE_STRICT_SECRETS", "true")
	_, err = newLoader(t, path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret validation failed")
}

func TestSecretsFromEnvironmentAreNotReported(t *testing.T) {
	isolate(t)
	t.Setenv("UIPROBE_STRICT_SECRETS", "true")
	t.Setenv("UIPROBE_VAR_SECRET", "4242")

	cfg, err := newLoader(t, "").Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, "4242", cfg.Run.Vars["secret"])
}

func TestLoadErrors(t *testing.T) {
	isolate(t)
	_, err := newLoader(t, filepath.Join(t.TempDir(), "nope.yaml")).Load()
	assert.Error(t, err)

	path := writeFile(t, t.TempDir(), "bad.yaml", "browser:\n  driver: [")
	_, err = newLoader(t, path).Load()
	assert.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	isolate(t)
	cfg, err := newLoader(t, "").Load()
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		problem string
	}{
		{"unknown driver", func(c *Config) { c.Browser.Driver = "selenium" }, "browser.driver"},
		{"zero viewport", func(c *Config) { c.Browser.Height = 0 }, "browser.width"},
		{"zero wait", func(c *Config) { c.Wait.Timeout = 0 }, "wait.timeout"},
		{"interval over timeout", func(c *Config) { c.Wait.Interval = time.Minute }, "wait.interval"},
		{"parallel", func(c *Config) { c.Run.Parallel = 0 }, "run.parallel"},
		{"match", func(c *Config) { c.Run.Match = "(" }, "run.match"},
		{"format", func(c *Config) { c.Report.Formats = []string{"pdf"} }, "report.formats"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"cron", func(c *Config) { c.Schedule.Cron = "every day" }, "schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.problem)
		})
	}
}

func TestRunnerConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Run.Match = "^wrong_"
	cfg.Run.Vars = map[string]string{"account": "1"}

	rc, err := cfg.RunnerConfig()
	require.NoError(t, err)
	assert.Equal(t, "screenshots", rc.ScreenshotDir)
	require.NotNil(t, rc.Match)
	assert.True(t, rc.Match.MatchString("wrong_details"))
	assert.Equal(t, cfg.Wait.Timeout, rc.Wait.Timeout)
	assert.Equal(t, 1250, rc.Launch.Viewport.Width)
	assert.Equal(t, 30000, rc.Launch.CommandTimeoutMs)
	assert.Equal(t, "1", rc.Vars["account"])

	cfg.Run.Screenshots = false
	rc, err = cfg.RunnerConfig()
	require.NoError(t, err)
	assert.Empty(t, rc.ScreenshotDir)
}

func TestPublisherConfig(t *testing.T) {
	cfg := validConfig(t)
	pc := cfg.PublisherConfig()
	assert.Equal(t, "localhost:6379", pc.Addr)
	assert.Equal(t, "uiprobe:reports", pc.Key)
	assert.Equal(t, int64(100), pc.Keep)
}

func TestEnvVars(t *testing.T) {
	got := envVars([]string{
		"UIPROBE_VAR_ACCOUNT=123",
		"UIPROBE_VAR_Secret=a=b",
		"UIPROBE_VAR_=x",
		"UIPROBE_WAIT_TIMEOUT=1s",
		"PATH=/bin",
	})
	assert.Equal(t, map[string]string{"account": "123", "secret": "a=b"}, got)
}

func TestWatchReloadsChangedFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "uiprobe.yaml", "schedule:\n  cron: \"@every 1h\"\n")

	l := newLoader(t, path)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "@every 1h", cfg.Schedule.Cron)

	changed := make(chan *Config, 4)
	l.Watch(func(c *Config) { changed <- c })

	writeFile(t, dir, "uiprobe.yaml", "schedule:\n  cron: \"@every 2h\"\n")
	select {
	case c := <-changed:
		assert.Equal(t, "@every 2h", c.Schedule.Cron)
		assert.Equal(t, "@every 2h", l.Get().Schedule.Cron)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not picked up")
	}
}

func TestPreflight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	assert.NoError(t, Preflight(context.Background(), srv.URL+"/"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closed := "http://" + ln.Addr().String() + "/"
	require.NoError(t, ln.Close())
	assert.Error(t, Preflight(context.Background(), closed))

	assert.Error(t, Preflight(context.Background(), "ftp://example.com/"))
	assert.Error(t, Preflight(context.Background(), "://bad"))
}
