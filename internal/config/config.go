// Package config loads uiprobe settings from defaults, an optional YAML
// file, a .env file and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qa-tooling/uiprobe/internal/browser"
	"github.com/qa-tooling/uiprobe/internal/fixture"
	"github.com/qa-tooling/uiprobe/internal/report"
	"github.com/qa-tooling/uiprobe/internal/runner"
	"github.com/qa-tooling/uiprobe/internal/wait"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// UIPROBE_BROWSER_HEADLESS=false.
	EnvPrefix = "UIPROBE"
	// VarEnvPrefix marks suite variables, e.g. UIPROBE_VAR_ACCOUNT.
	VarEnvPrefix = EnvPrefix + "_VAR_"

	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"
)

// Config represents the application configuration
type Config struct {
	Browser  BrowserConfig  `mapstructure:"browser"`
	Wait     WaitConfig     `mapstructure:"wait"`
	Run      RunConfig      `mapstructure:"run"`
	Report   ReportConfig   `mapstructure:"report"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Fixture  fixture.Config `mapstructure:"fixture"`

	// Warnings lists problems that do not stop a run.
	Warnings []string `mapstructure:"-"`
	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type BrowserConfig struct {
	Driver         string        `mapstructure:"driver"`
	Headless       bool          `mapstructure:"headless"`
	Width          int           `mapstructure:"width"`
	Height         int           `mapstructure:"height"`
	SlowMo         time.Duration `mapstructure:"slow_mo"`
	RemoteURL      string        `mapstructure:"remote_url"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	// Engine, Install and VideoDir apply to the playwright driver only.
	Engine   string `mapstructure:"engine"`
	Install  bool   `mapstructure:"install"`
	VideoDir string `mapstructure:"video_dir"`
	// ExecPath overrides the Chrome binary for the chromedp driver.
	ExecPath string `mapstructure:"exec_path"`
}

type WaitConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Interval time.Duration `mapstructure:"interval"`
}

type RunConfig struct {
	BaseURL         string            `mapstructure:"base_url"`
	Suites          []string          `mapstructure:"suites"`
	Parallel        int               `mapstructure:"parallel"`
	Match           string            `mapstructure:"match"`
	Screenshots     bool              `mapstructure:"screenshots"`
	ScreenshotDir   string            `mapstructure:"screenshot_dir"`
	TeardownTimeout time.Duration     `mapstructure:"teardown_timeout"`
	Preflight       bool              `mapstructure:"preflight"`
	Vars            map[string]string `mapstructure:"vars"`
}

type ReportConfig struct {
	Dir         string      `mapstructure:"dir"`
	Formats     []string    `mapstructure:"formats"`
	MetricsFile string      `mapstructure:"metrics_file"`
	Redis       RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	Channel  string `mapstructure:"channel"`
	Keep     int64  `mapstructure:"keep"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ScheduleConfig struct {
	Cron    string        `mapstructure:"cron"`
	Timeout time.Duration `mapstructure:"timeout"`
	// MetricsAddr serves /metrics while the scheduler runs; empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("browser.driver", DriverPlaywright)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.width", browser.DefaultViewport.Width)
	v.SetDefault("browser.height", browser.DefaultViewport.Height)
	v.SetDefault("browser.slow_mo", time.Duration(0))
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.command_timeout", 30*time.Second)
	v.SetDefault("browser.engine", "chromium")
	v.SetDefault("browser.install", false)
	v.SetDefault("browser.video_dir", "")
	v.SetDefault("browser.exec_path", "")

	v.SetDefault("wait.timeout", wait.DefaultTimeout)
	v.SetDefault("wait.interval", wait.DefaultInterval)

	v.SetDefault("run.base_url", "")
	v.SetDefault("run.suites", []string{})
	v.SetDefault("run.parallel", 1)
	v.SetDefault("run.match", "")
	v.SetDefault("run.screenshots", true)
	v.SetDefault("run.screenshot_dir", "screenshots")
	v.SetDefault("run.teardown_timeout", runner.DefaultTeardownTimeout)
	v.SetDefault("run.preflight", true)

	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.formats", []string{string(report.FormatText)})
	v.SetDefault("report.metrics_file", "")
	v.SetDefault("report.redis.enabled", false)
	v.SetDefault("report.redis.addr", "localhost:6379")
	v.SetDefault("report.redis.password", "")
	v.SetDefault("report.redis.db", 0)
	v.SetDefault("report.redis.key", "uiprobe:reports")
	v.SetDefault("report.redis.channel", "")
	v.SetDefault("report.redis.keep", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.timeout", 30*time.Minute)
	v.SetDefault("schedule.metrics_addr", "")

	def := fixture.DefaultConfig()
	v.SetDefault("fixture.addr", def.Addr)
	v.SetDefault("fixture.default_language", def.DefaultLanguage)
	v.SetDefault("fixture.user", def.User)
	v.SetDefault("fixture.secret", def.Secret)
	v.SetDefault("fixture.pin_secret", def.PINSecret)
	v.SetDefault("fixture.pin_calculator", def.PINCalculator)
	v.SetDefault("fixture.render_delay", def.RenderDelay)
	v.SetDefault("fixture.debug", false)
}

// legacyEnv maps the plain variable names older e2e setups export.
var legacyEnv = map[string]string{
	"BASE_URL":    "run.base_url",
	"HEADLESS":    "browser.headless",
	"SCREENSHOTS": "run.screenshots",
}

// Loader reads the configuration and keeps the latest good copy. It is
// safe for concurrent use.
type Loader struct {
	v        *viper.Viper
	file     string
	envFiles []string
	logger   *zap.Logger

	mu  sync.RWMutex
	cfg *Config
}

// NewLoader prepares a loader. configFile may be empty, in which case
// ./uiprobe.yaml and $HOME/.config/uiprobe/uiprobe.yaml are tried.
// Command line flags can be bound to Viper() before Load.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	setDefaults(v)
	return &Loader{v: v, file: configFile, envFiles: []string{".env"}, logger: zap.NewNop()}
}

// SetLogger sets the logger used for reload messages.
func (l *Loader) SetLogger(logger *zap.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// SetEnvFiles replaces the dotenv files read by Load.
func (l *Loader) SetEnvFiles(paths ...string) { l.envFiles = paths }

// Viper exposes the underlying instance for flag binding.
func (l *Loader) Viper() *viper.Viper { return l.v }

// Load reads every source and validates the result.
func (l *Loader) Load() (*Config, error) {
	if err := loadDotEnv(l.envFiles...); err != nil {
		return nil, err
	}

	v := l.v
	v.SetConfigType("yaml")
	if l.file != "" {
		v.SetConfigFile(l.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("uiprobe")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/uiprobe")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for name, key := range legacyEnv {
		// Checked after the prefixed name, so UIPROBE_* still wins.
		if err := v.BindEnv(key, name); err != nil {
			return nil, err
		}
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = l.v.ConfigFileUsed()

	fileVars := cfg.Run.Vars
	cfg.Run.Vars = make(map[string]string, len(fileVars))
	for k, val := range fileVars {
		cfg.Run.Vars[strings.ToLower(k)] = val
	}
	if err := ValidateSecrets(cfg, l.v.InConfig); err != nil {
		return nil, err
	}
	for k, val := range envVars(os.Environ()) {
		cfg.Run.Vars[k] = val
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envVars extracts UIPROBE_VAR_* entries from environ with lower-cased
// names.
func envVars(environ []string) map[string]string {
	out := map[string]string{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, VarEnvPrefix) {
			continue
		}
		name, val, ok := strings.Cut(strings.TrimPrefix(kv, VarEnvPrefix), "=")
		if !ok || name == "" {
			continue
		}
		out[strings.ToLower(name)] = val
	}
	return out
}

// loadDotEnv loads KEY=VALUE files that exist. Existing environment
// variables take precedence and are not overwritten.
func loadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Get returns the configuration of the last successful Load or reload.
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch reloads the configuration when the file changes and passes every
// valid new version to onChange. Invalid edits are logged and ignored.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		l.logger.Debug("no config file to watch")
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.logger.Info("config file changed", zap.String("file", e.Name))
		newCfg, err := l.decode()
		if err != nil {
			l.logger.Warn("failed to reload config", zap.Error(err))
			return
		}

		// Atomic swap
		l.mu.Lock()
		l.cfg = newCfg
		l.mu.Unlock()
		l.logger.Info("configuration reloaded")
		if onChange != nil {
			onChange(newCfg)
		}
	})
	l.v.WatchConfig()
}

// Load reads the configuration from configFile (optional) and the
// environment.
func Load(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}

// Validate checks values that would otherwise fail late in a run.
func (c *Config) Validate() error {
	var problems []string
	switch c.Browser.Driver {
	case DriverPlaywright, DriverChromedp:
	default:
		problems = append(problems, fmt.Sprintf("browser.driver must be %q or %q, got %q", DriverPlaywright, DriverChromedp, c.Browser.Driver))
	}
	switch c.Browser.Engine {
	case "chromium", "firefox", "webkit":
	default:
		problems = append(problems, fmt.Sprintf("browser.engine must be chromium, firefox or webkit, got %q", c.Browser.Engine))
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		problems = append(problems, "browser.width and browser.height must be positive")
	}
	if c.Wait.Timeout <= 0 {
		problems = append(problems, "wait.timeout must be positive")
	}
	if c.Wait.Interval <= 0 || c.Wait.Interval > c.Wait.Timeout {
		problems = append(problems, "wait.interval must be positive and at most wait.timeout")
	}
	if c.Run.Parallel < 1 {
		problems = append(problems, "run.parallel must be at least 1")
	}
	if c.Run.Match != "" {
		if _, err := regexp.Compile(c.Run.Match); err != nil {
			problems = append(problems, fmt.Sprintf("run.match: %v", err))
		}
	}
	if _, err := c.ReportFormats(); err != nil {
		problems = append(problems, fmt.Sprintf("report.formats: %v", err))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, fmt.Sprintf("logging.level: %v", err))
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		problems = append(problems, fmt.Sprintf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	if c.Schedule.Cron != "" {
		if err := runner.ParseSchedule(c.Schedule.Cron); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// ReportFormats parses report.formats.
func (c *Config) ReportFormats() ([]report.Format, error) {
	formats := make([]report.Format, 0, len(c.Report.Formats))
	for _, name := range c.Report.Formats {
		f, err := report.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// LaunchOptions returns the browser launch settings.
func (c *Config) LaunchOptions() browser.LaunchOptions {
	return browser.LaunchOptions{
		Viewport:         browser.Viewport{Width: c.Browser.Width, Height: c.Browser.Height},
		Headless:         c.Browser.Headless,
		SlowMoMs:         int(c.Browser.SlowMo.Milliseconds()),
		RemoteURL:        c.Browser.RemoteURL,
		CommandTimeoutMs: int(c.Browser.CommandTimeout.Milliseconds()),
	}
}

// RunnerConfig returns the settings for runner.New.
func (c *Config) RunnerConfig() (runner.Config, error) {
	rc := runner.Config{
		BaseURL:         c.Run.BaseURL,
		Launch:          c.LaunchOptions(),
		Wait:            wait.Options{Timeout: c.Wait.Timeout, Interval: c.Wait.Interval},
		Vars:            c.Run.Vars,
		Parallel:        c.Run.Parallel,
		TeardownTimeout: c.Run.TeardownTimeout,
	}
	if c.Run.Screenshots {
		rc.ScreenshotDir = c.Run.ScreenshotDir
	}
	if c.Run.Match != "" {
		re, err := regexp.Compile(c.Run.Match)
		if err != nil {
			return rc, fmt.Errorf("run.match: %w", err)
		}
		rc.Match = re
	}
	return rc, nil
}

// PublisherConfig returns the Redis settings for report publication.
func (c *Config) PublisherConfig() report.PublisherConfig {
	return report.PublisherConfig{
		Addr:     c.Report.Redis.Addr,
		Password: c.Report.Redis.Password,
		DB:       c.Report.Redis.DB,
		Key:      c.Report.Redis.Key,
		Channel:  c.Report.Redis.Channel,
		Keep:     c.Report.Redis.Keep,
	}
}
