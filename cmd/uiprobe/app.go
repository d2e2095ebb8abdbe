package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/qa-tooling/uiprobe/internal/browser"
	"github.com/qa-tooling/uiprobe/internal/browser/cdp"
	"github.com/qa-tooling/uiprobe/internal/browser/playwright"
	"github.com/qa-tooling/uiprobe/internal/config"
	"github.com/qa-tooling/uiprobe/internal/fixture"
	"github.com/qa-tooling/uiprobe/internal/logger"
	"github.com/qa-tooling/uiprobe/internal/report"
	"github.com/qa-tooling/uiprobe/internal/runner"
	"github.com/qa-tooling/uiprobe/internal/scenario"
	"github.com/qa-tooling/uiprobe/suites"
)

// flagKeys maps command line flags to config keys. A flag only overrides
// the config when it was given.
var flagKeys = map[string]string{
	"log-level":      "logging.level",
	"log-format":     "logging.format",
	"headless":       "browser.headless",
	"driver":         "browser.driver",
	"engine":         "browser.engine",
	"base-url":       "run.base_url",
	"parallel":       "run.parallel",
	"run":            "run.match",
	"screenshot-dir": "run.screenshot_dir",
	"preflight":      "run.preflight",
	"format":         "report.formats",
	"out":            "report.dir",
	"metrics-file":   "report.metrics_file",
	"cron":           "schedule.cron",
	"metrics-addr":   "schedule.metrics_addr",
	"addr":           "fixture.addr",
}

// app is the state shared by the subcommands.
type app struct {
	configFile string
	envFiles   []string
	vars       []string

	loader *config.Loader
	cfg    *config.Config
	logger *zap.Logger

	// launcher replaces the configured browser driver in tests.
	launcher browser.Launcher
}

func (a *app) setup(cmd *cobra.Command) error {
	a.loader = config.NewLoader(a.configFile)
	if len(a.envFiles) > 0 {
		a.loader.SetEnvFiles(a.envFiles...)
	}
	v := a.loader.Viper()
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err := a.loader.Load()
	if err != nil {
		return err
	}
	if err := mergeVars(cfg, a.vars); err != nil {
		return err
	}

	a.logger, err = logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.loader.SetLogger(a.logger.Named("config"))
	if cfg.File != "" {
		a.logger.Debug("config loaded", zap.String("file", cfg.File))
	}
	for _, w := range cfg.Warnings {
		a.logger.Warn(w)
	}
	a.cfg = cfg
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// mergeVars applies --var name=value flags on top of the configured vars.
func mergeVars(cfg *config.Config, flags []string) error {
	if cfg.Run.Vars == nil {
		cfg.Run.Vars = map[string]string{}
	}
	for _, kv := range flags {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			return fmt.Errorf("invalid --var %q, want name=value", kv)
		}
		cfg.Run.Vars[name] = value
	}
	return nil
}

// fixtureVars are the suite variables that unlock the credential scenarios
// against the fixture server.
func fixtureVars(cfg fixture.Config) map[string]string {
	vars := map[string]string{
		"account":    cfg.User,
		"secret":     cfg.Secret,
		"pin_secret": cfg.PINSecret,
	}
	if cfg.PINCalculator {
		vars["pin_calculator"] = "true"
	}
	return vars
}

func (a *app) browserLauncher(cfg *config.Config) browser.Launcher {
	if a.launcher != nil {
		return a.launcher
	}
	if cfg.Browser.Driver == config.DriverChromedp {
		return cdp.Launcher{ExecPath: cfg.Browser.ExecPath}
	}
	return playwright.NewLauncher(playwright.Options{
		Engine:   cfg.Browser.Engine,
		Install:  cfg.Browser.Install,
		VideoDir: cfg.Browser.VideoDir,
	})
}

// loadSuites reads the suites named on the command line, else the ones in
// run.suites, else the built-in ones.
func (a *app) loadSuites(args []string) (*runner.SuiteRegistry, error) {
	reg := runner.NewSuiteRegistry()
	paths := args
	if len(paths) == 0 {
		paths = a.cfg.Run.Suites
	}
	var err error
	if len(paths) == 0 {
		err = reg.LoadFS(suites.FS)
	} else {
		err = reg.LoadPaths(paths...)
	}
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		return nil, fmt.Errorf("no suites found in %s", strings.Join(paths, ", "))
	}
	return reg, nil
}

// runSuites runs every suite and writes the reports. metrics may be shared
// between scheduled runs.
func (a *app) runSuites(ctx context.Context, cfg *config.Config, list []*scenario.Suite, metrics *report.Metrics, out io.Writer) ([]*report.Report, error) {
	rc, err := cfg.RunnerConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Run.Preflight {
		for _, s := range list {
			base := s.BaseURL
			if rc.BaseURL != "" {
				base = rc.BaseURL
			}
			if err := config.Preflight(ctx, base); err != nil {
				return nil, fmt.Errorf("suite %q: %w", s.Name, err)
			}
		}
	}

	r := runner.New(a.browserLauncher(cfg), rc, runner.WithLogger(a.logger), runner.WithObserver(metrics))
	reports, runErr := r.RunAll(ctx, list)

	formats, err := cfg.ReportFormats()
	if err != nil {
		return reports, err
	}
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		if err := report.WriteText(out, rep); err != nil {
			return reports, err
		}
		paths, err := report.WriteFiles(cfg.Report.Dir, rep, formats)
		if err != nil {
			return reports, err
		}
		for _, p := range paths {
			a.logger.Info("report written", zap.String("suite", rep.Suite()), zap.String("path", p))
		}
	}

	if cfg.Report.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Report.MetricsFile); err != nil {
			a.logger.Warn("metrics not written", zap.Error(err))
		}
	}
	if cfg.Report.Redis.Enabled {
		a.publish(ctx, cfg, reports)
	}
	return reports, runErr
}

// publish pushes reports to Redis. Failures are logged; the local reports
// are already written.
func (a *app) publish(ctx context.Context, cfg *config.Config, reports []*report.Report) {
	pub, err := report.NewPublisher(ctx, cfg.PublisherConfig())
	if err != nil {
		a.logger.Warn("reports not published", zap.Error(err))
		return
	}
	defer pub.Close()
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		if err := pub.Publish(ctx, rep); err != nil {
			a.logger.Warn("report not published", zap.String("suite", rep.Suite()), zap.Error(err))
		}
	}
}
