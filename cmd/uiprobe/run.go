package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qa-tooling/uiprobe/internal/fixture"
	"github.com/qa-tooling/uiprobe/internal/report"
)

func newRunCmd(a *app) *cobra.Command {
	var useFixture bool
	cmd := &cobra.Command{
		Use:   "run [suite.yaml|dir...]",
		Short: "Run scenario suites",
		Long: `Run executes every scenario of the given suites in a fresh browser
session per suite and prints one report per suite.

The exit status is 1 when any scenario is FAIL or ERROR and 2 when a run
could not complete, e.g. because the browser did not start.`,
		Example: `  uiprobe run
  uiprobe run --fixture
  uiprobe run suites/ --headless=false --run 'Language'
  uiprobe run login.yaml --var account=12345678 --var secret=4242 --format junit,html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			reg, err := a.loadSuites(args)
			if err != nil {
				return err
			}

			if useFixture {
				srv, err := fixture.New(cfg.Fixture, a.logger)
				if err != nil {
					return err
				}
				base, stop, err := srv.Start(ctx, cfg.Fixture.Addr)
				if err != nil {
					return err
				}
				defer func() {
					if err := stop(); err != nil {
						a.logger.Warn("fixture shutdown", zap.Error(err))
					}
				}()
				cfg.Run.BaseURL = base
				for name, value := range fixtureVars(srv.Config()) {
					if _, set := cfg.Run.Vars[name]; !set {
						cfg.Run.Vars[name] = value
					}
				}
				a.logger.Info("running against fixture", zap.String("base_url", base))
			}

			reports, err := a.runSuites(ctx, cfg, reg.All(), report.NewMetrics(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if report.AnyFailed(reports) {
				return errScenariosFailed
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Bool("headless", true, "Run the browser without a window")
	f.String("driver", "", "Browser driver: playwright or chromedp")
	f.String("engine", "", "Playwright engine: chromium, firefox or webkit")
	f.String("base-url", "", "Override the base URL of every suite")
	f.Int("parallel", 1, "Suites run at the same time, each with its own browser")
	f.String("run", "", "Only run scenarios whose group/name matches this regexp")
	f.String("screenshot-dir", "", "Directory for failure screenshots")
	f.Bool("preflight", true, "Check the base URL answers before starting a browser")
	f.StringSlice("format", nil, fmt.Sprintf("Report file formats (%s)", formatNames()))
	f.String("out", "", "Directory for report files")
	f.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	f.StringArrayVar(&a.vars, "var", nil, "Suite variable name=value, repeatable")
	f.BoolVar(&useFixture, "fixture", false, "Start the fixture server and run against it")
	return cmd
}

func formatNames() string {
	names := make([]string, len(report.Formats))
	for i, f := range report.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
