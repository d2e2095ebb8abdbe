package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qa-tooling/uiprobe/internal/config"
	"github.com/qa-tooling/uiprobe/internal/report"
	"github.com/qa-tooling/uiprobe/internal/runner"
)

// serveMetrics serves m on /metrics until ctx is done and returns the
// address it listens on.
func serveMetrics(ctx context.Context, addr string, m *report.Metrics, logger *zap.Logger) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return ln.Addr(), nil
}

func newScheduleCmd(a *app) *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "schedule [suite.yaml|dir...]",
		Short: "Run suites on a cron schedule",
		Long: `Schedule keeps running the suites on schedule.cron until interrupted.
A run that is due while the previous one is still going is skipped.
Suite files are read again before every run.

Edits to the config file are picked up without a restart: a new cron
expression takes effect for the next tick and other settings for the
next run.`,
		Example: `  uiprobe schedule --cron "@every 15m"
  uiprobe schedule --cron "0 */2 * * *" --now --metrics-addr :9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a.cfg.Schedule.Cron == "" {
				return errors.New("no schedule: set schedule.cron or pass --cron")
			}
			reg, err := a.loadSuites(args)
			if err != nil {
				return err
			}

			metrics := report.NewMetrics()
			if a.cfg.Schedule.MetricsAddr != "" {
				addr, err := serveMetrics(ctx, a.cfg.Schedule.MetricsAddr, metrics, a.logger)
				if err != nil {
					return err
				}
				a.logger.Info("serving metrics", zap.String("url", "http://"+addr.String()+"/metrics"))
			}
			run := func(ctx context.Context) error {
				if err := reg.Reload(); err != nil {
					a.logger.Warn("suite changes not loaded", zap.Error(err))
				}
				cfg := a.loader.Get()
				if err := mergeVars(cfg, a.vars); err != nil {
					return err
				}
				reports, err := a.runSuites(ctx, cfg, reg.All(), metrics, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if report.AnyFailed(reports) {
					return errScenariosFailed
				}
				return nil
			}

			sched, err := runner.NewScheduler(a.cfg.Schedule.Cron, a.cfg.Schedule.Timeout, run, a.logger)
			if err != nil {
				return err
			}
			a.loader.Watch(func(cfg *config.Config) {
				if err := sched.Reschedule(cfg.Schedule.Cron); err != nil {
					a.logger.Warn("schedule not changed", zap.Error(err))
				}
			})

			if now {
				go sched.Trigger(ctx)
			}
			err = sched.Start(ctx)
			a.logger.Info("scheduler summary",
				zap.Int64("runs", sched.Runs()),
				zap.Int64("skipped", sched.Skipped()))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("cron", "", `Cron expression, e.g. "*/30 * * * *" or "@every 1h"`)
	f.Int("parallel", 1, "Suites run at the same time")
	f.String("base-url", "", "Override the base URL of every suite")
	f.StringSlice("format", nil, "Report file formats")
	f.String("out", "", "Directory for report files")
	f.String("metrics-file", "", "Write Prometheus metrics to this textfile after every run")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	f.StringArrayVar(&a.vars, "var", nil, "Suite variable name=value, repeatable")
	f.BoolVar(&now, "now", false, "Also run once immediately")
	return cmd
}
