// Package runner executes suites against a browser session and turns every
// scenario into exactly one report result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qa-tooling/uiprobe/internal/browser"
	"github.com/qa-tooling/uiprobe/internal/report"
	"github.com/qa-tooling/uiprobe/internal/scenario"
	"github.com/qa-tooling/uiprobe/internal/wait"
)

// DefaultTeardownTimeout bounds teardown steps and the page reset, which still
// run after the run context is cancelled.
const DefaultTeardownTimeout = 30 * time.Second

// Config controls how suites are run.
type Config struct {
	// BaseURL replaces the suite base URL when set.
	BaseURL string
	Launch  browser.LaunchOptions
	Wait    wait.Options

	// ScreenshotDir receives a PNG for every FAIL or ERROR; empty disables it.
	ScreenshotDir string
	// Vars override suite variables, e.g. credentials from the environment.
	Vars map[string]string
	// Match limits a run to cases whose "group/scenario" id matches.
	Match *regexp.Regexp
	// Parallel bounds RunAll; 0 or less runs suites one at a time.
	Parallel int

	TeardownTimeout time.Duration
}

// Observer is told about every result as it is recorded and about every
// finished report. *report.Metrics implements it.
type Observer interface {
	ObserveResult(suite string, res report.Result)
	ObserveReport(r *report.Report)
}

// Runner runs suites. It is safe to call Run from several goroutines; each
// call opens its own session.
type Runner struct {
	launcher browser.Launcher
	cfg      Config
	logger   *zap.Logger
	observer Observer
	random   func(n int) string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger; the runner logs under the name "runner".
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver reports results to o.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithRandom replaces the ${random:N} generator.
func WithRandom(fn func(n int) string) Option {
	return func(r *Runner) { r.random = fn }
}

// New creates a runner that starts browsers through launcher.
func New(launcher browser.Launcher, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		launcher: launcher,
		cfg:      cfg,
		logger:   zap.NewNop(),
		random:   scenario.RandomString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.TeardownTimeout <= 0 {
		r.cfg.TeardownTimeout = DefaultTeardownTimeout
	}
	r.logger = r.logger.Named("runner")
	return r
}

// Config returns the runner configuration.
func (r *Runner) Config() Config { return r.cfg }

// Run executes every case of s in declaration order within one browser
// session. The report is always returned, with one result per selected case.
// The error is non-nil when the run was aborted: the browser could not be
// started or died, or ctx was cancelled. Cases that did not get to run are
// then recorded as SKIP.
func (r *Runner) Run(ctx context.Context, s *scenario.Suite) (*report.Report, error) {
	if r.cfg.BaseURL != "" {
		s = s.WithBaseURL(r.cfg.BaseURL)
	}
	logger := r.logger.With(zap.String("suite", s.Name))
	cases := r.selectCases(s)
	started := time.Now()
	results := make([]report.Result, 0, len(cases))

	logger.Info("starting suite",
		zap.String("base_url", s.BaseURL),
		zap.Int("cases", len(cases)))

	var abort error
	var sess *browser.Session
	if runnable(s, cases, r.cfg.Vars) {
		var err error
		sess, err = browser.Open(ctx, r.launcher, browser.Config{
			BaseURL:       s.BaseURL,
			Launch:        r.cfg.Launch,
			ScreenshotDir: r.cfg.ScreenshotDir,
			Logger:        logger.Named("session"),
		})
		if err != nil {
			logger.Error("failed to open browser session", zap.Error(err))
			abort = err
		} else {
			defer sess.Close()
		}
	}

	for _, c := range cases {
		if abort == nil && ctx.Err() != nil {
			abort = ctx.Err()
		}
		if abort == nil && sess != nil && sess.Closed() {
			abort = browser.ErrSessionClosed
		}
		var res report.Result
		if abort != nil {
			res = skipped(c, "run aborted: "+abort.Error())
		} else {
			var fatal error
			res, fatal = r.runCase(ctx, sess, s, c, logger)
			if fatal != nil {
				logger.Error("aborting run", zap.String("scenario", c.ID()), zap.Error(fatal))
				abort = fatal
			}
		}
		results = append(results, res)
		if r.observer != nil {
			r.observer.ObserveResult(s.Name, res)
		}
	}
	if sess != nil {
		_ = sess.Close()
	}

	meta := report.Meta{
		Suite:    s.Name,
		BaseURL:  s.BaseURL,
		Started:  started,
		Finished: time.Now(),
	}
	if abort != nil {
		meta.Aborted = abort.Error()
	}
	rep := report.New(meta, results)
	if r.observer != nil {
		r.observer.ObserveReport(rep)
	}

	sum := rep.Summary()
	logger.Info("suite finished",
		zap.String("run_id", rep.RunID()),
		zap.Int("pass", sum.Pass),
		zap.Int("fail", sum.Fail),
		zap.Int("error", sum.Error),
		zap.Int("skip", sum.Skip),
		zap.Duration("duration", rep.Duration()))

	if abort != nil {
		return rep, fmt.Errorf("suite %q aborted: %w", s.Name, abort)
	}
	return rep, nil
}

// RunAll runs independent suites concurrently, each in its own session,
// with at most Config.Parallel at a time. Reports are returned in the order
// of suites; a nil entry never occurs. The error joins the abort errors.
func (r *Runner) RunAll(ctx context.Context, suites []*scenario.Suite) ([]*report.Report, error) {
	reports := make([]*report.Report, len(suites))
	errs := make([]error, len(suites))

	var g errgroup.Group
	limit := r.cfg.Parallel
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, s := range suites {
		i, s := i, s // per-iteration copies for the goroutine (go < 1.22)
		// Suites fail independently: Run reports aborts through errs rather
		// than the group, so one dead browser does not cancel its siblings.
		g.Go(func() error {
			reports[i], errs[i] = r.Run(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

func (r *Runner) selectCases(s *scenario.Suite) []scenario.Case {
	all := s.Cases()
	if r.cfg.Match == nil {
		return all
	}
	out := all[:0]
	for _, c := range all {
		if r.cfg.Match.MatchString(c.ID()) {
			out = append(out, c)
		}
	}
	return out
}

// runnable reports whether any case will actually drive the browser. A suite
// made only of pending or gated cases does not need a session.
func runnable(s *scenario.Suite, cases []scenario.Case, vars map[string]string) bool {
	env := scenario.NewEnv(s, vars)
	for _, c := range cases {
		if c.Pending == "" && len(c.Unmet(env)) == 0 {
			return true
		}
	}
	return false
}

func skipped(c scenario.Case, reason string) report.Result {
	return report.Result{
		Group:    c.Group,
		Scenario: c.Name,
		Outcome:  report.Skip,
		Message:  reason,
	}
}

// runCase drives one case through setup, body and teardown. The returned
// error is set only when the failure must abort the whole run.
func (r *Runner) runCase(ctx context.Context, sess *browser.Session, s *scenario.Suite, c scenario.Case, logger *zap.Logger) (report.Result, error) {
	if c.Pending != "" {
		return skipped(c, "pending: "+c.Pending), nil
	}
	env := scenario.NewEnv(s, r.cfg.Vars)
	env.Random = r.random
	if unmet := c.Unmet(env); len(unmet) > 0 {
		return skipped(c, "requires "+strings.Join(unmet, ", ")), nil
	}

	logger = logger.With(zap.String("scenario", c.ID()))
	x := &executor{
		session: sess,
		suite:   s,
		env:     env,
		wait:    r.cfg.Wait,
		logger:  logger,
		caseID:  c.ID(),
	}
	res := report.Result{Group: c.Group, Scenario: c.Name}
	start := time.Now()
	logger.Debug("scenario started")

	var failure error
	if err := x.run(ctx, "setup", c.Setup); err != nil {
		res.Outcome = report.Error
		failure = err
	} else if err := x.run(ctx, "steps", c.Body); err != nil {
		res.Outcome = report.Error
		if scenario.IsAssertion(err) {
			res.Outcome = report.Fail
		}
		failure = err
	} else {
		res.Outcome = report.Pass
	}
	if failure != nil {
		res.Message = failure.Error()
		var se *StepError
		if errors.As(failure, &se) {
			res.Step = se.Step.String()
		}
		var ae *scenario.AssertionError
		if errors.As(failure, &ae) {
			res.Expected, res.Actual = ae.Expected, ae.Actual
		}
	}

	fatal := fatalCause(ctx, failure)
	if res.Outcome.Failed() && fatal == nil && r.cfg.ScreenshotDir != "" {
		path, err := sess.Screenshot(ctx, c.ID())
		if err != nil {
			logger.Warn("screenshot failed", zap.Error(err))
		} else {
			res.Screenshot = path
		}
	}

	// Teardown runs even after cancellation, on a context of its own.
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.TeardownTimeout)
	defer cancel()
	var teardown []error
	if err := x.run(tctx, "teardown", c.Teardown); err != nil {
		teardown = append(teardown, err)
	}
	if err := sess.Reset(tctx); err != nil {
		teardown = append(teardown, fmt.Errorf("reset: %w", err))
		if fatal == nil && browser.IsEnvironment(err) {
			fatal = err
		}
	}
	if len(teardown) > 0 {
		res.TeardownError = errors.Join(teardown...).Error()
		logger.Warn("teardown failed", zap.String("error", res.TeardownError))
	}
	res.Duration = time.Since(start)

	logger.Info("scenario finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("duration", res.Duration))
	if res.Outcome.Failed() {
		logger.Info("scenario failure", zap.String("message", res.Message))
	}
	return res, fatal
}

// fatalCause returns err when it means the run cannot go on.
func fatalCause(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if browser.IsEnvironment(err) || errors.Is(err, browser.ErrSessionClosed) {
		return err
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctx.Err()
	}
	return nil
}
