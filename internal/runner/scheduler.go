package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunFunc is one scheduled run, typically every registered suite followed by
// report publication.
type RunFunc func(ctx context.Context) error

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule checks a cron expression. Five fields, an optional leading
// seconds field and descriptors such as "@hourly" or "@every 15m" are
// accepted.
func ParseSchedule(spec string) error {
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Scheduler triggers whole runs from a cron expression. A tick that arrives
// while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	run     RunFunc
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	spec    string
	entry   cron.EntryID
	ctx     context.Context
	wg      sync.WaitGroup
	running atomic.Bool
	runs    atomic.Int64
	skips   atomic.Int64
}

// NewScheduler creates a scheduler for spec. timeout bounds a single run; 0
// leaves runs unbounded apart from the scheduler context.
func NewScheduler(spec string, timeout time.Duration, run RunFunc, logger *zap.Logger) (*Scheduler, error) {
	if err := ParseSchedule(spec); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithChain(cron.Recover(cronLogger{logger.Sugar()})),
		),
		run:     run,
		timeout: timeout,
		logger:  logger,
		spec:    spec,
		ctx:     context.Background(),
	}, nil
}

// Spec returns the active cron expression.
func (s *Scheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Runs returns how many runs were started.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

// Skipped returns how many ticks were dropped because a run was in progress.
func (s *Scheduler) Skipped() int64 { return s.skips.Load() }

// Start registers the schedule and blocks until ctx is done, then stops and
// waits for the current run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	id, err := s.cron.AddFunc(s.spec, func() { s.Trigger(ctx) })
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to schedule runs: %w", err)
	}
	s.entry = id
	spec := s.spec
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("schedule", spec), zap.Time("next", s.cron.Entry(id).Next))

	<-ctx.Done()
	s.logger.Info("context cancelled")
	s.Stop()
	return ctx.Err()
}

// Reschedule replaces the cron expression of a started scheduler, e.g. after
// the configuration file changed.
func (s *Scheduler) Reschedule(spec string) error {
	if err := ParseSchedule(spec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.spec {
		return nil
	}
	if s.entry != 0 {
		ctx := s.ctx
		id, err := s.cron.AddFunc(spec, func() { s.Trigger(ctx) })
		if err != nil {
			return fmt.Errorf("failed to reschedule runs: %w", err)
		}
		s.cron.Remove(s.entry)
		s.entry = id
	}
	s.logger.Info("schedule changed", zap.String("from", s.spec), zap.String("to", spec))
	s.spec = spec
	return nil
}

// Trigger starts a run now and waits for it. It returns false without running
// when another run is still in progress.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.skips.Add(1)
		s.logger.Warn("previous run still in progress, skipping")
		return false
	}
	s.wg.Add(1)
	defer func() {
		s.running.Store(false)
		s.wg.Done()
	}()

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	n := s.runs.Add(1)
	s.logger.Info("executing run", zap.Int64("run", n))
	start := time.Now()
	err := s.run(runCtx)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("run failed", zap.Int64("run", n), zap.Duration("duration", duration), zap.Error(err))
	} else {
		s.logger.Info("run completed", zap.Int64("run", n), zap.Duration("duration", duration))
	}
	return true
}

// Stop stops scheduling and waits for a run in progress to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")

	// Stop accepting new ticks
	ctx := s.cron.Stop()

	s.wg.Wait()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
