package browser

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/qa-tooling/uiprobe/internal/locator"
)

// Config describes the session a suite run needs.
type Config struct {
	BaseURL       string
	Launch        LaunchOptions
	ScreenshotDir string
	Logger        *zap.Logger
}

// Session owns one browser instance for the lifetime of a suite run. Commands
// are serialized: at most one protocol command is in flight per Session.
type Session struct {
	driver   Driver
	baseURL  *url.URL
	viewport Viewport
	shotDir  string
	logger   *zap.Logger

	mu        sync.Mutex
	shots     atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open launches a browser through launcher and loads cfg.BaseURL. Every
// failure is an *EnvironmentError; a browser that started but could not load
// the page is closed before Open returns.
func Open(ctx context.Context, launcher Launcher, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		if err == nil {
			err = fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
		}
		return nil, &EnvironmentError{Op: "parse base URL", Err: err}
	}
	opts := cfg.Launch
	if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
		opts.Viewport = DefaultViewport
	}

	logger.Debug("launching browser",
		zap.Bool("headless", opts.Headless),
		zap.Int("width", opts.Viewport.Width),
		zap.Int("height", opts.Viewport.Height))

	drv, err := launcher.Launch(ctx, opts)
	if err != nil {
		return nil, &EnvironmentError{Op: "launch browser", Err: err}
	}
	s := &Session{
		driver:   drv,
		baseURL:  base,
		viewport: opts.Viewport,
		shotDir:  cfg.ScreenshotDir,
		logger:   logger,
	}
	if err := drv.Navigate(ctx, base.String()); err != nil {
		_ = s.Close()
		return nil, &EnvironmentError{Op: "navigate to " + base.String(), Err: err}
	}
	logger.Info("session opened", zap.String("base_url", base.String()))
	return s, nil
}

// BaseURL returns the page every scenario starts from.
func (s *Session) BaseURL() string { return s.baseURL.String() }

// Viewport returns the window size the browser was launched with.
func (s *Session) Viewport() Viewport { return s.viewport }

func (s *Session) do(fn func(d Driver) error) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Close may have run while this command waited for the lock.
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return fn(s.driver)
}

// Navigate loads rawURL, resolved against the base URL when relative. Loading
// a page discards all page-local state.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	target := s.baseURL.ResolveReference(ref).String()
	return s.do(func(d Driver) error {
		if err := d.Navigate(ctx, target); err != nil {
			return fmt.Errorf("navigate to %s: %w", target, err)
		}
		return nil
	})
}

// Reset returns the page to the base URL.
func (s *Session) Reset(ctx context.Context) error {
	return s.Navigate(ctx, s.baseURL.String())
}

// Find resolves loc immediately. A missing element is a *NotFoundError; Find
// never waits for the element to appear.
func (s *Session) Find(ctx context.Context, loc locator.Locator) (*ElementHandle, error) {
	h := s.Element(loc)
	err := s.do(func(d Driver) error { return h.resolve(ctx, d) })
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Element returns an unresolved handle for loc. Resolution happens on each
// operation.
func (s *Session) Element(loc locator.Locator) *ElementHandle {
	return &ElementHandle{session: s, loc: loc}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Screenshot saves the current page as PNG and returns its path. Every call
// gets a new file, even for the same name. It is a no-op returning "" when no
// screenshot directory is configured.
func (s *Session) Screenshot(ctx context.Context, name string) (string, error) {
	if s.shotDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.shotDir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	file := fmt.Sprintf("%s_%d_%03d.png", unsafeFileChars.ReplaceAllString(name, "_"), time.Now().Unix(), s.shots.Add(1))
	path := filepath.Join(s.shotDir, file)
	err := s.do(func(d Driver) error { return d.Screenshot(ctx, path) })
	if err != nil {
		return "", err
	}
	return path, nil
}

// Close releases the browser. It waits for a command in flight to finish and
// fails every later one with ErrSessionClosed. Only the first call reaches
// the driver; later calls return the same result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closeErr = s.driver.Close()
		if s.closeErr != nil {
			s.logger.Warn("closing browser failed", zap.Error(s.closeErr))
		} else {
			s.logger.Info("session closed")
		}
	})
	return s.closeErr
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed.Load() }
