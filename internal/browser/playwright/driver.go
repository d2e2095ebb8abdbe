// Package playwright drives Chromium, Firefox or WebKit through
// playwright-go.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/qa-tooling/uiprobe/internal/browser"
	"github.com/qa-tooling/uiprobe/internal/locator"
)

// Options selects the browser engine and install behaviour.
type Options struct {
	// Engine is chromium (default), firefox or webkit.
	Engine string
	// Install downloads the driver and browsers before starting. It is skipped
	// when PLAYWRIGHT_PREINSTALLED=1.
	Install bool
	// VideoDir records a video of every page when set.
	VideoDir string
}

// Launcher starts browsers through playwright.
type Launcher struct {
	opts Options
}

// NewLauncher returns a Launcher for opts.
func NewLauncher(opts Options) *Launcher {
	return &Launcher{opts: opts}
}

// Driver controls a single playwright page.
type Driver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

var _ browser.Driver = (*Driver)(nil)

func (l *Launcher) start() (*playwright.Playwright, error) {
	if l.opts.Install && os.Getenv("PLAYWRIGHT_PREINSTALLED") != "1" {
		if err := playwright.Install(); err != nil {
			return nil, fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		// the driver may be missing or at a different version; install and retry once
		_ = playwright.Install()
		pw, err = playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("could not start playwright after retry (ensure driver version matches): %w", err)
		}
	}
	return pw, nil
}

func (l *Launcher) engine(pw *playwright.Playwright) (playwright.BrowserType, error) {
	switch strings.ToLower(l.opts.Engine) {
	case "", "chromium", "chrome":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unknown playwright engine %q", l.opts.Engine)
	}
}

// Launch implements browser.Launcher.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := l.start()
	if err != nil {
		return nil, err
	}
	d := &Driver{pw: pw}

	bt, err := l.engine(pw)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	if opts.RemoteURL != "" {
		d.browser, err = bt.ConnectOverCDP(opts.RemoteURL)
	} else {
		d.browser, err = bt.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
			SlowMo:   playwright.Float(float64(opts.SlowMoMs)),
		})
	}
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	}
	if l.opts.VideoDir != "" {
		ctxOpts.RecordVideo = &playwright.RecordVideo{Dir: l.opts.VideoDir}
	}
	d.context, err = d.browser.NewContext(ctxOpts)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("could not create context: %w", err)
	}
	d.page, err = d.context.NewPage()
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	if opts.CommandTimeoutMs > 0 {
		d.page.SetDefaultTimeout(float64(opts.CommandTimeoutMs))
	}
	return d, nil
}

// Selector converts a locator into a playwright selector.
func Selector(loc locator.Locator) string {
	switch loc.Strategy {
	case locator.XPath:
		return "xpath=" + loc.Expression
	case locator.ID:
		return "id=" + loc.Expression
	default:
		return "css=" + loc.Expression
	}
}

func (d *Driver) first(loc locator.Locator) playwright.Locator {
	return d.page.Locator(Selector(loc)).First()
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return &browser.EnvironmentError{Op: "playwright command", Err: err}
	}
	return err
}

// budget returns the error of a done ctx, else the milliseconds left before
// its deadline, or nil to keep the page default timeout. Playwright calls do
// not take a context, so this is how cancellation reaches them.
func budget(ctx context.Context) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil, nil
	}
	ms := time.Until(deadline).Milliseconds()
	if ms < 1 {
		return nil, context.DeadlineExceeded
	}
	return playwright.Float(float64(ms)), nil
}

// Navigate implements browser.Driver.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	timeout, err := budget(ctx)
	if err != nil {
		return err
	}
	_, err = d.page.Goto(url, playwright.PageGotoOptions{Timeout: timeout})
	if err != nil && strings.Contains(err.Error(), "ERR_TOO_MANY_REDIRECTS") {
		return fmt.Errorf("redirect loop navigating to %s: %w", url, err)
	}
	return classify(err)
}

// Count implements browser.Driver.
func (d *Driver) Count(ctx context.Context, loc locator.Locator) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := d.page.Locator(Selector(loc)).Count()
	return n, classify(err)
}

// Click implements browser.Driver.
func (d *Driver) Click(ctx context.Context, loc locator.Locator) error {
	timeout, err := budget(ctx)
	if err != nil {
		return err
	}
	return classify(d.first(loc).Click(playwright.LocatorClickOptions{Timeout: timeout}))
}

// Type implements browser.Driver. Characters are typed one by one so the
// page applies its own input limits.
func (d *Driver) Type(ctx context.Context, loc locator.Locator, text string) error {
	timeout, err := budget(ctx)
	if err != nil {
		return err
	}
	return classify(d.first(loc).PressSequentially(text, playwright.LocatorPressSequentiallyOptions{Timeout: timeout}))
}

// Press implements browser.Driver.
func (d *Driver) Press(ctx context.Context, loc locator.Locator, key browser.Key) error {
	timeout, err := budget(ctx)
	if err != nil {
		return err
	}
	return classify(d.first(loc).Press(string(key), playwright.LocatorPressOptions{Timeout: timeout}))
}

// Text implements browser.Driver.
func (d *Driver) Text(ctx context.Context, loc locator.Locator) (string, error) {
	timeout, err := budget(ctx)
	if err != nil {
		return "", err
	}
	text, err := d.first(loc).InnerText(playwright.LocatorInnerTextOptions{Timeout: timeout})
	return text, classify(err)
}

// Attribute implements browser.Driver.
func (d *Driver) Attribute(ctx context.Context, loc locator.Locator, name string) (string, bool, error) {
	timeout, err := budget(ctx)
	if err != nil {
		return "", false, err
	}
	if name == "value" {
		v, err := d.first(loc).InputValue(playwright.LocatorInputValueOptions{Timeout: timeout})
		return v, err == nil, classify(err)
	}
	v, err := d.first(loc).GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: timeout})
	return v, v != "", classify(err)
}

// Visible implements browser.Driver.
func (d *Driver) Visible(ctx context.Context, loc locator.Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v, err := d.first(loc).IsVisible()
	return v, classify(err)
}

// Screenshot implements browser.Driver.
func (d *Driver) Screenshot(ctx context.Context, path string) error {
	timeout, err := budget(ctx)
	if err != nil {
		return err
	}
	_, err = d.page.Screenshot(playwright.PageScreenshotOptions{
		Path:    playwright.String(path),
		Timeout: timeout,
	})
	return classify(err)
}

// Close tears down the page, context, browser and driver process in that
// order and reports every failure.
func (d *Driver) Close() error {
	var errs []error
	if d.page != nil {
		if err := d.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
	}
	if d.context != nil {
		if err := d.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
	}
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}
