// Package cdp drives Chrome directly over the DevTools protocol with
// chromedp. It needs no driver process, which makes it the lighter choice on
// CI images that already ship Chrome, and it can attach to a remote browser.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/qa-tooling/uiprobe/internal/browser"
	"github.com/qa-tooling/uiprobe/internal/locator"
)

// DefaultCommandTimeout bounds a protocol command when the launch options
// leave it unset.
const DefaultCommandTimeout = 30 * time.Second

// Launcher starts or attaches to Chrome.
type Launcher struct {
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
}

// Driver controls one Chrome tab.
type Driver struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	timeout     time.Duration
}

var _ browser.Driver = (*Driver)(nil)

// Launch implements browser.Launcher. The browser lives until Close; it is
// not bound to ctx.
func (l Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Driver, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height),
		)
		if l.ExecPath != "" {
			execOpts = append(execOpts, chromedp.ExecPath(l.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	d := &Driver{
		allocCancel: allocCancel,
		ctx:         browserCtx,
		cancel:      cancel,
		timeout:     DefaultCommandTimeout,
	}
	if opts.CommandTimeoutMs > 0 {
		d.timeout = time.Duration(opts.CommandTimeoutMs) * time.Millisecond
	}

	// The first Run allocates the browser and ties it to the context it is
	// given, so it must run on the tab context itself, not a derived one.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(browserCtx, chromedp.EmulateViewport(int64(opts.Viewport.Width), int64(opts.Viewport.Height)))
	stop()
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	return d, nil
}

// run executes actions on the tab, bounded by the command timeout and by
// the caller's ctx.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && d.ctx.Err() != nil {
		return &browser.EnvironmentError{Op: "cdp command", Err: err}
	}
	return err
}

// query maps a locator onto a chromedp selector and query option. Ids go
// through an attribute selector so ids with CSS metacharacters still match.
func query(loc locator.Locator) (string, chromedp.QueryOption) {
	switch loc.Strategy {
	case locator.XPath:
		return loc.Expression, chromedp.BySearch
	case locator.ID:
		return "[id=" + strconv.Quote(loc.Expression) + "]", chromedp.ByQuery
	default:
		return loc.Expression, chromedp.ByQuery
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// nodesJS returns a script evaluating to the array of nodes loc matches.
func nodesJS(loc locator.Locator) string {
	switch loc.Strategy {
	case locator.XPath:
		return fmt.Sprintf(`(function(){const r=document.evaluate(%s,document,null,XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);const a=[];for(let i=0;i<r.snapshotLength;i++){a.push(r.snapshotItem(i));}return a;})()`, jsString(loc.Expression))
	case locator.ID:
		return fmt.Sprintf(`(function(){const e=document.getElementById(%s);return e?[e]:[];})()`, jsString(loc.Expression))
	default:
		return fmt.Sprintf(`Array.from(document.querySelectorAll(%s))`, jsString(loc.Expression))
	}
}

func visibleJS(loc locator.Locator) string {
	return fmt.Sprintf(`(function(els){
		if (!els.length) return false;
		const el = els[0];
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) return false;
		const style = window.getComputedStyle(el);
		return style.visibility !== 'hidden' && style.display !== 'none';
	})(%s)`, nodesJS(loc))
}

var keys = map[browser.Key]string{
	browser.KeyEnter:     kb.Enter,
	browser.KeySpace:     " ",
	browser.KeyTab:       kb.Tab,
	browser.KeyEscape:    kb.Escape,
	browser.KeyBackspace: kb.Backspace,
}

// Navigate implements browser.Driver.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

// Count implements browser.Driver.
func (d *Driver) Count(ctx context.Context, loc locator.Locator) (int, error) {
	var n int
	err := d.run(ctx, chromedp.Evaluate(nodesJS(loc)+".length", &n))
	return n, err
}

// Click implements browser.Driver.
func (d *Driver) Click(ctx context.Context, loc locator.Locator) error {
	sel, by := query(loc)
	return d.run(ctx, chromedp.Click(sel, by, chromedp.NodeVisible))
}

// Type implements browser.Driver.
func (d *Driver) Type(ctx context.Context, loc locator.Locator, text string) error {
	sel, by := query(loc)
	return d.run(ctx, chromedp.SendKeys(sel, text, by))
}

// Press implements browser.Driver.
func (d *Driver) Press(ctx context.Context, loc locator.Locator, key browser.Key) error {
	k, ok := keys[key]
	if !ok {
		return fmt.Errorf("%w: %q", browser.ErrInvalidKey, key)
	}
	sel, by := query(loc)
	return d.run(ctx, chromedp.Focus(sel, by), chromedp.SendKeys(sel, k, by))
}

// Text implements browser.Driver.
func (d *Driver) Text(ctx context.Context, loc locator.Locator) (string, error) {
	sel, by := query(loc)
	var text string
	err := d.run(ctx, chromedp.Text(sel, &text, by))
	return text, err
}

// Attribute implements browser.Driver.
func (d *Driver) Attribute(ctx context.Context, loc locator.Locator, name string) (string, bool, error) {
	sel, by := query(loc)
	if name == "value" {
		var v string
		err := d.run(ctx, chromedp.Value(sel, &v, by))
		return v, err == nil, err
	}
	var (
		v  string
		ok bool
	)
	err := d.run(ctx, chromedp.AttributeValue(sel, name, &v, &ok, by))
	return v, ok, err
}

// Visible implements browser.Driver.
func (d *Driver) Visible(ctx context.Context, loc locator.Locator) (bool, error) {
	var visible bool
	err := d.run(ctx, chromedp.Evaluate(visibleJS(loc), &visible))
	return visible, err
}

// Screenshot implements browser.Driver.
func (d *Driver) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

// Close shuts the browser down and releases the allocator.
func (d *Driver) Close() error {
	var err error
	if d.ctx != nil && d.ctx.Err() == nil {
		err = chromedp.Cancel(d.ctx)
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return err
}
