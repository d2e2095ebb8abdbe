// Package browsertest provides an in-memory browser.Driver backed by a
// scriptable page model, for exercising sessions and scenarios without a
// browser.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/qa-tooling/uiprobe/internal/browser"
	"github.com/qa-tooling/uiprobe/internal/locator"
)

// Element is one node of the page model.
type Element struct {
	Visible   bool
	Text      string
	Value     string
	MaxLength int
	Attrs     map[string]string

	OnClick func(p *Page)
	OnKey   func(p *Page, k browser.Key)
	OnInput func(p *Page, value string)
}

// Page is a page model. Build is called on every navigation to lay the page
// out from scratch, so nothing survives a reload unless Build restores it.
type Page struct {
	Build func(p *Page, url string)

	// NavigateErr, when set, fails every navigation.
	NavigateErr error
	// CommandErr, when set, fails every other command.
	CommandErr error

	mu       sync.Mutex
	elements map[locator.Locator]*Element
	pending  []deferred
	url      string
	calls    map[string]int
	visits   []string
	closed   int
}

type deferred struct {
	polls int
	apply func(p *Page)
}

// NewPage returns an empty page laid out by build.
func NewPage(build func(p *Page, url string)) *Page {
	return &Page{
		Build:    build,
		elements: make(map[locator.Locator]*Element),
		calls:    make(map[string]int),
	}
}

// Set, Remove and Get are meant for Build and element callbacks, which run
// with the page locked, or for test setup before a driver exists.

// Set places el at loc, replacing any previous node.
func (p *Page) Set(loc locator.Locator, el *Element) {
	if el.Attrs == nil {
		el.Attrs = map[string]string{}
	}
	p.elements[loc] = el
}

// Remove detaches the node at loc.
func (p *Page) Remove(loc locator.Locator) { delete(p.elements, loc) }

// Get returns the node at loc, or nil.
func (p *Page) Get(loc locator.Locator) *Element { return p.elements[loc] }

// After applies fn once n more element lookups have happened. It models
// client-side rendering that lags behind the command which triggered it.
func (p *Page) After(n int, fn func(p *Page)) {
	if n <= 0 {
		fn(p)
		return
	}
	p.pending = append(p.pending, deferred{polls: n, apply: fn})
}

func (p *Page) tick() {
	if len(p.pending) == 0 {
		return
	}
	var due []func(*Page)
	kept := p.pending[:0]
	for _, d := range p.pending {
		d.polls--
		if d.polls <= 0 {
			due = append(due, d.apply)
			continue
		}
		kept = append(kept, d)
	}
	p.pending = kept
	for _, fn := range due {
		fn(p)
	}
}

// URL is the address of the last successful navigation.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Visits lists every navigated URL in order.
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

// Calls returns how often the named driver command ran.
func (p *Page) Calls(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

// CloseCount reports how often the driver was closed.
func (p *Page) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Launcher returns a launcher whose browser drives p. A non-nil launchErr
// makes every launch fail.
func (p *Page) Launcher(launchErr error) browser.Launcher {
	return browser.LauncherFunc(func(ctx context.Context, opts browser.LaunchOptions) (browser.Driver, error) {
		if launchErr != nil {
			return nil, launchErr
		}
		return &driver{page: p}, nil
	})
}

// ErrBrowserGone is what the fake reports after Close.
var ErrBrowserGone = &browser.EnvironmentError{Op: "command", Err: errors.New("target page, context or browser has been closed")}

type driver struct {
	page   *Page
	closed bool
}

func (d *driver) enter(name string) (*Page, error) {
	p := d.page
	p.mu.Lock()
	p.calls[name]++
	if d.closed {
		p.mu.Unlock()
		return nil, ErrBrowserGone
	}
	return p, nil
}

func (d *driver) element(p *Page, loc locator.Locator) (*Element, error) {
	if p.CommandErr != nil {
		return nil, p.CommandErr
	}
	el, ok := p.elements[loc]
	if !ok {
		return nil, browser.ErrElementNotFound
	}
	return el, nil
}

func (d *driver) Navigate(ctx context.Context, url string) error {
	p, err := d.enter("navigate")
	if err != nil {
		return err
	}
	defer p.mu.Unlock()
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.elements = make(map[locator.Locator]*Element)
	p.pending = nil
	p.url = url
	p.visits = append(p.visits, url)
	if p.Build != nil {
		p.Build(p, url)
	}
	return nil
}

func (d *driver) Count(ctx context.Context, loc locator.Locator) (int, error) {
	p, err := d.enter("count")
	if err != nil {
		return 0, err
	}
	defer p.mu.Unlock()
	if p.CommandErr != nil {
		return 0, p.CommandErr
	}
	p.tick()
	if _, ok := p.elements[loc]; ok {
		return 1, nil
	}
	return 0, nil
}

func (d *driver) Click(ctx context.Context, loc locator.Locator) error {
	p, err := d.enter("click")
	if err != nil {
		return err
	}
	defer p.mu.Unlock()
	el, err := d.element(p, loc)
	if err != nil {
		return err
	}
	if !el.Visible {
		return fmt.Errorf("element %s is not visible", loc)
	}
	if el.OnClick != nil {
		el.OnClick(p)
	}
	return nil
}

func (d *driver) Type(ctx context.Context, loc locator.Locator, text string) error {
	p, err := d.enter("type")
	if err != nil {
		return err
	}
	defer p.mu.Unlock()
	el, err := d.element(p, loc)
	if err != nil {
		return err
	}
	for _, r := range text {
		if el.MaxLength > 0 && len([]rune(el.Value)) >= el.MaxLength {
			break
		}
		el.Value += string(r)
	}
	if el.OnInput != nil {
		el.OnInput(p, el.Value)
	}
	return nil
}

func (d *driver) Press(ctx context.Context, loc locator.Locator, key browser.Key) error {
	p, err := d.enter("press")
	if err != nil {
		return err
	}
	defer p.mu.Unlock()
	el, err := d.element(p, loc)
	if err != nil {
		return err
	}
	if el.OnKey != nil {
		el.OnKey(p, key)
	}
	return nil
}

func (d *driver) Text(ctx context.Context, loc locator.Locator) (string, error) {
	p, err := d.enter("text")
	if err != nil {
		return "", err
	}
	defer p.mu.Unlock()
	el, err := d.element(p, loc)
	if err != nil {
		return "", err
	}
	if !el.Visible {
		return "", nil
	}
	return el.Text, nil
}

func (d *driver) Attribute(ctx context.Context, loc locator.Locator, name string) (string, bool, error) {
	p, err := d.enter("attribute")
	if err != nil {
		return "", false, err
	}
	defer p.mu.Unlock()
	el, err := d.element(p, loc)
	if err != nil {
		return "", false, err
	}
	if name == "value" {
		return el.Value, true, nil
	}
	v, ok := el.Attrs[name]
	return v, ok, nil
}

func (d *driver) Visible(ctx context.Context, loc locator.Locator) (bool, error) {
	p, err := d.enter("visible")
	if err != nil {
		return false, err
	}
	defer p.mu.Unlock()
	el, err := d.element(p, loc)
	if err != nil {
		return false, err
	}
	return el.Visible, nil
}

func (d *driver) Screenshot(ctx context.Context, path string) error {
	p, err := d.enter("screenshot")
	if err != nil {
		return err
	}
	defer p.mu.Unlock()
	return os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o644)
}

func (d *driver) Close() error {
	p := d.page
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["close"]++
	if !d.closed {
		d.closed = true
		p.closed++
	}
	return nil
}
