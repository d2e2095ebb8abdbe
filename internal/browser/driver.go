// Package browser owns the browser session used by a suite run and exposes
// element handles that re-resolve their locator on every operation.
//
// The remote control protocol itself lives behind the Driver interface; see
// the playwright and cdp subpackages for real browsers and browsertest for an
// in-memory page model.
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/qa-tooling/uiprobe/internal/locator"
)

// Driver is the remote browser control boundary. Implementations translate
// each call into protocol commands for one page. Lookups must not wait: Count
// reports the matches present right now.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Count(ctx context.Context, loc locator.Locator) (int, error)
	Click(ctx context.Context, loc locator.Locator) error
	Type(ctx context.Context, loc locator.Locator, text string) error
	Press(ctx context.Context, loc locator.Locator, key Key) error
	Text(ctx context.Context, loc locator.Locator) (string, error)
	// Attribute returns the attribute value and whether it is present. The
	// name "value" must report the live value of form controls.
	Attribute(ctx context.Context, loc locator.Locator, name string) (string, bool, error)
	Visible(ctx context.Context, loc locator.Locator) (bool, error)
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int `mapstructure:"width" json:"width" yaml:"width"`
	Height int `mapstructure:"height" json:"height" yaml:"height"`
}

// DefaultViewport matches the window the login suite was written against.
var DefaultViewport = Viewport{Width: 1250, Height: 1250}

// LaunchOptions are passed to a Launcher when a Session opens.
type LaunchOptions struct {
	Viewport Viewport
	Headless bool
	// SlowMo delays each protocol command, for watching a run.
	SlowMoMs int
	// RemoteURL attaches to an already running browser instead of starting one.
	RemoteURL string
	// CommandTimeoutMs bounds a single protocol command.
	CommandTimeoutMs int
}

// Launcher starts a browser and returns a driver bound to its only page.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Driver, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, opts LaunchOptions) (Driver, error)

func (f LauncherFunc) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	return f(ctx, opts)
}

// Key is a named special key.
type Key string

const (
	KeyEnter     Key = "Enter"
	KeySpace     Key = "Space"
	KeyTab       Key = "Tab"
	KeyEscape    Key = "Escape"
	KeyBackspace Key = "Backspace"
)

var keyNames = map[string]Key{
	"enter":     KeyEnter,
	"return":    KeyEnter,
	"space":     KeySpace,
	"tab":       KeyTab,
	"escape":    KeyEscape,
	"esc":       KeyEscape,
	"backspace": KeyBackspace,
}

// ParseKey resolves a key name such as "ENTER" or "Space".
func ParseKey(name string) (Key, error) {
	if k, ok := keyNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKey, name)
}
