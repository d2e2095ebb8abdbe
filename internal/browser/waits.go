package browser

import (
	"context"
	"errors"
	"time"

	"github.com/qa-tooling/uiprobe/internal/locator"
	"github.com/qa-tooling/uiprobe/internal/wait"
)

// fatal marks errors that no amount of polling can fix.
func fatal(err error) error {
	if err == nil {
		return nil
	}
	if IsEnvironment(err) || errors.Is(err, ErrSessionClosed) {
		return wait.Stop(err)
	}
	return err
}

// WaitDisplayed waits until the visibility of loc equals want. With hold > 0
// the state must persist for that long, which catches elements that render
// late.
func (s *Session) WaitDisplayed(ctx context.Context, loc locator.Locator, want bool, opts wait.Options, hold time.Duration) (bool, error) {
	h := s.Element(loc)
	desc := "visibility of " + loc.String()
	if !want {
		desc = "invisibility of " + loc.String()
	}
	return wait.Hold(ctx, opts, hold, desc, func(ctx context.Context) (bool, bool, error) {
		visible, err := h.IsDisplayed(ctx)
		if err != nil {
			return visible, false, fatal(err)
		}
		return visible, visible == want, nil
	})
}

// WaitText waits until the text of loc equals expected and returns the last
// text read.
func (s *Session) WaitText(ctx context.Context, loc locator.Locator, expected string, opts wait.Options) (string, error) {
	h := s.Element(loc)
	return wait.For(ctx, opts, "text of "+loc.String(), func(ctx context.Context) (string, bool, error) {
		text, err := h.Text(ctx)
		if err != nil {
			return text, false, fatal(err)
		}
		return text, text == expected, nil
	})
}

// WaitAttribute waits until attribute name of loc equals expected.
func (s *Session) WaitAttribute(ctx context.Context, loc locator.Locator, name, expected string, opts wait.Options) (string, error) {
	h := s.Element(loc)
	return wait.For(ctx, opts, name+" of "+loc.String(), func(ctx context.Context) (string, bool, error) {
		v, err := h.Attribute(ctx, name)
		if err != nil {
			return v, false, fatal(err)
		}
		return v, v == expected, nil
	})
}

// WaitTexts waits until every locator in expected shows its text at the same
// time. The returned map is the last complete reading, so a caller can report
// exactly which labels disagreed.
func (s *Session) WaitTexts(ctx context.Context, expected map[locator.Locator]string, opts wait.Options) (map[locator.Locator]string, error) {
	return wait.For(ctx, opts, "consistent label set", func(ctx context.Context) (map[locator.Locator]string, bool, error) {
		seen := make(map[locator.Locator]string, len(expected))
		all := true
		for loc, want := range expected {
			text, err := s.Element(loc).Text(ctx)
			if err != nil {
				if IsNotFound(err) {
					all = false
					continue
				}
				return seen, false, fatal(err)
			}
			seen[loc] = text
			if text != want {
				all = false
			}
		}
		return seen, all, nil
	})
}
