package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/qa-tooling/uiprobe/internal/locator"
)

// ElementHandle is a proxy for the node a locator matches. It never caches
// the node: the page is stateful and nodes detach and reappear (the password
// field only exists after enough characters are typed), so every operation
// resolves the locator again.
type ElementHandle struct {
	session    *Session
	loc        locator.Locator
	resolvedAt time.Time
}

// Locator returns the query behind the handle.
func (h *ElementHandle) Locator() locator.Locator { return h.loc }

// ResolvedAt is the time of the latest successful resolution, zero if none.
func (h *ElementHandle) ResolvedAt() time.Time { return h.resolvedAt }

func (h *ElementHandle) resolve(ctx context.Context, d Driver) error {
	n, err := d.Count(ctx, h.loc)
	if err != nil {
		return h.wrap("resolve", err)
	}
	if n == 0 {
		return &NotFoundError{Locator: h.loc}
	}
	h.resolvedAt = time.Now()
	return nil
}

func (h *ElementHandle) wrap(op string, err error) error {
	if IsNotFound(err) {
		return &NotFoundError{Locator: h.loc}
	}
	if IsEnvironment(err) {
		return err
	}
	return fmt.Errorf("%s %s: %w", op, h.loc, err)
}

// Click activates the element with the pointer.
func (h *ElementHandle) Click(ctx context.Context) error {
	return h.session.do(func(d Driver) error {
		if err := h.resolve(ctx, d); err != nil {
			return err
		}
		if err := d.Click(ctx, h.loc); err != nil {
			return h.wrap("click", err)
		}
		return nil
	})
}

// SendKeys types text into the element and then presses keys in order.
func (h *ElementHandle) SendKeys(ctx context.Context, text string, keys ...Key) error {
	return h.session.do(func(d Driver) error {
		if err := h.resolve(ctx, d); err != nil {
			return err
		}
		if text != "" {
			if err := d.Type(ctx, h.loc, text); err != nil {
				return h.wrap("type into", err)
			}
		}
		for _, k := range keys {
			if err := d.Press(ctx, h.loc, k); err != nil {
				return h.wrap("press "+string(k)+" on", err)
			}
		}
		return nil
	})
}

// Text returns the rendered text of the element.
func (h *ElementHandle) Text(ctx context.Context) (string, error) {
	var text string
	err := h.session.do(func(d Driver) error {
		if err := h.resolve(ctx, d); err != nil {
			return err
		}
		var err error
		text, err = d.Text(ctx, h.loc)
		if err != nil {
			return h.wrap("read text of", err)
		}
		return nil
	})
	return text, err
}

// Attribute returns the named attribute, "" when the element lacks it. For
// "value" it returns what the user has typed so far.
func (h *ElementHandle) Attribute(ctx context.Context, name string) (string, error) {
	var value string
	err := h.session.do(func(d Driver) error {
		if err := h.resolve(ctx, d); err != nil {
			return err
		}
		v, _, err := d.Attribute(ctx, h.loc, name)
		if err != nil {
			return h.wrap("read attribute "+name+" of", err)
		}
		value = v
		return nil
	})
	return value, err
}

// IsDisplayed reports whether the element is rendered visibly. An element
// that does not exist is not displayed; that is not an error, because
// scenarios routinely probe for elements that do not exist yet.
func (h *ElementHandle) IsDisplayed(ctx context.Context) (bool, error) {
	var visible bool
	err := h.session.do(func(d Driver) error {
		if err := h.resolve(ctx, d); err != nil {
			return err
		}
		v, err := d.Visible(ctx, h.loc)
		if err != nil {
			return h.wrap("check visibility of", err)
		}
		visible = v
		return nil
	})
	if IsNotFound(err) {
		return false, nil
	}
	return visible, err
}

// Exists reports whether the locator currently matches anything.
func (h *ElementHandle) Exists(ctx context.Context) (bool, error) {
	err := h.session.do(func(d Driver) error { return h.resolve(ctx, d) })
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}
