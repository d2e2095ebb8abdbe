package scenario

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/qa-tooling/uiprobe/internal/browser"
)

// Action names a step kind in the suite DSL.
type Action string

const (
	ActionNavigate          Action = "navigate"
	ActionClick             Action = "click"
	ActionSendKeys          Action = "send_keys"
	ActionWaitDisplayed     Action = "wait_displayed"
	ActionAssertDisplayed   Action = "assert_displayed"
	ActionAssertText        Action = "assert_text"
	ActionAssertAttribute   Action = "assert_attribute"
	ActionAssertTranslation Action = "assert_translation"
	ActionScreenshot        Action = "screenshot"
)

// Actions lists every supported action in documentation order.
var Actions = []Action{
	ActionNavigate,
	ActionClick,
	ActionSendKeys,
	ActionWaitDisplayed,
	ActionAssertDisplayed,
	ActionAssertText,
	ActionAssertAttribute,
	ActionAssertTranslation,
	ActionScreenshot,
}

// IsAssertion reports whether a mismatch in this step is a FAIL rather than
// an ERROR.
func (a Action) IsAssertion() bool {
	return strings.HasPrefix(string(a), "assert_")
}

// Step is one command of a scenario. Which fields matter depends on Action;
// values may contain ${...} expansions.
type Step struct {
	Action Action `yaml:"action" json:"action"`
	// Target is a locator alias from the suite or an inline locator
	// ("xpath=//input", "//input", "css=div.x").
	Target string   `yaml:"target,omitempty" json:"target,omitempty"`
	Text   string   `yaml:"text,omitempty" json:"text,omitempty"`
	Keys   []string `yaml:"keys,omitempty" json:"keys,omitempty"`
	// SaveAs stores the expanded text of a send_keys step as a variable.
	SaveAs string `yaml:"save_as,omitempty" json:"save_as,omitempty"`
	// Name is the attribute of assert_attribute or the screenshot name.
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Expected string `yaml:"expected,omitempty" json:"expected,omitempty"`
	Language string `yaml:"language,omitempty" json:"language,omitempty"`
	URL      string `yaml:"url,omitempty" json:"url,omitempty"`
	Timeout  string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// Hold keeps a displayed-state condition true for this long before it
	// counts, e.g. "300ms" for "still not shown".
	Hold string `yaml:"hold,omitempty" json:"hold,omitempty"`
}

// String renders the step for logs and report messages.
func (s Step) String() string {
	var b strings.Builder
	b.WriteString(string(s.Action))
	if s.Target != "" {
		b.WriteString(" ")
		b.WriteString(s.Target)
	}
	switch {
	case s.Action == ActionNavigate && s.URL != "":
		b.WriteString(" " + s.URL)
	case s.Action == ActionAssertTranslation:
		b.WriteString(" " + s.Language)
	case s.Action == ActionAssertAttribute:
		b.WriteString("[" + s.Name + "]")
	}
	return b.String()
}

// TimeoutDuration returns the per-step timeout or 0 for the default.
func (s Step) TimeoutDuration() (time.Duration, error) {
	return parseDuration("timeout", s.Timeout)
}

// HoldDuration returns the hold period or 0.
func (s Step) HoldDuration() (time.Duration, error) {
	return parseDuration("hold", s.Hold)
}

// SpecialKeys converts Keys into driver keys.
func (s Step) SpecialKeys() ([]browser.Key, error) {
	out := make([]browser.Key, 0, len(s.Keys))
	for _, name := range s.Keys {
		k, err := browser.ParseKey(name)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// WantDisplayed reads Expected of a displayed-state step. Empty means true.
func (s Step) WantDisplayed() (bool, error) {
	if s.Expected == "" {
		return true, nil
	}
	v, err := strconv.ParseBool(s.Expected)
	if err != nil {
		return false, fmt.Errorf("expected must be true or false, got %q", s.Expected)
	}
	return v, nil
}

func parseDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// check validates the fields an action needs. Target and translation
// references are checked by the suite, which knows its aliases.
func (s Step) check() error {
	switch s.Action {
	case ActionNavigate, ActionScreenshot:
	case ActionClick:
		if s.Target == "" {
			return fmt.Errorf("%s needs a target", s.Action)
		}
	case ActionSendKeys:
		if s.Target == "" {
			return fmt.Errorf("%s needs a target", s.Action)
		}
		if s.Text == "" && len(s.Keys) == 0 {
			return fmt.Errorf("%s needs text or keys", s.Action)
		}
		if _, err := s.SpecialKeys(); err != nil {
			return err
		}
	case ActionWaitDisplayed, ActionAssertDisplayed:
		if s.Target == "" {
			return fmt.Errorf("%s needs a target", s.Action)
		}
		if _, err := s.WantDisplayed(); err != nil {
			return err
		}
	case ActionAssertText:
		if s.Target == "" {
			return fmt.Errorf("%s needs a target", s.Action)
		}
	case ActionAssertAttribute:
		if s.Target == "" || s.Name == "" {
			return fmt.Errorf("%s needs a target and an attribute name", s.Action)
		}
	case ActionAssertTranslation:
		if s.Language == "" {
			return fmt.Errorf("%s needs a language", s.Action)
		}
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
	if s.SaveAs != "" && s.Action != ActionSendKeys {
		return fmt.Errorf("save_as is only allowed on %s", ActionSendKeys)
	}
	if _, err := s.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := s.HoldDuration(); err != nil {
		return err
	}
	return nil
}
