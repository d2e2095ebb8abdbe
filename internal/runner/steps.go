package runner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/qa-tooling/uiprobe/internal/browser"
	"github.com/qa-tooling/uiprobe/internal/locator"
	"github.com/qa-tooling/uiprobe/internal/scenario"
	"github.com/qa-tooling/uiprobe/internal/wait"
)

// StepError locates a failure inside a case.
type StepError struct {
	Phase string
	Index int
	Step  scenario.Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step %d (%s): %v", e.Phase, e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// executor runs the steps of one case. Variables saved by send_keys live in
// env and are visible to the later steps of the same case only.
type executor struct {
	session *browser.Session
	suite   *scenario.Suite
	env     *scenario.Env
	wait    wait.Options
	logger  *zap.Logger
	caseID  string
}

func (x *executor) run(ctx context.Context, phase string, steps []scenario.Step) error {
	for i, st := range steps {
		x.logger.Debug("step", zap.String("phase", phase), zap.Int("index", i), zap.Stringer("step", st))
		if err := x.step(ctx, st); err != nil {
			return &StepError{Phase: phase, Index: i, Step: st, Err: err}
		}
	}
	return nil
}

func (x *executor) step(ctx context.Context, st scenario.Step) error {
	timeout, err := st.TimeoutDuration()
	if err != nil {
		return err
	}
	opts := x.wait.WithTimeout(timeout)

	switch st.Action {
	case scenario.ActionNavigate:
		u, err := x.env.Expand(st.URL, st.Language)
		if err != nil {
			return err
		}
		if u == "" {
			u = x.session.BaseURL()
		}
		return x.session.Navigate(ctx, u)

	case scenario.ActionClick:
		loc, err := x.interactable(ctx, st, opts)
		if err != nil {
			return err
		}
		return x.session.Element(loc).Click(ctx)

	case scenario.ActionSendKeys:
		text, err := x.env.Expand(st.Text, st.Language)
		if err != nil {
			return err
		}
		keys, err := st.SpecialKeys()
		if err != nil {
			return err
		}
		loc, err := x.interactable(ctx, st, opts)
		if err != nil {
			return err
		}
		if err := x.session.Element(loc).SendKeys(ctx, text, keys...); err != nil {
			return err
		}
		if st.SaveAs != "" {
			x.env.Set(st.SaveAs, text)
		}
		return nil

	case scenario.ActionWaitDisplayed, scenario.ActionAssertDisplayed:
		return x.displayed(ctx, st, opts)

	case scenario.ActionAssertText:
		loc, err := x.suite.Locator(st.Target)
		if err != nil {
			return err
		}
		expected, err := x.env.Expand(st.Expected, st.Language)
		if err != nil {
			return err
		}
		got, err := x.session.WaitText(ctx, loc, expected, opts)
		return x.assertion(st, expected, got, err)

	case scenario.ActionAssertAttribute:
		loc, err := x.suite.Locator(st.Target)
		if err != nil {
			return err
		}
		expected, err := x.env.Expand(st.Expected, st.Language)
		if err != nil {
			return err
		}
		got, err := x.session.WaitAttribute(ctx, loc, st.Name, expected, opts)
		return x.assertion(st, expected, got, err)

	case scenario.ActionAssertTranslation:
		return x.translation(ctx, st, opts)

	case scenario.ActionScreenshot:
		name, err := x.env.Expand(st.Name, st.Language)
		if err != nil {
			return err
		}
		if name == "" {
			name = x.caseID
		}
		path, err := x.session.Screenshot(ctx, name)
		if err != nil {
			return err
		}
		x.logger.Info("screenshot saved", zap.String("path", path))
		return nil
	}
	return fmt.Errorf("unsupported action %q", st.Action)
}

// interactable waits until the step target is visible. A timeout here is an
// ERROR, not a FAIL.
func (x *executor) interactable(ctx context.Context, st scenario.Step, opts wait.Options) (locator.Locator, error) {
	loc, err := x.suite.Locator(st.Target)
	if err != nil {
		return loc, err
	}
	if _, err := x.session.WaitDisplayed(ctx, loc, true, opts, 0); err != nil {
		return loc, err
	}
	return loc, nil
}

func (x *executor) displayed(ctx context.Context, st scenario.Step, opts wait.Options) error {
	loc, err := x.suite.Locator(st.Target)
	if err != nil {
		return err
	}
	want, err := st.WantDisplayed()
	if err != nil {
		return err
	}
	hold, err := st.HoldDuration()
	if err != nil {
		return err
	}
	got, err := x.session.WaitDisplayed(ctx, loc, want, opts, hold)
	if st.Action == scenario.ActionWaitDisplayed {
		return err
	}
	return x.assertion(st, strconv.FormatBool(want), strconv.FormatBool(got), err)
}

// assertion turns a wait that gave up into an *AssertionError. Other errors,
// such as a dead browser, pass through unchanged.
func (x *executor) assertion(st scenario.Step, expected, actual string, err error) error {
	if err == nil {
		return nil
	}
	if !wait.IsTimeout(err) {
		return err
	}
	return &scenario.AssertionError{
		Step:     st.String(),
		Expected: expected,
		Actual:   actual,
		Cause:    err,
	}
}

func (x *executor) translation(ctx context.Context, st scenario.Step, opts wait.Options) error {
	lang := st.Language
	if lang == "" {
		lang = x.suite.Catalog().Default()
	}
	expected, err := x.suite.LabelSet(lang)
	if err != nil {
		return err
	}
	seen, err := x.session.WaitTexts(ctx, expected, opts)
	if err == nil {
		return nil
	}
	if !wait.IsTimeout(err) {
		return err
	}

	locs := make([]locator.Locator, 0, len(expected))
	for loc, want := range expected {
		if got, ok := seen[loc]; !ok || got != want {
			locs = append(locs, loc)
		}
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].String() < locs[j].String() })

	var wants, gots []string
	for _, loc := range locs {
		wants = append(wants, expected[loc])
		got, ok := seen[loc]
		if !ok {
			got = "<missing>"
		}
		gots = append(gots, got)
	}
	return &scenario.AssertionError{
		Step:     st.String(),
		Expected: strings.Join(wants, " | "),
		Actual:   strings.Join(gots, " | "),
		Cause:    err,
	}
}
