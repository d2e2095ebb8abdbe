package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSuite wraps every problem found while loading a suite.
var ErrInvalidSuite = errors.New("invalid suite")

// AssertionError is an expected/actual mismatch inside a scenario body. It
// ends the scenario with FAIL and never aborts the run.
type AssertionError struct {
	Step     string
	Expected string
	Actual   string
	// Cause is the wait that gave up, if any.
	Cause error
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %q, got %q", e.Step, e.Expected, e.Actual)
}

func (e *AssertionError) Unwrap() error { return e.Cause }

// IsAssertion reports whether err is, or wraps, an *AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// Problem is one finding against a suite document.
type Problem struct {
	// Path is a dotted location such as "groups.0.scenarios.2.steps.1".
	Path    string
	Message string
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}

// ValidationError lists every problem of a suite document.
type ValidationError struct {
	Source   string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%d problem(s)", len(e.Problems))
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p.String())
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSuite
}
