// Package locator identifies DOM nodes by a selector strategy and expression.
package locator

import (
	"fmt"
	"strings"
)

// Strategy is the selector language of a Locator.
type Strategy string

const (
	XPath Strategy = "xpath"
	ID    Strategy = "id"
	CSS   Strategy = "css"
)

// Locator is an immutable strategy+expression pair. Two locators are the same
// node query when both fields are equal.
type Locator struct {
	Strategy   Strategy
	Expression string
}

// ByXPath returns an XPath locator.
func ByXPath(expr string) Locator { return Locator{Strategy: XPath, Expression: expr} }

// ByID returns a locator matching the element id attribute.
func ByID(id string) Locator { return Locator{Strategy: ID, Expression: id} }

// ByCSS returns a CSS selector locator.
func ByCSS(sel string) Locator { return Locator{Strategy: CSS, Expression: sel} }

// Parse reads the textual form "<strategy>=<expression>". Without a known
// prefix, an expression starting with "/" or "(" is XPath and anything else
// is treated as CSS.
func Parse(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}
	if i := strings.Index(s, "="); i > 0 {
		prefix := Strategy(strings.ToLower(s[:i]))
		switch prefix {
		case XPath, ID, CSS:
			expr := strings.TrimSpace(s[i+1:])
			if expr == "" {
				return Locator{}, fmt.Errorf("locator %q has no expression", s)
			}
			return Locator{Strategy: prefix, Expression: expr}, nil
		}
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") {
		return ByXPath(s), nil
	}
	return ByCSS(s), nil
}

// MustParse is like Parse but panics on error. Intended for package-level
// locator tables.
func MustParse(s string) Locator {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

// String returns the canonical textual form accepted by Parse.
func (l Locator) String() string {
	return string(l.Strategy) + "=" + l.Expression
}

// Validate reports whether the locator can be sent to a driver.
func (l Locator) Validate() error {
	switch l.Strategy {
	case XPath, ID, CSS:
	default:
		return fmt.Errorf("unknown locator strategy %q", l.Strategy)
	}
	if strings.TrimSpace(l.Expression) == "" {
		return fmt.Errorf("locator %s has an empty expression", l.Strategy)
	}
	return nil
}

// IsZero reports whether l is the zero Locator.
func (l Locator) IsZero() bool {
	return l == Locator{}
}
