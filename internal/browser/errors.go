package browser

import (
	"errors"
	"fmt"

	"github.com/qa-tooling/uiprobe/internal/locator"
)

var (
	// ErrElementNotFound is reported by drivers when a locator matches nothing
	// at the moment of the command.
	ErrElementNotFound = errors.New("element not found")

	// ErrSessionClosed is returned for operations on a closed Session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrInvalidKey is returned for an unknown special key name.
	ErrInvalidKey = errors.New("invalid key name")
)

// NotFoundError is returned when an immediate lookup finds no match.
type NotFoundError struct {
	Locator locator.Locator
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no element matches %s", e.Locator)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrElementNotFound
}

// EnvironmentError means the browser session could not be established or
// stopped responding. It is fatal to the whole run.
type EnvironmentError struct {
	Op  string
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("browser environment: %s: %v", e.Op, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means a locator matched nothing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrElementNotFound)
}

// IsEnvironment reports whether err is, or wraps, an *EnvironmentError.
func IsEnvironment(err error) bool {
	var ee *EnvironmentError
	return errors.As(err, &ee)
}
