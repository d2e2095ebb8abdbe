// Package wait polls a predicate until it holds or a deadline passes.
//
// Presence and visibility checks race against client-side rendering, so the
// harness never checks page state once. It asks "wait until X holds or fail"
// through For and Hold, which are the only retry loops in the module.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultTimeout bounds a single wait when Options leaves it unset.
	DefaultTimeout = 10 * time.Second
	// DefaultInterval is the poll period when Options leaves it unset.
	DefaultInterval = 100 * time.Millisecond
)

// Options controls one polling loop.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
}

func (o Options) normalized() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Interval > o.Timeout {
		o.Interval = o.Timeout
	}
	return o
}

// WithTimeout returns a copy of o with the timeout replaced when d > 0.
func (o Options) WithTimeout(d time.Duration) Options {
	if d > 0 {
		o.Timeout = d
	}
	return o
}

// Predicate inspects the current state. It returns the observed value and
// whether the awaited condition holds. An error counts as "not yet" unless it
// is wrapped with Stop.
type Predicate[T any] func(ctx context.Context) (T, bool, error)

// TimeoutError is returned when a predicate never held within the timeout.
type TimeoutError struct {
	Description string
	Timeout     time.Duration
	Attempts    int
	// Last is the value observed by the final attempt.
	Last any
	// LastErr is the error returned by the final attempt, if any.
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %v waiting for %s (%d attempts", e.Timeout, e.Description, e.Attempts)
	if e.Last != nil {
		msg += fmt.Sprintf(", last state: %v", e.Last)
	}
	if e.LastErr != nil {
		msg += fmt.Sprintf(", last error: %v", e.LastErr)
	}
	return msg + ")"
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as permanent: For returns it at once instead of retrying.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// For polls pred every opts.Interval until it holds, returns a Stop error, ctx
// is done, or opts.Timeout elapses. On timeout it returns a *TimeoutError
// carrying the last observed value.
func For[T any](ctx context.Context, opts Options, description string, pred Predicate[T]) (T, error) {
	opts = opts.normalized()
	deadline := time.Now().Add(opts.Timeout)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var (
		last     T
		lastErr  error
		attempts int
	)
	for {
		attempts++
		v, ok, err := pred(ctx)
		if err == nil && ok {
			return v, nil
		}
		last, lastErr = v, err

		var stop *stopError
		if errors.As(err, &stop) {
			return v, stop.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return v, ctxErr
		}
		if !time.Now().Before(deadline) {
			return last, &TimeoutError{
				Description: description,
				Timeout:     opts.Timeout,
				Attempts:    attempts,
				Last:        last,
				LastErr:     lastErr,
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Hold waits until pred holds and then requires it to keep holding for d.
// A relapse during the hold window restarts the wait, still bounded by
// opts.Timeout measured from the first call.
func Hold[T any](ctx context.Context, opts Options, d time.Duration, description string, pred Predicate[T]) (T, error) {
	if d <= 0 {
		return For(ctx, opts, description, pred)
	}
	opts = opts.normalized()
	if opts.Timeout < d {
		opts.Timeout = d + opts.Interval
	}

	var since time.Time
	return For(ctx, opts, description, func(ctx context.Context) (T, bool, error) {
		v, ok, err := pred(ctx)
		if err != nil || !ok {
			since = time.Time{}
			return v, false, err
		}
		if since.IsZero() {
			since = time.Now()
		}
		return v, time.Since(since) >= d, nil
	})
}

// IsTimeout reports whether err is, or wraps, a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
