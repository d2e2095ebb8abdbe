package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Options{Timeout: 200 * time.Millisecond, Interval: 2 * time.Millisecond}

func TestForSucceedsAfterRetries(t *testing.T) {
	calls := 0
	v, err := For(context.Background(), fast, "third call", func(ctx context.Context) (int, bool, error) {
		calls++
		return calls, calls >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 3, calls)
}

func TestForTreatsErrorsAsNotYet(t *testing.T) {
	calls := 0
	notYet := errors.New("not rendered")
	v, err := For(context.Background(), fast, "render", func(ctx context.Context) (string, bool, error) {
		calls++
		if calls < 4 {
			return "", false, notYet
		}
		return "ready", true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
}

func TestForTimeoutCarriesLastState(t *testing.T) {
	opts := Options{Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond}
	start := time.Now()
	_, err := For(context.Background(), opts, "error text", func(ctx context.Context) (string, bool, error) {
		return "Sisestage", false, nil
	})
	elapsed := time.Since(start)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Sisestage", te.Last)
	assert.Equal(t, "error text", te.Description)
	assert.GreaterOrEqual(t, te.Attempts, 2)
	assert.True(t, IsTimeout(err))
	assert.Contains(t, err.Error(), "last state: Sisestage")
	assert.Less(t, elapsed, time.Second)
}

func TestForTimeoutWrapsLastError(t *testing.T) {
	sentinel := errors.New("no such element")
	opts := Options{Timeout: 20 * time.Millisecond, Interval: 5 * time.Millisecond}
	_, err := For(context.Background(), opts, "element", func(ctx context.Context) (bool, bool, error) {
		return false, false, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.True(t, IsTimeout(err))
}

func TestForStopEndsImmediately(t *testing.T) {
	fatal := errors.New("browser gone")
	calls := 0
	_, err := For(context.Background(), fast, "anything", func(ctx context.Context) (int, bool, error) {
		calls++
		return 0, false, Stop(fatal)
	})
	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
	assert.False(t, IsTimeout(err))
}

func TestForHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{Timeout: time.Minute, Interval: 5 * time.Millisecond}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := For(ctx, opts, "never", func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.normalized()
	assert.Equal(t, DefaultTimeout, o.Timeout)
	assert.Equal(t, DefaultInterval, o.Interval)

	o = Options{Timeout: time.Millisecond, Interval: time.Second}.normalized()
	assert.Equal(t, time.Millisecond, o.Interval)

	assert.Equal(t, 3*time.Second, Options{Timeout: time.Second}.WithTimeout(3*time.Second).Timeout)
	assert.Equal(t, time.Second, Options{Timeout: time.Second}.WithTimeout(0).Timeout)
}

func TestHoldRequiresStableCondition(t *testing.T) {
	calls := 0
	opts := Options{Timeout: time.Second, Interval: 2 * time.Millisecond}
	_, err := Hold(context.Background(), opts, 20*time.Millisecond, "hidden", func(ctx context.Context) (bool, bool, error) {
		calls++
		return false, true, nil
	})
	require.NoError(t, err)
	assert.Greater(t, calls, 1)
}

func TestHoldFailsWhenConditionRelapses(t *testing.T) {
	calls := 0
	opts := Options{Timeout: 60 * time.Millisecond, Interval: 2 * time.Millisecond}
	_, err := Hold(context.Background(), opts, 30*time.Millisecond, "hidden", func(ctx context.Context) (bool, bool, error) {
		calls++
		// becomes visible after a few polls and stays visible
		visible := calls > 3
		return visible, !visible, nil
	})
	assert.True(t, IsTimeout(err))
}
