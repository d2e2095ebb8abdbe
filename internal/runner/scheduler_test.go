package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qa-tooling/uiprobe/suites"
)

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"*/5 * * * *", "0 */5 * * * *", "@hourly", "@every 15m"} {
		assert.NoError(t, ParseSchedule(spec), spec)
	}
	for _, spec := range []string{"", "every day", "61 * * * *"} {
		assert.Error(t, ParseSchedule(spec), spec)
	}
}

func TestTriggerSkipsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s, err := NewScheduler("@hourly", 0, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, nil)
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- s.Trigger(context.Background()) }()
	<-started

	assert.False(t, s.Trigger(context.Background()))
	close(release)
	assert.True(t, <-done)

	assert.Equal(t, int64(1), s.Runs())
	assert.Equal(t, int64(1), s.Skipped())
}

func TestTriggerAppliesTimeout(t *testing.T) {
	s, err := NewScheduler("@hourly", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	require.NoError(t, err)
	assert.True(t, s.Trigger(context.Background()))
}

func TestStartRunsOnSchedule(t *testing.T) {
	runs := make(chan struct{}, 10)
	s, err := NewScheduler("@every 1s", 0, func(ctx context.Context) error {
		runs <- struct{}{}
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	err = s.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, s.Runs(), int64(1))
	assert.Len(t, runs, int(s.Runs()))
}

func TestReschedule(t *testing.T) {
	s, err := NewScheduler("@hourly", 0, func(context.Context) error { return nil }, nil)
	require.NoError(t, err)

	require.NoError(t, s.Reschedule("@daily"))
	assert.Equal(t, "@daily", s.Spec())
	assert.Error(t, s.Reschedule("not a schedule"))
	assert.Equal(t, "@daily", s.Spec())

	_, err = NewScheduler("bogus", 0, nil, nil)
	assert.Error(t, err)
}

func TestSuiteRegistry(t *testing.T) {
	reg := NewSuiteRegistry()
	require.NoError(t, reg.LoadFS(suites.FS))
	assert.Equal(t, []string{"Swedbank login"}, reg.Names())

	all := reg.All()
	require.Len(t, all, 1)
	assert.Error(t, reg.Register(all[0]))
	// embedded suites are not reloaded
	require.NoError(t, reg.Reload())
	assert.Same(t, all[0], reg.All()[0])
}

func TestSuiteRegistryReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "login.yaml")
	write := func(name, scenarios string) {
		doc := "suite: " + name + "\ngroups:\n  - name: g\n    scenarios:\n" + scenarios
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	}
	one := "      - name: a\n        steps:\n          - action: navigate\n"
	two := one + "      - name: b\n        steps:\n          - action: navigate\n"

	write("login", one)
	reg := NewSuiteRegistry()
	require.NoError(t, reg.LoadPaths(path))
	require.Len(t, reg.All()[0].Cases(), 1)

	write("login", two)
	require.NoError(t, reg.Reload())
	assert.Len(t, reg.All()[0].Cases(), 2)

	// a broken edit keeps the last good version
	require.NoError(t, os.WriteFile(path, []byte("suite: [\n"), 0o644))
	assert.Error(t, reg.Reload())
	assert.Len(t, reg.All()[0].Cases(), 2)

	write("renamed", one)
	require.NoError(t, reg.Reload())
	assert.Equal(t, []string{"renamed"}, reg.Names())
	assert.Len(t, reg.All()[0].Cases(), 1)
}

func TestSuiteRegistryLoadPaths(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	write := func(path, name string) {
		doc := "suite: " + name + "\ngroups:\n  - name: g\n    scenarios:\n      - name: a\n        steps:\n          - action: navigate\n"
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	}
	write(filepath.Join(dir, "b.yaml"), "beta")
	write(filepath.Join(nested, "a.yml"), "alpha")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a suite"), 0o644))

	reg := NewSuiteRegistry()
	require.NoError(t, reg.LoadPaths(dir))
	assert.Equal(t, []string{"alpha", "beta"}, reg.Names())

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name)

	assert.Error(t, reg.LoadPaths(filepath.Join(dir, "b.yaml")), "duplicate")
	assert.Error(t, NewSuiteRegistry().LoadPaths(filepath.Join(dir, "missing.yaml")))
}
