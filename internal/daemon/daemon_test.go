package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/generator"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
	runs  chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{runs: make(chan struct{}, 64)}
}

func (f *fakeRunner) Run(ctx context.Context) (*generator.Report, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	f.mu.Lock()
	f.calls++
	n := f.calls
	err := f.err
	f.mu.Unlock()
	f.runs <- struct{}{}
	if err != nil {
		return nil, err
	}
	return &generator.Report{RunID: fmt.Sprintf("run-%d", n), Outcome: metrics.RunSuccess}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitRun(t *testing.T, f *fakeRunner) {
	t.Helper()
	select {
	case <-f.runs:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a run")
	}
}

func startDaemon(t *testing.T, d *Daemon) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	select {
	case <-d.Ready():
	case err := <-done:
		stop()
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		stop()
		t.Fatal("daemon did not become ready")
	}
	return func() {
		stop()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("daemon did not stop")
		}
	}
}

func TestDaemonRunsAtStartup(t *testing.T) {
	runner := newFakeRunner()
	d := New(runner, Options{}, nil)
	stop := startDaemon(t, d)
	defer stop()

	waitRun(t, runner)
	require.Eventually(t, func() bool { return d.Status().Runs == 1 }, 2*time.Second, 10*time.Millisecond)
	st := d.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "startup", st.LastReason)
	assert.Equal(t, "run-1", st.LastRunID)
	assert.Equal(t, string(metrics.RunSuccess), st.LastResult)
	assert.Empty(t, st.LastError)
}

func TestTriggersWhileBuildingAreMerged(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})
	d := New(runner, Options{}, nil)
	stop := startDaemon(t, d)
	defer stop()

	require.Eventually(t, func() bool { return d.Status().Building }, 2*time.Second, 5*time.Millisecond)
	for range 10 {
		d.Trigger("manual")
	}
	close(runner.block)

	waitRun(t, runner)
	waitRun(t, runner)
	require.Eventually(t, func() bool { return d.Status().Runs == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "manual", d.Status().LastReason)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, runner.count(), "pending requests collapse into one run")
}

func TestRunErrorIsRecorded(t *testing.T) {
	runner := newFakeRunner()
	runner.err = errors.New("boom")
	d := New(runner, Options{}, nil)
	stop := startDaemon(t, d)
	defer stop()

	waitRun(t, runner)
	require.Eventually(t, func() bool { return d.Status().Runs == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "boom", d.Status().LastError)
}

func TestScheduledRuns(t *testing.T) {
	runner := newFakeRunner()
	d := New(runner, Options{Interval: 50 * time.Millisecond}, nil)
	stop := startDaemon(t, d)
	defer stop()

	waitRun(t, runner)
	waitRun(t, runner)
	require.Eventually(t, func() bool { return d.Status().LastReason == "schedule" }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchTriggersRun(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "public")
	require.NoError(t, os.MkdirAll(out, 0o755))

	runner := newFakeRunner()
	d := New(runner, Options{WatchDirs: []string{dir}, Ignore: []string{out}, Debounce: 20 * time.Millisecond}, nil)
	stop := startDaemon(t, d)
	defer stop()
	waitRun(t, runner)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.md"), []byte("# hi"), 0o644))
	waitRun(t, runner)
	require.Eventually(t, func() bool { return d.Status().LastReason == "watch" }, 2*time.Second, 10*time.Millisecond)
}

func TestIgnoredChangesDoNotTrigger(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "public")
	require.NoError(t, os.MkdirAll(out, 0o755))

	runner := newFakeRunner()
	d := New(runner, Options{WatchDirs: []string{dir}, Ignore: []string{out}, Debounce: 20 * time.Millisecond}, nil)
	stop := startDaemon(t, d)
	defer stop()
	waitRun(t, runner)

	require.NoError(t, os.WriteFile(filepath.Join(out, "index.html"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.md.swp"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, runner.count())
}

func TestShouldIgnoreEvent(t *testing.T) {
	for path, want := range map[string]bool{
		"/site/index.md":       false,
		"/site/.git":           true,
		"/site/index.md~":      true,
		"/site/.index.md.swp":  true,
		"/site/draft.tmp":      true,
		"/site/#index.md#":     true,
		"/site/img/logo.png":   false,
		"/site/notes/todo.swx": true,
	} {
		assert.Equal(t, want, shouldIgnoreEvent(path), path)
	}
}

func TestMetricsAndHealthEndpoints(t *testing.T) {
	reg := prom.NewRegistry()
	counter := prom.NewCounter(prom.CounterOpts{Name: "sitegen_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	runner := newFakeRunner()
	d := New(runner, Options{MetricsListen: "127.0.0.1:0", Registry: reg}, nil)
	stop := startDaemon(t, d)
	defer stop()
	waitRun(t, runner)

	addr := d.MetricsAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sitegen_test_total 1")

	require.Eventually(t, func() bool { return d.Status().Runs == 1 }, 2*time.Second, 10*time.Millisecond)
	resp, err = http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.Daemon.Runs)
	assert.True(t, health.Daemon.Running)
}

func TestListenFailure(t *testing.T) {
	d := New(newFakeRunner(), Options{MetricsListen: "256.0.0.1:bad"}, nil)
	err := d.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryDaemon))
	assert.Equal(t, ferrors.SeverityFatal, ferrors.GetSeverity(err))
}

func TestWatchMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	d := New(newFakeRunner(), Options{WatchDirs: []string{missing}}, nil)
	err := d.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryDaemon))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOptionsFor(t *testing.T) {
	cfg, err := config.Parse([]byte(`
sources:
  - path: site
daemon:
  interval: 1m
  watch: true
  debounce: 200ms
journal:
  path: journal.db
metrics:
  listen: ":9100"
`), "/work")
	require.NoError(t, err)

	o := OptionsFor(cfg, nil, []string{"/work/site"})
	assert.Equal(t, time.Minute, o.Interval)
	assert.Equal(t, 200*time.Millisecond, o.Debounce)
	assert.Equal(t, []string{"/work/site"}, o.WatchDirs)
	assert.Equal(t, ":9100", o.MetricsListen)
	assert.Equal(t, "/metrics", o.MetricsPath)
	assert.Contains(t, o.Ignore, "/work/public")
	assert.Contains(t, o.Ignore, "/work/journal.db")

	cfg.Daemon.Watch = false
	assert.Empty(t, OptionsFor(cfg, nil, []string{"/work/site"}).WatchDirs)
}
