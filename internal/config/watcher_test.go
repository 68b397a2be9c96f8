package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func rewriteGatesFile(t *testing.T, path string, enabled bool) {
	t.Helper()
	content := "[control]\nenabled = false\n"
	if enabled {
		content = "[control]\nenabled = true\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcherDebouncesBurstWrites(t *testing.T) {
	path := writeGatesFile(t, "[control]\nenabled = false\n")

	var reloads atomic.Int32
	w := NewConfigWatcher(path, LoadGates, newTestLogger(), WithDebounce[Gates](150*time.Millisecond))
	w.OnReload(func(Gates) { reloads.Add(1) })
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		rewriteGatesFile(t, path, true)
		time.Sleep(20 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool { return reloads.Load() > 0 })
	// Give a straggler reload time to land before asserting.
	time.Sleep(300 * time.Millisecond)

	if n := reloads.Load(); n > 2 {
		t.Fatalf("expected burst of writes to collapse, got %d reloads", n)
	}
}

func TestWatcherUnsubscribeStopsDelivery(t *testing.T) {
	path := writeGatesFile(t, "[control]\nenabled = false\n")

	var kept, removed atomic.Int32
	w := NewConfigWatcher(path, LoadGates, newTestLogger(), WithDebounce[Gates](50*time.Millisecond))
	w.OnReload(func(Gates) { kept.Add(1) })
	unsub := w.OnReload(func(Gates) { removed.Add(1) })
	unsub()

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	rewriteGatesFile(t, path, true)
	waitFor(t, 2*time.Second, func() bool { return kept.Load() > 0 })

	if removed.Load() != 0 {
		t.Fatalf("unsubscribed handler still ran %d times", removed.Load())
	}
}

func TestWatcherReportsLoadErrors(t *testing.T) {
	path := writeGatesFile(t, "[control]\nenabled = false\n")

	var loadErr atomic.Value
	var handled atomic.Int32

	loader := func(string) (Gates, error) {
		return Gates{}, errors.New("broken file")
	}
	w := NewConfigWatcher(path, loader, newTestLogger(),
		WithDebounce[Gates](50*time.Millisecond),
		WithErrorHandler[Gates](func(err error) {
			loadErr.Store(err)
		}))
	w.OnReload(func(Gates) { handled.Add(1) })
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	rewriteGatesFile(t, path, true)
	waitFor(t, 2*time.Second, func() bool { return loadErr.Load() != nil })

	if handled.Load() != 0 {
		t.Fatalf("handlers must not run on load failure, ran %d times", handled.Load())
	}
}

func TestWatcherStartFailsOnMissingFile(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "absent.toml"), LoadGates, newTestLogger())
	if err := w.Start(); err == nil {
		w.Stop()
		t.Fatal("expected error for missing file")
	}
}
