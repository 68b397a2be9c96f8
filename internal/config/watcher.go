package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 1500 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk and
// fans the freshly loaded value out to registered handlers. The file
// is re-read on every change, never cached, so a handler can never
// observe a stale value.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	nextID   int
	handlers map[int]func(T)

	fs   *fsnotify.Watcher
	done chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce overrides the settle window applied after a file change
// before the reload fires. Editors tend to emit bursts of writes.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler registers a callback for load failures. Without it
// failures are only logged and the previous value stays in effect.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = handler
	}
}

// NewConfigWatcher creates a watcher for path. The loader turns the
// file into a T and runs once per settled change.
func NewConfigWatcher[T any](
	path string,
	loader func(path string) (T, error),
	logger *slog.Logger,
	opts ...WatcherOption[T],
) *Watcher[T] {
	w := &Watcher[T]{
		path:     path,
		debounce: defaultDebounce,
		loader:   loader,
		logger:   logger,
		handlers: make(map[int]func(T)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers a handler for reloaded values and returns a
// function that removes it again.
func (w *Watcher[T]) OnReload(handler func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = handler
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching the file. It fails when the file cannot be
// watched, typically because it does not exist yet.
func (w *Watcher[T]) Start() error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fs.Add(w.path); err != nil {
		fs.Close()
		return err
	}
	w.fs = fs

	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	go w.loop()
	return nil
}

// Stop ends the watch loop and releases the inotify handle.
func (w *Watcher[T]) Stop() error {
	close(w.done)
	if w.fs != nil {
		return w.fs.Close()
	}
	return nil
}

func (w *Watcher[T]) loop() {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-w.done:
			timer.Stop()
			w.logger.Debug("Config watcher stopped")
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			// Create matters too: some editors replace the file on save.
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Debug("Config file change detected", "op", ev.Op.String())
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			armed = true

		case <-timer.C:
			armed = false
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher[T]) reload() {
	value, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Failed to reload config", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	handlers := make([]func(T), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "path", w.path, "handlers", len(handlers))
	for _, h := range handlers {
		h(value)
	}
}
