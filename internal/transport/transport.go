// Package transport owns the modem's serial AT channel: device
// resolution, response framing, reconnection, and mutual exclusion over
// the single physical conversation.
package transport

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/linkstation/modemgw/internal/events"
	"github.com/linkstation/modemgw/internal/metrics"
)

const (
	readChunkSize   = 1024
	defaultDeadline = 1200 * time.Millisecond
	defaultBaud     = 115200
	defaultReadTick = 100 * time.Millisecond
)

// Terminal markers. Modems vary in line ending discipline, so success
// is matched in three spellings and errors by prefix anywhere in the
// buffer (CME/CMS errors carry a parameterized code after the prefix).
var (
	okTokens  = [][]byte{[]byte("\r\nOK\r\n"), []byte("\nOK\r\n"), []byte("\r\nOK\n")}
	errTokens = [][]byte{[]byte("\r\nERROR"), []byte("\nERROR"), []byte("+CME ERROR"), []byte("+CMS ERROR")}
)

func terminal(buf []byte) bool {
	for _, tok := range okTokens {
		if bytes.Contains(buf, tok) {
			return true
		}
	}
	for _, tok := range errTokens {
		if bytes.Contains(buf, tok) {
			return true
		}
	}
	return false
}

// IsErrorReply reports whether a completed reply terminated with an
// error marker instead of OK.
func IsErrorReply(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "ERROR" ||
			strings.HasPrefix(trimmed, "+CME ERROR") ||
			strings.HasPrefix(trimmed, "+CMS ERROR") {
			return true
		}
	}
	return false
}

// Config assembles a Transport. Zero values get defaults; Open defaults
// to the real serial opener.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
	Deadline    time.Duration
	Retry       RetryPolicy
	Open        Opener
	Bus         *events.Bus
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Transport serializes AT exchanges over one serial channel. All
// methods are safe for concurrent use; exchanges are strictly ordered
// by lock acquisition.
type Transport struct {
	mu sync.Mutex

	resolver *resolver
	open     Opener
	baud     int
	readTick time.Duration
	deadline time.Duration
	retry    RetryPolicy

	port        Port
	currentPath string
	reconnects  int
	lastErr     error

	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
}

// New builds a Transport. The channel is opened lazily on the first
// Send so construction never blocks on hardware.
func New(cfg Config) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Baud == 0 {
		cfg.Baud = defaultBaud
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTick
	}
	if cfg.Deadline == 0 {
		cfg.Deadline = defaultDeadline
	}
	if len(cfg.Retry.Waits) == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	open := cfg.Open
	if open == nil {
		readTimeout := cfg.ReadTimeout
		open = func(path string, baud int, _ time.Duration) (Port, error) {
			return OpenSerial(path, baud, readTimeout)
		}
	}
	return &Transport{
		resolver: newResolver(cfg.Device, logger),
		open:     open,
		baud:     cfg.Baud,
		readTick: cfg.ReadTimeout,
		deadline: cfg.Deadline,
		retry:    cfg.Retry,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Send writes one AT command and returns the raw reply lines once a
// terminal marker arrives. The deadline is taken from ctx when set,
// otherwise the configured default. A timeout leaves the channel open;
// an I/O failure triggers the bounded reconnect sequence with a single
// replay per attempt.
func (t *Transport) Send(ctx context.Context, cmd string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	lines, err := t.sendLocked(ctx, cmd)
	if t.metrics != nil {
		t.metrics.ExchangeDuration.Observe(time.Since(start).Seconds())
		t.metrics.ExchangesTotal.WithLabelValues(outcomeLabel(err)).Inc()
	}
	return lines, err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isKind(err, ErrTimeout):
		return "timeout"
	case isKind(err, ErrDeviceNotFound):
		return "device_not_found"
	default:
		return "io_error"
	}
}

func isKind(err, kind error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

func (t *Transport) sendLocked(ctx context.Context, cmd string) ([]string, error) {
	if err := t.ensureOpen(ctx); err != nil {
		return nil, err
	}

	lines, err := t.exchange(ctx, cmd)
	if err == nil {
		return lines, nil
	}
	if isKind(err, ErrTimeout) {
		// The channel itself is healthy. Reconnecting would only
		// discard the modem's late reply into a fresh session.
		t.lastErr = err
		return nil, err
	}
	return t.reconnectAndReplay(ctx, cmd, err)
}

// ensureOpen opens the channel if a previous failure left it closed.
func (t *Transport) ensureOpen(ctx context.Context) error {
	if t.port != nil {
		return nil
	}
	return t.openOnce(ctx, 0)
}

// openOnce resolves the device and opens it, optionally waiting up to
// wait for the device node to appear (USB re-enumeration).
func (t *Transport) openOnce(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		path, err := t.resolver.Resolve()
		if err == nil {
			var port Port
			port, err = t.open(path, t.baud, t.readTick)
			if err == nil {
				t.port = port
				t.currentPath = path
				t.lastErr = nil
				t.resolver.Remember(path)
				t.logger.Info("Serial port opened", "device", path, "baud", t.baud)
				t.publishState("open", 0, nil)
				return nil
			}
			err = newError(ErrIO, "", err)
		}
		if wait > 0 && time.Now().Before(deadline) {
			if serr := t.sleep(ctx, time.Second); serr != nil {
				return newError(ErrIO, "", serr)
			}
			continue
		}
		t.lastErr = err
		return err
	}
}

// closePort drops the handle; the next caller reopens.
func (t *Transport) closePort(cause error) {
	if t.port != nil {
		_ = t.port.Close()
		t.port = nil
	}
	t.logger.Info("Serial port closed", "device", t.label(), "cause", cause)
	t.publishState("closed", 0, cause)
}

// Reset force-closes the channel so the next Send reopens it.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closePort(nil)
}

func (t *Transport) label() string {
	if t.currentPath != "" {
		return t.currentPath
	}
	return t.resolver.preferred
}

// reconnectAndReplay runs the bounded reconnect sequence after an I/O
// failure, replaying cmd exactly once per successful reopen.
func (t *Transport) reconnectAndReplay(ctx context.Context, cmd string, cause error) ([]string, error) {
	t.logger.Warn("Serial I/O error, attempting reconnect",
		"device", t.label(), "cmd", cmd, "error", cause)
	t.closePort(cause)

	lastErr := cause
	for i, wait := range t.retry.Waits {
		t.reconnects++
		t.publishState("reconnecting", i+1, lastErr)
		if err := t.openOnce(ctx, wait); err != nil {
			lastErr = err
			continue
		}
		t.logger.Info("Serial port reconnected, replaying command",
			"device", t.currentPath, "attempt", i+1, "cmd", cmd)
		lines, err := t.exchange(ctx, cmd)
		if err == nil {
			return lines, nil
		}
		lastErr = err
		t.closePort(err)
	}

	err := newError(ErrIO, cmd, lastErr)
	t.lastErr = err
	return nil, err
}

// exchange performs one write/read cycle on the open port.
func (t *Transport) exchange(ctx context.Context, cmd string) ([]string, error) {
	deadline := time.Now().Add(t.deadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	data := []byte(strings.TrimRight(cmd, "\r\n ") + "\r\n")
	if _, err := t.port.Write(data); err != nil {
		return nil, newError(ErrIO, cmd, err)
	}
	return t.readUntilDone(ctx, cmd, deadline)
}

// readUntilDone accumulates reply bytes until a terminal marker is
// present or the deadline elapses. A deadline expiry is a Timeout even
// when partial data arrived.
func (t *Transport) readUntilDone(ctx context.Context, cmd string, deadline time.Time) ([]string, error) {
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, newError(ErrTimeout, cmd, err)
		}
		n, err := t.port.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if terminal(buf) {
				return splitLines(buf), nil
			}
		}
		if err != nil && !IsReadTimeout(err) {
			return nil, newError(ErrIO, cmd, err)
		}
		if !time.Now().Before(deadline) {
			return nil, newError(ErrTimeout, cmd, context.DeadlineExceeded)
		}
		if n == 0 && err == nil {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// splitLines normalizes CR/LF variants and drops trailing blanks while
// preserving every raw echo line.
func splitLines(buf []byte) []string {
	text := strings.ReplaceAll(string(buf), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func (t *Transport) publishState(state string, attempt int, cause error) {
	if t.bus == nil {
		return
	}
	ev := events.TransportStateChangedEvent{
		State:     state,
		Device:    t.label(),
		Attempt:   attempt,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	t.bus.Publish(ev)
}

// Status reports the channel state for health surfaces.
type Status struct {
	Device     string `json:"device"`
	Open       bool   `json:"open"`
	Reconnects int    `json:"reconnects"`
	LastError  string `json:"last_error,omitempty"`
}

// Status returns a point-in-time view of the channel session.
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Status{
		Device:     t.label(),
		Open:       t.port != nil,
		Reconnects: t.reconnects,
	}
	if t.lastErr != nil {
		s.LastError = t.lastErr.Error()
	}
	return s
}
