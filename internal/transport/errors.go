package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three transport failure classes. Match with
// errors.Is against any error returned by Send.
var (
	// ErrTimeout means the per-call deadline elapsed before a terminal
	// marker was seen. The channel stays open; timeouts never reconnect.
	ErrTimeout = errors.New("at timeout")

	// ErrIO means the serial channel failed and the bounded reconnect
	// sequence was exhausted. The session is left closed.
	ErrIO = errors.New("serial i/o error")

	// ErrDeviceNotFound means no serial device could be resolved from
	// the configured path, the remembered interface, or a scan.
	ErrDeviceNotFound = errors.New("serial device not found")
)

// Error carries the failing command alongside the failure class.
type Error struct {
	Kind error // one of ErrTimeout, ErrIO, ErrDeviceNotFound
	Cmd  string
	Err  error
}

func (e *Error) Error() string {
	if e.Cmd == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Cmd, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTimeout) and friends match through the
// wrapper.
func (e *Error) Is(target error) bool { return target == e.Kind }

func newError(kind error, cmd string, err error) *Error {
	return &Error{Kind: kind, Cmd: cmd, Err: err}
}
