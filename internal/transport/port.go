package transport

import (
	"errors"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// Port is the minimal serial device surface the transport needs.
// Reads are expected to return portTimeoutError (or an error matching
// IsReadTimeout) when the device produced no bytes within the port's
// read timeout, so the framing loop can keep polling until the call
// deadline.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a serial Port. Injected so tests can supply a scripted
// fake device.
type Opener func(path string, baud int, readTimeout time.Duration) (Port, error)

// OpenSerial opens a real serial device through goburrow/serial with
// 8N1 framing, the modem's only supported mode.
func OpenSerial(path string, baud int, readTimeout time.Duration) (Port, error) {
	return serial.Open(&serial.Config{
		Address:  path,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  readTimeout,
	})
}

// IsReadTimeout reports whether a Port.Read error only means "no bytes
// yet" rather than a broken channel.
func IsReadTimeout(err error) bool {
	return errors.Is(err, serial.ErrTimeout)
}
