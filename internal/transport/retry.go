package transport

import "time"

// RetryPolicy bounds the reconnect sequence that follows an I/O
// failure. Each entry is how long one attempt may wait for the device
// to come back (USB re-enumeration takes seconds); the slice length
// caps the attempt count.
type RetryPolicy struct {
	Waits []time.Duration
}

// DefaultRetryPolicy matches the modem's observed re-enumeration
// behavior: a quick retry, then two progressively longer waits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Waits: []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}}
}
