package signal

import (
	"errors"
	"time"
)

// Signal errors.
var (
	ErrOutOfRange    = errors.New("value outside soft limits")
	ErrUnknownSignal = errors.New("unknown signal")
	ErrClosed        = errors.New("signal closed")
	ErrPutTimeout    = errors.New("put acknowledgement timed out")
)

// Handler receives value-changed notifications. Handlers run on the
// signal's notification goroutine and must not block for long.
type Handler func(value float64, ts time.Time)

// PutOptions control a write request.
type PutOptions struct {
	// Wait blocks the Put until the remote side acknowledges the write.
	Wait bool

	// Timeout bounds a waiting Put. Zero or negative means no deadline.
	Timeout time.Duration

	// OnComplete, if set, is invoked on the notification goroutine once
	// the write is acknowledged. Ignored when Wait is true.
	OnComplete func(err error)
}

// RemoteValue is the capability the surrounding transport layer provides
// for a named remote value: get, put with optional completion
// acknowledgement, and subscribe-to-change.
type RemoteValue interface {
	// Name returns the remote value's name.
	Name() string

	// Get reads the current value and the time of its last update.
	Get() (float64, time.Time, error)

	// Put writes a new value. See PutOptions for completion semantics.
	Put(value float64, opts PutOptions) error

	// Subscribe registers h to receive change notifications, delivered on
	// the notification goroutine. Returns a token for Unsubscribe.
	Subscribe(h Handler) (uint32, error)

	// Unsubscribe removes a previously registered handler.
	Unsubscribe(id uint32)

	// CheckValue returns ErrOutOfRange if value violates the configured
	// bounds, nil otherwise.
	CheckValue(value float64) error

	// Limits returns the configured bounds. Both zero means unset.
	Limits() (low, high float64)
}

// Connector resolves signal names to remote values. The surrounding
// transport provides one; Hub is the in-memory implementation.
type Connector interface {
	Connect(name string) (RemoteValue, error)
}
