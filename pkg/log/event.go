package log

import (
	"time"
)

// Event represents a motion log event captured anywhere in the core.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Axis is the positioner name the event belongs to, if any.
	Axis string `cbor:"2,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// Type-specific payload (one of these will be set).
	Move        *MoveEvent        `cbor:"4,keyasint,omitempty"`  // Move requested
	Value       *ValueEvent       `cbor:"5,keyasint,omitempty"`  // Readback/signal change
	Completion  *CompletionEvent  `cbor:"6,keyasint,omitempty"`  // Move finished
	StateChange *StateChangeEvent `cbor:"7,keyasint,omitempty"`  // Motion state transitions
	Error       *ErrorEventData   `cbor:"8,keyasint,omitempty"`  // Errors at any layer
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMove indicates a move request.
	CategoryMove Category = 0
	// CategoryValue indicates a value (readback) change.
	CategoryValue Category = 1
	// CategoryCompletion indicates a move completion (success or failure).
	CategoryCompletion Category = 2
	// CategoryState indicates a motion state transition.
	CategoryState Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMove:
		return "MOVE"
	case CategoryValue:
		return "VALUE"
	case CategoryCompletion:
		return "COMPLETION"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MoveEvent captures a move request.
type MoveEvent struct {
	// Target is the requested position.
	Target float64 `cbor:"1,keyasint"`

	// Wait indicates a blocking move.
	Wait bool `cbor:"2,keyasint,omitempty"`

	// Timeout is the effective move deadline (0 = disabled).
	Timeout time.Duration `cbor:"3,keyasint,omitempty"`
}

// ValueEvent captures a signal value change.
type ValueEvent struct {
	// Signal is the name of the signal that changed.
	Signal string `cbor:"1,keyasint,omitempty"`

	// Value is the new value.
	Value float64 `cbor:"2,keyasint"`

	// At is the remote timestamp of the change.
	At time.Time `cbor:"3,keyasint,omitempty"`
}

// CompletionEvent captures the resolution of a move.
type CompletionEvent struct {
	// Target is the position that was requested.
	Target float64 `cbor:"1,keyasint"`

	// Final is the position at completion time.
	Final float64 `cbor:"2,keyasint"`

	// Success reports whether the move completed normally.
	Success bool `cbor:"3,keyasint"`

	// Elapsed is the time from request to completion.
	// Stored as nanoseconds.
	Elapsed time.Duration `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures motion state transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityPositioner indicates a positioner state change.
	StateEntityPositioner StateEntity = 0
	// StateEntityConnection indicates a client connection state change.
	StateEntityConnection StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityPositioner:
		return "POSITIONER"
	case StateEntityConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
