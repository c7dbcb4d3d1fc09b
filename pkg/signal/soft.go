package signal

import (
	"fmt"
	"sync"
	"time"
)

type subEntry struct {
	id uint32
	h  Handler
}

// Soft is an in-memory RemoteValue. Writes echo into the value by default;
// a PutAction hook lets simulators substitute device-side behavior, and
// manual-ack mode holds put acknowledgements until CompletePut is called,
// modelling put-completion transports.
type Soft struct {
	name string

	mu        sync.Mutex
	value     float64
	ts        time.Time
	low, high float64
	subs      []subEntry
	nextID    uint32
	closed    bool
	manualAck bool
	pending   []chan error
	putAction func(s *Soft, value float64)

	events chan func()
	done   chan struct{}
}

// SoftOption configures a Soft signal at construction.
type SoftOption func(*Soft)

// WithInitial sets the initial value.
func WithInitial(v float64) SoftOption {
	return func(s *Soft) { s.value = v }
}

// WithLimits sets the soft limits enforced by CheckValue.
func WithLimits(low, high float64) SoftOption {
	return func(s *Soft) { s.low, s.high = low, high }
}

// WithManualAck holds put acknowledgements until CompletePut is called.
// Used to model put-completion transports where the acknowledgement
// arrives only once the device-side action has finished.
func WithManualAck() SoftOption {
	return func(s *Soft) { s.manualAck = true }
}

// WithPutAction replaces the default write behavior (echo into the value).
// The action runs synchronously inside Put, before any acknowledgement.
func WithPutAction(fn func(s *Soft, value float64)) SoftOption {
	return func(s *Soft) { s.putAction = fn }
}

// NewSoft creates a Soft signal and starts its notification goroutine.
// Call Close when done to stop the goroutine.
func NewSoft(name string, opts ...SoftOption) *Soft {
	s := &Soft{
		name:   name,
		ts:     time.Now(),
		events: make(chan func(), 128),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.loop()
	return s
}

// loop is the notification goroutine. All handlers and completion
// callbacks run here, in queue order.
func (s *Soft) loop() {
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.done:
			return
		}
	}
}

// post queues fn for the notification goroutine.
func (s *Soft) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

// Name returns the signal name.
func (s *Soft) Name() string {
	return s.name
}

// Get returns the current value and the time of its last update.
func (s *Soft) Get() (float64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, time.Time{}, ErrClosed
	}
	return s.value, s.ts, nil
}

// SetInternal is the device-side update path: it stores the new value and
// queues change notifications for all subscribers. It does not check
// limits; limits bound requested setpoints, not device readings.
func (s *Soft) SetInternal(v float64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	s.value = v
	s.ts = now
	snapshot := append([]subEntry(nil), s.subs...)
	s.mu.Unlock()

	s.post(func() {
		for _, e := range snapshot {
			e.h(v, now)
		}
	})
}

// Put writes a new value. With manual acknowledgement configured the ack
// is deferred until CompletePut; otherwise the write acknowledges
// immediately after the device-side action runs.
func (s *Soft) Put(value float64, opts PutOptions) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	manual := s.manualAck
	action := s.putAction
	s.mu.Unlock()

	if action != nil {
		action(s, value)
	} else {
		s.SetInternal(value)
	}

	if !manual {
		if opts.OnComplete != nil {
			cb := opts.OnComplete
			s.post(func() { cb(nil) })
		}
		return nil
	}

	ack := make(chan error, 1)
	s.mu.Lock()
	s.pending = append(s.pending, ack)
	s.mu.Unlock()

	if opts.Wait {
		var expire <-chan time.Time
		if opts.Timeout > 0 {
			timer := time.NewTimer(opts.Timeout)
			defer timer.Stop()
			expire = timer.C
		}
		select {
		case err := <-ack:
			return err
		case <-expire:
			return fmt.Errorf("%w: %s", ErrPutTimeout, s.name)
		case <-s.done:
			return ErrClosed
		}
	}

	if opts.OnComplete != nil {
		cb := opts.OnComplete
		go func() {
			select {
			case err := <-ack:
				s.post(func() { cb(err) })
			case <-s.done:
			}
		}()
	}
	return nil
}

// CompletePut acknowledges the oldest outstanding put with err.
// It reports whether a put was pending.
func (s *Soft) CompletePut(err error) bool {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return false
	}
	ack := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	ack <- err
	return true
}

// PendingPuts returns the number of unacknowledged puts.
func (s *Soft) PendingPuts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Subscribe registers a change handler.
func (s *Soft) Subscribe(h Handler) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.nextID++
	s.subs = append(s.subs, subEntry{id: s.nextID, h: h})
	return s.nextID, nil
}

// Unsubscribe removes a change handler. Unknown tokens are ignored.
func (s *Soft) Unsubscribe(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.subs {
		if e.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// CheckValue returns ErrOutOfRange if value violates the soft limits.
// Limits of (0, 0) mean unset and always pass.
func (s *Soft) CheckValue(value float64) error {
	s.mu.Lock()
	low, high := s.low, s.high
	s.mu.Unlock()

	if low == 0 && high == 0 {
		return nil
	}
	if value < low || value > high {
		return fmt.Errorf("%w: %s=%v outside (%v, %v)", ErrOutOfRange, s.name, value, low, high)
	}
	return nil
}

// Limits returns the configured soft limits.
func (s *Soft) Limits() (low, high float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.low, s.high
}

// Close stops the notification goroutine and detaches all subscribers.
// It is safe to call Close multiple times.
func (s *Soft) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = nil
	s.mu.Unlock()
	close(s.done)
}

// Compile-time interface satisfaction check.
var _ RemoteValue = (*Soft)(nil)
