package sim

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/beamctl/beamctl-go/pkg/signal"
)

// Simulator errors.
var (
	ErrMissingSignal = errors.New("setpoint and readback signals are required")
	ErrStopped       = errors.New("motion stopped")
)

const (
	defaultVelocity = 1.0
	defaultTick     = 10 * time.Millisecond
)

// Config wires a Motor to its signals.
type Config struct {
	// Setpoint is watched for targets. Required.
	Setpoint *signal.Soft

	// Readback is ramped toward the target. Required.
	Readback *signal.Soft

	// Done, when present, is driven to DoneMoving while ramping and
	// DoneResting otherwise.
	Done        *signal.Soft
	DoneMoving  float64
	DoneResting float64

	// Stop, when present, halts the ramp on any write.
	Stop *signal.Soft

	// Velocity is the ramp rate in position units per second.
	// Defaults to 1.
	Velocity float64

	// Tick is the ramp step interval. Defaults to 10ms.
	Tick time.Duration

	// AckPuts acknowledges pending setpoint puts when the ramp finishes,
	// for setpoints created with manual acknowledgement. A halted ramp
	// acknowledges with ErrStopped.
	AckPuts bool
}

// Motor simulates an axis behind a set of Soft signals.
type Motor struct {
	cfg Config

	mu      sync.Mutex
	cancel  chan struct{}
	started bool
	closed  bool
	wg      sync.WaitGroup

	spSub   uint32
	stopSub uint32
}

// New creates a Motor. Call Start to begin watching the setpoint.
func New(cfg Config) (*Motor, error) {
	if cfg.Setpoint == nil || cfg.Readback == nil {
		return nil, ErrMissingSignal
	}
	if cfg.Velocity <= 0 {
		cfg.Velocity = defaultVelocity
	}
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	return &Motor{cfg: cfg}, nil
}

// Start subscribes to the setpoint (and stop) signals. Each setpoint
// write supersedes any ramp in flight.
func (m *Motor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	sub, err := m.cfg.Setpoint.Subscribe(func(target float64, _ time.Time) {
		m.startRamp(target)
	})
	if err != nil {
		return err
	}
	m.spSub = sub

	if m.cfg.Stop != nil {
		sub, err := m.cfg.Stop.Subscribe(func(float64, time.Time) {
			m.Halt()
		})
		if err != nil {
			m.cfg.Setpoint.Unsubscribe(m.spSub)
			return err
		}
		m.stopSub = sub
	}

	m.started = true
	return nil
}

// Halt cancels the ramp in flight, if any. The readback stays wherever
// it was.
func (m *Motor) Halt() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		close(cancel)
	}
}

// Moving reports whether a ramp is in flight.
func (m *Motor) Moving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Close halts the motor and detaches its subscriptions.
func (m *Motor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	started := m.started
	m.mu.Unlock()

	if started {
		m.cfg.Setpoint.Unsubscribe(m.spSub)
		if m.cfg.Stop != nil {
			m.cfg.Stop.Unsubscribe(m.stopSub)
		}
	}
	m.Halt()
	m.wg.Wait()
}

func (m *Motor) startRamp(target float64) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	prev := m.cancel
	cancel := make(chan struct{})
	m.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	if prev != nil {
		close(prev)
	}
	go m.ramp(target, cancel)
}

// ramp steps the readback toward target each tick until it arrives or
// the ramp is cancelled.
func (m *Motor) ramp(target float64, cancel chan struct{}) {
	defer m.wg.Done()

	if m.cfg.Done != nil {
		m.cfg.Done.SetInternal(m.cfg.DoneMoving)
	}

	step := m.cfg.Velocity * m.cfg.Tick.Seconds()
	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			m.finish(cancel, ErrStopped)
			return
		case <-ticker.C:
			pos, _, err := m.cfg.Readback.Get()
			if err != nil {
				m.finish(cancel, err)
				return
			}
			delta := target - pos
			if math.Abs(delta) <= step {
				m.cfg.Readback.SetInternal(target)
				m.finish(cancel, nil)
				return
			}
			m.cfg.Readback.SetInternal(pos + math.Copysign(step, delta))
		}
	}
}

// finish lowers the done signal and acknowledges the pending put.
func (m *Motor) finish(cancel chan struct{}, cause error) {
	m.mu.Lock()
	if m.cancel == cancel {
		m.cancel = nil
	}
	m.mu.Unlock()

	if m.cfg.Done != nil {
		m.cfg.Done.SetInternal(m.cfg.DoneResting)
	}
	if m.cfg.AckPuts {
		m.cfg.Setpoint.CompletePut(cause)
	}
}
