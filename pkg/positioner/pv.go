package positioner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beamctl/beamctl-go/pkg/log"
	"github.com/beamctl/beamctl-go/pkg/notify"
	"github.com/beamctl/beamctl-go/pkg/signal"
)

// defaultSettle is the post-write settle period used by put-complete
// moves when no explicit SettleTime is configured.
const defaultSettle = 50 * time.Millisecond

// PVConfig assembles the remote signals a PVPositioner drives. Only
// Setpoint is mandatory; every other signal is optional and its absence
// changes the choreography as described on NewPVPositioner.
type PVConfig struct {
	Name    string
	EGU     string
	Timeout time.Duration
	Logger  log.Logger

	// Setpoint receives the target value. Required.
	Setpoint signal.RemoteValue

	// Readback supplies the position. When nil the setpoint is read back
	// instead.
	Readback signal.RemoteValue

	// Actuate, when present, triggers motion after the setpoint write:
	// the setpoint is written without acknowledgement and ActuateValue is
	// written to Actuate with the caller's completion options.
	Actuate      signal.RemoteValue
	ActuateValue float64

	// Stop, when present, receives StopValue to halt motion.
	Stop      signal.RemoteValue
	StopValue float64

	// Done, when present, reports motion state: the axis is moving
	// whenever the done reading differs from DoneValue.
	Done      signal.RemoteValue
	DoneValue float64

	// PutComplete derives completion from write acknowledgement of the
	// setpoint (or actuate) signal instead of a done transition.
	PutComplete bool

	// SettleTime is the pause after an acknowledged put-complete write
	// before completion is declared, when no done signal is present.
	SettleTime time.Duration

	// Limits are static soft travel limits checked before each move, in
	// addition to whatever the setpoint signal itself enforces.
	Limits Limits
}

// PVPositioner drives an axis through remote signals. It extends the
// core Positioner with real write choreography and live motion state.
type PVPositioner struct {
	*Positioner

	setpoint signal.RemoteValue
	readback signal.RemoteValue
	actuate  signal.RemoteValue
	stop     signal.RemoteValue
	done     signal.RemoteValue

	actuateValue float64
	stopValue    float64
	doneValue    float64
	putComplete  bool
	settle       time.Duration

	posSrc   signal.RemoteValue
	posSubID uint32
	doneSub  uint32

	// activeGen is the tracker generation of the move whose started
	// transition was last observed. Guarded by the embedded mu.
	activeGen uint64

	closeOnce sync.Once
}

// NewPVPositioner wires the configured signals into a positioner.
//
// Position updates flow from the readback signal, or from the setpoint
// when no readback is configured. With a done signal, motion state
// transitions are observed live; without one, put-complete mode
// synthesizes the started and finished transitions around the
// acknowledged write. A configuration with neither done signal nor
// put-complete mode cannot observe completion and is logged as a
// warning at construction.
func NewPVPositioner(cfg PVConfig) (*PVPositioner, error) {
	if cfg.Setpoint == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSetpoint, cfg.Name)
	}

	actuateValue := cfg.ActuateValue
	if actuateValue == 0 {
		actuateValue = 1
	}
	stopValue := cfg.StopValue
	if stopValue == 0 {
		stopValue = 1
	}
	settle := cfg.SettleTime
	if settle == 0 {
		settle = defaultSettle
	}

	core := NewPositioner(cfg.Name,
		WithEGU(cfg.EGU),
		WithTimeout(cfg.Timeout),
		WithLogger(cfg.Logger),
		WithLimits(cfg.Limits),
	)

	pv := &PVPositioner{
		Positioner:   core,
		setpoint:     cfg.Setpoint,
		readback:     cfg.Readback,
		actuate:      cfg.Actuate,
		stop:         cfg.Stop,
		done:         cfg.Done,
		actuateValue: actuateValue,
		stopValue:    stopValue,
		doneValue:    cfg.DoneValue,
		putComplete:  cfg.PutComplete,
		settle:       settle,
	}

	if pv.done == nil && !pv.putComplete {
		core.logger.Log(log.Event{
			Timestamp: time.Now(),
			Axis:      cfg.Name,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Message: "no done signal and put-completion disabled, moves cannot observe completion",
			},
		})
	}

	pv.posSrc = pv.readback
	if pv.posSrc == nil {
		pv.posSrc = pv.setpoint
	}
	core.readbackName = pv.posSrc.Name()
	if v, ts, err := pv.posSrc.Get(); err == nil {
		core.setPosition(v, ts)
	}
	sub, err := pv.posSrc.Subscribe(func(v float64, ts time.Time) {
		core.setPosition(v, ts)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to position source for %s: %w", cfg.Name, err)
	}
	pv.posSubID = sub

	if pv.done != nil {
		// Seed the moving flag from the current done reading without
		// dispatching transition events.
		if v, _, err := pv.done.Get(); err == nil {
			core.mu.Lock()
			core.moving = v != pv.doneValue
			core.mu.Unlock()
		}
		sub, err := pv.done.Subscribe(func(v float64, ts time.Time) {
			pv.moveChanged(v != pv.doneValue, ts)
		})
		if err != nil {
			pv.posSrc.Unsubscribe(pv.posSubID)
			return nil, fmt.Errorf("subscribing to done signal for %s: %w", cfg.Name, err)
		}
		pv.doneSub = sub
		core.movingFn = pv.liveMoving
	}

	return pv, nil
}

// Moving via the done signal when one is configured.
func (pv *PVPositioner) liveMoving() bool {
	v, _, err := pv.done.Get()
	if err != nil {
		pv.mu.RLock()
		defer pv.mu.RUnlock()
		return pv.moving
	}
	return v != pv.doneValue
}

// moveChanged applies an observed motion state transition. The first
// not-moving to moving edge of a move dispatches SubStart and binds the
// in-flight move's tracker generation; a moving to not-moving edge
// completes that move unless put-complete mode owns completion.
func (pv *PVPositioner) moveChanged(movingNow bool, ts time.Time) {
	pv.mu.Lock()
	was := pv.moving
	pv.moving = movingNow

	started := movingNow && !pv.startedMoving
	if started {
		pv.startedMoving = true
		pv.activeGen = pv.curGen()
	}
	finished := was && !movingNow && pv.startedMoving
	gen := pv.activeGen
	pv.mu.Unlock()

	if started {
		pv.notifier.Dispatch(notify.Event{Kind: SubStart, Timestamp: ts, Obj: pv})
		pv.logState("resting", "moving")
	}
	if finished {
		pv.logState("moving", "resting")
		if !pv.putComplete {
			pv.doneMoving(gen, ts)
		}
	}
}

// logState records a motion state transition in the event log.
func (pv *PVPositioner) logState(old, next string) {
	pv.logger.Log(log.Event{
		Timestamp: time.Now(),
		Axis:      pv.name,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityPositioner,
			OldState: old,
			NewState: next,
		},
	})
}

// CheckValue validates target against the positioner limits and the
// setpoint signal's own constraints.
func (pv *PVPositioner) CheckValue(target float64) error {
	l := pv.Limits()
	if l.Low != 0 || l.High != 0 {
		if target < l.Low || target > l.High {
			return fmt.Errorf("%s: target %v outside limits [%v, %v]: %w",
				pv.name, target, l.Low, l.High, signal.ErrOutOfRange)
		}
	}
	return pv.setpoint.CheckValue(target)
}

// Move requests motion to target through the remote signals. With
// opts.Wait the call blocks until completion and returns a nil status;
// otherwise a MoveStatus future is returned and resolved by the done
// transition or the write acknowledgement. Any failure during a blocking
// move halts the axis best-effort before returning.
func (pv *PVPositioner) Move(ctx context.Context, target float64, opts MoveOptions) (*MoveStatus, error) {
	if err := pv.CheckValue(target); err != nil {
		return nil, err
	}

	gen := pv.beginMove(target, opts)

	if opts.Wait {
		var err error
		if pv.putComplete {
			err = pv.moveWaitPC(ctx, gen, target, opts)
		} else {
			err = pv.moveWait(ctx, target, opts)
		}
		if err != nil {
			pv.stopQuietly()
			return nil, err
		}
		return nil, nil
	}

	st := pv.attachStatus(target, opts.Moved)
	if err := pv.moveAsync(gen, target); err != nil {
		return nil, err
	}
	return st, nil
}

// moveWait issues the write and polls the motion state until done.
func (pv *PVPositioner) moveWait(ctx context.Context, target float64, opts MoveOptions) error {
	timeout := pv.effectiveTimeout(opts.Timeout)
	if err := pv.putTarget(target, signal.PutOptions{Wait: true, Timeout: timeout}); err != nil {
		return err
	}
	return pv.awaitMove(ctx, target, timeout)
}

// moveWaitPC is the blocking put-complete choreography. Without a done
// signal the started and finished transitions are synthesized around the
// acknowledged write; with one, the write acknowledgement is followed by
// a settle pause and the done state decides the outcome.
func (pv *PVPositioner) moveWaitPC(ctx context.Context, gen uint64, target float64, opts MoveOptions) error {
	timeout := pv.effectiveTimeout(opts.Timeout)

	if pv.done == nil {
		pv.moveChanged(true, time.Now())
	}
	if err := pv.putTarget(target, signal.PutOptions{Wait: true, Timeout: timeout}); err != nil {
		return err
	}
	ackTime := time.Now()

	if pv.done == nil {
		pv.moveChanged(false, ackTime)
	} else if err := sleepCtx(ctx, pv.settle); err != nil {
		return err
	}

	switch {
	case !pv.hasStarted():
		return fmt.Errorf("%w: no motion moving %s to %v within %v", ErrTimeout, pv.name, target, timeout)
	case pv.Moving():
		return fmt.Errorf("%w: %s still moving to %v after %v", ErrTimeout, pv.name, target, timeout)
	default:
		pv.doneMoving(gen, ackTime)
		return nil
	}
}

// moveAsync issues the write for a non-blocking move. In put-complete
// mode the acknowledgement resolves the pending completion. A failed
// acknowledgement fails the pending completion in either mode: a
// rejected write produces no motion for the done signal to observe.
func (pv *PVPositioner) moveAsync(gen uint64, target float64) error {
	if pv.done == nil && pv.putComplete {
		pv.moveChanged(true, time.Now())
	}

	err := pv.putTarget(target, signal.PutOptions{
		OnComplete: func(err error) {
			if err != nil {
				pv.logger.Log(log.Event{
					Timestamp: time.Now(),
					Axis:      pv.name,
					Category:  log.CategoryError,
					Error:     &log.ErrorEventData{Message: "setpoint write failed: " + err.Error(), Context: "put setpoint"},
				})
				pv.failPending()
				return
			}
			if pv.putComplete {
				pv.doneMoving(gen, time.Now())
			}
		},
	})
	if err != nil {
		pv.failPending()
		return err
	}
	return nil
}

// putTarget writes the target through the configured signals. With an
// actuate signal the setpoint write carries no completion options and the
// actuate write does.
func (pv *PVPositioner) putTarget(target float64, opts signal.PutOptions) error {
	if pv.actuate != nil {
		if err := pv.setpoint.Put(target, signal.PutOptions{}); err != nil {
			return err
		}
		return pv.actuate.Put(pv.actuateValue, opts)
	}
	return pv.setpoint.Put(target, opts)
}

// MoveNext advances the trajectory and moves to the yielded point.
func (pv *PVPositioner) MoveNext(ctx context.Context, opts MoveOptions) (float64, *MoveStatus, error) {
	return pv.moveNextWith(ctx, opts, pv.Move)
}

// Stop writes the stop value and fails any pending completion. Without a
// configured stop signal the pending completion is still failed but
// ErrStopUnsupported is returned.
func (pv *PVPositioner) Stop() error {
	if pv.stop == nil {
		pv.failPending()
		return fmt.Errorf("%w: %s", ErrStopUnsupported, pv.name)
	}
	err := pv.stop.Put(pv.stopValue, signal.PutOptions{})
	pv.failPending()
	return err
}

// stopQuietly halts the axis best-effort after a failed blocking move.
func (pv *PVPositioner) stopQuietly() {
	_ = pv.Stop()
}

// Close detaches the signal subscriptions and drops all observers. The
// underlying signals are not closed; they may be shared.
func (pv *PVPositioner) Close() {
	pv.closeOnce.Do(func() {
		pv.posSrc.Unsubscribe(pv.posSubID)
		if pv.done != nil {
			pv.done.Unsubscribe(pv.doneSub)
		}
		pv.notifier.UnsubscribeAll("")
	})
}
