package positioner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beamctl/beamctl-go/pkg/log"
	"github.com/beamctl/beamctl-go/pkg/notify"
)

// Subscription event kinds dispatched by positioners.
const (
	// SubStart fires once per move when motion is first observed to begin.
	SubStart notify.EventKind = "start_moving"

	// SubDone fires when motion completes.
	SubDone notify.EventKind = "done_moving"

	// SubReadback fires on every position change.
	SubReadback notify.EventKind = "readback"
)

// pollInterval is the poll period for blocking moves.
const pollInterval = 25 * time.Millisecond

// Limits is a pair of soft travel limits. Both zero means unset.
type Limits struct {
	Low  float64
	High float64
}

// MoveOptions control a move request.
type MoveOptions struct {
	// Wait blocks until motion completes, polling local state.
	Wait bool

	// Timeout overrides the positioner's default move deadline. Zero
	// uses the default; a negative value disables the deadline.
	Timeout time.Duration

	// Moved, if set, is invoked when the pending completion resolves,
	// with Success reporting the outcome. Only used when Wait is false.
	Moved notify.Callback
}

// Positioner is a soft positioner and the core state machine that
// PVPositioner builds on. A bare Positioner reaches its target
// immediately when moved.
type Positioner struct {
	name     string
	egu      string
	timeout  time.Duration
	logger   log.Logger
	notifier *notify.Notifier

	mu            sync.RWMutex
	position      float64
	readbackName  string
	moving        bool
	startedMoving bool
	target        float64
	hasTarget     bool
	moveStart     time.Time
	limits        Limits

	// Pending-completion tracker. Callbacks belong to the move that
	// attached them; pendingGen advances whenever a move begins or is
	// invalidated, so a completion carrying an older generation finds
	// the tracker gone and is ignored.
	pendingMu  sync.Mutex
	pendingGen uint64
	pendingCbs []notify.Callback

	traj     []float64
	trajIdx  int
	followed []float64
	hasTraj  bool

	// movingFn, when set by a specialization, supplies the live moving
	// state (e.g. read from a done signal) instead of the internal flag.
	movingFn func() bool
}

// Option configures a Positioner at construction.
type Option func(*Positioner)

// WithEGU sets the engineering units label.
func WithEGU(egu string) Option {
	return func(p *Positioner) { p.egu = egu }
}

// WithTimeout sets the default move deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(p *Positioner) { p.timeout = d }
}

// WithLogger sets the motion event logger. Nil disables logging.
func WithLogger(l log.Logger) Option {
	return func(p *Positioner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithInitialPosition sets the starting position.
func WithInitialPosition(v float64) Option {
	return func(p *Positioner) { p.position = v }
}

// WithLimits sets the static soft travel limits.
func WithLimits(l Limits) Option {
	return func(p *Positioner) { p.limits = l }
}

// NewPositioner creates a soft positioner.
func NewPositioner(name string, opts ...Option) *Positioner {
	p := &Positioner{
		name:   name,
		logger: log.NoopLogger{},
	}
	for _, o := range opts {
		o(p)
	}
	p.notifier = notify.NewNotifier(p.logger)
	return p
}

// Name returns the positioner name.
func (p *Positioner) Name() string {
	return p.name
}

// EGU returns the engineering units label.
func (p *Positioner) EGU() string {
	return p.egu
}

// Timeout returns the default move deadline.
func (p *Positioner) Timeout() time.Duration {
	return p.timeout
}

// Limits returns the soft travel limits.
func (p *Positioner) Limits() Limits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.limits
}

// Position returns the last known position. It is updated only through
// the internal position-change path, never by callers.
func (p *Positioner) Position() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position
}

// Moving reports whether the positioner is in motion.
func (p *Positioner) Moving() bool {
	p.mu.RLock()
	fn := p.movingFn
	m := p.moving
	p.mu.RUnlock()

	if fn != nil {
		return fn()
	}
	return m
}

// Target returns the target of the in-flight move, if any.
func (p *Positioner) Target() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target, p.hasTarget
}

// Subscribe registers cb for kind (one of SubStart, SubDone, SubReadback
// or notify.KindAny). With runNow, cb is invoked once synchronously with
// the last known event of that kind, if any.
func (p *Positioner) Subscribe(kind notify.EventKind, cb notify.Callback, runNow bool) notify.SubscriptionID {
	return p.notifier.Subscribe(kind, cb, runNow)
}

// SubscribeWeak registers the callback pinned by h without keeping it
// alive; the entry is pruned once h is collected.
func (p *Positioner) SubscribeWeak(kind notify.EventKind, h *notify.Handle, runNow bool) notify.SubscriptionID {
	return p.notifier.SubscribeWeak(kind, h, runNow)
}

// Unsubscribe removes a single subscription.
func (p *Positioner) Unsubscribe(id notify.SubscriptionID) {
	p.notifier.Unsubscribe(id)
}

// Move requests motion to target. A soft positioner reaches the target
// immediately: position is updated and completion dispatched before Move
// returns, so with opts.Wait false the returned status is already
// resolved. Specialized positioners shadow Move with real choreography.
func (p *Positioner) Move(ctx context.Context, target float64, opts MoveOptions) (*MoveStatus, error) {
	gen := p.beginMove(target, opts)

	p.mu.Lock()
	p.startedMoving = true
	p.moving = false
	p.mu.Unlock()

	var st *MoveStatus
	if opts.Wait {
		if err := p.awaitMove(ctx, target, p.effectiveTimeout(opts.Timeout)); err != nil {
			return nil, err
		}
	} else {
		st = p.attachStatus(target, opts.Moved)
	}

	p.setPosition(target, time.Time{})
	p.doneMoving(gen, time.Time{})
	return st, nil
}

// MoveNext advances the trajectory and moves to the yielded point.
func (p *Positioner) MoveNext(ctx context.Context, opts MoveOptions) (float64, *MoveStatus, error) {
	return p.moveNextWith(ctx, opts, p.Move)
}

// Stop fails the pending completion unconditionally. It is idempotent
// when nothing is pending. Specialized positioners halt the hardware
// first, then call the core Stop.
func (p *Positioner) Stop() error {
	p.failPending()
	return nil
}

// beginMove invalidates any prior pending completion (delivering a
// failure notification for it), opens a new tracker generation and
// records the new target. The returned generation identifies the move
// to doneMoving.
func (p *Positioner) beginMove(target float64, opts MoveOptions) uint64 {
	p.pendingMu.Lock()
	p.pendingGen++
	gen := p.pendingGen
	stale := p.pendingCbs
	p.pendingCbs = nil
	p.pendingMu.Unlock()

	p.resolveCompletion(stale, notify.Event{
		Kind:      SubDone,
		Timestamp: time.Now(),
		Success:   false,
		Obj:       p,
	})

	p.mu.Lock()
	p.target = target
	p.hasTarget = true
	p.startedMoving = false
	p.moveStart = time.Now()
	p.mu.Unlock()

	p.logger.Log(log.Event{
		Timestamp: time.Now(),
		Axis:      p.name,
		Category:  log.CategoryMove,
		Move:      &log.MoveEvent{Target: target, Wait: opts.Wait, Timeout: p.effectiveTimeout(opts.Timeout)},
	})
	return gen
}

// failPending resolves the pending completion as a failure and
// invalidates the tracker generation, so any completion already in
// flight for the old move is discarded. Safe to call with nothing
// pending.
func (p *Positioner) failPending() {
	p.mu.Lock()
	p.hasTarget = false
	p.mu.Unlock()

	p.pendingMu.Lock()
	p.pendingGen++
	cbs := p.pendingCbs
	p.pendingCbs = nil
	p.pendingMu.Unlock()

	p.resolveCompletion(cbs, notify.Event{
		Kind:      SubDone,
		Timestamp: time.Now(),
		Success:   false,
		Obj:       p,
	})
}

// attachStatus creates the move-status future for a non-blocking move and
// registers the caller's moved callback plus the future's resolver on the
// pending-completion tracker.
func (p *Positioner) attachStatus(target float64, moved notify.Callback) *MoveStatus {
	st := newMoveStatus(p, target)
	p.pendingMu.Lock()
	if moved != nil {
		p.pendingCbs = append(p.pendingCbs, moved)
	}
	p.pendingCbs = append(p.pendingCbs, st.resolve)
	p.pendingMu.Unlock()
	return st
}

// curGen returns the current tracker generation.
func (p *Positioner) curGen() uint64 {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return p.pendingGen
}

// resolveCompletion invokes completion callbacks outside the tracker
// lock, isolating panics the same way dispatch does.
func (p *Positioner) resolveCompletion(cbs []notify.Callback, ev notify.Event) {
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Log(log.Event{
						Timestamp: time.Now(),
						Axis:      p.name,
						Category:  log.CategoryError,
						Error: &log.ErrorEventData{
							Message: fmt.Sprintf("completion callback panic: %v", r),
							Context: "resolve move",
						},
					})
				}
			}()
			cb(ev)
		}()
	}
}

// awaitMove polls until motion starts and then until it finishes, bounded
// by timeout (<= 0 disables the deadline) and by ctx.
func (p *Positioner) awaitMove(ctx context.Context, target float64, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	expired := func() bool {
		return !deadline.IsZero() && time.Now().After(deadline)
	}

	for !p.hasStarted() {
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return err
		}
		if expired() {
			return fmt.Errorf("%w: no motion moving %s to %v within %v", ErrTimeout, p.name, target, timeout)
		}
	}
	for p.Moving() {
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return err
		}
		if expired() {
			return fmt.Errorf("%w: %s still moving to %v after %v", ErrTimeout, p.name, target, timeout)
		}
	}
	return nil
}

// setPosition is the designated position-change path: it stores the value,
// dispatches a readback event and logs the change. Callers must never set
// position directly.
func (p *Positioner) setPosition(v float64, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now()
	}
	p.mu.Lock()
	p.position = v
	src := p.readbackName
	p.mu.Unlock()

	p.notifier.Dispatch(notify.Event{
		Kind:      SubReadback,
		Value:     v,
		HasValue:  true,
		Timestamp: ts,
		Obj:       p,
	})

	p.logger.Log(log.Event{
		Timestamp: time.Now(),
		Axis:      p.name,
		Category:  log.CategoryValue,
		Value:     &log.ValueEvent{Signal: src, Value: v, At: ts},
	})
}

// doneMoving runs the completion path for the move identified by gen: the
// general done event first, then the pending completion resolves exactly
// once. A generation older than the tracker's means a newer move has
// begun; such a stray completion is dropped whole.
func (p *Positioner) doneMoving(gen uint64, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now()
	}

	p.pendingMu.Lock()
	if gen != p.pendingGen {
		p.pendingMu.Unlock()
		return
	}
	cbs := p.pendingCbs
	p.pendingCbs = nil
	p.pendingMu.Unlock()

	p.mu.Lock()
	p.moving = false
	p.hasTarget = false
	target := p.target
	final := p.position
	elapsed := time.Duration(0)
	if !p.moveStart.IsZero() {
		elapsed = time.Since(p.moveStart)
	}
	p.mu.Unlock()

	p.notifier.Dispatch(notify.Event{Kind: SubDone, Timestamp: ts, Obj: p})
	p.resolveCompletion(cbs, notify.Event{Kind: SubDone, Timestamp: ts, Success: true, Obj: p})

	p.logger.Log(log.Event{
		Timestamp: time.Now(),
		Axis:      p.name,
		Category:  log.CategoryCompletion,
		Completion: &log.CompletionEvent{
			Target:  target,
			Final:   final,
			Success: true,
			Elapsed: elapsed,
		},
	})
}

// hasStarted reports whether the started-moving transition was observed
// for the current move.
func (p *Positioner) hasStarted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.startedMoving
}

// effectiveTimeout resolves a per-move override against the default.
func (p *Positioner) effectiveTimeout(override time.Duration) time.Duration {
	if override != 0 {
		return override
	}
	return p.timeout
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
