// Package positioner implements the asynchronous positioner core: a
// motion state machine coordinating move requests against remote signals,
// with blocking and asynchronous completion styles.
//
// Positioner is the soft base: a move reaches its target immediately.
// PVPositioner composes up to five remote signals (setpoint, readback,
// actuate, stop, done) and infers motion state either from a done signal
// or from put-completion acknowledgements of the setpoint write.
//
// Completion for non-blocking moves is delivered through a MoveStatus
// future, resolved at most once by the internal completion subscriber.
// Starting a new move fails any still-pending completion before issuing
// writes, so no two completions for overlapping moves both succeed.
//
// All state-change notifications flow through an embedded notify.Notifier:
// observers subscribe to SubStart, SubDone and SubReadback, or to
// notify.KindAny for everything.
package positioner
