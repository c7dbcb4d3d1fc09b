// Package notify implements the generic event-subscription engine that
// underlies all change notifications in beamctl.
//
// A Notifier maps event kinds to ordered subscriber lists. Subscribers are
// held either strongly (a plain callback) or weakly (via a Handle the
// observer keeps alive); weak entries whose handle has been collected are
// pruned on the next dispatch and never delivered.
//
// Dispatch may run on a different goroutine than the one that registered
// subscribers - change notifications typically arrive on a signal's
// dedicated notification goroutine. The subscriber list is snapshotted
// before iteration, so Subscribe and Unsubscribe are safe to call from
// inside a running callback and take effect on the next dispatch.
//
// A panic raised by one subscriber is recovered and logged; the remaining
// subscribers still run.
package notify
