package positioner

import (
	"fmt"
	"sync"
	"time"

	"github.com/beamctl/beamctl-go/pkg/notify"
)

// MoveStatus is the asynchronous completion handle returned by
// non-blocking moves. It is resolved at most once, by the internal
// completion subscriber registered when the move was requested; once Done
// reports true all other completion attributes are fixed.
type MoveStatus struct {
	positioner *Positioner
	target     float64
	start      time.Time

	mu        sync.Mutex
	done      bool
	success   bool
	finish    time.Time
	finishPos float64

	doneCh chan struct{}
}

func newMoveStatus(p *Positioner, target float64) *MoveStatus {
	return &MoveStatus{
		positioner: p,
		target:     target,
		start:      time.Now(),
		doneCh:     make(chan struct{}),
	}
}

// resolve is the internal completion subscriber. Later events are ignored.
func (s *MoveStatus) resolve(ev notify.Event) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.success = ev.Success
	if ev.Timestamp.IsZero() {
		s.finish = time.Now()
	} else {
		s.finish = ev.Timestamp
	}
	s.finishPos = s.positioner.Position()
	s.mu.Unlock()

	close(s.doneCh)
}

// Target returns the requested position.
func (s *MoveStatus) Target() float64 {
	return s.target
}

// StartTime returns when the move was requested.
func (s *MoveStatus) StartTime() time.Time {
	return s.start
}

// Done reports whether the move has completed (successfully or not).
func (s *MoveStatus) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Success reports whether the move completed normally. Meaningful only
// once Done reports true.
func (s *MoveStatus) Success() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.success
}

// FinishTime returns the completion timestamp, if the move has completed.
func (s *MoveStatus) FinishTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finish, s.done
}

// FinishPosition returns the position snapshotted at completion, if the
// move has completed.
func (s *MoveStatus) FinishPosition() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishPos, s.done
}

// Elapsed returns the move duration so far, or the total duration once
// completed.
func (s *MoveStatus) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.finish.Sub(s.start)
	}
	return time.Since(s.start)
}

// Error returns target minus final position. Before completion the
// current position approximates the final one.
func (s *MoveStatus) Error() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.target - s.finishPos
	}
	return s.target - s.positioner.Position()
}

// Wait blocks until the move completes or timeout elapses, returning
// ErrTimeout on the latter. A timeout <= 0 blocks indefinitely.
func (s *MoveStatus) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-s.doneCh
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.doneCh:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: move to %v not finished after %v", ErrTimeout, s.target, timeout)
	}
}

// String summarizes the status.
func (s *MoveStatus) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := time.Since(s.start)
	if s.done {
		elapsed = s.finish.Sub(s.start)
	}
	return fmt.Sprintf("MoveStatus(done=%v, elapsed=%.1fs, success=%v)", s.done, elapsed.Seconds(), s.success)
}
