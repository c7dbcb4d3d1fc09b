package positioner

import (
	"context"
	"fmt"
)

// SetTrajectory stores the sequence of positions to follow and resets the
// followed history. The iterator is forward-only and restarts from the
// beginning of seq; an empty sequence is valid and exhausts immediately.
func (p *Positioner) SetTrajectory(seq []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.traj = append([]float64(nil), seq...)
	p.trajIdx = 0
	p.followed = nil
	p.hasTraj = true
}

// NextPosition advances the trajectory and records the yielded point in
// the followed history. ok is false when no points remain. Returns
// ErrNoTrajectory if SetTrajectory was never called.
func (p *Positioner) NextPosition() (pos float64, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasTraj {
		return 0, false, ErrNoTrajectory
	}
	if p.trajIdx >= len(p.traj) {
		return 0, false, nil
	}
	pos = p.traj[p.trajIdx]
	p.trajIdx++
	p.followed = append(p.followed, pos)
	return pos, true, nil
}

// Followed returns the trajectory points yielded so far.
func (p *Positioner) Followed() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]float64(nil), p.followed...)
}

// moveNextWith composes advance-and-move using the given move function,
// so specializations reuse the iteration logic with their own Move.
func (p *Positioner) moveNextWith(ctx context.Context, opts MoveOptions,
	move func(context.Context, float64, MoveOptions) (*MoveStatus, error)) (float64, *MoveStatus, error) {

	pos, ok, err := p.NextPosition()
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrTrajectoryExhausted, p.name)
	}
	st, err := move(ctx, pos, opts)
	return pos, st, err
}
