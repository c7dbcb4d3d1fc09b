package positioner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamctl/beamctl-go/pkg/notify"
)

func TestSoftMoveWait(t *testing.T) {
	p := NewPositioner("ax", WithEGU("mm"), WithInitialPosition(1))

	var readbacks []float64
	p.Subscribe(SubReadback, func(ev notify.Event) {
		readbacks = append(readbacks, ev.Value)
	}, false)

	st, err := p.Move(context.Background(), 5, MoveOptions{Wait: true})
	require.NoError(t, err)
	assert.Nil(t, st)

	assert.Equal(t, 5.0, p.Position())
	assert.False(t, p.Moving())
	assert.Equal(t, []float64{5}, readbacks)

	_, has := p.Target()
	assert.False(t, has)
}

func TestSoftMoveAsyncResolvesImmediately(t *testing.T) {
	p := NewPositioner("ax")

	var movedCount atomic.Int32
	st, err := p.Move(context.Background(), 2.5, MoveOptions{
		Moved: func(ev notify.Event) {
			if ev.Success {
				movedCount.Add(1)
			}
		},
	})
	require.NoError(t, err)
	require.NotNil(t, st)

	require.NoError(t, st.Wait(time.Second))
	assert.True(t, st.Done())
	assert.True(t, st.Success())
	assert.Equal(t, int32(1), movedCount.Load())

	pos, ok := st.FinishPosition()
	require.True(t, ok)
	assert.Equal(t, 2.5, pos)
	assert.Equal(t, 0.0, st.Error())
}

func TestOverlappingMoveFailsFirst(t *testing.T) {
	p := NewPositioner("ax")

	// Arm a pending completion by hand so the second move finds one.
	st1 := p.attachStatus(1, nil)
	p.mu.Lock()
	p.hasTarget = true
	p.mu.Unlock()

	st2, err := p.Move(context.Background(), 2, MoveOptions{})
	require.NoError(t, err)

	require.NoError(t, st1.Wait(time.Second))
	assert.False(t, st1.Success())

	require.NoError(t, st2.Wait(time.Second))
	assert.True(t, st2.Success())
}

func TestStopFailsPending(t *testing.T) {
	p := NewPositioner("ax")

	st := p.attachStatus(3, nil)
	require.NoError(t, p.Stop())

	require.NoError(t, st.Wait(time.Second))
	assert.True(t, st.Done())
	assert.False(t, st.Success())

	// Stop with nothing pending is a no-op.
	require.NoError(t, p.Stop())
}

func TestStaleCompletionIgnored(t *testing.T) {
	p := NewPositioner("ax")

	gen1 := p.beginMove(1, MoveOptions{})
	st1 := p.attachStatus(1, nil)

	gen2 := p.beginMove(2, MoveOptions{})
	st2 := p.attachStatus(2, nil)

	var dones int
	p.Subscribe(SubDone, func(notify.Event) { dones++ }, false)

	// Completing the superseded move must neither resolve the new one
	// nor dispatch a done event.
	p.doneMoving(gen1, time.Time{})

	require.NoError(t, st1.Wait(time.Second))
	assert.False(t, st1.Success())
	assert.False(t, st2.Done())
	assert.Equal(t, 0, dones)

	p.doneMoving(gen2, time.Time{})
	require.NoError(t, st2.Wait(time.Second))
	assert.True(t, st2.Success())
}

func TestLateCompletionKeepsNextMovePending(t *testing.T) {
	p := NewPositioner("ax")

	gen1 := p.beginMove(1, MoveOptions{})
	st1 := p.attachStatus(1, nil)

	// Hold the first completion open mid-dispatch while a second move
	// begins underneath it.
	entered := make(chan struct{})
	release := make(chan struct{})
	p.Subscribe(SubDone, func(notify.Event) {
		select {
		case <-entered:
		default:
			close(entered)
			<-release
		}
	}, false)

	finished := make(chan struct{})
	go func() {
		p.doneMoving(gen1, time.Time{})
		close(finished)
	}()
	<-entered

	gen2 := p.beginMove(2, MoveOptions{})
	st2 := p.attachStatus(2, nil)
	close(release)
	<-finished

	// The first completion claimed its own callbacks before the second
	// move attached; the second move stays pending until its own
	// completion arrives.
	require.NoError(t, st1.Wait(time.Second))
	assert.True(t, st1.Success())
	assert.False(t, st2.Done())

	p.doneMoving(gen2, time.Time{})
	require.NoError(t, st2.Wait(time.Second))
	assert.True(t, st2.Success())
}

func TestSubscribeRunNowReplaysReadback(t *testing.T) {
	p := NewPositioner("ax")
	_, err := p.Move(context.Background(), 7, MoveOptions{Wait: true})
	require.NoError(t, err)

	var got []float64
	p.Subscribe(SubReadback, func(ev notify.Event) {
		got = append(got, ev.Value)
	}, true)
	assert.Equal(t, []float64{7}, got)
}

func TestMoveStatusWaitTimeout(t *testing.T) {
	p := NewPositioner("ax")
	st := newMoveStatus(p, 10)

	err := st.Wait(20 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, st.Done())
}

func TestMoveStatusResolvesOnce(t *testing.T) {
	p := NewPositioner("ax", WithInitialPosition(4))
	st := newMoveStatus(p, 4)

	first := time.Now()
	st.resolve(notify.Event{Success: true, Timestamp: first})
	st.resolve(notify.Event{Success: false, Timestamp: first.Add(time.Hour)})

	assert.True(t, st.Success())
	ft, ok := st.FinishTime()
	require.True(t, ok)
	assert.Equal(t, first, ft)
}

func TestTrajectory(t *testing.T) {
	p := NewPositioner("ax")

	_, _, err := p.NextPosition()
	assert.True(t, errors.Is(err, ErrNoTrajectory))

	p.SetTrajectory([]float64{1, 2, 3})

	for i, want := range []float64{1, 2, 3} {
		pos, ok, err := p.NextPosition()
		require.NoError(t, err)
		require.True(t, ok, "point %d", i)
		assert.Equal(t, want, pos)
	}

	_, ok, err := p.NextPosition()
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []float64{1, 2, 3}, p.Followed())

	// Setting a new trajectory restarts iteration and history.
	p.SetTrajectory([]float64{9})
	assert.Empty(t, p.Followed())
	pos, ok, err := p.NextPosition()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9.0, pos)
}

func TestMoveNext(t *testing.T) {
	p := NewPositioner("ax")
	p.SetTrajectory([]float64{2, 4})

	pos, _, err := p.MoveNext(context.Background(), MoveOptions{Wait: true})
	require.NoError(t, err)
	assert.Equal(t, 2.0, pos)
	assert.Equal(t, 2.0, p.Position())

	pos, _, err = p.MoveNext(context.Background(), MoveOptions{Wait: true})
	require.NoError(t, err)
	assert.Equal(t, 4.0, pos)

	_, _, err = p.MoveNext(context.Background(), MoveOptions{Wait: true})
	assert.True(t, errors.Is(err, ErrTrajectoryExhausted))

	// Exhaustion does not disturb the last position.
	assert.Equal(t, 4.0, p.Position())
}

func TestEffectiveTimeout(t *testing.T) {
	p := NewPositioner("ax", WithTimeout(2*time.Second))

	assert.Equal(t, 2*time.Second, p.effectiveTimeout(0))
	assert.Equal(t, time.Second, p.effectiveTimeout(time.Second))
	assert.Equal(t, -time.Nanosecond, p.effectiveTimeout(-time.Nanosecond))
}

func TestMoveContextCancelled(t *testing.T) {
	p := NewPositioner("ax")
	// Block motion-start detection so awaitMove has to poll.
	p.movingFn = func() bool { return true }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := p.Move(ctx, 1, MoveOptions{Wait: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
