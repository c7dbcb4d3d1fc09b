package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamctl/beamctl-go/pkg/positioner"
)

// Both positioner flavors must satisfy Axis.
var (
	_ Axis = (*positioner.Positioner)(nil)
	_ Axis = (*positioner.PVPositioner)(nil)
)

func TestRegisterAndGet(t *testing.T) {
	r := New()

	id, err := r.Register(positioner.NewPositioner("theta"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	ax, err := r.Get("theta")
	require.NoError(t, err)
	assert.Equal(t, "theta", ax.Name())

	got, err := r.ID("theta")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = r.Get("phi")
	assert.True(t, errors.Is(err, ErrUnknownAxis))
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()

	_, err := r.Register(positioner.NewPositioner("theta"))
	require.NoError(t, err)

	_, err = r.Register(positioner.NewPositioner("theta"))
	assert.True(t, errors.Is(err, ErrDuplicateAxis))
}

func TestUnregisterAllowsReuse(t *testing.T) {
	r := New()

	first, err := r.Register(positioner.NewPositioner("theta"))
	require.NoError(t, err)

	r.Unregister("theta")
	assert.Equal(t, 0, r.Len())

	second, err := r.Register(positioner.NewPositioner("theta"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestNamesSorted(t *testing.T) {
	r := New()
	for _, name := range []string{"z", "a", "m"} {
		_, err := r.Register(positioner.NewPositioner(name))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "m", "z"}, r.Names())
}

func TestRangeEarlyStop(t *testing.T) {
	r := New()
	for _, name := range []string{"a", "b", "c"} {
		_, err := r.Register(positioner.NewPositioner(name))
		require.NoError(t, err)
	}

	var seen []string
	r.Range(func(ax Axis) bool {
		seen = append(seen, ax.Name())
		return len(seen) < 2
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestStopAll(t *testing.T) {
	r := New()
	p := positioner.NewPositioner("theta")
	_, err := r.Register(p)
	require.NoError(t, err)

	st, err := p.Move(context.Background(), 1, positioner.MoveOptions{})
	require.NoError(t, err)
	require.NoError(t, st.Wait(0))

	require.NoError(t, r.StopAll())
}
