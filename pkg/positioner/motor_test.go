package positioner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamctl/beamctl-go/pkg/signal"
)

func motorHub(t *testing.T, record string) *signal.Hub {
	t.Helper()
	hub := signal.NewHub()
	hub.Add(signal.NewSoft(record + fieldSetpoint))
	hub.Add(signal.NewSoft(record + fieldReadback))
	hub.Add(signal.NewSoft(record+fieldDone, signal.WithInitial(1)))
	hub.Add(signal.NewSoft(record + fieldStop))
	t.Cleanup(hub.Close)
	return hub
}

func TestNewMotorRequiresRecord(t *testing.T) {
	_, err := NewMotor(signal.NewHub(), MotorConfig{})
	assert.True(t, errors.Is(err, ErrNoRecord))
}

func TestNewMotorUnknownRecord(t *testing.T) {
	_, err := NewMotor(signal.NewHub(), MotorConfig{Record: "m1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, signal.ErrUnknownSignal))
}

func TestMotorMove(t *testing.T) {
	hub := motorHub(t, "m1")

	m, err := NewMotor(hub, MotorConfig{Record: "m1", EGU: "deg"})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "m1", m.Name())
	assert.Equal(t, "deg", m.EGU())
	assert.False(t, m.Moving())

	st, err := m.Move(context.Background(), 12, MoveOptions{})
	require.NoError(t, err)

	sp, _ := hub.Soft("m1" + fieldSetpoint)
	v, _, err := sp.Get()
	require.NoError(t, err)
	assert.Equal(t, 12.0, v)

	dmov, _ := hub.Soft("m1" + fieldDone)
	rbv, _ := hub.Soft("m1" + fieldReadback)

	dmov.SetInternal(0)
	require.Eventually(t, m.Moving, time.Second, 5*time.Millisecond)

	rbv.SetInternal(12)
	dmov.SetInternal(1)

	require.NoError(t, st.Wait(time.Second))
	assert.True(t, st.Success())
	assert.Equal(t, 12.0, m.Position())
	assert.False(t, m.Moving())
}

func TestMotorStop(t *testing.T) {
	hub := motorHub(t, "m2")

	m, err := NewMotor(hub, MotorConfig{Record: "m2"})
	require.NoError(t, err)
	defer m.Close()

	st, err := m.Move(context.Background(), 3, MoveOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Stop())

	stop, _ := hub.Soft("m2" + fieldStop)
	v, _, err := stop.Get()
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	require.NoError(t, st.Wait(time.Second))
	assert.False(t, st.Success())
}
