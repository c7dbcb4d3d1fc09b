package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamctl/beamctl-go/pkg/positioner"
	"github.com/beamctl/beamctl-go/pkg/registry"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "axes.json")
	store := NewStore(path)

	in := &State{Axes: map[string]AxisState{
		"theta": {Position: 12.5, EGU: "deg", Followed: []float64{10, 12.5}},
		"z":     {Position: -3},
	}}
	require.NoError(t, store.Save(in))

	out, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, StateVersion, out.Version)
	assert.False(t, out.SavedAt.IsZero())
	assert.Equal(t, in.Axes, out.Axes)
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope.json"))
	state, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axes.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewStore(path).Load()
	require.Error(t, err)
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axes.json")
	store := NewStore(path)
	require.NoError(t, store.Save(&State{}))

	require.NoError(t, store.Clear())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing twice is fine.
	require.NoError(t, store.Clear())
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "axes.json"))
	require.NoError(t, store.Save(&State{}))
	require.NoError(t, store.Save(&State{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "axes.json", entries[0].Name())
}

func TestSnapshot(t *testing.T) {
	reg := registry.New()

	p := positioner.NewPositioner("theta",
		positioner.WithEGU("deg"), positioner.WithInitialPosition(4))
	p.SetTrajectory([]float64{4, 8})
	_, _, err := p.MoveNext(context.Background(), positioner.MoveOptions{Wait: true})
	require.NoError(t, err)

	_, err = reg.Register(p)
	require.NoError(t, err)

	state := Snapshot(reg)
	require.Contains(t, state.Axes, "theta")
	ax := state.Axes["theta"]
	assert.Equal(t, 4.0, ax.Position)
	assert.Equal(t, "deg", ax.EGU)
	assert.Equal(t, []float64{4}, ax.Followed)
}
