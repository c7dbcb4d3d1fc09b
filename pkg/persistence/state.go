package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/beamctl/beamctl-go/pkg/registry"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// AxisState is the persisted snapshot of a single axis.
type AxisState struct {
	// Position is the last known position.
	Position float64 `json:"position"`

	// EGU is the engineering units label, kept for readability of the
	// state file.
	EGU string `json:"egu,omitempty"`

	// Followed is the trajectory history at save time.
	Followed []float64 `json:"followed,omitempty"`
}

// State is the root of the state file.
type State struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Axes maps axis name to its snapshot.
	Axes map[string]AxisState `json:"axes,omitempty"`
}

// Store manages persistence of axis state to a JSON file. Writes go
// through a temp file and rename so a crash mid-write never corrupts the
// previous snapshot.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save persists the state to disk.
func (s *Store) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decoding state file %s: %w", s.path, err)
	}
	return state, nil
}

// Clear removes the state file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Snapshot captures the current state of every axis in reg.
func Snapshot(reg *registry.Registry) *State {
	state := &State{Axes: make(map[string]AxisState)}
	reg.Range(func(ax registry.Axis) bool {
		st := AxisState{
			Position: ax.Position(),
			EGU:      ax.EGU(),
		}
		if f, ok := ax.(interface{ Followed() []float64 }); ok {
			st.Followed = f.Followed()
		}
		state.Axes[ax.Name()] = st
		return true
	})
	return state
}
