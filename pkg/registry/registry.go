package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/beamctl/beamctl-go/pkg/positioner"
)

// Registry errors.
var (
	ErrUnknownAxis   = errors.New("unknown axis")
	ErrDuplicateAxis = errors.New("axis already registered")
)

// Axis is the capability the registry exposes per registered positioner.
// Both positioner.Positioner and positioner.PVPositioner satisfy it.
type Axis interface {
	Name() string
	EGU() string
	Position() float64
	Moving() bool
	Target() (float64, bool)
	Limits() positioner.Limits
	Move(ctx context.Context, target float64, opts positioner.MoveOptions) (*positioner.MoveStatus, error)
	Stop() error
}

type entry struct {
	id   uuid.UUID
	axis Axis
}

// Registry is a concurrency-safe name-to-axis map. Each registration is
// tagged with a unique ID so re-registrations of the same name are
// distinguishable in logs and surfaces.
type Registry struct {
	mu   sync.RWMutex
	axes map[string]entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{axes: make(map[string]entry)}
}

// Register adds ax under its name and returns the registration ID.
// A second registration of the same name fails with ErrDuplicateAxis.
func (r *Registry) Register(ax Axis) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := ax.Name()
	if _, ok := r.axes[name]; ok {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrDuplicateAxis, name)
	}
	id := uuid.New()
	r.axes[name] = entry{id: id, axis: ax}
	return id, nil
}

// Unregister removes the named axis. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.axes, name)
}

// Get returns the named axis.
func (r *Registry) Get(name string) (Axis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.axes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAxis, name)
	}
	return e.axis, nil
}

// ID returns the registration ID of the named axis.
func (r *Registry) ID(name string) (uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.axes[name]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownAxis, name)
	}
	return e.id, nil
}

// Names returns the registered axis names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.axes))
	for name := range r.axes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered axes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.axes)
}

// Range calls fn for each axis in name order, stopping early when fn
// returns false. The registry lock is not held during fn.
func (r *Registry) Range(fn func(ax Axis) bool) {
	r.mu.RLock()
	snapshot := make([]Axis, 0, len(r.axes))
	names := make([]string, 0, len(r.axes))
	for name := range r.axes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snapshot = append(snapshot, r.axes[name].axis)
	}
	r.mu.RUnlock()

	for _, ax := range snapshot {
		if !fn(ax) {
			return
		}
	}
}

// StopAll stops every registered axis, collecting failures.
func (r *Registry) StopAll() error {
	var errs []error
	r.Range(func(ax Axis) bool {
		if err := ax.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", ax.Name(), err))
		}
		return true
	})
	return errors.Join(errs...)
}
