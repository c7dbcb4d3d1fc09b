package signal

import (
	"fmt"
	"sync"
)

// Hub is a named collection of Soft signals. It implements Connector so
// positioner constructors can resolve signal names against it.
type Hub struct {
	mu      sync.RWMutex
	signals map[string]*Soft
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{signals: make(map[string]*Soft)}
}

// Add registers s under its name, replacing any previous signal with the
// same name. It returns s for chaining.
func (h *Hub) Add(s *Soft) *Soft {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals[s.Name()] = s
	return s
}

// Soft returns the named Soft signal for direct device-side manipulation
// (simulators, tests).
func (h *Hub) Soft(name string) (*Soft, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.signals[name]
	return s, ok
}

// Connect implements Connector.
func (h *Hub) Connect(name string) (RemoteValue, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.signals[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	return s, nil
}

// Names returns the registered signal names.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.signals))
	for name := range h.signals {
		names = append(names, name)
	}
	return names
}

// Close closes every signal in the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.signals {
		s.Close()
	}
}

// Compile-time interface satisfaction check.
var _ Connector = (*Hub)(nil)
