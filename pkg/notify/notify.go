package notify

import (
	"fmt"
	"sync"
	"time"
	"weak"

	"github.com/beamctl/beamctl-go/pkg/log"
)

// EventKind identifies a class of events on a Notifier.
type EventKind string

// KindAny subscribers receive every dispatched event regardless of kind.
const KindAny EventKind = "*"

// Event is the payload delivered to subscribers.
type Event struct {
	// Kind is the event kind this payload was dispatched under.
	Kind EventKind

	// Value is the new value for value-carrying events.
	Value float64

	// HasValue reports whether Value is meaningful for this event.
	HasValue bool

	// Timestamp is when the underlying change occurred.
	Timestamp time.Time

	// Success reports the outcome for completion events.
	Success bool

	// Obj is the object that emitted the event, if any.
	Obj any
}

// Callback receives dispatched events.
type Callback func(Event)

// Handle pins a callback so it can be subscribed weakly. The subscription
// stays live only as long as the observer retains the Handle; once the
// Handle becomes unreachable the entry is pruned on the next dispatch
// instead of being delivered.
type Handle struct {
	fn Callback
}

// NewHandle wraps fn for weak subscription.
func NewHandle(fn Callback) *Handle {
	return &Handle{fn: fn}
}

// Call invokes the pinned callback.
func (h *Handle) Call(ev Event) {
	h.fn(ev)
}

// SubscriptionID identifies a single subscription on a Notifier.
type SubscriptionID uint32

type entry struct {
	id     SubscriptionID
	fn     Callback // strong reference; nil for weak entries
	ref    weak.Pointer[Handle]
	isWeak bool
}

// Notifier dispatches events to registered subscribers in registration
// order. The zero value is not usable; create with NewNotifier.
type Notifier struct {
	mu     sync.Mutex
	subs   map[EventKind][]entry
	kinds  map[SubscriptionID]EventKind
	last   map[EventKind]Event
	nextID SubscriptionID
	logger log.Logger
}

// NewNotifier creates a Notifier. A nil logger disables logging.
func NewNotifier(logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Notifier{
		subs:   make(map[EventKind][]entry),
		kinds:  make(map[SubscriptionID]EventKind),
		last:   make(map[EventKind]Event),
		logger: logger,
	}
}

// Subscribe registers cb for future dispatches of kind. If runNow is true
// and an event of that kind has been dispatched before, cb is invoked once
// synchronously with the last known event before Subscribe returns.
func (n *Notifier) Subscribe(kind EventKind, cb Callback, runNow bool) SubscriptionID {
	n.mu.Lock()
	id := n.add(kind, entry{fn: cb})
	ev, ok := n.last[kind]
	n.mu.Unlock()

	if runNow && ok {
		n.invoke(cb, ev)
	}
	return id
}

// SubscribeWeak registers the callback pinned by h without keeping it
// alive. The observer must retain h for as long as it wants notifications.
func (n *Notifier) SubscribeWeak(kind EventKind, h *Handle, runNow bool) SubscriptionID {
	n.mu.Lock()
	id := n.add(kind, entry{ref: weak.Make(h), isWeak: true})
	ev, ok := n.last[kind]
	n.mu.Unlock()

	if runNow && ok {
		n.invoke(h.fn, ev)
	}
	return id
}

// add appends an entry for kind. Caller must hold n.mu.
func (n *Notifier) add(kind EventKind, e entry) SubscriptionID {
	n.nextID++
	e.id = n.nextID
	n.subs[kind] = append(n.subs[kind], e)
	n.kinds[e.id] = kind
	return e.id
}

// Unsubscribe removes a single subscription. Unknown IDs are ignored.
func (n *Notifier) Unsubscribe(id SubscriptionID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	kind, ok := n.kinds[id]
	if !ok {
		return
	}
	delete(n.kinds, id)

	entries := n.subs[kind]
	for i, e := range entries {
		if e.id == id {
			n.subs[kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// UnsubscribeAll removes every subscription for kind, or every subscription
// of any kind when kind is empty.
func (n *Notifier) UnsubscribeAll(kind EventKind) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if kind == "" {
		n.subs = make(map[EventKind][]entry)
		n.kinds = make(map[SubscriptionID]EventKind)
		return
	}
	for _, e := range n.subs[kind] {
		delete(n.kinds, e.id)
	}
	delete(n.subs, kind)
}

// Dispatch invokes, in registration order, every live subscriber for
// ev.Kind and for the reserved KindAny kind. Dead weak entries are pruned
// and skipped. The event is cached so late subscribers with runNow can
// observe the last known state.
func (n *Notifier) Dispatch(ev Event) {
	n.mu.Lock()
	n.last[ev.Kind] = ev
	snapshot := append([]entry(nil), n.subs[ev.Kind]...)
	if ev.Kind != KindAny {
		snapshot = append(snapshot, n.subs[KindAny]...)
	}
	n.mu.Unlock()

	var dead []SubscriptionID
	for _, e := range snapshot {
		fn := e.fn
		if e.isWeak {
			h := e.ref.Value()
			if h == nil {
				dead = append(dead, e.id)
				continue
			}
			fn = h.fn
		}
		n.invoke(fn, ev)
	}
	for _, id := range dead {
		n.Unsubscribe(id)
	}
}

// invoke runs one callback, recovering and logging any panic so a faulty
// observer cannot block delivery to the rest.
func (n *Notifier) invoke(fn Callback, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Log(log.Event{
				Timestamp: time.Now(),
				Category:  log.CategoryError,
				Error: &log.ErrorEventData{
					Message: fmt.Sprintf("subscriber panic: %v", r),
					Context: "dispatch " + string(ev.Kind),
				},
			})
		}
	}()
	fn(ev)
}

// LastEvent returns the most recently dispatched event for kind, if any.
func (n *Notifier) LastEvent(kind EventKind) (Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ev, ok := n.last[kind]
	return ev, ok
}

// SubscriberCount returns the number of registered entries for kind,
// including weak entries not yet pruned.
func (n *Notifier) SubscriberCount(kind EventKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[kind])
}
