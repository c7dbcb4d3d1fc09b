package notify

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestDispatchOrder(t *testing.T) {
	n := NewNotifier(nil)

	var order []int
	n.Subscribe("readback", func(Event) { order = append(order, 1) }, false)
	n.Subscribe("readback", func(Event) { order = append(order, 2) }, false)
	n.Subscribe("readback", func(Event) { order = append(order, 3) }, false)

	n.Dispatch(Event{Kind: "readback", Value: 1.0, HasValue: true})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("expected registration order [1 2 3], got %v", order)
	}
}

func TestRunImmediately(t *testing.T) {
	n := NewNotifier(nil)

	// No prior event: callback must not run
	ran := false
	n.Subscribe("readback", func(Event) { ran = true }, true)
	if ran {
		t.Error("callback ran immediately with no cached event")
	}

	n.Dispatch(Event{Kind: "readback", Value: 7.5, HasValue: true})

	// Prior event cached: late subscriber sees it synchronously
	var got float64
	n.Subscribe("readback", func(ev Event) { got = ev.Value }, true)
	if got != 7.5 {
		t.Errorf("expected cached value 7.5, got %v", got)
	}
}

func TestKindAny(t *testing.T) {
	n := NewNotifier(nil)

	var kinds []EventKind
	n.Subscribe(KindAny, func(ev Event) { kinds = append(kinds, ev.Kind) }, false)

	n.Dispatch(Event{Kind: "start_moving"})
	n.Dispatch(Event{Kind: "done_moving"})

	if len(kinds) != 2 || kinds[0] != "start_moving" || kinds[1] != "done_moving" {
		t.Errorf("any-kind subscriber saw %v", kinds)
	}
}

func TestUnsubscribe(t *testing.T) {
	n := NewNotifier(nil)

	count := 0
	id := n.Subscribe("readback", func(Event) { count++ }, false)
	n.Dispatch(Event{Kind: "readback"})
	n.Unsubscribe(id)
	n.Dispatch(Event{Kind: "readback"})

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}

	// Unknown IDs are ignored
	n.Unsubscribe(SubscriptionID(9999))
}

func TestUnsubscribeDuringDispatch(t *testing.T) {
	n := NewNotifier(nil)

	var id SubscriptionID
	first := 0
	second := 0
	id = n.Subscribe("readback", func(Event) {
		first++
		n.Unsubscribe(id)
	}, false)
	n.Subscribe("readback", func(Event) { second++ }, false)

	// Removal from inside a callback takes effect on the next dispatch;
	// the snapshot for this dispatch still delivers to everyone.
	n.Dispatch(Event{Kind: "readback"})
	n.Dispatch(Event{Kind: "readback"})

	if first != 1 {
		t.Errorf("self-unsubscribing callback ran %d times, want 1", first)
	}
	if second != 2 {
		t.Errorf("second callback ran %d times, want 2", second)
	}
}

func TestSubscribeDuringDispatch(t *testing.T) {
	n := NewNotifier(nil)

	late := 0
	n.Subscribe("readback", func(Event) {
		n.Subscribe("readback", func(Event) { late++ }, false)
	}, false)

	n.Dispatch(Event{Kind: "readback"})
	if late != 0 {
		t.Error("subscriber added during dispatch ran in the same dispatch")
	}
	n.Dispatch(Event{Kind: "readback"})
	if late != 1 {
		t.Errorf("late subscriber ran %d times after second dispatch, want 1", late)
	}
}

func TestUnsubscribeAll(t *testing.T) {
	n := NewNotifier(nil)

	a, b := 0, 0
	n.Subscribe("start_moving", func(Event) { a++ }, false)
	n.Subscribe("done_moving", func(Event) { b++ }, false)

	n.UnsubscribeAll("start_moving")
	n.Dispatch(Event{Kind: "start_moving"})
	n.Dispatch(Event{Kind: "done_moving"})
	if a != 0 || b != 1 {
		t.Errorf("after UnsubscribeAll(start_moving): a=%d b=%d, want 0 1", a, b)
	}

	n.UnsubscribeAll("")
	n.Dispatch(Event{Kind: "done_moving"})
	if b != 1 {
		t.Errorf("after UnsubscribeAll(\"\"): b=%d, want 1", b)
	}
}

func TestWeakSubscriberPruned(t *testing.T) {
	n := NewNotifier(nil)

	delivered := 0
	h := NewHandle(func(Event) { delivered++ })
	n.SubscribeWeak("readback", h, false)

	n.Dispatch(Event{Kind: "readback"})
	if delivered != 1 {
		t.Fatalf("live weak subscriber not delivered: %d", delivered)
	}

	// Drop the only strong reference and let the collector reclaim it.
	h = nil
	runtime.GC()
	runtime.GC()

	n.Dispatch(Event{Kind: "readback"})
	if delivered != 1 {
		t.Errorf("dead weak subscriber was delivered: %d", delivered)
	}
	if got := n.SubscriberCount("readback"); got != 0 {
		t.Errorf("dead weak entry not pruned: %d entries remain", got)
	}
}

func TestWeakSubscriberAliveWhileHeld(t *testing.T) {
	n := NewNotifier(nil)

	delivered := 0
	h := NewHandle(func(Event) { delivered++ })
	n.SubscribeWeak("readback", h, false)

	for i := 0; i < 3; i++ {
		runtime.GC()
		n.Dispatch(Event{Kind: "readback"})
	}
	if delivered != 3 {
		t.Errorf("held weak subscriber delivered %d times, want 3", delivered)
	}
	runtime.KeepAlive(h)
}

func TestPanicIsolation(t *testing.T) {
	n := NewNotifier(nil)

	after := 0
	n.Subscribe("readback", func(Event) { panic("bad observer") }, false)
	n.Subscribe("readback", func(Event) { after++ }, false)

	n.Dispatch(Event{Kind: "readback"})
	if after != 1 {
		t.Errorf("subscriber after panicking one ran %d times, want 1", after)
	}
}

func TestLastEvent(t *testing.T) {
	n := NewNotifier(nil)

	if _, ok := n.LastEvent("readback"); ok {
		t.Error("LastEvent reported a cached event before any dispatch")
	}

	ts := time.Now()
	n.Dispatch(Event{Kind: "readback", Value: 2.5, HasValue: true, Timestamp: ts})
	ev, ok := n.LastEvent("readback")
	if !ok || ev.Value != 2.5 || !ev.Timestamp.Equal(ts) {
		t.Errorf("LastEvent = %+v, ok=%v", ev, ok)
	}
}

func TestConcurrentDispatchAndSubscribe(t *testing.T) {
	n := NewNotifier(nil)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			n.Dispatch(Event{Kind: "readback", Value: float64(i), HasValue: true})
		}
		close(done)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				id := n.Subscribe("readback", func(Event) {}, false)
				n.Unsubscribe(id)
			}
		}
	}()
	wg.Wait()
}
