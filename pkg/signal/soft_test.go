package signal

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSoftGetInitial(t *testing.T) {
	s := NewSoft("s", WithInitial(3.5))
	defer s.Close()

	v, ts, err := s.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != 3.5 {
		t.Errorf("initial value = %v, want 3.5", v)
	}
	if ts.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestSoftPutEchoes(t *testing.T) {
	s := NewSoft("s")
	defer s.Close()

	if err := s.Put(2.0, PutOptions{Wait: true}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, _, _ := s.Get()
	if v != 2.0 {
		t.Errorf("value after Put = %v, want 2.0", v)
	}
}

func TestSoftSubscribeOrdering(t *testing.T) {
	s := NewSoft("s")
	defer s.Close()

	var mu sync.Mutex
	var seen []float64
	s.Subscribe(func(v float64, ts time.Time) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})

	for i := 1; i <= 5; i++ {
		s.SetInternal(float64(i))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, "not all notifications delivered")

	mu.Lock()
	defer mu.Unlock()
	for i, v := range seen {
		if v != float64(i+1) {
			t.Fatalf("notifications out of order: %v", seen)
		}
	}
}

func TestSoftUnsubscribe(t *testing.T) {
	s := NewSoft("s")
	defer s.Close()

	var mu sync.Mutex
	count := 0
	id, err := s.Subscribe(func(float64, time.Time) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	s.SetInternal(1)
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return count == 1 }, "first notification missing")

	s.Unsubscribe(id)
	s.SetInternal(2)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("notification after Unsubscribe: count=%d", count)
	}
}

func TestSoftOnComplete(t *testing.T) {
	s := NewSoft("s")
	defer s.Close()

	done := make(chan error, 1)
	if err := s.Put(1.0, PutOptions{OnComplete: func(err error) { done <- err }}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("OnComplete err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("OnComplete never fired")
	}
}

func TestSoftManualAckWait(t *testing.T) {
	s := NewSoft("s", WithManualAck())
	defer s.Close()

	result := make(chan error, 1)
	go func() {
		result <- s.Put(1.0, PutOptions{Wait: true, Timeout: time.Second})
	}()

	waitFor(t, func() bool { return s.PendingPuts() == 1 }, "put not pending")
	if !s.CompletePut(nil) {
		t.Fatal("CompletePut reported nothing pending")
	}

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Put returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put did not return after acknowledgement")
	}
}

func TestSoftManualAckTimeout(t *testing.T) {
	s := NewSoft("s", WithManualAck())
	defer s.Close()

	err := s.Put(1.0, PutOptions{Wait: true, Timeout: 30 * time.Millisecond})
	if !errors.Is(err, ErrPutTimeout) {
		t.Errorf("Put error = %v, want ErrPutTimeout", err)
	}
}

func TestSoftManualAckCallback(t *testing.T) {
	s := NewSoft("s", WithManualAck())
	defer s.Close()

	done := make(chan error, 1)
	if err := s.Put(1.0, PutOptions{OnComplete: func(err error) { done <- err }}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	select {
	case <-done:
		t.Fatal("callback fired before acknowledgement")
	case <-time.After(20 * time.Millisecond):
	}

	wantErr := errors.New("device fault")
	s.CompletePut(wantErr)

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Errorf("OnComplete err = %v, want %v", err, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("OnComplete never fired")
	}
}

func TestSoftCheckValue(t *testing.T) {
	s := NewSoft("s", WithLimits(-1, 1))
	defer s.Close()

	if err := s.CheckValue(0.5); err != nil {
		t.Errorf("CheckValue(0.5) = %v, want nil", err)
	}
	if err := s.CheckValue(1.5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("CheckValue(1.5) = %v, want ErrOutOfRange", err)
	}
	if err := s.CheckValue(-1.5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("CheckValue(-1.5) = %v, want ErrOutOfRange", err)
	}

	// No limits configured: everything passes
	open := NewSoft("open")
	defer open.Close()
	if err := open.CheckValue(1e9); err != nil {
		t.Errorf("CheckValue without limits = %v, want nil", err)
	}
}

func TestSoftPutAction(t *testing.T) {
	var got float64
	s := NewSoft("s", WithPutAction(func(s *Soft, v float64) {
		got = v
		s.SetInternal(v * 2)
	}))
	defer s.Close()

	if err := s.Put(3.0, PutOptions{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got != 3.0 {
		t.Errorf("put action saw %v, want 3.0", got)
	}
	v, _, _ := s.Get()
	if v != 6.0 {
		t.Errorf("value after action = %v, want 6.0", v)
	}
}

func TestSoftClosed(t *testing.T) {
	s := NewSoft("s")
	s.Close()
	s.Close() // idempotent

	if _, _, err := s.Get(); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := s.Put(1, PutOptions{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}
	if _, err := s.Subscribe(func(float64, time.Time) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
}

func TestHub(t *testing.T) {
	h := NewHub()
	defer h.Close()

	h.Add(NewSoft("BL:MX:SET"))
	h.Add(NewSoft("BL:MX:RBV"))

	rv, err := h.Connect("BL:MX:SET")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if rv.Name() != "BL:MX:SET" {
		t.Errorf("connected signal name = %q", rv.Name())
	}

	if _, err := h.Connect("nope"); !errors.Is(err, ErrUnknownSignal) {
		t.Errorf("Connect(nope) = %v, want ErrUnknownSignal", err)
	}

	if s, ok := h.Soft("BL:MX:RBV"); !ok || s.Name() != "BL:MX:RBV" {
		t.Errorf("Soft lookup failed: %v %v", s, ok)
	}
	if len(h.Names()) != 2 {
		t.Errorf("Names() = %v", h.Names())
	}
}
