package orchestrator

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestControlGuard_HappyPath(t *testing.T) {
	var seen []State
	g := NewControlGuard(func(_, to State) { seen = append(seen, to) })

	if !g.Acquire() {
		t.Fatal("expected Acquire to succeed from Idle")
	}
	g.Advance(StateSubmitting)
	g.Advance(StateAwaitingFinality)
	g.Advance(StateReconciling)
	g.Advance(StateSettledSuccess)

	want := []State{StateValidating, StateSubmitting, StateAwaitingFinality, StateReconciling, StateSettledSuccess}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}
	if g.Disabled() {
		t.Error("settled control should be enabled")
	}
}

func TestControlGuard_RearmsAfterSettle(t *testing.T) {
	g := NewControlGuard(nil)
	g.Acquire()
	g.Advance(StateSettledFailure)

	if !g.Acquire() {
		t.Fatal("expected a settled guard to re-arm")
	}
	if g.State() != StateValidating {
		t.Fatalf("state = %s, want Validating", g.State())
	}
}

func TestControlGuard_BusyWhileInFlight(t *testing.T) {
	g := NewControlGuard(nil)
	g.Acquire()
	g.Advance(StateSubmitting)

	if !g.Disabled() {
		t.Error("expected control to be disabled while submitting")
	}
	if g.Acquire() {
		t.Fatal("expected Acquire to fail while in flight")
	}
	if g.State() != StateSubmitting {
		t.Fatalf("failed Acquire changed state to %s", g.State())
	}
}

func TestControlGuard_ConcurrentAcquire(t *testing.T) {
	g := NewControlGuard(nil)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Acquire() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("%d goroutines acquired the guard, want 1", wins.Load())
	}
}

func TestControlGuard_SkipFinality(t *testing.T) {
	g := NewControlGuard(nil)
	g.Acquire()
	g.Advance(StateSubmitting)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for Submitting -> Reconciling")
		}
	}()
	g.Advance(StateReconciling)
}

func TestControlGuard_AdvanceFromIdle(t *testing.T) {
	g := NewControlGuard(nil)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for Advance without Acquire")
		}
	}()
	g.Advance(StateSubmitting)
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:             "Idle",
		StateAwaitingFinality: "AwaitingFinality",
		StateSettledSuccess:   "Settled(success)",
		StateSettledFailure:   "Settled(failure)",
		State(99):             "unknown(99)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", uint32(s), got, want)
		}
	}
}
