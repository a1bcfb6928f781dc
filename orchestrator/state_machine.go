package orchestrator

import (
	"fmt"
	"sync/atomic"
)

// State is a state in the action lifecycle state machine.
type State uint32

const (
	// StateIdle: no submission yet. The control is enabled.
	StateIdle State = iota
	// StateValidating: checking the input. No network call yet.
	StateValidating
	// StateSubmitting: the call is with the signer and network.
	StateSubmitting
	// StateAwaitingFinality: the network accepted the transaction;
	// waiting for its execution outcome.
	StateAwaitingFinality
	// StateReconciling: finalized successfully; updating view state.
	StateReconciling
	// StateSettledSuccess: terminal. Re-arms on the next submit.
	StateSettledSuccess
	// StateSettledFailure: terminal. Re-arms on the next submit.
	StateSettledFailure
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateValidating:
		return "Validating"
	case StateSubmitting:
		return "Submitting"
	case StateAwaitingFinality:
		return "AwaitingFinality"
	case StateReconciling:
		return "Reconciling"
	case StateSettledSuccess:
		return "Settled(success)"
	case StateSettledFailure:
		return "Settled(failure)"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// Settled reports whether s is terminal.
func (s State) Settled() bool {
	return s == StateSettledSuccess || s == StateSettledFailure
}

// InFlight reports whether a submission holds the control.
func (s State) InFlight() bool {
	return s != StateIdle && !s.Settled()
}

// legal lists the allowed transitions.
var legal = map[State][]State{
	StateIdle:             {StateValidating},
	StateValidating:       {StateSubmitting, StateSettledFailure},
	StateSubmitting:       {StateAwaitingFinality, StateSettledFailure},
	StateAwaitingFinality: {StateReconciling, StateSettledFailure},
	StateReconciling:      {StateSettledSuccess},
	StateSettledSuccess:   {StateIdle},
	StateSettledFailure:   {StateIdle},
}

// ControlGuard enforces the state machine for one action control and
// guarantees at most one in-flight submission. The control is
// disabled from Validating through Settled.
type ControlGuard struct {
	state    atomic.Uint32
	onChange func(from, to State)
}

// NewControlGuard creates a guard in the Idle state. onChange, if
// non-nil, observes every transition.
func NewControlGuard(onChange func(from, to State)) *ControlGuard {
	g := &ControlGuard{onChange: onChange}
	g.state.Store(uint32(StateIdle))
	return g
}

// State returns the current state.
func (g *ControlGuard) State() State {
	return State(g.state.Load())
}

// Disabled reports whether the control should be disabled.
func (g *ControlGuard) Disabled() bool {
	return g.State().InFlight()
}

// Acquire re-arms a settled guard to Idle and moves Idle → Validating.
// It returns false, with no transition, if a submission is in flight.
func (g *ControlGuard) Acquire() bool {
	for {
		cur := g.State()
		switch {
		case cur.InFlight():
			return false
		case cur.Settled():
			if g.state.CompareAndSwap(uint32(cur), uint32(StateIdle)) {
				g.notify(cur, StateIdle)
			}
		default:
			if g.state.CompareAndSwap(uint32(StateIdle), uint32(StateValidating)) {
				g.notify(StateIdle, StateValidating)
				return true
			}
		}
	}
}

// Advance moves the guard from the state it holds to next.
// Panics on an illegal transition: only the goroutine that acquired
// the guard may advance it.
func (g *ControlGuard) Advance(next State) {
	cur := g.State()
	if !allowed(cur, next) || !g.state.CompareAndSwap(uint32(cur), uint32(next)) {
		panic(fmt.Sprintf("github.com/blockberries/nftflow/orchestrator: illegal transition %s -> %s", cur, next))
	}
	g.notify(cur, next)
}

func (g *ControlGuard) notify(from, to State) {
	if g.onChange != nil {
		g.onChange(from, to)
	}
}

func allowed(from, to State) bool {
	for _, s := range legal[from] {
		if s == to {
			return true
		}
	}
	return false
}
