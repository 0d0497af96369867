package core

import "sync/atomic"

// State is the lifecycle state of a locality's runtime.
type State int32

const (
	StateInvalid State = iota
	StateInitialized
	StateStarting
	StateRunning
	StateSuspended
	StatePreShutdown
	StateStopping
	StateTerminating
	StateStopped
)

var stateNames = [...]string{
	StateInvalid:     "invalid",
	StateInitialized: "initialized",
	StateStarting:    "starting",
	StateRunning:     "running",
	StateSuspended:   "suspended",
	StatePreShutdown: "pre_shutdown",
	StateStopping:    "stopping",
	StateTerminating: "terminating",
	StateStopped:     "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// TearingDown reports whether the runtime has begun or completed its
// teardown. Address service traffic must not be started in this state.
func (s State) TearingDown() bool { return s >= StateStopping }

// StateSource reports the current runtime state.
type StateSource interface {
	State() State
}

// StateTracker is an atomic StateSource. The zero value is StateInvalid.
type StateTracker struct {
	v atomic.Int32
}

// NewStateTracker returns a tracker in the given state.
func NewStateTracker(s State) *StateTracker {
	t := &StateTracker{}
	t.v.Store(int32(s))
	return t
}

// State implements StateSource.
func (t *StateTracker) State() State { return State(t.v.Load()) }

// Set unconditionally switches to s and returns the previous state.
func (t *StateTracker) Set(s State) State { return State(t.v.Swap(int32(s))) }

// Advance moves to s only if s is later than the current state. Lifecycle
// states never go backwards (except Suspended -> Running). It reports
// whether the state changed.
func (t *StateTracker) Advance(s State) bool {
	for {
		cur := t.v.Load()
		if State(cur) >= s && !(State(cur) == StateSuspended && s == StateRunning) {
			return false
		}
		if t.v.CompareAndSwap(cur, int32(s)) {
			return true
		}
	}
}

// TearingDown is shorthand for src.State().TearingDown(). A nil source
// counts as torn down.
func TearingDown(src StateSource) bool {
	if src == nil {
		return true
	}
	return src.State().TearingDown()
}
