package orchestrator

import (
	"fmt"
	"sync"

	"github.com/xtxerr/lenedastat/internal/errors"
)

// =============================================================================
// Explicit State Machine Definition
// =============================================================================

// State is the phase of one view within an update cycle.
type State int32

const (
	StateIdle State = iota
	StateRangeDetermined
	StateFetching
	StateBucketing
	StateAggregating
	StateEmitting
)

// String returns a human-readable representation of the State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRangeDetermined:
		return "range_determined"
	case StateFetching:
		return "fetching"
	case StateBucketing:
		return "bucketing"
	case StateAggregating:
		return "aggregating"
	case StateEmitting:
		return "emitting"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// stateTransition represents a state transition.
type stateTransition struct {
	from State
	to   State
}

// validTransitions defines all allowed state transitions. Every phase may
// fall back to idle, so no outcome blocks the next cycle.
var validTransitions = map[stateTransition]bool{
	{StateIdle, StateRangeDetermined}: true,

	{StateRangeDetermined, StateFetching}: true,
	{StateRangeDetermined, StateIdle}:     true,

	{StateFetching, StateBucketing}: true,
	{StateFetching, StateIdle}:      true,

	{StateBucketing, StateAggregating}: true,
	{StateBucketing, StateIdle}:        true,

	{StateAggregating, StateEmitting}: true,
	{StateAggregating, StateIdle}:     true,

	{StateEmitting, StateIdle}: true,
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	return validTransitions[stateTransition{from: from, to: to}]
}

// machine tracks the phase of one view and the path it took.
type machine struct {
	mu    sync.Mutex
	state State
	trace []State
}

func newMachine() *machine {
	return &machine{state: StateIdle, trace: []State{StateIdle}}
}

// transitionTo attempts to transition to a new state.
func (m *machine) transitionTo(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !validTransitions[stateTransition{from: m.state, to: next}] {
		return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, m.state, next)
	}
	m.state = next
	m.trace = append(m.trace, next)
	return nil
}

// reset returns the machine to idle from any state.
func (m *machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		m.state = StateIdle
		m.trace = append(m.trace, StateIdle)
	}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) path() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.trace))
	copy(out, m.trace)
	return out
}
