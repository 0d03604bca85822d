package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/admiral/internal/bus"
)

// State represents the connectivity state of a chat session.
type State string

const (
	Booting  State = "BOOTING"
	Syncing  State = "SYNCING"
	Ready    State = "READY"
	Degraded State = "DEGRADED"
	Paused   State = "PAUSED"
	Stopped  State = "STOPPED"
	Error    State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Syncing, Error, Stopped},
	Syncing:  {Ready, Degraded, Paused, Error, Stopped},
	Ready:    {Syncing, Degraded, Paused, Error, Stopped},
	Degraded: {Syncing, Ready, Paused, Error, Stopped},
	Paused:   {Syncing, Ready, Degraded, Error, Stopped},
	Error:    {Booting, Stopped},
	Stopped:  {},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

// Ensure moves to the given state unless the machine is already there.
func (m *Machine) Ensure(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == to {
		return nil
	}
	return m.transitionLocked(to)
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
