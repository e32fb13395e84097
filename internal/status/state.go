package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
)

// State represents a client session runtime state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Ready        State = "READY"
	Degraded     State = "DEGRADED"
	Closed       State = "CLOSED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions. There is no automatic
// reconnect: Degraded leaves only through an explicit Connecting (user
// action) or Closed. AuthRequired from Ready is the session reset on an
// expired credential.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Closed, Error},
	Connecting:   {Ready, AuthRequired, Degraded, Error},
	Ready:        {Degraded, AuthRequired, Closed, Error},
	Degraded:     {Connecting, AuthRequired, Closed, Error},
	Error:        {Booting, Closed},
}

// EventStatusChanged is published on every successful transition.
const EventStatusChanged = "session.status_changed"

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
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

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      EventStatusChanged,
			Timestamp: time.Now(),
			Payload:   StatusChange{From: from, To: to},
		})
	}
	return nil
}
