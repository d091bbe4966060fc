package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pedrohsa/wainbox/internal/bus"
)

// State represents the push-channel connection state.
type State string

const (
	Booting      State = "BOOTING"
	Connecting   State = "CONNECTING"
	Live         State = "LIVE"
	Reconnecting State = "RECONNECTING"
	// Degraded means the channel has been down long enough that only
	// the background list refresh keeps the inbox current.
	Degraded State = "DEGRADED"
	Error    State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {Connecting, Degraded, Error},
	Connecting:   {Live, Reconnecting, Degraded, Error},
	Live:         {Reconnecting, Degraded, Error},
	Reconnecting: {Connecting, Live, Degraded, Error},
	Degraded:     {Connecting, Reconnecting, Live, Error},
	Error:        {Booting, Connecting},
}

// Machine tracks and enforces push-channel state transitions.
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

// Transition attempts to move to a new state. Returns error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "channel.status_changed",
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for channel status change events.
type StatusChange struct {
	From State
	To   State
}
