// Package session holds the negotiation state machine. It is the single
// writer of a session's state; every transition is checked against a fixed
// table so that an attempt cannot start while another one is in flight.
package session

import (
	"fmt"
	"sync"

	"peerkey/native/internal/domain"
)

// Event drives the machine from one state to the next.
type Event int

const (
	EventStartInitiator Event = iota
	EventStartResponder
	EventOfferReady
	EventAdvance
	EventSubmit
	EventRemoteApplied
)

func (e Event) String() string {
	switch e {
	case EventStartInitiator:
		return "start(initiator)"
	case EventStartResponder:
		return "start(responder)"
	case EventOfferReady:
		return "offer-ready"
	case EventAdvance:
		return "advance"
	case EventSubmit:
		return "submit"
	case EventRemoteApplied:
		return "remote-applied"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

var transitions = map[domain.SessionState]map[Event]domain.SessionState{
	domain.StateIdle: {
		EventStartInitiator: domain.StateAwaitingLocalReady,
		EventStartResponder: domain.StateAwaitingRemoteInput,
	},
	domain.StateAwaitingLocalReady: {
		EventOfferReady: domain.StateLocalReady,
	},
	domain.StateLocalReady: {
		EventAdvance: domain.StateAwaitingRemoteInput,
	},
	domain.StateAwaitingRemoteInput: {
		EventSubmit: domain.StateNegotiating,
	},
	domain.StateNegotiating: {
		EventRemoteApplied: domain.StateConnected,
	},
}

// Machine is safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	state    domain.SessionState
	role     domain.NegotiationRole
	reason   error
	onChange func(from, to domain.SessionState)
}

// New returns a machine in Idle. onChange, if non-nil, is called after
// every transition with the lock released.
func New(onChange func(from, to domain.SessionState)) *Machine {
	return &Machine{onChange: onChange}
}

// State returns the current state.
func (m *Machine) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Role returns the role chosen by Start, or RoleUnset.
func (m *Machine) Role() domain.NegotiationRole {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// Reason returns the failure reason once the machine is Failed.
func (m *Machine) Reason() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Start fixes the role and leaves Idle.
func (m *Machine) Start(role domain.NegotiationRole) error {
	switch role {
	case domain.RoleInitiator:
		return m.fire(EventStartInitiator, role)
	case domain.RoleResponder:
		return m.fire(EventStartResponder, role)
	default:
		return fmt.Errorf("%w: cannot start with role %s", domain.ErrInvalidTransition, role)
	}
}

func (m *Machine) OfferReady() error    { return m.fire(EventOfferReady, domain.RoleUnset) }
func (m *Machine) Advance() error       { return m.fire(EventAdvance, domain.RoleUnset) }
func (m *Machine) Submit() error        { return m.fire(EventSubmit, domain.RoleUnset) }
func (m *Machine) RemoteApplied() error { return m.fire(EventRemoteApplied, domain.RoleUnset) }

// Fail moves any state other than Failed to Failed. The first reason wins.
// It reports whether a transition happened.
func (m *Machine) Fail(reason error) bool {
	m.mu.Lock()
	from := m.state
	if from == domain.StateFailed {
		m.mu.Unlock()
		return false
	}
	m.state = domain.StateFailed
	m.reason = reason
	m.mu.Unlock()

	m.notify(from, domain.StateFailed)
	return true
}

func (m *Machine) fire(ev Event, role domain.NegotiationRole) error {
	m.mu.Lock()
	from := m.state
	to, ok := transitions[from][ev]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s in state %s", domain.ErrInvalidTransition, ev, from)
	}
	m.state = to
	if role != domain.RoleUnset {
		m.role = role
	}
	m.mu.Unlock()

	m.notify(from, to)
	return nil
}

func (m *Machine) notify(from, to domain.SessionState) {
	if m.onChange != nil {
		m.onChange(from, to)
	}
}
