package domain

import "fmt"

// SessionState is the progression of one negotiation session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingLocalReady
	StateLocalReady
	StateAwaitingRemoteInput
	StateNegotiating
	StateConnected
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingLocalReady:
		return "awaiting-local-ready"
	case StateLocalReady:
		return "local-ready"
	case StateAwaitingRemoteInput:
		return "awaiting-remote-input"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible except Fail.
func (s SessionState) Terminal() bool {
	return s == StateConnected || s == StateFailed
}

// NegotiationRole is fixed for the lifetime of a session.
type NegotiationRole int

const (
	RoleUnset NegotiationRole = iota
	RoleInitiator
	RoleResponder
)

func (r NegotiationRole) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unset"
	}
}

// AppState is the application-wide connection flag.
type AppState int

const (
	AppStateStable AppState = iota
	AppStateConnected
)

func (s AppState) String() string {
	if s == AppStateConnected {
		return "connected"
	}
	return "stable"
}

// ConnectionState is the link state reported by the platform.
type ConnectionState string

const (
	ConnectionStateNew          ConnectionState = "new"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateFailed       ConnectionState = "failed"
	ConnectionStateClosed       ConnectionState = "closed"
)
