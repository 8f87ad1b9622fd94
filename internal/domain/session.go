package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle position of a registered session.
type SessionState int

const (
	// SessionConnecting means the slot is reserved but the WebSocket handshake has not completed.
	SessionConnecting SessionState = iota
	// SessionOpen means the handshake completed; the session is probed and receives broadcasts.
	SessionOpen
	// SessionClosing means termination was requested and the gateway has not confirmed it yet.
	SessionClosing
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionOpen:
		return "open"
	case SessionClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether next is a valid successor of s.
// Removal is not a state; it is always allowed and handled by the registry.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	switch s {
	case SessionConnecting:
		return next == SessionOpen
	case SessionOpen:
		return next == SessionClosing
	default:
		return false
	}
}

// MarshalText renders the state as its lowercase name in JSON payloads.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is one registered connection as tracked by the registry.
// Values handed out by the registry are copies.
type Session struct {
	ID           uuid.UUID    `json:"id"`
	State        SessionState `json:"state"`
	ConnectedAt  time.Time    `json:"connected_at"`
	LastActivity time.Time    `json:"last_activity"`
	MissedProbes int          `json:"missed_probes"`
}

// IdleFor returns how long the session has been without qualifying inbound activity.
func (s Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}
