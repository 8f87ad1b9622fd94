package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrCapacityExceeded  = errors.New("session capacity exceeded")
	ErrSessionNotFound   = errors.New("session not found")
	ErrDuplicateSession  = errors.New("session already registered")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrQueueFull         = errors.New("send queue full")
	ErrUnknownSession    = errors.New("unknown session")
)

// ParseError reports a control message that could not be interpreted.
// The frame is dropped; the session stays open.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse control message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DeliveryError reports a send that was not queued or not written for one session.
type DeliveryError struct {
	SessionID uuid.UUID
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to session %s: %v", e.SessionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// FatalSessionError reports that the transport could not terminate a session.
// Scoped to the session; the eviction is retried on the next liveness tick.
type FatalSessionError struct {
	SessionID uuid.UUID
	Err       error
}

func (e *FatalSessionError) Error() string {
	return fmt.Sprintf("terminate session %s: %v", e.SessionID, e.Err)
}

func (e *FatalSessionError) Unwrap() error { return e.Err }
