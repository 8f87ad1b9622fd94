package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to SessionState
		want     bool
	}{
		{SessionConnecting, SessionOpen, true},
		{SessionConnecting, SessionClosing, false},
		{SessionConnecting, SessionConnecting, false},
		{SessionOpen, SessionClosing, true},
		{SessionOpen, SessionConnecting, false},
		{SessionOpen, SessionOpen, false},
		{SessionClosing, SessionOpen, false},
		{SessionClosing, SessionConnecting, false},
		{SessionClosing, SessionClosing, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSession_JSON(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{
		ID:           uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		State:        SessionClosing,
		ConnectedAt:  at,
		LastActivity: at.Add(3 * time.Second),
		MissedProbes: 2,
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", decoded["id"])
	assert.Equal(t, "closing", decoded["state"])
	assert.Equal(t, "2026-03-01T12:00:03Z", decoded["last_activity"])
	assert.Equal(t, 2.0, decoded["missed_probes"])
}

func TestSession_IdleFor(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{LastActivity: at}
	assert.Equal(t, 7*time.Second, s.IdleFor(at.Add(7*time.Second)))
}

func TestFrameType_IsControl(t *testing.T) {
	assert.False(t, FrameText.IsControl())
	assert.False(t, FrameBinary.IsControl())
	assert.True(t, FramePing.IsControl())
	assert.True(t, FramePong.IsControl())
	assert.True(t, FrameClose.IsControl())
	assert.Equal(t, "unknown", FrameType(0).String())
}

func TestErrorsUnwrap(t *testing.T) {
	id := uuid.New()

	var err error = &DeliveryError{SessionID: id, Err: ErrQueueFull}
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Contains(t, err.Error(), id.String())

	err = &FatalSessionError{SessionID: id, Err: ErrUnknownSession}
	assert.ErrorIs(t, err, ErrUnknownSession)

	inner := &json.SyntaxError{}
	err = &ParseError{Payload: "{", Err: inner}
	var syntax *json.SyntaxError
	assert.ErrorAs(t, err, &syntax)
}
