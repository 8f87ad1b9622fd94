// Package control interprets the text control messages sessions send to toggle broadcasting.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/metrics"
)

// Command is the value of the "command" field.
type Command string

const (
	CommandStart Command = "start"
	CommandStop  Command = "stop"
)

var errMissingCommand = errors.New(`missing string field "command"`)

type message struct {
	Command *string `json:"command"`
}

// Parse decodes {"command": "..."}. Unknown command values are returned as-is;
// only structurally invalid payloads fail, with a *domain.ParseError.
func Parse(payload []byte) (Command, error) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", &domain.ParseError{Payload: string(payload), Err: err}
	}
	if msg.Command == nil {
		return "", &domain.ParseError{Payload: string(payload), Err: errMissingCommand}
	}
	return Command(*msg.Command), nil
}

// Toggle is the broadcast-enabled switch the interpreter drives.
type Toggle interface {
	SetEnabled(enabled bool) (previous bool)
}

// Interpreter applies control messages received from any session.
type Interpreter struct {
	toggle  Toggle
	metrics *metrics.Metrics
}

func NewInterpreter(toggle Toggle, m *metrics.Metrics) *Interpreter {
	return &Interpreter{toggle: toggle, metrics: m}
}

// HandleControlMessage interprets one text frame. Malformed and unrecognized
// messages are logged and dropped; the returned error is informational only.
func (i *Interpreter) HandleControlMessage(ctx context.Context, _ uuid.UUID, payload []byte) error {
	cmd, err := Parse(payload)
	if err != nil {
		slog.WarnContext(ctx, "Dropping malformed control message", "error", err)
		i.metrics.ControlCommands.WithLabelValues("malformed").Inc()
		return err
	}

	switch cmd {
	case CommandStart:
		prev := i.toggle.SetEnabled(true)
		slog.InfoContext(ctx, "Broadcast started", "was_enabled", prev)
	case CommandStop:
		prev := i.toggle.SetEnabled(false)
		slog.InfoContext(ctx, "Broadcast stopped", "was_enabled", prev)
	default:
		slog.InfoContext(ctx, "Ignoring unrecognized command", "command", string(cmd))
		i.metrics.ControlCommands.WithLabelValues("unrecognized").Inc()
		return nil
	}

	i.metrics.ControlCommands.WithLabelValues(string(cmd)).Inc()
	return nil
}
