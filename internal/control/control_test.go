package control

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/metrics"
	"github.com/pscheid92/vitalpulse/internal/platform/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockToggle struct {
	mu      sync.Mutex
	enabled bool
	calls   int
}

func (m *mockToggle) SetEnabled(enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.enabled
	m.enabled = enabled
	m.calls++
	return prev
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Command
		wantErr bool
	}{
		{"start", `{"command":"start"}`, CommandStart, false},
		{"stop", `{"command": "stop"}`, CommandStop, false},
		{"unknown value", `{"command":"reboot"}`, Command("reboot"), false},
		{"extra fields", `{"command":"start","ward":"B"}`, CommandStart, false},
		{"not json", `start`, "", true},
		{"missing field", `{"cmd":"start"}`, "", true},
		{"null field", `{"command":null}`, "", true},
		{"number field", `{"command":1}`, "", true},
		{"array", `["start"]`, "", true},
		{"empty", ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.payload))
			if tt.wantErr {
				var parseErr *domain.ParseError
				require.ErrorAs(t, err, &parseErr)
				assert.Equal(t, tt.payload, parseErr.Payload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpreter_StartStop(t *testing.T) {
	toggle := &mockToggle{}
	m := metrics.NewForTest()
	interp := NewInterpreter(toggle, m)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, interp.HandleControlMessage(ctx, id, []byte(`{"command":"start"}`)))
	assert.True(t, toggle.enabled)

	require.NoError(t, interp.HandleControlMessage(ctx, id, []byte(`{"command":"stop"}`)))
	assert.False(t, toggle.enabled)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ControlCommands.WithLabelValues("start")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ControlCommands.WithLabelValues("stop")))
}

func TestInterpreter_UnrecognizedIsIgnored(t *testing.T) {
	toggle := &mockToggle{enabled: true}
	m := metrics.NewForTest()
	interp := NewInterpreter(toggle, m)

	err := interp.HandleControlMessage(context.Background(), uuid.New(), []byte(`{"command":"pause"}`))
	require.NoError(t, err)

	assert.True(t, toggle.enabled)
	assert.Zero(t, toggle.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ControlCommands.WithLabelValues("unrecognized")))
}

func TestInterpreter_MalformedReturnsParseError(t *testing.T) {
	toggle := &mockToggle{}
	m := metrics.NewForTest()
	interp := NewInterpreter(toggle, m)

	err := interp.HandleControlMessage(context.Background(), uuid.New(), []byte(`{"command":`))

	var parseErr *domain.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Zero(t, toggle.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ControlCommands.WithLabelValues("malformed")))
}

func TestHandleControlMessage_LogsSessionIDOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(logging.NewHandler(&buf, "debug", "text")))
	t.Cleanup(func() { slog.SetDefault(prev) })

	interp := NewInterpreter(&mockToggle{}, metrics.NewForTest())
	id := uuid.New()
	ctx := logging.WithSession(context.Background(), id)

	for _, payload := range []string{`{"command":"start"}`, `{"command":"stop"}`, `{"command":"reboot"}`, `not json`} {
		_ = interp.HandleControlMessage(ctx, id, []byte(payload))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, "session_id="), line)
		assert.Contains(t, line, id.String())
	}
}
