package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersWithoutConflicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	// Registering a second set on the same registry must panic (duplicate names)
	assert.Panics(t, func() { New(reg) })
}

func TestCounterVecs(t *testing.T) {
	m := NewForTest()

	tests := []struct {
		name   string
		metric *prometheus.CounterVec
		label  string
		incBy  int
	}{
		{"connections", m.ConnectionsTotal, "accepted", 3},
		{"probes", m.ProbesTotal, "queued", 5},
		{"deliveries", m.BroadcastDeliveries, "failed", 2},
		{"control commands", m.ControlCommands, "start", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range tt.incBy {
				tt.metric.WithLabelValues(tt.label).Inc()
			}
			assert.Equal(t, float64(tt.incBy), testutil.ToFloat64(tt.metric.WithLabelValues(tt.label)))
		})
	}
}

func TestGauges(t *testing.T) {
	m := NewForTest()

	m.SessionsCurrent.Set(4)
	m.BroadcastEnabled.Set(1)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.SessionsCurrent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastEnabled))
}

func TestHandler_ServesNamespacedMetrics(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.EvictionsTotal.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "vitalpulse_liveness_evictions_total 1"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
