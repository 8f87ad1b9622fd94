package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/metrics"
	"github.com/pscheid92/vitalpulse/internal/platform/logging"
)

const generateTimeout = 2 * time.Second

// Sender queues a frame on a session's send path without blocking.
type Sender interface {
	SendAsync(id uuid.UUID, frame domain.Frame) error
}

// Registry is the slice of the session registry the pump needs.
type Registry interface {
	Open() []domain.Session
	IncrementMissed(id uuid.UUID) (int, error)
}

// Pump periodically fans one telemetry payload out to all Open sessions.
type Pump struct {
	registry Registry
	sender   Sender
	source   domain.TelemetrySource
	clock    clockwork.Clock
	interval time.Duration
	metrics  *metrics.Metrics

	mu      sync.Mutex
	enabled bool
}

func NewPump(registry Registry, sender Sender, source domain.TelemetrySource, clock clockwork.Clock, interval time.Duration, enabled bool, m *metrics.Metrics) *Pump {
	p := &Pump{
		registry: registry,
		sender:   sender,
		source:   source,
		clock:    clock,
		interval: interval,
		metrics:  m,
		enabled:  enabled,
	}
	m.BroadcastEnabled.Set(boolToFloat(enabled))
	return p
}

// SetEnabled switches broadcasting on or off and reports the previous value.
func (p *Pump) SetEnabled(enabled bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.enabled
	p.enabled = enabled
	p.metrics.BroadcastEnabled.Set(boolToFloat(enabled))
	return prev
}

func (p *Pump) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Run ticks every broadcast interval until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("Broadcast pump started", "interval", p.interval, "enabled", p.Enabled())

	for {
		select {
		case <-ctx.Done():
			slog.Info("Broadcast pump stopped")
			return
		case <-ticker.Chan():
			p.broadcastOnce(logging.WithTick(ctx))
		}
	}
}

func (p *Pump) broadcastOnce(ctx context.Context) {
	if !p.Enabled() {
		p.metrics.BroadcastTicksTotal.WithLabelValues("disabled").Inc()
		return
	}

	sessions := p.registry.Open()
	if len(sessions) == 0 {
		p.metrics.BroadcastTicksTotal.WithLabelValues("empty").Inc()
		return
	}

	start := p.clock.Now()
	data, err := p.generate(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Broadcast: telemetry unavailable, skipping tick", "error", err)
		p.metrics.BroadcastTicksTotal.WithLabelValues("source_error").Inc()
		return
	}
	p.metrics.BroadcastPayloadBytes.Observe(float64(len(data)))

	frame := domain.TextFrame(data)
	failed := 0
	for _, session := range sessions {
		if err := p.sender.SendAsync(session.ID, frame); err != nil {
			failed++
			p.recordFailure(logging.WithSession(ctx, session.ID), session.ID, err)
			continue
		}
		p.metrics.BroadcastDeliveries.WithLabelValues("queued").Inc()
	}

	p.metrics.BroadcastTicksTotal.WithLabelValues("sent").Inc()
	p.metrics.BroadcastDuration.Observe(p.clock.Since(start).Seconds())
	slog.DebugContext(ctx, "Broadcast tick", "sessions", len(sessions), "failed", failed, "bytes", len(data))
}

func (p *Pump) generate(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	start := p.clock.Now()
	payload, err := p.source.Generate(ctx)
	p.metrics.TelemetrySourceLatency.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("generate telemetry: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal telemetry: %w", err)
	}
	return data, nil
}

func (p *Pump) recordFailure(ctx context.Context, id uuid.UUID, err error) {
	p.metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()

	missed, incErr := p.registry.IncrementMissed(id)
	if incErr != nil {
		slog.DebugContext(ctx, "Broadcast: send failed for departed session", "error", err)
		return
	}
	slog.WarnContext(ctx, "Broadcast: send failed", "missed_probes", missed, "error", err)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
