package liveness

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/metrics"
	"github.com/pscheid92/vitalpulse/internal/platform/logging"
)

// Actions carries out the scheduler's decisions.
// Both calls must return without waiting on the peer.
type Actions interface {
	// NotifyDead requests termination of an unresponsive session.
	NotifyDead(ctx context.Context, id uuid.UUID) error
	// ProbeAlive queues a liveness probe. nil means queued, not answered.
	ProbeAlive(ctx context.Context, id uuid.UUID) error
}

// Registry is the slice of the session registry the scheduler needs.
type Registry interface {
	Open() []domain.Session
	IncrementMissed(id uuid.UUID) (int, error)
	MarkClosing(id uuid.UUID) error
}

// Scheduler evicts a session once it has gone maxMissedProbes consecutive ticks
// without qualifying inbound activity. Registry.Touch resets the count.
type Scheduler struct {
	registry        Registry
	actions         Actions
	clock           clockwork.Clock
	interval        time.Duration
	maxMissedProbes int
	metrics         *metrics.Metrics
}

func NewScheduler(registry Registry, actions Actions, clock clockwork.Clock, interval time.Duration, maxMissedProbes int, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		registry:        registry,
		actions:         actions,
		clock:           clock,
		interval:        interval,
		maxMissedProbes: maxMissedProbes,
		metrics:         m,
	}
}

// Run ticks every check interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Liveness scheduler started", "interval", s.interval, "max_missed_probes", s.maxMissedProbes)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Liveness scheduler stopped")
			return
		case <-ticker.Chan():
			s.check(logging.WithTick(ctx))
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	s.metrics.LivenessTicksTotal.Inc()
	now := s.clock.Now()

	for _, session := range s.registry.Open() {
		sessionCtx := logging.WithSession(ctx, session.ID)
		idle := session.IdleFor(now)

		missed, err := s.registry.IncrementMissed(session.ID)
		if err != nil {
			// Removed between snapshot and now
			slog.DebugContext(sessionCtx, "Liveness: session vanished", "error", err)
			continue
		}

		if missed >= s.maxMissedProbes {
			s.evict(sessionCtx, session.ID, missed, idle)
			continue
		}

		s.probe(sessionCtx, session.ID, missed, idle)
	}
}

func (s *Scheduler) evict(ctx context.Context, id uuid.UUID, missed int, idle time.Duration) {
	if err := s.actions.NotifyDead(ctx, id); err != nil {
		fatal := &domain.FatalSessionError{SessionID: id, Err: err}
		slog.ErrorContext(ctx, "Liveness: eviction failed, retrying next tick", "missed_probes", missed, "idle", idle, "error", fatal)
		s.metrics.EvictionFailuresTotal.Inc()
		return
	}

	if err := s.registry.MarkClosing(id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		slog.WarnContext(ctx, "Liveness: could not mark session closing", "error", err)
	}

	slog.WarnContext(ctx, "Liveness: client not alive, eviction requested", "missed_probes", missed, "idle", idle)
	s.metrics.EvictionsTotal.Inc()
}

func (s *Scheduler) probe(ctx context.Context, id uuid.UUID, missed int, idle time.Duration) {
	if err := s.actions.ProbeAlive(ctx, id); err != nil {
		// Undeliverable probe counts as unanswered right away
		after, incErr := s.registry.IncrementMissed(id)
		if incErr != nil {
			after = missed
		}
		slog.WarnContext(ctx, "Liveness: probe not queued", "missed_probes", after, "idle", idle, "error", err)
		s.metrics.ProbesTotal.WithLabelValues("failed").Inc()
		return
	}

	slog.DebugContext(ctx, "Liveness: probe queued", "missed_probes", missed, "idle", idle)
	s.metrics.ProbesTotal.WithLabelValues("queued").Inc()
}
