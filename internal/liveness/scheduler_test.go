package liveness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/metrics"
	"github.com/pscheid92/vitalpulse/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockActions struct {
	mu        sync.Mutex
	probes    map[uuid.UUID]int
	deaths    map[uuid.UUID]int
	probeErr  error
	deadErrFn func(attempt int) error
}

func newMockActions() *mockActions {
	return &mockActions{
		probes: make(map[uuid.UUID]int),
		deaths: make(map[uuid.UUID]int),
	}
}

func (m *mockActions) NotifyDead(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deaths[id]++
	if m.deadErrFn != nil {
		return m.deadErrFn(m.deaths[id])
	}
	return nil
}

func (m *mockActions) ProbeAlive(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[id]++
	return m.probeErr
}

func (m *mockActions) probeCount(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probes[id]
}

func (m *mockActions) deathCount(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deaths[id]
}

type fixture struct {
	clock    *clockwork.FakeClock
	registry *registry.Registry
	actions  *mockActions
	metrics  *metrics.Metrics
	sched    *Scheduler
}

func newFixture(t *testing.T, maxMissed int) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	reg := registry.New(8, clock)
	actions := newMockActions()
	m := metrics.NewForTest()
	return &fixture{
		clock:    clock,
		registry: reg,
		actions:  actions,
		metrics:  m,
		sched:    NewScheduler(reg, actions, clock, time.Second, maxMissed, m),
	}
}

func (f *fixture) openSession(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.registry.Add(id))
	require.NoError(t, f.registry.MarkOpen(id))
	return id
}

func (f *fixture) tick() {
	f.clock.Advance(time.Second)
	f.sched.check(context.Background())
}

func TestScheduler_EvictsOnThirdSilentTick(t *testing.T) {
	f := newFixture(t, 3)
	id := f.openSession(t)

	f.tick()
	assert.Equal(t, 0, f.actions.deathCount(id), "tick 1 must not evict")
	assert.Equal(t, 1, f.actions.probeCount(id))

	f.tick()
	assert.Equal(t, 0, f.actions.deathCount(id), "tick 2 must not evict")
	assert.Equal(t, 2, f.actions.probeCount(id))

	f.tick()
	assert.Equal(t, 1, f.actions.deathCount(id), "tick 3 must evict")
	assert.Equal(t, 2, f.actions.probeCount(id), "no probe on the eviction tick")

	s, ok := f.registry.Get(id)
	require.True(t, ok, "eviction does not remove; the gateway does on close")
	assert.Equal(t, domain.SessionClosing, s.State)
}

func TestScheduler_EvictsExactlyOnce(t *testing.T) {
	f := newFixture(t, 3)
	id := f.openSession(t)

	for range 10 {
		f.tick()
	}

	assert.Equal(t, 1, f.actions.deathCount(id))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EvictionsTotal))
}

func TestScheduler_TouchedSessionNeverEvicted(t *testing.T) {
	f := newFixture(t, 2)
	id := f.openSession(t)

	for range 20 {
		require.NoError(t, f.registry.Touch(id))
		f.tick()
	}

	assert.Equal(t, 0, f.actions.deathCount(id))
	assert.Equal(t, 20, f.actions.probeCount(id))

	s, _ := f.registry.Get(id)
	assert.Equal(t, domain.SessionOpen, s.State)
	assert.Equal(t, 1, s.MissedProbes)
}

func TestScheduler_ResponseBetweenTicksResetsCount(t *testing.T) {
	f := newFixture(t, 3)
	id := f.openSession(t)

	f.tick()
	f.tick()
	require.NoError(t, f.registry.Touch(id)) // pong arrives just in time
	f.tick()
	f.tick()
	assert.Equal(t, 0, f.actions.deathCount(id))

	f.tick()
	assert.Equal(t, 1, f.actions.deathCount(id))
}

func TestScheduler_ConnectingSessionsAreNotProbed(t *testing.T) {
	f := newFixture(t, 3)
	id := uuid.New()
	require.NoError(t, f.registry.Add(id))

	for range 5 {
		f.tick()
	}

	assert.Equal(t, 0, f.actions.probeCount(id))
	assert.Equal(t, 0, f.actions.deathCount(id))
	s, _ := f.registry.Get(id)
	assert.Zero(t, s.MissedProbes)
}

func TestScheduler_FailedProbeCountsImmediately(t *testing.T) {
	f := newFixture(t, 3)
	f.actions.probeErr = &domain.DeliveryError{Err: domain.ErrQueueFull}
	id := f.openSession(t)

	f.tick()
	s, _ := f.registry.Get(id)
	assert.Equal(t, 2, s.MissedProbes, "tick increment plus failed enqueue")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ProbesTotal.WithLabelValues("failed")))

	f.tick()
	assert.Equal(t, 1, f.actions.deathCount(id), "undeliverable probes accelerate eviction")
}

func TestScheduler_FailedEvictionRetriedNextTick(t *testing.T) {
	f := newFixture(t, 3)
	f.actions.deadErrFn = func(attempt int) error {
		if attempt == 1 {
			return errors.New("close: broken pipe")
		}
		return nil
	}
	id := f.openSession(t)

	f.tick()
	f.tick()
	f.tick()
	assert.Equal(t, 1, f.actions.deathCount(id))
	s, _ := f.registry.Get(id)
	assert.Equal(t, domain.SessionOpen, s.State, "failed eviction leaves session open")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EvictionFailuresTotal))

	f.tick()
	assert.Equal(t, 2, f.actions.deathCount(id))
	s, _ = f.registry.Get(id)
	assert.Equal(t, domain.SessionClosing, s.State)

	f.tick()
	assert.Equal(t, 2, f.actions.deathCount(id))
}

func TestScheduler_OneSilentSessionDoesNotAffectOthers(t *testing.T) {
	f := newFixture(t, 3)
	silent := f.openSession(t)
	healthy := f.openSession(t)

	for range 3 {
		require.NoError(t, f.registry.Touch(healthy))
		f.tick()
	}

	assert.Equal(t, 1, f.actions.deathCount(silent))
	assert.Equal(t, 0, f.actions.deathCount(healthy))
	assert.Equal(t, 3, f.actions.probeCount(healthy))
}

func TestScheduler_RunUsesClockTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := registry.New(4, clock)
	actions := newMockActions()
	sched := NewScheduler(reg, actions, clock, time.Second, 3, metrics.NewForTest())

	id := uuid.New()
	require.NoError(t, reg.Add(id))
	require.NoError(t, reg.MarkOpen(id))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return actions.probeCount(id) == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return actions.probeCount(id) == 2 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return actions.deathCount(id) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
