package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/vitalpulse/internal/domain"
)

type entry struct {
	session domain.Session
	seq     uint64
}

// Registry is the capacity-bounded session table shared by the gateway,
// the liveness scheduler and the broadcast pump.
type Registry struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	maxClients int
	sessions   map[uuid.UUID]*entry
	nextSeq    uint64
}

// New creates a registry admitting at most maxClients sessions.
func New(maxClients int, clock clockwork.Clock) *Registry {
	return &Registry{
		clock:      clock,
		maxClients: maxClients,
		sessions:   make(map[uuid.UUID]*entry, maxClients),
	}
}

// Add registers id in the Connecting state.
// Returns domain.ErrCapacityExceeded when the registry is full; size is unchanged in that case.
func (r *Registry) Add(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return fmt.Errorf("add %s: %w", id, domain.ErrDuplicateSession)
	}
	if len(r.sessions) >= r.maxClients {
		return fmt.Errorf("add %s (max %d): %w", id, r.maxClients, domain.ErrCapacityExceeded)
	}

	now := r.clock.Now()
	r.nextSeq++
	r.sessions[id] = &entry{
		session: domain.Session{
			ID:           id,
			State:        domain.SessionConnecting,
			ConnectedAt:  now,
			LastActivity: now,
		},
		seq: r.nextSeq,
	}
	return nil
}

// MarkOpen promotes a Connecting session after its handshake completed.
func (r *Registry) MarkOpen(id uuid.UUID) error {
	return r.transition(id, domain.SessionOpen)
}

// MarkClosing records that termination of an Open session was requested.
func (r *Registry) MarkClosing(id uuid.UUID) error {
	return r.transition(id, domain.SessionClosing)
}

func (r *Registry) transition(id uuid.UUID, next domain.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("mark %s %s: %w", id, next, domain.ErrSessionNotFound)
	}
	if !e.session.State.CanTransitionTo(next) {
		return fmt.Errorf("mark %s %s from %s: %w", id, next, e.session.State, domain.ErrInvalidTransition)
	}
	e.session.State = next
	return nil
}

// Touch records qualifying inbound activity: lastActivity moves forward and missedProbes resets.
func (r *Registry) Touch(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("touch %s: %w", id, domain.ErrSessionNotFound)
	}
	if now := r.clock.Now(); now.After(e.session.LastActivity) {
		e.session.LastActivity = now
	}
	e.session.MissedProbes = 0
	return nil
}

// IncrementMissed advances the missed-probe counter and returns the new value.
func (r *Registry) IncrementMissed(id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return 0, fmt.Errorf("increment missed %s: %w", id, domain.ErrSessionNotFound)
	}
	e.session.MissedProbes++
	return e.session.MissedProbes, nil
}

// Remove deletes the entry. Removing an absent id is a no-op.
// Reports whether an entry was actually removed.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Get returns a copy of the session.
func (r *Registry) Get(id uuid.UUID) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return e.session, true
}

// Snapshot returns a point-in-time copy of all sessions in registration order.
func (r *Registry) Snapshot() []domain.Session {
	r.mu.Lock()
	entries := make([]entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, *e)
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]domain.Session, len(entries))
	for i, e := range entries {
		out[i] = e.session
	}
	return out
}

// Open returns the Open subset of Snapshot.
func (r *Registry) Open() []domain.Session {
	all := r.Snapshot()
	open := all[:0]
	for _, s := range all {
		if s.State == domain.SessionOpen {
			open = append(open, s)
		}
	}
	return open
}

// Len returns the number of registered sessions in any state.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Capacity returns maxClients.
func (r *Registry) Capacity() int {
	return r.maxClients
}
