package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/metrics"
	"github.com/pscheid92/vitalpulse/internal/platform/logging"
)

const (
	maxMessageSize = 4096
	evictReason    = "liveness timeout"
	shutdownReason = "server shutting down"
)

// SessionRegistry is the registry surface the gateway drives.
type SessionRegistry interface {
	Add(id uuid.UUID) error
	MarkOpen(id uuid.UUID) error
	MarkClosing(id uuid.UUID) error
	Touch(id uuid.UUID) error
	Remove(id uuid.UUID) bool
	Get(id uuid.UUID) (domain.Session, bool)
	Len() int
}

// ControlHandler receives text frames from sessions.
type ControlHandler interface {
	HandleControlMessage(ctx context.Context, sessionID uuid.UUID, payload []byte) error
}

type Options struct {
	SendQueueSize  int
	WriteTimeout   time.Duration
	AllowedOrigins []string
	IsDevelopment  bool
}

type Gateway struct {
	registry SessionRegistry
	control  ControlHandler
	clock    clockwork.Clock
	opts     Options
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*clientWriter

	handlers sync.WaitGroup
}

func New(registry SessionRegistry, clock clockwork.Clock, opts Options, m *metrics.Metrics) *Gateway {
	return &Gateway{
		registry: registry,
		clock:    clock,
		opts:     opts,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(opts.AllowedOrigins, opts.IsDevelopment),
		},
		clients: make(map[uuid.UUID]*clientWriter),
	}
}

// SetControlHandler wires the interpreter for text frames. Call before serving.
func (g *Gateway) SetControlHandler(h ControlHandler) {
	g.control = h
}

// ServeHTTP upgrades the request and runs the session until the peer leaves
// or the session is force-closed.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.New()
	ctx := logging.WithSession(context.WithoutCancel(r.Context()), id)

	if err := g.OnOpen(id); err != nil {
		slog.WarnContext(ctx, "Refusing WebSocket connection", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		slog.WarnContext(ctx, "WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		g.metrics.ConnectionsTotal.WithLabelValues("upgrade_failed").Inc()
		g.registry.Remove(id)
		g.metrics.SessionsCurrent.Set(float64(g.registry.Len()))
		return
	}

	g.handlers.Add(1)
	defer g.handlers.Done()
	g.serve(ctx, id, conn)
}

func (g *Gateway) serve(ctx context.Context, id uuid.UUID, conn *websocket.Conn) {
	g.attach(id, conn)
	defer g.OnClose(ctx, id)

	conn.SetReadLimit(maxMessageSize)
	conn.SetPingHandler(func(data string) error {
		g.OnInboundControl(ctx, id, domain.Frame{Type: domain.FramePing, Payload: []byte(data)})
		return nil
	})
	conn.SetPongHandler(func(data string) error {
		g.OnInboundControl(ctx, id, domain.Frame{Type: domain.FramePong, Payload: []byte(data)})
		return nil
	})
	conn.SetCloseHandler(func(code int, text string) error {
		slog.DebugContext(ctx, "Peer sent close frame", "code", code, "text", text)
		g.OnInboundControl(ctx, id, domain.Frame{Type: domain.FrameClose})
		return nil
	})

	if err := g.OnHandshakeComplete(id); err != nil {
		slog.ErrorContext(ctx, "Could not open session", "error", err)
		return
	}
	slog.InfoContext(ctx, "Session opened", "remote_addr", conn.RemoteAddr().String())

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "Read loop ended", "error", err)
			}
			return
		}

		frameType := domain.FrameText
		if mt == websocket.BinaryMessage {
			frameType = domain.FrameBinary
		}
		g.OnInboundControl(ctx, id, domain.Frame{Type: frameType, Payload: data})
	}
}

// OnOpen reserves a registry slot for a new connection.
func (g *Gateway) OnOpen(id uuid.UUID) error {
	if err := g.registry.Add(id); err != nil {
		g.metrics.ConnectionsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("open session: %w", err)
	}
	g.metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()
	g.metrics.SessionsCurrent.Set(float64(g.registry.Len()))
	return nil
}

func (g *Gateway) attach(id uuid.UUID, conn wsConn) {
	cw := newClientWriter(conn, g.clock, g.opts.SendQueueSize, g.opts.WriteTimeout, g.metrics)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[id] = cw
}

// OnHandshakeComplete makes the session eligible for probes and broadcast.
func (g *Gateway) OnHandshakeComplete(id uuid.UUID) error {
	return g.registry.MarkOpen(id)
}

// OnClose stops the session's writer and removes it from the registry. Idempotent.
func (g *Gateway) OnClose(ctx context.Context, id uuid.UUID) {
	g.mu.Lock()
	cw, ok := g.clients[id]
	delete(g.clients, id)
	g.mu.Unlock()

	if ok {
		cw.stop()
	}

	session, found := g.registry.Get(id)
	if !g.registry.Remove(id) {
		return
	}

	g.metrics.SessionsCurrent.Set(float64(g.registry.Len()))
	if found {
		g.metrics.SessionDuration.Observe(g.clock.Since(session.ConnectedAt).Seconds())
	}
	slog.InfoContext(ctx, "Session closed")
}

// OnInboundControl dispatches one inbound frame.
func (g *Gateway) OnInboundControl(ctx context.Context, id uuid.UUID, frame domain.Frame) {
	g.metrics.InboundFramesTotal.WithLabelValues(frame.Type.String()).Inc()

	switch frame.Type {
	case domain.FramePong:
		g.touch(ctx, id)

	case domain.FrameText:
		g.touch(ctx, id)
		if g.control == nil {
			slog.WarnContext(ctx, "No control handler, dropping text frame")
			return
		}
		_ = g.control.HandleControlMessage(ctx, id, frame.Payload)

	case domain.FrameBinary:
		g.touch(ctx, id)
		slog.DebugContext(ctx, "Ignoring binary frame", "bytes", len(frame.Payload))

	case domain.FramePing:
		pong := domain.Frame{Type: domain.FramePong, Payload: frame.Payload}
		if err := g.SendAsync(id, pong); err != nil {
			slog.WarnContext(ctx, "Could not queue pong", "error", err)
		}

	case domain.FrameClose:
		if err := g.registry.MarkClosing(id); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			slog.DebugContext(ctx, "Could not mark session closing", "error", err)
		}
		if cw, ok := g.client(id); ok {
			if err := cw.sendCloseResponse(); err != nil {
				slog.DebugContext(ctx, "Could not answer close frame", "error", err)
			}
		}
	}
}

func (g *Gateway) touch(ctx context.Context, id uuid.UUID) {
	if err := g.registry.Touch(id); err != nil {
		slog.DebugContext(ctx, "Touch on departed session", "error", err)
	}
}

// SendAsync queues frame on the session's send path without blocking.
// Errors are *domain.DeliveryError wrapping ErrQueueFull or ErrUnknownSession.
func (g *Gateway) SendAsync(id uuid.UUID, frame domain.Frame) error {
	cw, ok := g.client(id)
	if !ok {
		g.metrics.SendQueueRejections.WithLabelValues("unknown").Inc()
		return &domain.DeliveryError{SessionID: id, Err: domain.ErrUnknownSession}
	}

	if err := cw.enqueue(frame); err != nil {
		reason := "queue_full"
		if errors.Is(err, domain.ErrUnknownSession) {
			reason = "unknown"
		}
		g.metrics.SendQueueRejections.WithLabelValues(reason).Inc()
		return &domain.DeliveryError{SessionID: id, Err: err}
	}
	return nil
}

// ForceClose requests termination of the session's socket and returns
// without waiting for it. The read loop then ends and OnClose removes the session.
func (g *Gateway) ForceClose(id uuid.UUID, reason string) error {
	cw, ok := g.client(id)
	if !ok {
		return fmt.Errorf("force close: %w", domain.ErrUnknownSession)
	}
	cw.requestClose(websocket.CloseGoingAway, reason)
	return nil
}

// ProbeAlive queues an empty ping.
func (g *Gateway) ProbeAlive(_ context.Context, id uuid.UUID) error {
	return g.SendAsync(id, domain.PingFrame())
}

// NotifyDead force-closes an unresponsive session.
func (g *Gateway) NotifyDead(_ context.Context, id uuid.UUID) error {
	return g.ForceClose(id, evictReason)
}

// Shutdown force-closes every attached session and waits for their
// handlers to finish, or for ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.RLock()
	ids := make([]uuid.UUID, 0, len(g.clients))
	for id := range g.clients {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	slog.Info("Closing sessions", "count", len(ids))
	for _, id := range ids {
		if err := g.ForceClose(id, shutdownReason); err != nil && !errors.Is(err, domain.ErrUnknownSession) {
			slog.Warn("Failed to close session on shutdown", "session_id", id.String(), "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		g.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions to close: %w", ctx.Err())
	}
}

func (g *Gateway) client(id uuid.UUID) (*clientWriter, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cw, ok := g.clients[id]
	return cw, ok
}
