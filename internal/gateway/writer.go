package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/metrics"
)

const (
	// Upper bound for the best-effort close frame sent before a forced close.
	closeFrameTimeout = 100 * time.Millisecond
	// A writer stuck in a data write gets this long to notice a close request
	// before the socket is closed under it.
	forceCloseGrace = 2 * closeFrameTimeout
)

// wsConn is the part of *websocket.Conn the writer uses.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// clientWriter owns all queued writes for one connection. Frames are
// enqueued without blocking and written in order by a single goroutine.
type clientWriter struct {
	connection   wsConn
	clock        clockwork.Clock
	writeTimeout time.Duration
	metrics      *metrics.Metrics
	sendChannel  chan domain.Frame
	doneChannel  chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	closeMutex sync.Mutex
	closeSent  bool

	terminateChannel chan struct{}
	terminateOnce    sync.Once
	closeCode        int
	closeReason      string
}

func newClientWriter(connection wsConn, clock clockwork.Clock, queueSize int, writeTimeout time.Duration, m *metrics.Metrics) *clientWriter {
	cw := &clientWriter{
		connection:   connection,
		clock:        clock,
		writeTimeout: writeTimeout,
		metrics:      m,
		sendChannel:  make(chan domain.Frame, queueSize),
		doneChannel:  make(chan struct{}),

		terminateChannel: make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// enqueue never blocks.
func (cw *clientWriter) enqueue(frame domain.Frame) error {
	select {
	case <-cw.doneChannel:
		// writer already shut down, the session is on its way out
		return domain.ErrUnknownSession
	default:
	}

	select {
	case cw.sendChannel <- frame:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

func (cw *clientWriter) run() {
	defer cw.wg.Done()

	for {
		select {
		case frame := <-cw.sendChannel:
			if err := cw.write(frame); err != nil {
				slog.Debug("Socket write failed, closing connection", "frame_type", frame.Type.String(), "error", err)
				cw.metrics.WriteErrorsTotal.Inc()
				cw.shutdown()
				return
			}
		case <-cw.terminateChannel:
			cw.writeCloseFrame()
			cw.shutdown()
			return
		case <-cw.doneChannel:
			return
		}
	}
}

func (cw *clientWriter) write(frame domain.Frame) error {
	start := cw.clock.Now()
	deadline := start.Add(cw.writeTimeout)

	var err error
	if frame.Type.IsControl() {
		err = cw.connection.WriteControl(messageType(frame.Type), frame.Payload, deadline)
	} else {
		_ = cw.connection.SetWriteDeadline(deadline)
		err = cw.connection.WriteMessage(messageType(frame.Type), frame.Payload)
	}

	cw.metrics.WriteDuration.Observe(cw.clock.Since(start).Seconds())
	return err
}

// sendCloseResponse answers a peer's close frame with a zero-length close frame.
func (cw *clientWriter) sendCloseResponse() error {
	cw.closeMutex.Lock()
	defer cw.closeMutex.Unlock()

	if cw.closeSent {
		return nil
	}
	err := cw.connection.WriteControl(websocket.CloseMessage, nil, cw.clock.Now().Add(cw.writeTimeout))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	cw.closeSent = true
	return nil
}

// requestClose asks the writer goroutine to send a close frame and close the
// socket. It never blocks; repeated calls are no-ops. If the writer is stuck
// in a data write the socket is closed directly after forceCloseGrace.
func (cw *clientWriter) requestClose(code int, reason string) {
	cw.terminateOnce.Do(func() {
		cw.closeCode, cw.closeReason = code, reason
		close(cw.terminateChannel)
		cw.clock.AfterFunc(forceCloseGrace, func() {
			_ = cw.connection.Close()
		})
	})
}

func (cw *clientWriter) writeCloseFrame() {
	cw.closeMutex.Lock()
	defer cw.closeMutex.Unlock()

	if cw.closeSent {
		return
	}
	msg := websocket.FormatCloseMessage(cw.closeCode, cw.closeReason)
	if err := cw.connection.WriteControl(websocket.CloseMessage, msg, cw.clock.Now().Add(closeFrameTimeout)); err != nil {
		slog.Debug("Close frame not delivered", "error", err)
		return
	}
	cw.closeSent = true
}

func (cw *clientWriter) shutdown() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
}

// stop shuts the writer down and waits for its goroutine to exit.
func (cw *clientWriter) stop() {
	cw.shutdown()
	cw.wg.Wait()
}

func messageType(t domain.FrameType) int {
	switch t {
	case domain.FrameBinary:
		return websocket.BinaryMessage
	case domain.FramePing:
		return websocket.PingMessage
	case domain.FramePong:
		return websocket.PongMessage
	case domain.FrameClose:
		return websocket.CloseMessage
	default:
		return websocket.TextMessage
	}
}
