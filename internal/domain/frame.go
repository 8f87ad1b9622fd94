package domain

// FrameType identifies a WebSocket frame kind independent of the transport library.
type FrameType int

const (
	FrameText FrameType = iota + 1
	FrameBinary
	FramePing
	FramePong
	FrameClose
)

func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

// IsControl reports whether the frame is a WebSocket control frame.
func (t FrameType) IsControl() bool {
	return t == FramePing || t == FramePong || t == FrameClose
}

// Frame is a single outbound or inbound WebSocket message.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// PingFrame is the liveness probe: an empty ping.
func PingFrame() Frame {
	return Frame{Type: FramePing}
}

// TextFrame wraps an already serialized payload.
func TextFrame(payload []byte) Frame {
	return Frame{Type: FrameText, Payload: payload}
}
