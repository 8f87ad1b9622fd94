// Package gateway is the boundary between the session engine and gorilla/websocket.
//
// It reserves a registry slot before upgrading, so a full server refuses with 503 and nothing is
// half-registered. Each upgraded connection gets a clientWriter: a bounded send queue drained by one
// goroutine that owns all data writes. SendAsync only enqueues and reports ErrQueueFull or
// ErrUnknownSession instead of waiting, which is what lets the liveness scheduler and the broadcast
// pump share it without ever blocking on a peer.
//
// Inbound frames are classified in the read loop: pongs and text frames touch the session, text
// frames also go to the control interpreter, pings are answered through the send queue and a close
// frame gets a zero-length close in reply before the session is removed.
package gateway
