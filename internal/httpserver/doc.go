// Package httpserver is the echo HTTP edge: the WebSocket endpoint behind a per-IP
// connection rate limiter, health and metrics endpoints, a read-only session listing
// and, optionally, the static dashboard.
package httpserver
