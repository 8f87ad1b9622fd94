// Package registry holds the authoritative set of registered sessions.
//
// A single mutex guards every operation so Add, MarkOpen, MarkClosing, Touch,
// IncrementMissed, Remove and Snapshot are atomic with respect to each other.
// Snapshot returns copies so callers iterate without holding the lock.
package registry
