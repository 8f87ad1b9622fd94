// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (session.go, frame.go, telemetry.go, errors.go) hold shared types
// and cross-cutting contracts. No implementation code beyond small value helpers.
// Keeps registry, liveness, broadcast and gateway free of circular imports.
package domain
