// Package event defines the event model for pulsebus.
//
// # Overview
//
// Every message flowing through the broker is an Event: an immutable,
// uniquely identified, timestamped envelope carrying one of a closed set
// of variant payloads (telemetry samples, derived anomalies, action
// commands, alerts). Variants are a tagged union rather than a type
// hierarchy: the Variant tag identifies the payload shape and handlers
// dispatch on it.
//
//   - Event interface with correlation and causation tracking
//   - Envelope[T] generic implementation with internally assigned
//     identity and capture time
//   - Handler capability (interface, function value, or typed adapter)
//   - Middleware for cross-cutting handler concerns
//
// # Identity and Immutability
//
// New assigns the event ID (UUID) and CreatedAt timestamp at construction;
// callers never supply them. An Event is never mutated after construction
// and is safe for concurrent reads by any number of handlers.
//
// # Cascades
//
// NewFromParent creates a derived event that inherits the parent's
// correlation ID and records the parent as its causation. Handlers that
// return derived events from Handle feed them back into the broker,
// forming a dataflow graph with full lineage.
package event
