// Package event defines the event envelope and event-type registry used by the
// café write path.
//
// Events are immutable facts emitted by accepted decisions. The registry checks
// envelope completeness and payload validity before the store assigns sequence
// numbers. Replay and projections depend on the same type names, so a type is
// registered exactly once.
package event
