// Package engine routes commands to aggregates and commits their decisions.
//
// The Dispatcher is the single write path: it validates the command envelope,
// replays the target stream, asks the aggregate for a decision, appends the
// resulting events with the replayed version as the expected version, and
// only then publishes them to the projection bus. A rejected, conflicting or
// miswired dispatch leaves no trace in the store and nothing is published.
package engine
