// Package projection delivers stored events to read models.
//
// Read models declare the event types they consume through explicit
// subscriptions. The bus keeps one sequencer per stream so each stream's events
// reach subscribers exactly once and in sequence order, whatever order the
// publishing goroutines happen to run in. Failed deliveries are retried with
// exponential backoff and, once exhausted, recorded as dead letters instead of
// being returned to the writer.
package projection
