// Package sqlite implements the café event store on an in-memory SQLite
// database.
//
// The database lives for the lifetime of the Store and is reached through a
// single pooled connection, so every append transaction is serialized by the
// pool. The version check and the inserts commit together; a primary-key
// collision on (stream_id, seq) is reported as a concurrency conflict.
package sqlite
