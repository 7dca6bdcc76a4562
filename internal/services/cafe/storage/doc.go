// Package storage defines the event store contract shared by the café backends.
//
// A store keeps one append-only stream per identity. The stream's length is its
// version, and an append is accepted only when the caller's expected version is
// still current at the moment of the write.
package storage
