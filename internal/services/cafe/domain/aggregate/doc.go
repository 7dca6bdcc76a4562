// Package aggregate replays event streams into state and exposes command
// handling and event application as explicitly registered capabilities.
//
// A Definition is built once at startup. Instances are created fresh for every
// load and discarded after a single dispatch; nothing here caches state across
// commands.
package aggregate
