// Package app composes the café runtime.
//
// It wires an event store, the projection bus with its read models, and the
// command dispatcher into one Domain value. There is no package-level state;
// every caller builds and owns its own Domain.
package app
