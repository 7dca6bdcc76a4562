// Package command defines the command envelope and the contract used across the
// café write path.
//
// Commands express intent from callers. They are validated against the registry
// before any decider runs, so business rules only ever see normalized input.
// Commands are never persisted; only the events they produce are.
package command
