// Package timeouts defines shared timeout defaults used by cafe processes.
package timeouts

import "time"

// TelemetryShutdown bounds the span flush when a process exits.
const TelemetryShutdown = 5 * time.Second

// ScenarioRun caps a whole scenario run when no timeout is configured.
const ScenarioRun = 30 * time.Second
