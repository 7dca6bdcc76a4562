package aggregate

import (
	"errors"
	"fmt"
)

var (
	// ErrSequenceGap indicates a stream whose sequence numbers are not contiguous.
	ErrSequenceGap = errors.New("event sequence gap")
	// ErrStreamLoaderRequired indicates a missing stream loader.
	ErrStreamLoaderRequired = errors.New("stream loader is required")
	// ErrKindRequired indicates a missing aggregate kind.
	ErrKindRequired = errors.New("aggregate kind is required")
)

// Capability names the half of an aggregate a configuration error concerns.
type Capability string

const (
	// CapabilityCommand covers decide functions.
	CapabilityCommand Capability = "command"
	// CapabilityEvent covers fold functions and event definitions.
	CapabilityEvent Capability = "event"
)

// ConfigurationError reports a wiring mismatch between an aggregate and the
// types it was asked to handle. It is never a domain outcome and retrying
// cannot fix it.
type ConfigurationError struct {
	Aggregate  string
	Capability Capability
	Type       string
	Err        error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("aggregate %s: no %s capability for %s", e.Aggregate, e.Capability, e.Type)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NonRetryable returns true from engine.IsNonRetryable checks.
func (e *ConfigurationError) NonRetryable() bool { return true }

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
