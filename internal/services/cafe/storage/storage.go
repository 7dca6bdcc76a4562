package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
)

var (
	// ErrConcurrencyConflict indicates the stream moved past the expected
	// version before the append could be applied.
	ErrConcurrencyConflict = errors.New("concurrency conflict: stream version changed")
	// ErrInvalidVersion indicates a negative expected version.
	ErrInvalidVersion = errors.New("expected version must not be negative")
	// ErrStreamIDRequired indicates a missing stream id.
	ErrStreamIDRequired = errors.New("stream id is required")
)

// EventStore persists per-identity event streams with optimistic concurrency.
type EventStore interface {
	// LoadStream returns a snapshot of the stream. A missing stream yields an
	// empty, non-nil slice. Later appends never change a returned snapshot.
	LoadStream(ctx context.Context, streamID string) ([]event.Event, error)
	// AppendIfVersionMatches appends events atomically when the stream holds
	// exactly expected events. Stored events carry Seq = expected+i+1.
	AppendIfVersionMatches(ctx context.Context, streamID string, expected int, events []event.Event) ([]event.Event, error)
}

// Closer is implemented by stores that hold resources.
type Closer interface {
	Close() error
}

// Stamp validates an append request and returns the events with stream id and
// sequence numbers assigned. It returns nil for an empty batch.
func Stamp(streamID string, expected int, events []event.Event) ([]event.Event, error) {
	if streamID == "" {
		return nil, ErrStreamIDRequired
	}
	if expected < 0 {
		return nil, ErrInvalidVersion
	}
	if len(events) == 0 {
		return nil, nil
	}
	stamped := make([]event.Event, len(events))
	for i, evt := range events {
		evt = evt.Clone()
		evt.StreamID = streamID
		evt.Seq = uint64(expected + i + 1)
		stamped[i] = evt
	}
	return stamped, nil
}
