package aggregate

import (
	"context"
	"fmt"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
)

// StreamLoader reads the full event stream for one identity.
type StreamLoader interface {
	LoadStream(ctx context.Context, streamID string) ([]event.Event, error)
}

// Load builds a fresh instance of kind and replays the stream into it. The
// returned root's version equals the number of events applied.
func Load(ctx context.Context, loader StreamLoader, kind Kind, streamID string) (Root, error) {
	if loader == nil {
		return nil, ErrStreamLoaderRequired
	}
	if kind == nil {
		return nil, ErrKindRequired
	}
	events, err := loader.LoadStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("load stream %s: %w", streamID, err)
	}
	root := kind.New()
	if err := Replay(root, events); err != nil {
		return nil, fmt.Errorf("replay stream %s: %w", streamID, err)
	}
	return root, nil
}

// Replay applies events in order. Each event's Seq must continue the root's
// current version.
func Replay(root Root, events []event.Event) error {
	for _, evt := range events {
		expected := uint64(root.Version()) + 1
		if evt.Seq != expected {
			return fmt.Errorf("%w: expected %d got %d", ErrSequenceGap, expected, evt.Seq)
		}
		if err := root.Apply(evt); err != nil {
			return err
		}
	}
	return nil
}
