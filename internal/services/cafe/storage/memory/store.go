// Package memory provides a lock-free in-process event store.
//
// Each stream is an atomic pointer to an immutable slice. Appends build a new
// slice and swap it in with compare-and-swap, so readers always see a complete
// snapshot and different streams never contend.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
	"github.com/louisbranch/cafe/internal/services/cafe/storage"
)

// Store is an in-memory storage.EventStore.
type Store struct {
	streams sync.Map // string -> *atomic.Pointer[[]event.Event]
}

var _ storage.EventStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// LoadStream returns a copy of the stream as of the call.
func (s *Store) LoadStream(ctx context.Context, streamID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, ok := s.streams.Load(streamID)
	if !ok {
		return []event.Event{}, nil
	}
	current := value.(*atomic.Pointer[[]event.Event]).Load()
	out := event.CloneAll(*current)
	if out == nil {
		out = []event.Event{}
	}
	return out, nil
}

// AppendIfVersionMatches appends events when the stream is at expected.
func (s *Store) AppendIfVersionMatches(ctx context.Context, streamID string, expected int, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stamped, err := storage.Stamp(streamID, expected, events)
	if err != nil || stamped == nil {
		return nil, err
	}

	slot := s.slot(streamID)
	for {
		current := slot.Load()
		if len(*current) != expected {
			return nil, fmt.Errorf("%w: stream %s is at version %d, expected %d",
				storage.ErrConcurrencyConflict, streamID, len(*current), expected)
		}
		next := make([]event.Event, 0, len(*current)+len(stamped))
		next = append(next, *current...)
		next = append(next, stamped...)
		if slot.CompareAndSwap(current, &next) {
			return event.CloneAll(stamped), nil
		}
	}
}

func (s *Store) slot(streamID string) *atomic.Pointer[[]event.Event] {
	if value, ok := s.streams.Load(streamID); ok {
		return value.(*atomic.Pointer[[]event.Event])
	}
	fresh := &atomic.Pointer[[]event.Event]{}
	empty := []event.Event{}
	fresh.Store(&empty)
	value, _ := s.streams.LoadOrStore(streamID, fresh)
	return value.(*atomic.Pointer[[]event.Event])
}
