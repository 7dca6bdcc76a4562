package projection

import (
	"context"
	"sync"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
)

// sequencer releases one stream's events strictly in Seq order. Events that
// arrive before their predecessors wait in pending; anything at or below the
// released watermark is a duplicate and is dropped.
type sequencer struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]event.Event
}

func newSequencer() *sequencer {
	return &sequencer{next: 1, pending: make(map[uint64]event.Event)}
}

func (s *sequencer) offer(ctx context.Context, b *Bus, evt event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Seq < s.next {
		return
	}
	if _, buffered := s.pending[evt.Seq]; buffered {
		return
	}
	s.pending[evt.Seq] = evt.Clone()

	for {
		ready, ok := s.pending[s.next]
		if !ok {
			return
		}
		delete(s.pending, s.next)
		s.next++
		b.deliver(ctx, ready)
	}
}
