// Package storagetest holds the conformance suite every storage.EventStore
// implementation must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
	"github.com/louisbranch/cafe/internal/services/cafe/storage"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) storage.EventStore

// Run exercises factory's stores against the event store contract.
func Run(t *testing.T, factory Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, store storage.EventStore)
	}{
		{"EmptyStream", testEmptyStream},
		{"AppendAssignsSequence", testAppendAssignsSequence},
		{"AppendRoundTripsFields", testAppendRoundTripsFields},
		{"StaleVersionConflicts", testStaleVersionConflicts},
		{"FutureVersionConflicts", testFutureVersionConflicts},
		{"NegativeVersion", testNegativeVersion},
		{"EmptyBatchIsNoop", testEmptyBatchIsNoop},
		{"SnapshotIsolation", testSnapshotIsolation},
		{"ConcurrentSameStream", testConcurrentSameStream},
		{"ConcurrentDistinctStreams", testConcurrentDistinctStreams},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, factory(t))
		})
	}
}

var baseTime = time.UnixMilli(1_700_000_000_000).UTC()

func newEvent(evtType string, n int) event.Event {
	return event.Event{
		Type:          event.Type(evtType),
		Timestamp:     baseTime.Add(time.Duration(n) * time.Second),
		CorrelationID: "corr-1",
		CausationID:   fmt.Sprintf("cmd-%d", n),
		PayloadJSON:   []byte(fmt.Sprintf(`{"n":%d}`, n)),
	}
}

func mustLoad(t *testing.T, store storage.EventStore, streamID string) []event.Event {
	t.Helper()
	events, err := store.LoadStream(context.Background(), streamID)
	if err != nil {
		t.Fatalf("load %s: %v", streamID, err)
	}
	return events
}

func mustAppend(t *testing.T, store storage.EventStore, streamID string, expected int, events ...event.Event) []event.Event {
	t.Helper()
	stored, err := store.AppendIfVersionMatches(context.Background(), streamID, expected, events)
	if err != nil {
		t.Fatalf("append %s at %d: %v", streamID, expected, err)
	}
	return stored
}

func testEmptyStream(t *testing.T, store storage.EventStore) {
	events := mustLoad(t, store, "missing")
	if events == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func testAppendAssignsSequence(t *testing.T, store storage.EventStore) {
	first := mustAppend(t, store, "s-1", 0, newEvent("a", 1), newEvent("b", 2))
	second := mustAppend(t, store, "s-1", 2, newEvent("c", 3))

	if len(first) != 2 || first[0].Seq != 1 || first[1].Seq != 2 {
		t.Fatalf("first batch seqs = %+v", first)
	}
	if len(second) != 1 || second[0].Seq != 3 {
		t.Fatalf("second batch seqs = %+v", second)
	}

	loaded := mustLoad(t, store, "s-1")
	if len(loaded) != 3 {
		t.Fatalf("stream length = %d, want 3", len(loaded))
	}
	for i, evt := range loaded {
		if evt.Seq != uint64(i+1) {
			t.Fatalf("loaded[%d].Seq = %d, want %d", i, evt.Seq, i+1)
		}
		if evt.StreamID != "s-1" {
			t.Fatalf("loaded[%d].StreamID = %q, want s-1", i, evt.StreamID)
		}
	}
	if loaded[2].Type != "c" {
		t.Fatalf("loaded[2].Type = %s, want c", loaded[2].Type)
	}
}

func testAppendRoundTripsFields(t *testing.T, store storage.EventStore) {
	in := newEvent("tab.opened", 7)
	mustAppend(t, store, "s-1", 0, in)
	got := mustLoad(t, store, "s-1")[0]

	if got.Type != in.Type {
		t.Fatalf("type = %s, want %s", got.Type, in.Type)
	}
	if !got.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, in.Timestamp)
	}
	if got.CorrelationID != in.CorrelationID || got.CausationID != in.CausationID {
		t.Fatalf("ids = %q/%q, want %q/%q", got.CorrelationID, got.CausationID, in.CorrelationID, in.CausationID)
	}
	if string(got.PayloadJSON) != string(in.PayloadJSON) {
		t.Fatalf("payload = %s, want %s", got.PayloadJSON, in.PayloadJSON)
	}
}

func testStaleVersionConflicts(t *testing.T, store storage.EventStore) {
	mustAppend(t, store, "s-1", 0, newEvent("a", 1))

	_, err := store.AppendIfVersionMatches(context.Background(), "s-1", 0, []event.Event{newEvent("b", 2)})
	if !errors.Is(err, storage.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if got := len(mustLoad(t, store, "s-1")); got != 1 {
		t.Fatalf("stream length = %d, want 1", got)
	}
}

func testFutureVersionConflicts(t *testing.T, store storage.EventStore) {
	_, err := store.AppendIfVersionMatches(context.Background(), "s-1", 5, []event.Event{newEvent("a", 1)})
	if !errors.Is(err, storage.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if got := len(mustLoad(t, store, "s-1")); got != 0 {
		t.Fatalf("stream length = %d, want 0", got)
	}
}

func testNegativeVersion(t *testing.T, store storage.EventStore) {
	_, err := store.AppendIfVersionMatches(context.Background(), "s-1", -1, []event.Event{newEvent("a", 1)})
	if !errors.Is(err, storage.ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}

func testEmptyBatchIsNoop(t *testing.T, store storage.EventStore) {
	stored, err := store.AppendIfVersionMatches(context.Background(), "s-1", 0, nil)
	if err != nil {
		t.Fatalf("append empty: %v", err)
	}
	if stored != nil {
		t.Fatalf("stored = %v, want nil", stored)
	}
	if got := len(mustLoad(t, store, "s-1")); got != 0 {
		t.Fatalf("stream length = %d, want 0", got)
	}
}

func testSnapshotIsolation(t *testing.T, store storage.EventStore) {
	mustAppend(t, store, "s-1", 0, newEvent("a", 1))
	snapshot := mustLoad(t, store, "s-1")

	mustAppend(t, store, "s-1", 1, newEvent("b", 2))
	if len(snapshot) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(snapshot))
	}

	snapshot[0].Type = "mutated"
	snapshot[0].PayloadJSON[0] = '['
	fresh := mustLoad(t, store, "s-1")
	if fresh[0].Type != "a" || string(fresh[0].PayloadJSON) != `{"n":1}` {
		t.Fatalf("store changed through snapshot: %+v", fresh[0])
	}
}

func testConcurrentSameStream(t *testing.T, store storage.EventStore) {
	mustAppend(t, store, "s-1", 0, newEvent("a", 1))

	const writers = 16
	var wins, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := store.AppendIfVersionMatches(context.Background(), "s-1", 1, []event.Event{newEvent("b", i+2)})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, storage.ErrConcurrencyConflict):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if wins.Load() != 1 {
		t.Fatalf("wins = %d, want 1", wins.Load())
	}
	if conflicts.Load() != writers-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts.Load(), writers-1)
	}
	if got := len(mustLoad(t, store, "s-1")); got != 2 {
		t.Fatalf("stream length = %d, want 2", got)
	}
}

func testConcurrentDistinctStreams(t *testing.T, store storage.EventStore) {
	const streams = 16
	var g errgroup.Group
	for i := 0; i < streams; i++ {
		g.Go(func() error {
			streamID := fmt.Sprintf("s-%d", i)
			for v := 0; v < 3; v++ {
				if _, err := store.AppendIfVersionMatches(context.Background(), streamID, v, []event.Event{newEvent("a", v)}); err != nil {
					return fmt.Errorf("%s at %d: %w", streamID, v, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("distinct streams: %v", err)
	}
	for i := 0; i < streams; i++ {
		if got := len(mustLoad(t, store, fmt.Sprintf("s-%d", i))); got != 3 {
			t.Fatalf("stream s-%d length = %d, want 3", i, got)
		}
	}
}
