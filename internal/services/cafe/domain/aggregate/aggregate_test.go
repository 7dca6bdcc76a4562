package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/command"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
)

type counterState struct {
	Total  int
	Ticked []int
}

func counterDefinition(t *testing.T) *Definition[counterState] {
	t.Helper()
	def := New("counter", func() counterState { return counterState{} })
	if err := def.HandleCommand("counter.add", func(state counterState, cmd command.Command) command.Decision {
		var payload struct {
			By int `json:"by"`
		}
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		if payload.By <= 0 {
			return command.Reject(command.Rejection{Code: "BY_NOT_POSITIVE", Message: "by must be positive"})
		}
		return command.Accept(command.NewEvent(cmd, "counter.added", cmd.PayloadJSON))
	}); err != nil {
		t.Fatalf("handle command: %v", err)
	}
	if err := def.ApplyEvent("counter.added", func(state counterState, evt event.Event) (counterState, error) {
		var payload struct {
			By int `json:"by"`
		}
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, err
		}
		state.Total += payload.By
		state.Ticked = append(append([]int(nil), state.Ticked...), payload.By)
		return state, nil
	}); err != nil {
		t.Fatalf("apply event: %v", err)
	}
	return def
}

type fakeLoader struct {
	events []event.Event
	err    error
}

func (f fakeLoader) LoadStream(context.Context, string) ([]event.Event, error) {
	return f.events, f.err
}

func added(seq uint64, by string) event.Event {
	return event.Event{StreamID: "c-1", Seq: seq, Type: "counter.added", PayloadJSON: []byte(`{"by":` + by + `}`)}
}

func TestLoad_ReplaysInOrder(t *testing.T) {
	def := counterDefinition(t)
	root, err := Load(context.Background(), fakeLoader{events: []event.Event{added(1, "2"), added(2, "3")}}, def, "c-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if root.Version() != 2 {
		t.Fatalf("version = %d, want 2", root.Version())
	}
	state := root.(*Instance[counterState]).State()
	if state.Total != 5 {
		t.Fatalf("total = %d, want 5", state.Total)
	}
}

func TestLoad_EmptyStreamIsInitialState(t *testing.T) {
	def := counterDefinition(t)
	root, err := Load(context.Background(), fakeLoader{events: []event.Event{}}, def, "c-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if root.Version() != 0 {
		t.Fatalf("version = %d, want 0", root.Version())
	}
}

func TestLoad_SequenceGap(t *testing.T) {
	def := counterDefinition(t)
	_, err := Load(context.Background(), fakeLoader{events: []event.Event{added(1, "1"), added(3, "1")}}, def, "c-1")
	if !errors.Is(err, ErrSequenceGap) {
		t.Fatalf("expected ErrSequenceGap, got %v", err)
	}
}

func TestLoad_PropagatesLoaderError(t *testing.T) {
	loaderErr := errors.New("boom")
	_, err := Load(context.Background(), fakeLoader{err: loaderErr}, counterDefinition(t), "c-1")
	if !errors.Is(err, loaderErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestLoad_RequiresCollaborators(t *testing.T) {
	if _, err := Load(context.Background(), nil, counterDefinition(t), "c-1"); !errors.Is(err, ErrStreamLoaderRequired) {
		t.Fatalf("expected ErrStreamLoaderRequired, got %v", err)
	}
	if _, err := Load(context.Background(), fakeLoader{}, nil, "c-1"); !errors.Is(err, ErrKindRequired) {
		t.Fatalf("expected ErrKindRequired, got %v", err)
	}
}

func TestApply_UnknownEventIsConfigurationError(t *testing.T) {
	inst := counterDefinition(t).Instantiate()
	err := inst.Apply(event.Event{Seq: 1, Type: "counter.exploded"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Capability != CapabilityEvent || cfgErr.Type != "counter.exploded" {
		t.Fatalf("config error = %+v", cfgErr)
	}
	if inst.Version() != 0 {
		t.Fatalf("version = %d, want 0", inst.Version())
	}
}

func TestApply_FoldFailureIsWrapped(t *testing.T) {
	inst := counterDefinition(t).Instantiate()
	err := inst.Apply(event.Event{Seq: 1, Type: "counter.added", PayloadJSON: []byte("{")})
	if err == nil {
		t.Fatal("expected fold error")
	}
	if IsConfigurationError(err) {
		t.Fatalf("fold failure must not be a configuration error: %v", err)
	}
}

func TestHandle_UnknownCommandIsConfigurationError(t *testing.T) {
	inst := counterDefinition(t).Instantiate()
	_, err := inst.Handle(command.Command{Type: "counter.reset"})
	if !IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestHandle_DoesNotMutate(t *testing.T) {
	inst := counterDefinition(t).Instantiate()
	if err := Replay(inst, []event.Event{added(1, "4")}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	decision, err := inst.Handle(command.Command{StreamID: "c-1", Type: "counter.add", PayloadJSON: []byte(`{"by":1}`)})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(decision.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(decision.Events))
	}
	if inst.Version() != 1 || inst.State().Total != 4 {
		t.Fatalf("instance changed by handle: version=%d total=%d", inst.Version(), inst.State().Total)
	}
}

func TestHandle_Rejection(t *testing.T) {
	inst := counterDefinition(t).Instantiate()
	decision, err := inst.Handle(command.Command{Type: "counter.add", PayloadJSON: []byte(`{"by":0}`)})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !decision.Rejected() || decision.Rejections[0].Code != "BY_NOT_POSITIVE" {
		t.Fatalf("decision = %+v", decision)
	}
}

func TestApply_Deterministic(t *testing.T) {
	def := counterDefinition(t)
	events := []event.Event{added(1, "1"), added(2, "7"), added(3, "2")}
	first := def.Instantiate()
	second := def.Instantiate()
	if err := Replay(first, events); err != nil {
		t.Fatalf("replay first: %v", err)
	}
	if err := Replay(second, events); err != nil {
		t.Fatalf("replay second: %v", err)
	}
	a, b := first.State(), second.State()
	if a.Total != b.Total || len(a.Ticked) != len(b.Ticked) {
		t.Fatalf("states differ: %+v vs %+v", a, b)
	}
	for i := range a.Ticked {
		if a.Ticked[i] != b.Ticked[i] {
			t.Fatalf("ticked[%d] = %d vs %d", i, a.Ticked[i], b.Ticked[i])
		}
	}
}

func TestDefinition_DuplicateCapabilities(t *testing.T) {
	def := counterDefinition(t)
	noopDecide := func(counterState, command.Command) command.Decision { return command.Decision{} }
	noopFold := func(s counterState, _ event.Event) (counterState, error) { return s, nil }
	if err := def.HandleCommand("counter.add", noopDecide); err == nil {
		t.Fatal("expected duplicate command error")
	}
	if err := def.ApplyEvent("counter.added", noopFold); err == nil {
		t.Fatal("expected duplicate event error")
	}
	if err := def.HandleCommand(" ", noopDecide); !errors.Is(err, command.ErrTypeRequired) {
		t.Fatalf("expected ErrTypeRequired, got %v", err)
	}
	if err := def.ApplyEvent("counter.other", nil); err == nil {
		t.Fatal("expected nil fold error")
	}
}

func TestDefinition_ListsCapabilities(t *testing.T) {
	def := counterDefinition(t)
	if got := def.Commands(); len(got) != 1 || got[0] != "counter.add" {
		t.Fatalf("commands = %v", got)
	}
	if got := def.Events(); len(got) != 1 || got[0] != "counter.added" {
		t.Fatalf("events = %v", got)
	}
	if def.Name() != "counter" {
		t.Fatalf("name = %q, want counter", def.Name())
	}
}
