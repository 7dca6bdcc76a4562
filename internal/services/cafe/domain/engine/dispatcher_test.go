package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/aggregate"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/command"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/tab"
	"github.com/louisbranch/cafe/internal/services/cafe/storage"
	"github.com/louisbranch/cafe/internal/services/cafe/storage/memory"
)

var fixedNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

var beer = tab.OrderedItem{MenuNumber: 10, Description: "Beer", IsDrink: true, Price: 250}

type capturePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *capturePublisher) Publish(_ context.Context, events ...event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *capturePublisher) published() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.events...)
}

type fixture struct {
	dispatcher *Dispatcher
	store      storage.EventStore
	bus        *capturePublisher
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = memory.New()
	}
	bus := &capturePublisher{}
	if cfg.Bus == nil {
		cfg.Bus = bus
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	kind, err := tab.Kind()
	if err != nil {
		t.Fatalf("tab kind: %v", err)
	}
	if err := d.RegisterAggregate(kind, tab.Register); err != nil {
		t.Fatalf("register tab: %v", err)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return fixture{dispatcher: d, store: cfg.Store, bus: bus}
}

func must(t *testing.T) func(command.Command, error) command.Command {
	return func(cmd command.Command, err error) command.Command {
		t.Helper()
		if err != nil {
			t.Fatalf("build command: %v", err)
		}
		return cmd
	}
}

func (f fixture) send(t *testing.T, cmd command.Command) []event.Event {
	t.Helper()
	events, err := f.dispatcher.SendCommand(context.Background(), cmd)
	if err != nil {
		t.Fatalf("send %s: %v", cmd.Type, err)
	}
	return events
}

func (f fixture) streamLen(t *testing.T, streamID string) int {
	t.Helper()
	events, err := f.store.LoadStream(context.Background(), streamID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return len(events)
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestSendCommand_StoresStampsAndPublishes(t *testing.T) {
	f := newFixture(t, Config{})
	build := must(t)

	opened := f.send(t, build(tab.OpenTab("tab-1", 42, "Derek")))
	if len(opened) != 1 || opened[0].Seq != 1 || opened[0].Type != tab.EventTypeOpened {
		t.Fatalf("opened = %+v", opened)
	}

	cmd := build(tab.PlaceOrder("tab-1", beer, tab.OrderedItem{MenuNumber: 16, Description: "Beef Noodles", Price: 750}))
	cmd.CommandID = "cmd-7"
	cmd.CorrelationID = "corr-7"
	ordered := f.send(t, cmd)

	if len(ordered) != 2 {
		t.Fatalf("ordered events = %d, want 2", len(ordered))
	}
	for i, evt := range ordered {
		if evt.Seq != uint64(i+2) {
			t.Fatalf("seq[%d] = %d, want %d", i, evt.Seq, i+2)
		}
		if !evt.Timestamp.Equal(fixedNow) {
			t.Fatalf("timestamp = %v, want %v", evt.Timestamp, fixedNow)
		}
		if evt.CausationID != "cmd-7" || evt.CorrelationID != "corr-7" {
			t.Fatalf("ids = %q/%q", evt.CausationID, evt.CorrelationID)
		}
		if evt.StreamID != "tab-1" {
			t.Fatalf("stream id = %q", evt.StreamID)
		}
	}
	if ordered[0].Type != tab.EventTypeDrinksOrdered || ordered[1].Type != tab.EventTypeFoodOrdered {
		t.Fatalf("types = %s, %s", ordered[0].Type, ordered[1].Type)
	}

	published := f.bus.published()
	if len(published) != 3 {
		t.Fatalf("published = %d, want 3", len(published))
	}
	for i, evt := range published {
		if evt.Seq != uint64(i+1) {
			t.Fatalf("published[%d].Seq = %d, want %d", i, evt.Seq, i+1)
		}
	}
}

func TestSendCommand_AssignsCommandID(t *testing.T) {
	f := newFixture(t, Config{})
	events := f.send(t, must(t)(tab.OpenTab("tab-1", 42, "Derek")))
	if events[0].CausationID == "" {
		t.Fatal("expected generated causation id")
	}
	if events[0].CorrelationID != events[0].CausationID {
		t.Fatalf("correlation = %q, want causation %q", events[0].CorrelationID, events[0].CausationID)
	}
}

func TestSendCommand_DomainRuleViolation(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.dispatcher.SendCommand(context.Background(), must(t)(tab.PlaceOrder("tab-1", beer)))

	var violation *DomainRuleViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected DomainRuleViolation, got %v", err)
	}
	if violation.Code != tab.RejectionCodeTabNotOpen || violation.Message != "tab not open" {
		t.Fatalf("violation = %+v", violation)
	}
	if code, ok := RejectionCode(err); !ok || code != tab.RejectionCodeTabNotOpen {
		t.Fatalf("rejection code = %q, %v", code, ok)
	}
	if IsNonRetryable(err) || IsConcurrencyConflict(err) {
		t.Fatalf("domain violation misclassified: %v", err)
	}
	if f.streamLen(t, "tab-1") != 0 {
		t.Fatal("rejected command stored events")
	}
	if len(f.bus.published()) != 0 {
		t.Fatal("rejected command published events")
	}
}

func TestSendCommand_NoHandlerRegistered(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.dispatcher.SendCommand(context.Background(), command.Command{StreamID: "tab-1", Type: "tab.refill"})
	if !errors.Is(err, ErrNoHandlerRegistered) {
		t.Fatalf("expected ErrNoHandlerRegistered, got %v", err)
	}
	if !IsNonRetryable(err) {
		t.Fatal("expected non-retryable error")
	}
	if IsDomainRuleViolation(err) {
		t.Fatal("routing error reported as domain violation")
	}
}

func TestSendCommand_EnvelopeErrors(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if _, err := f.dispatcher.SendCommand(ctx, command.Command{Type: tab.CommandTypeOpen}); !errors.Is(err, command.ErrStreamIDRequired) {
		t.Fatalf("expected ErrStreamIDRequired, got %v", err)
	}
	if _, err := f.dispatcher.SendCommand(ctx, command.Command{StreamID: "tab-1"}); !errors.Is(err, command.ErrTypeRequired) {
		t.Fatalf("expected ErrTypeRequired, got %v", err)
	}
	bad := command.Command{StreamID: "tab-1", Type: tab.CommandTypeOpen, PayloadJSON: []byte("{")}
	if _, err := f.dispatcher.SendCommand(ctx, bad); !errors.Is(err, command.ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid, got %v", err)
	}
}

// racingStore lets one foreign writer slip in between load and append.
type racingStore struct {
	storage.EventStore
	once sync.Once
}

func (s *racingStore) AppendIfVersionMatches(ctx context.Context, streamID string, expected int, events []event.Event) ([]event.Event, error) {
	s.once.Do(func() {
		intruder := event.Event{Type: tab.EventTypeOpened, Timestamp: fixedNow, PayloadJSON: []byte(`{"table":1,"waiter":"Jo"}`)}
		if _, err := s.EventStore.AppendIfVersionMatches(ctx, streamID, expected, []event.Event{intruder}); err != nil {
			panic(err)
		}
	})
	return s.EventStore.AppendIfVersionMatches(ctx, streamID, expected, events)
}

func TestSendCommand_ConcurrencyConflict(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(t, Config{Store: &racingStore{EventStore: memory.New()}, Logger: zap.New(core)})

	_, err := f.dispatcher.SendCommand(context.Background(), must(t)(tab.OpenTab("tab-1", 42, "Derek")))
	if !errors.Is(err, storage.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if !IsConcurrencyConflict(err) || IsNonRetryable(err) {
		t.Fatalf("conflict misclassified: %v", err)
	}
	if len(f.bus.published()) != 0 {
		t.Fatal("conflicting command published events")
	}
	if f.streamLen(t, "tab-1") != 1 {
		t.Fatal("expected only the intruding event in the stream")
	}
	if logs.FilterMessage("concurrency conflict").Len() != 1 {
		t.Fatal("expected conflict debug log")
	}
}

func TestSendCommand_ConcurrentSameStream(t *testing.T) {
	f := newFixture(t, Config{})
	f.send(t, must(t)(tab.OpenTab("tab-1", 42, "Derek")))

	const senders = 12
	var wins, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < senders; i++ {
		g.Go(func() error {
			cmd, err := tab.PlaceOrder("tab-1", beer)
			if err != nil {
				return err
			}
			_, err = f.dispatcher.SendCommand(context.Background(), cmd)
			switch {
			case err == nil:
				wins.Add(1)
			case IsConcurrencyConflict(err):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wins.Load() < 1 || wins.Load()+conflicts.Load() != senders {
		t.Fatalf("wins=%d conflicts=%d", wins.Load(), conflicts.Load())
	}
	if got := f.streamLen(t, "tab-1"); got != 1+int(wins.Load()) {
		t.Fatalf("stream length = %d, want %d", got, 1+wins.Load())
	}
	if got := len(f.bus.published()); got != 1+int(wins.Load()) {
		t.Fatalf("published = %d, want %d", got, 1+wins.Load())
	}
}

type counterState struct{ Seen int }

func counterKind(t *testing.T, decide aggregate.DecideFunc[counterState]) *aggregate.Definition[counterState] {
	t.Helper()
	def := aggregate.New("counter", func() counterState { return counterState{} })
	if err := def.HandleCommand("counter.bump", decide); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := def.ApplyEvent("counter.bumped", func(s counterState, _ event.Event) (counterState, error) {
		s.Seen++
		return s, nil
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	return def
}

func registerCounter(extraEvents ...event.Type) RegisterFunc {
	return func(commands *command.Registry, events *event.Registry) error {
		if err := commands.Register(command.Definition{Type: "counter.bump"}); err != nil {
			return err
		}
		for _, t := range append([]event.Type{"counter.bumped"}, extraEvents...) {
			if err := events.Register(event.Definition{Type: t}); err != nil {
				return err
			}
		}
		return nil
	}
}

func newCounterDispatcher(t *testing.T, decide aggregate.DecideFunc[counterState], extraEvents ...event.Type) (*Dispatcher, *capturePublisher, storage.EventStore) {
	t.Helper()
	store := memory.New()
	bus := &capturePublisher{}
	d, err := New(Config{Store: store, Bus: bus})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.RegisterAggregate(counterKind(t, decide), registerCounter(extraEvents...)); err != nil {
		t.Fatalf("register counter: %v", err)
	}
	return d, bus, store
}

func TestSendCommand_ZeroEvents(t *testing.T) {
	d, bus, store := newCounterDispatcher(t, func(counterState, command.Command) command.Decision {
		return command.Accept()
	})
	events, err := d.SendCommand(context.Background(), command.Command{StreamID: "p-1", Type: "counter.bump"})
	if err != nil || events != nil {
		t.Fatalf("send = %v, %v; want nil, nil", events, err)
	}
	stream, _ := store.LoadStream(context.Background(), "p-1")
	if len(stream) != 0 || len(bus.published()) != 0 {
		t.Fatal("zero-event decision stored or published")
	}
}

func TestSendCommand_UnregisteredEventIsConfigurationError(t *testing.T) {
	d, bus, store := newCounterDispatcher(t, func(_ counterState, cmd command.Command) command.Decision {
		return command.Accept(command.NewEvent(cmd, "counter.exploded", nil))
	})
	_, err := d.SendCommand(context.Background(), command.Command{StreamID: "p-1", Type: "counter.bump"})
	if !aggregate.IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if !IsNonRetryable(err) || IsDomainRuleViolation(err) {
		t.Fatalf("configuration error misclassified: %v", err)
	}
	stream, _ := store.LoadStream(context.Background(), "p-1")
	if len(stream) != 0 || len(bus.published()) != 0 {
		t.Fatal("miswired decision stored or published")
	}
}

func TestSendCommand_EventWithoutFoldIsConfigurationError(t *testing.T) {
	d, _, _ := newCounterDispatcher(t, func(_ counterState, cmd command.Command) command.Decision {
		return command.Accept(command.NewEvent(cmd, "counter.orphan", nil))
	}, "counter.orphan")
	_, err := d.SendCommand(context.Background(), command.Command{StreamID: "p-1", Type: "counter.bump"})
	var cfgErr *aggregate.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Type != "counter.orphan" {
		t.Fatalf("expected ConfigurationError for counter.orphan, got %v", err)
	}
}

func TestSendCommand_ReplaysBeforeDeciding(t *testing.T) {
	var seen []int
	d, _, _ := newCounterDispatcher(t, func(s counterState, cmd command.Command) command.Decision {
		seen = append(seen, s.Seen)
		return command.Accept(command.NewEvent(cmd, "counter.bumped", nil))
	})
	for i := 0; i < 3; i++ {
		if _, err := d.SendCommand(context.Background(), command.Command{StreamID: "p-1", Type: "counter.bump"}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if len(seen) != 3 || seen[0] != 0 || seen[1] != 1 || seen[2] != 2 {
		t.Fatalf("states seen = %v, want [0 1 2]", seen)
	}
}

func TestRegisterAggregate_Errors(t *testing.T) {
	d, err := New(Config{Store: memory.New()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	noop := func(counterState, command.Command) command.Decision { return command.Decision{} }

	if err := d.RegisterAggregate(nil, nil); !errors.Is(err, ErrKindRequired) {
		t.Fatalf("expected ErrKindRequired, got %v", err)
	}
	if err := d.RegisterAggregate(counterKind(t, noop), nil); err == nil {
		t.Fatal("expected error for command without definition")
	}
	if err := d.RegisterAggregate(counterKind(t, noop), registerCounter()); err != nil {
		t.Fatalf("register counter: %v", err)
	}
	if err := d.RegisterAggregate(counterKind(t, noop), nil); err == nil {
		t.Fatal("expected error for duplicate route")
	}
	if types := d.CommandTypes(); len(types) != 1 || types[0] != "counter.bump" {
		t.Fatalf("command types = %v", types)
	}
}

func TestRegisterAggregate_EventWithoutDefinition(t *testing.T) {
	d, err := New(Config{Store: memory.New()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	noop := func(counterState, command.Command) command.Decision { return command.Decision{} }
	onlyCommands := func(commands *command.Registry, _ *event.Registry) error {
		return commands.Register(command.Definition{Type: "counter.bump"})
	}
	if err := d.RegisterAggregate(counterKind(t, noop), onlyCommands); err == nil {
		t.Fatal("expected error for applied event without definition")
	}
}

func TestValidate_ReportsUnroutedCommands(t *testing.T) {
	d, err := New(Config{Store: memory.New()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	kind, _ := tab.Kind()
	if err := d.RegisterAggregate(kind, tab.Register); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.commands.Register(command.Definition{Type: "tab.split_bill"}); err != nil {
		t.Fatalf("register extra: %v", err)
	}
	if err := d.Validate(); !errors.Is(err, ErrNoHandlerRegistered) {
		t.Fatalf("expected ErrNoHandlerRegistered, got %v", err)
	}
}

func TestValidate_ReportsUnfoldedEvents(t *testing.T) {
	d, err := New(Config{Store: memory.New()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	kind, _ := tab.Kind()
	if err := d.RegisterAggregate(kind, tab.Register); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.events.Register(event.Definition{Type: "tab.bill_split"}); err != nil {
		t.Fatalf("register extra: %v", err)
	}
	err = d.Validate()
	if !errors.Is(err, ErrNoFoldRegistered) || !strings.Contains(err.Error(), "tab.bill_split") {
		t.Fatalf("expected ErrNoFoldRegistered for tab.bill_split, got %v", err)
	}
}

func TestSendCommand_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	f := newFixture(t, Config{Tracer: provider.Tracer("test")})

	f.send(t, must(t)(tab.OpenTab("tab-1", 42, "Derek")))
	_, _ = f.dispatcher.SendCommand(context.Background(), must(t)(tab.OpenTab("tab-1", 42, "Derek")))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	first := attrs(spans[0].Attributes())
	if spans[0].Name() != "cafe.command" {
		t.Fatalf("span name = %q", spans[0].Name())
	}
	if first["cafe.command.type"] != string(tab.CommandTypeOpen) || first["cafe.stream.id"] != "tab-1" {
		t.Fatalf("span attributes = %v", first)
	}
	if spans[0].Status().Code == codes.Error {
		t.Fatal("successful dispatch marked as error")
	}
	second := attrs(spans[1].Attributes())
	if spans[1].Status().Code != codes.Error || second["cafe.rejection.code"] != tab.RejectionCodeTabAlreadyOpen {
		t.Fatalf("rejected span = %v / %v", spans[1].Status(), second)
	}
}

func attrs(kvs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
