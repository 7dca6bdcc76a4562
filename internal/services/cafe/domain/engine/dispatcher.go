package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/cafe/internal/platform/id"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/aggregate"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/command"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
	"github.com/louisbranch/cafe/internal/services/cafe/storage"
)

const (
	tracerName = "github.com/louisbranch/cafe/internal/services/cafe/domain/engine"
	spanName   = "cafe.command"
)

// Publisher receives events after they are stored.
type Publisher interface {
	Publish(ctx context.Context, events ...event.Event)
}

// RegisterFunc adds an aggregate's command and event definitions.
type RegisterFunc func(commands *command.Registry, events *event.Registry) error

// Config wires a Dispatcher.
type Config struct {
	Store  storage.EventStore
	Bus    Publisher
	Logger *zap.Logger
	Now    func() time.Time
	Tracer trace.Tracer
}

type route struct {
	kind    aggregate.Kind
	applies map[event.Type]struct{}
}

// Dispatcher is the command write path.
type Dispatcher struct {
	store    storage.EventStore
	bus      Publisher
	logger   *zap.Logger
	now      func() time.Time
	tracer   trace.Tracer
	commands *command.Registry
	events   *event.Registry
	routes   map[command.Type]route
}

// New creates a dispatcher with empty registries.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &Dispatcher{
		store:    cfg.Store,
		bus:      cfg.Bus,
		logger:   cfg.Logger.Named("engine"),
		now:      cfg.Now,
		tracer:   cfg.Tracer,
		commands: command.NewRegistry(),
		events:   event.NewRegistry(),
		routes:   make(map[command.Type]route),
	}, nil
}

// RegisterAggregate indexes kind's command types. It must run before the
// dispatcher serves commands; it is not safe to call concurrently with
// SendCommand.
func (d *Dispatcher) RegisterAggregate(kind aggregate.Kind, register RegisterFunc) error {
	if kind == nil {
		return ErrKindRequired
	}
	if register != nil {
		if err := register(d.commands, d.events); err != nil {
			return fmt.Errorf("register %s definitions: %w", kind.Name(), err)
		}
	}

	cmdTypes := kind.Commands()
	for _, cmdType := range cmdTypes {
		if existing, routed := d.routes[cmdType]; routed {
			return fmt.Errorf("command type %s already routed to %s", cmdType, existing.kind.Name())
		}
		if _, ok := d.commands.Definition(cmdType); !ok {
			return fmt.Errorf("aggregate %s handles %s without a command definition", kind.Name(), cmdType)
		}
	}
	applies := make(map[event.Type]struct{})
	for _, evtType := range kind.Events() {
		if _, ok := d.events.Definition(evtType); !ok {
			return fmt.Errorf("aggregate %s applies %s without an event definition", kind.Name(), evtType)
		}
		applies[evtType] = struct{}{}
	}
	for _, cmdType := range cmdTypes {
		d.routes[cmdType] = route{kind: kind, applies: applies}
	}
	return nil
}

// Validate checks that every registered command definition has a route and
// every registered event type is applied by a routed aggregate.
func (d *Dispatcher) Validate() error {
	var missing []string
	for _, def := range d.commands.ListDefinitions() {
		if _, ok := d.routes[def.Type]; !ok {
			missing = append(missing, string(def.Type))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrNoHandlerRegistered, strings.Join(missing, ", "))
	}

	applied := make(map[event.Type]struct{})
	for _, r := range d.routes {
		for evtType := range r.applies {
			applied[evtType] = struct{}{}
		}
	}
	var unfolded []string
	for _, evtType := range d.events.Types() {
		if _, ok := applied[evtType]; !ok {
			unfolded = append(unfolded, string(evtType))
		}
	}
	if len(unfolded) > 0 {
		return fmt.Errorf("%w: %s", ErrNoFoldRegistered, strings.Join(unfolded, ", "))
	}
	return nil
}

// CommandTypes lists routed command types in sorted order.
func (d *Dispatcher) CommandTypes() []command.Type {
	types := make([]command.Type, 0, len(d.routes))
	for t := range d.routes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// SendCommand dispatches cmd and returns the events it stored. A decision
// with no events stores nothing and returns nil, nil.
func (d *Dispatcher) SendCommand(ctx context.Context, cmd command.Command) (stored []event.Event, err error) {
	ctx, span := d.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("cafe.command.type", string(cmd.Type)),
		attribute.String("cafe.stream.id", cmd.StreamID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	validated, err := d.commands.ValidateForDecision(cmd)
	if err != nil {
		if errors.Is(err, command.ErrTypeUnknown) {
			return nil, wrapNonRetryable(fmt.Errorf("%w: %s", ErrNoHandlerRegistered, cmd.Type))
		}
		return nil, err
	}
	cmd = validated
	r, ok := d.routes[cmd.Type]
	if !ok {
		return nil, wrapNonRetryable(fmt.Errorf("%w: %s", ErrNoHandlerRegistered, cmd.Type))
	}
	if cmd.CommandID == "" {
		if cmd.CommandID, err = id.NewID(); err != nil {
			return nil, fmt.Errorf("assign command id: %w", err)
		}
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = cmd.CommandID
	}

	root, err := aggregate.Load(ctx, d.store, r.kind, cmd.StreamID)
	if err != nil {
		return nil, classify(err)
	}
	version := root.Version()
	span.SetAttributes(attribute.Int("cafe.stream.version", version))

	decision, err := root.Handle(cmd)
	if err != nil {
		return nil, classify(err)
	}
	if decision.Rejected() {
		violation := newDomainRuleViolation(decision.Rejections)
		span.SetAttributes(attribute.String("cafe.rejection.code", violation.Code))
		d.logger.Debug("command rejected",
			zap.String("command_type", string(cmd.Type)),
			zap.String("stream_id", cmd.StreamID),
			zap.String("code", violation.Code),
		)
		return nil, violation
	}
	if len(decision.Events) == 0 {
		return nil, nil
	}

	prepared, err := d.prepare(cmd, r, decision.Events)
	if err != nil {
		return nil, err
	}

	stored, err = d.store.AppendIfVersionMatches(ctx, cmd.StreamID, version, prepared)
	if err != nil {
		if IsConcurrencyConflict(err) {
			d.logger.Debug("concurrency conflict",
				zap.String("command_type", string(cmd.Type)),
				zap.String("stream_id", cmd.StreamID),
				zap.Int("expected_version", version),
			)
		}
		return nil, fmt.Errorf("append %s events: %w", cmd.Type, err)
	}
	span.SetAttributes(attribute.Int("cafe.events.stored", len(stored)))

	if d.bus != nil {
		// Stored events are facts; delivery must not depend on the caller staying around.
		d.bus.Publish(context.WithoutCancel(ctx), event.CloneAll(stored)...)
	}
	return stored, nil
}

// prepare stamps the envelope of each decided event and checks it against the
// event registry and the aggregate's own fold capabilities.
func (d *Dispatcher) prepare(cmd command.Command, r route, decided []event.Event) ([]event.Event, error) {
	now := d.now().UTC()
	prepared := make([]event.Event, 0, len(decided))
	for _, evt := range decided {
		evt.StreamID = cmd.StreamID
		evt.Timestamp = now
		if evt.CorrelationID == "" {
			evt.CorrelationID = cmd.CorrelationID
		}
		if evt.CausationID == "" {
			evt.CausationID = cmd.CommandID
		}
		vetted, err := d.events.ValidateForAppend(evt)
		if errors.Is(err, event.ErrTypeUnknown) {
			return nil, &aggregate.ConfigurationError{
				Aggregate:  r.kind.Name(),
				Capability: aggregate.CapabilityEvent,
				Type:       string(evt.Type),
				Err:        err,
			}
		}
		if err != nil {
			return nil, wrapNonRetryable(fmt.Errorf("validate %s event: %w", evt.Type, err))
		}
		if _, ok := r.applies[vetted.Type]; !ok {
			return nil, &aggregate.ConfigurationError{
				Aggregate:  r.kind.Name(),
				Capability: aggregate.CapabilityEvent,
				Type:       string(vetted.Type),
			}
		}
		prepared = append(prepared, vetted)
	}
	return prepared, nil
}

func classify(err error) error {
	if aggregate.IsConfigurationError(err) {
		return wrapNonRetryable(err)
	}
	return err
}
