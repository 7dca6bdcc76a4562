package aggregate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/command"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
)

// DecideFunc turns a command into a decision against the current state. It
// must be pure: no clock, randomness or I/O.
type DecideFunc[S any] func(state S, cmd command.Command) command.Decision

// FoldFunc applies one event to state and returns the next state. It must
// not retain or mutate memory reachable from the input state.
type FoldFunc[S any] func(state S, evt event.Event) (S, error)

// Kind is the type-erased view of a Definition used by the dispatcher.
type Kind interface {
	Name() string
	Commands() []command.Type
	Events() []event.Type
	New() Root
}

// Root is one live aggregate instance.
type Root interface {
	Version() int
	Handle(cmd command.Command) (command.Decision, error)
	Apply(evt event.Event) error
}

// Definition declares the capabilities of one aggregate type.
type Definition[S any] struct {
	name     string
	initial  func() S
	deciders map[command.Type]DecideFunc[S]
	folds    map[event.Type]FoldFunc[S]
	commands []command.Type
	events   []event.Type
}

// New creates an empty definition. initial builds the state of a stream with
// no events; a nil initial yields the zero value of S.
func New[S any](name string, initial func() S) *Definition[S] {
	if initial == nil {
		initial = func() S {
			var zero S
			return zero
		}
	}
	return &Definition[S]{
		name:     strings.TrimSpace(name),
		initial:  initial,
		deciders: make(map[command.Type]DecideFunc[S]),
		folds:    make(map[event.Type]FoldFunc[S]),
	}
}

// HandleCommand registers the decider for a command type.
func (d *Definition[S]) HandleCommand(cmdType command.Type, fn DecideFunc[S]) error {
	if fn == nil {
		return errors.New("decide function is required")
	}
	cmdType = command.Type(strings.TrimSpace(string(cmdType)))
	if cmdType == "" {
		return command.ErrTypeRequired
	}
	if _, exists := d.deciders[cmdType]; exists {
		return fmt.Errorf("aggregate %s: command type already handled: %s", d.name, cmdType)
	}
	d.deciders[cmdType] = fn
	d.commands = append(d.commands, cmdType)
	return nil
}

// ApplyEvent registers the fold for an event type.
func (d *Definition[S]) ApplyEvent(evtType event.Type, fn FoldFunc[S]) error {
	if fn == nil {
		return errors.New("fold function is required")
	}
	evtType = event.Type(strings.TrimSpace(string(evtType)))
	if evtType == "" {
		return event.ErrTypeRequired
	}
	if _, exists := d.folds[evtType]; exists {
		return fmt.Errorf("aggregate %s: event type already applied: %s", d.name, evtType)
	}
	d.folds[evtType] = fn
	d.events = append(d.events, evtType)
	return nil
}

// Name returns the aggregate name.
func (d *Definition[S]) Name() string { return d.name }

// Commands lists handled command types in registration order.
func (d *Definition[S]) Commands() []command.Type {
	return append([]command.Type(nil), d.commands...)
}

// Events lists applied event types in registration order.
func (d *Definition[S]) Events() []event.Type {
	return append([]event.Type(nil), d.events...)
}

// New returns a fresh instance in the initial state.
func (d *Definition[S]) New() Root {
	return d.Instantiate()
}

// Instantiate returns a fresh, typed instance in the initial state.
func (d *Definition[S]) Instantiate() *Instance[S] {
	return &Instance[S]{def: d, state: d.initial()}
}

// Instance holds the state replayed for one stream.
type Instance[S any] struct {
	def     *Definition[S]
	state   S
	version int
}

// State returns the current state.
func (i *Instance[S]) State() S { return i.state }

// Version returns the number of events applied.
func (i *Instance[S]) Version() int { return i.version }

// Handle decides cmd against the current state without changing it.
func (i *Instance[S]) Handle(cmd command.Command) (command.Decision, error) {
	decide, ok := i.def.deciders[cmd.Type]
	if !ok {
		return command.Decision{}, &ConfigurationError{
			Aggregate:  i.def.name,
			Capability: CapabilityCommand,
			Type:       string(cmd.Type),
		}
	}
	return decide(i.state, cmd), nil
}

// Apply folds exactly one event into the instance.
func (i *Instance[S]) Apply(evt event.Event) error {
	fold, ok := i.def.folds[evt.Type]
	if !ok {
		return &ConfigurationError{
			Aggregate:  i.def.name,
			Capability: CapabilityEvent,
			Type:       string(evt.Type),
		}
	}
	next, err := fold(i.state, evt)
	if err != nil {
		return fmt.Errorf("fold %s at seq %d: %w", evt.Type, evt.Seq, err)
	}
	i.state = next
	i.version++
	return nil
}
