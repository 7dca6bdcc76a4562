package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/command"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/engine"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/tab"
	"github.com/louisbranch/cafe/internal/services/cafe/menu"
	"github.com/louisbranch/cafe/internal/services/cafe/projection"
	"github.com/louisbranch/cafe/internal/services/cafe/projection/chef"
	"github.com/louisbranch/cafe/internal/services/cafe/projection/opentabs"
	"github.com/louisbranch/cafe/internal/services/cafe/storage"
	"github.com/louisbranch/cafe/internal/services/cafe/storage/memory"
	"github.com/louisbranch/cafe/internal/services/cafe/storage/sqlite"
)

// Backend selects the event store implementation.
type Backend string

const (
	// BackendMemory keeps streams in process memory.
	BackendMemory Backend = "memory"
	// BackendSQLite keeps streams in an in-memory SQLite database.
	BackendSQLite Backend = "sqlite"
)

// ParseBackend normalizes a configured backend name. Empty selects memory.
func ParseBackend(raw string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(raw))) {
	case "", BackendMemory:
		return BackendMemory, nil
	case BackendSQLite:
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("unknown store backend %q", raw)
	}
}

// Options configures New.
type Options struct {
	Backend Backend
	Logger  *zap.Logger
	// DeliveryAttempts bounds projection retries per read model and event.
	DeliveryAttempts int
	// DeliveryBackoff is the first retry interval; zero uses the bus default.
	DeliveryBackoff time.Duration
	Menu            *menu.Menu
	Now             func() time.Time
	Tracer          trace.Tracer
}

// Domain is the wiring context handed to callers: the write path plus the
// read models it keeps current.
type Domain struct {
	Dispatcher *engine.Dispatcher
	Bus        *projection.Bus
	Store      storage.EventStore
	OpenTabs   *opentabs.ReadModel
	Chef       *chef.ReadModel
	Menu       *menu.Menu
}

// New builds a Domain. Callers must Close it.
func New(ctx context.Context, opts Options) (*Domain, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Menu == nil {
		m, err := menu.Default()
		if err != nil {
			return nil, fmt.Errorf("load menu: %w", err)
		}
		opts.Menu = m
	}
	store, err := openStore(ctx, opts.Backend)
	if err != nil {
		return nil, err
	}
	d, err := build(store, opts)
	if err != nil {
		_ = closeStore(store)
		return nil, err
	}
	opts.Logger.Debug("domain ready",
		zap.String("backend", string(opts.Backend)),
		zap.Int("command_types", len(d.Dispatcher.CommandTypes())),
	)
	return d, nil
}

func build(store storage.EventStore, opts Options) (*Domain, error) {
	bus := projection.NewBus(projection.Options{
		Logger:          opts.Logger,
		MaxAttempts:     opts.DeliveryAttempts,
		InitialInterval: opts.DeliveryBackoff,
	})
	openTabs := opentabs.New()
	chefTodo := chef.New()
	for _, rm := range []projection.ReadModel{openTabs, chefTodo} {
		if err := bus.Register(rm); err != nil {
			return nil, fmt.Errorf("register read model %s: %w", rm.Name(), err)
		}
	}

	dispatcher, err := engine.New(engine.Config{
		Store:  store,
		Bus:    bus,
		Logger: opts.Logger,
		Now:    opts.Now,
		Tracer: opts.Tracer,
	})
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}
	kind, err := tab.Kind()
	if err != nil {
		return nil, fmt.Errorf("build tab aggregate: %w", err)
	}
	if err := dispatcher.RegisterAggregate(kind, tab.Register); err != nil {
		return nil, fmt.Errorf("register tab aggregate: %w", err)
	}
	if err := dispatcher.Validate(); err != nil {
		return nil, fmt.Errorf("validate dispatcher: %w", err)
	}

	return &Domain{
		Dispatcher: dispatcher,
		Bus:        bus,
		Store:      store,
		OpenTabs:   openTabs,
		Chef:       chefTodo,
		Menu:       opts.Menu,
	}, nil
}

func openStore(ctx context.Context, backend Backend) (storage.EventStore, error) {
	switch backend {
	case "", BackendMemory:
		return memory.New(), nil
	case BackendSQLite:
		store, err := sqlite.Open(ctx)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func closeStore(store storage.EventStore) error {
	if closer, ok := store.(storage.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Close releases the event store.
func (d *Domain) Close() error {
	if d == nil {
		return nil
	}
	if err := closeStore(d.Store); err != nil {
		return fmt.Errorf("close event store: %w", err)
	}
	return nil
}

// ErrUnknownWaiter indicates a waiter who is not on the staff list.
var ErrUnknownWaiter = errors.New("unknown waiter")

// ErrTableOccupied indicates the table already has an open tab.
var ErrTableOccupied = opentabs.ErrTableOccupied

// OpenTab opens a new tab for table and returns its id. A table holds at
// most one open tab.
func (d *Domain) OpenTab(ctx context.Context, table int, waiter string) (string, error) {
	if !d.Menu.IsWaiter(waiter) {
		return "", fmt.Errorf("%w: %s", ErrUnknownWaiter, waiter)
	}
	if existing, err := d.OpenTabs.TabIDForTable(table); err == nil {
		return "", fmt.Errorf("%w: table %d has %s", ErrTableOccupied, table, existing)
	}
	tabID, err := newTabID()
	if err != nil {
		return "", err
	}
	cmd, err := tab.OpenTab(tabID, table, waiter)
	if err != nil {
		return "", err
	}
	if _, err := d.Dispatcher.SendCommand(ctx, cmd); err != nil {
		return "", err
	}
	return tabID, nil
}

// PlaceOrder orders menu lines on the open tab of table.
func (d *Domain) PlaceOrder(ctx context.Context, table int, lines ...menu.Line) ([]event.Event, error) {
	items, err := d.Menu.Order(lines...)
	if err != nil {
		return nil, err
	}
	return d.sendForTable(ctx, table, func(tabID string) (command.Command, error) {
		return tab.PlaceOrder(tabID, items...)
	})
}

// MarkDrinksServed marks drinks on table's tab as served.
func (d *Domain) MarkDrinksServed(ctx context.Context, table int, menuNumbers ...int) ([]event.Event, error) {
	return d.sendForTable(ctx, table, func(tabID string) (command.Command, error) {
		return tab.MarkDrinksServed(tabID, menuNumbers...)
	})
}

// MarkFoodPrepared marks food on table's tab as prepared.
func (d *Domain) MarkFoodPrepared(ctx context.Context, table int, menuNumbers ...int) ([]event.Event, error) {
	return d.sendForTable(ctx, table, func(tabID string) (command.Command, error) {
		return tab.MarkFoodPrepared(tabID, menuNumbers...)
	})
}

// MarkFoodServed marks prepared food on table's tab as served.
func (d *Domain) MarkFoodServed(ctx context.Context, table int, menuNumbers ...int) ([]event.Event, error) {
	return d.sendForTable(ctx, table, func(tabID string) (command.Command, error) {
		return tab.MarkFoodServed(tabID, menuNumbers...)
	})
}

// CloseTab pays and closes table's tab. The stored events carry the
// settled amounts.
func (d *Domain) CloseTab(ctx context.Context, table int, amountPaid tab.Money) ([]event.Event, error) {
	return d.sendForTable(ctx, table, func(tabID string) (command.Command, error) {
		return tab.CloseTab(tabID, amountPaid)
	})
}
