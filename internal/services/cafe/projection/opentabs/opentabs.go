// Package opentabs keeps the waiter-facing view of every open tab.
package opentabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/tab"
	"github.com/louisbranch/cafe/internal/services/cafe/projection"
)

// Name identifies the read model on the bus.
const Name = "open_tabs"

// ErrNotFound indicates no open tab exists for the requested table.
var ErrNotFound = errors.New("open tab not found")

// ErrTableOccupied indicates the table already has a different open tab.
var ErrTableOccupied = errors.New("table already has an open tab")

// Item is one line on a tab.
type Item struct {
	MenuNumber  int
	Description string
	Price       tab.Money
}

// Status is the current picture of one open tab.
type Status struct {
	TabID         string
	Table         int
	Waiter        string
	ToServe       []Item
	InPreparation []Item
	Served        []Item
}

// Invoice is the bill for one open tab.
type Invoice struct {
	TabID            string
	Table            int
	Items            []Item
	Total            tab.Money
	HasUnservedItems bool
}

type entry struct {
	mu     sync.Mutex
	status Status
}

// ReadModel tracks open tabs keyed by tab id, with a table index.
type ReadModel struct {
	mu     sync.RWMutex
	tabs   map[string]*entry
	tables map[int]string
}

var _ projection.ReadModel = (*ReadModel)(nil)

// New returns an empty read model.
func New() *ReadModel {
	return &ReadModel{
		tabs:   make(map[string]*entry),
		tables: make(map[int]string),
	}
}

// Name returns the read model name.
func (m *ReadModel) Name() string { return Name }

// Subscriptions declares the tab events this model consumes.
func (m *ReadModel) Subscriptions() []projection.Subscription {
	return []projection.Subscription{
		{Type: tab.EventTypeOpened, Apply: m.applyOpened},
		{Type: tab.EventTypeDrinksOrdered, Apply: m.applyDrinksOrdered},
		{Type: tab.EventTypeFoodOrdered, Apply: m.applyFoodOrdered},
		{Type: tab.EventTypeFoodPrepared, Apply: m.applyFoodPrepared},
		{Type: tab.EventTypeDrinksServed, Apply: m.applyServed},
		{Type: tab.EventTypeFoodServed, Apply: m.applyServed},
		{Type: tab.EventTypeClosed, Apply: m.applyClosed},
	}
}

// ActiveTableNumbers returns the tables with an open tab in ascending order.
func (m *ReadModel) ActiveTableNumbers() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tables := make([]int, 0, len(m.tables))
	for table := range m.tables {
		tables = append(tables, table)
	}
	sort.Ints(tables)
	return tables
}

// TodoListForWaiter returns, per table served by waiter, the items ready to
// be taken out. Tables with nothing to serve are omitted.
func (m *ReadModel) TodoListForWaiter(waiter string) map[int][]Item {
	todo := make(map[int][]Item)
	for _, e := range m.entries() {
		e.mu.Lock()
		if e.status.Waiter == waiter && len(e.status.ToServe) > 0 {
			todo[e.status.Table] = cloneItems(e.status.ToServe)
		}
		e.mu.Unlock()
	}
	return todo
}

// TabIDForTable resolves the open tab at table.
func (m *ReadModel) TabIDForTable(table int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tabID, ok := m.tables[table]
	if !ok {
		return "", fmt.Errorf("%w: table %d", ErrNotFound, table)
	}
	return tabID, nil
}

// TabForTable returns the status of the open tab at table.
func (m *ReadModel) TabForTable(table int) (Status, error) {
	e, err := m.entryForTable(table)
	if err != nil {
		return Status{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneStatus(e.status), nil
}

// InvoiceForTable returns the bill of the open tab at table.
func (m *ReadModel) InvoiceForTable(table int) (Invoice, error) {
	e, err := m.entryForTable(table)
	if err != nil {
		return Invoice{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	invoice := Invoice{
		TabID:            e.status.TabID,
		Table:            e.status.Table,
		Items:            cloneItems(e.status.Served),
		HasUnservedItems: len(e.status.ToServe) > 0 || len(e.status.InPreparation) > 0,
	}
	for _, item := range e.status.Served {
		invoice.Total += item.Price
	}
	return invoice, nil
}

func (m *ReadModel) applyOpened(_ context.Context, evt event.Event) error {
	var payload tab.OpenPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode %s: %w", evt.Type, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.tables[payload.Table]; ok && existing != evt.StreamID {
		return fmt.Errorf("%w: table %d held by %s", ErrTableOccupied, payload.Table, existing)
	}
	m.tabs[evt.StreamID] = &entry{status: Status{
		TabID:  evt.StreamID,
		Table:  payload.Table,
		Waiter: payload.Waiter,
	}}
	m.tables[payload.Table] = evt.StreamID
	return nil
}

func (m *ReadModel) applyDrinksOrdered(_ context.Context, evt event.Event) error {
	items, err := decodeItems(evt)
	if err != nil {
		return err
	}
	return m.update(evt.StreamID, func(s *Status) error {
		s.ToServe = append(s.ToServe, items...)
		return nil
	})
}

func (m *ReadModel) applyFoodOrdered(_ context.Context, evt event.Event) error {
	items, err := decodeItems(evt)
	if err != nil {
		return err
	}
	return m.update(evt.StreamID, func(s *Status) error {
		s.InPreparation = append(s.InPreparation, items...)
		return nil
	})
}

func (m *ReadModel) applyFoodPrepared(_ context.Context, evt event.Event) error {
	numbers, err := decodeMenuNumbers(evt)
	if err != nil {
		return err
	}
	return m.update(evt.StreamID, func(s *Status) error {
		remaining, moved, err := move(s.InPreparation, numbers)
		if err != nil {
			return fmt.Errorf("%s: %w", evt.Type, err)
		}
		s.InPreparation = remaining
		s.ToServe = append(s.ToServe, moved...)
		return nil
	})
}

func (m *ReadModel) applyServed(_ context.Context, evt event.Event) error {
	numbers, err := decodeMenuNumbers(evt)
	if err != nil {
		return err
	}
	return m.update(evt.StreamID, func(s *Status) error {
		remaining, moved, err := move(s.ToServe, numbers)
		if err != nil {
			return fmt.Errorf("%s: %w", evt.Type, err)
		}
		s.ToServe = remaining
		s.Served = append(s.Served, moved...)
		return nil
	})
}

func (m *ReadModel) applyClosed(_ context.Context, evt event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tabs[evt.StreamID]
	if !ok {
		return fmt.Errorf("%w: tab %s", ErrNotFound, evt.StreamID)
	}
	delete(m.tabs, evt.StreamID)
	if m.tables[e.status.Table] == evt.StreamID {
		delete(m.tables, e.status.Table)
	}
	return nil
}

// update runs fn on a scratch copy and commits it only when fn succeeds, so a
// failed attempt leaves the entry untouched for the next retry.
func (m *ReadModel) update(tabID string, fn func(*Status) error) error {
	m.mu.RLock()
	e, ok := m.tabs[tabID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: tab %s", ErrNotFound, tabID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := cloneStatus(e.status)
	if err := fn(&next); err != nil {
		return err
	}
	e.status = next
	return nil
}

func (m *ReadModel) entries() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entry, 0, len(m.tabs))
	for _, e := range m.tabs {
		out = append(out, e)
	}
	return out
}

func (m *ReadModel) entryForTable(table int) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tabID, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: table %d", ErrNotFound, table)
	}
	return m.tabs[tabID], nil
}

func decodeItems(evt event.Event) ([]Item, error) {
	var payload tab.ItemsOrderedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", evt.Type, err)
	}
	items := make([]Item, 0, len(payload.Items))
	for _, ordered := range payload.Items {
		items = append(items, Item{
			MenuNumber:  ordered.MenuNumber,
			Description: ordered.Description,
			Price:       ordered.Price,
		})
	}
	return items, nil
}

func decodeMenuNumbers(evt event.Event) ([]int, error) {
	var payload tab.MenuNumbersPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", evt.Type, err)
	}
	return payload.MenuNumbers, nil
}

// move takes one item per menu number out of from.
func move(from []Item, numbers []int) (remaining, moved []Item, err error) {
	remaining = cloneItems(from)
	for _, number := range numbers {
		idx := -1
		for i, item := range remaining {
			if item.MenuNumber == number {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, nil, fmt.Errorf("menu number %d not held", number)
		}
		moved = append(moved, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return remaining, moved, nil
}

func cloneItems(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}
	return append([]Item(nil), items...)
}

func cloneStatus(s Status) Status {
	s.ToServe = cloneItems(s.ToServe)
	s.InPreparation = cloneItems(s.InPreparation)
	s.Served = cloneItems(s.Served)
	return s
}
