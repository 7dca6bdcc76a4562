// Package chef keeps the kitchen's list of food waiting to be prepared.
package chef

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/tab"
	"github.com/louisbranch/cafe/internal/services/cafe/projection"
)

// Name identifies the read model on the bus.
const Name = "chef_todo"

// Item is one dish to prepare.
type Item struct {
	MenuNumber  int
	Description string
}

// Group is the food from one order, kept together for the kitchen.
type Group struct {
	TabID string
	Items []Item
}

type pendingGroup struct {
	placed uint64
	items  []Item
}

type entry struct {
	mu     sync.Mutex
	groups []pendingGroup
}

// ReadModel is the chef's todo list in order-placed order. Each tab's groups
// sit behind their own lock, so deliveries for different tabs never contend
// beyond the index lookup.
type ReadModel struct {
	mu     sync.RWMutex
	tabs   map[string]*entry
	placed atomic.Uint64
}

var _ projection.ReadModel = (*ReadModel)(nil)

// New returns an empty todo list.
func New() *ReadModel {
	return &ReadModel{tabs: make(map[string]*entry)}
}

// Name returns the read model name.
func (m *ReadModel) Name() string { return Name }

// Subscriptions declares the tab events this model consumes.
func (m *ReadModel) Subscriptions() []projection.Subscription {
	return []projection.Subscription{
		{Type: tab.EventTypeFoodOrdered, Apply: m.applyFoodOrdered},
		{Type: tab.EventTypeFoodPrepared, Apply: m.applyFoodPrepared},
	}
}

// TodoList returns a copy of the pending groups, oldest order first.
func (m *ReadModel) TodoList() []Group {
	m.mu.RLock()
	ids := make([]string, 0, len(m.tabs))
	entries := make([]*entry, 0, len(m.tabs))
	for id, e := range m.tabs {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	type placedGroup struct {
		placed uint64
		group  Group
	}
	var all []placedGroup
	for i, e := range entries {
		e.mu.Lock()
		for _, g := range e.groups {
			all = append(all, placedGroup{
				placed: g.placed,
				group:  Group{TabID: ids[i], Items: append([]Item(nil), g.items...)},
			})
		}
		e.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].placed < all[j].placed })
	out := make([]Group, len(all))
	for i, pg := range all {
		out[i] = pg.group
	}
	return out
}

func (m *ReadModel) applyFoodOrdered(_ context.Context, evt event.Event) error {
	var payload tab.ItemsOrderedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode %s: %w", evt.Type, err)
	}
	items := make([]Item, 0, len(payload.Items))
	for _, ordered := range payload.Items {
		items = append(items, Item{MenuNumber: ordered.MenuNumber, Description: ordered.Description})
	}
	e := m.tabEntry(evt.StreamID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.groups = append(e.groups, pendingGroup{placed: m.placed.Add(1), items: items})
	return nil
}

// applyFoodPrepared removes one item per menu number, searching the tab's
// groups oldest first, and drops groups that become empty. Nothing changes
// when any number is not pending.
func (m *ReadModel) applyFoodPrepared(_ context.Context, evt event.Event) error {
	var payload tab.MenuNumbersPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode %s: %w", evt.Type, err)
	}
	m.mu.RLock()
	e, ok := m.tabs[evt.StreamID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: no food pending for tab %s", evt.Type, evt.StreamID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next := cloneGroups(e.groups)
	for _, number := range payload.MenuNumbers {
		if !removeOne(next, number) {
			return fmt.Errorf("%s: menu number %d not pending for tab %s", evt.Type, number, evt.StreamID)
		}
	}
	kept := next[:0]
	for _, group := range next {
		if len(group.items) > 0 {
			kept = append(kept, group)
		}
	}
	e.groups = kept
	return nil
}

func (m *ReadModel) tabEntry(tabID string) *entry {
	m.mu.RLock()
	e, ok := m.tabs[tabID]
	m.mu.RUnlock()
	if ok {
		return e
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.tabs[tabID]; !ok {
		e = &entry{}
		m.tabs[tabID] = e
	}
	return e
}

func removeOne(groups []pendingGroup, number int) bool {
	for g := range groups {
		items := groups[g].items
		for i, item := range items {
			if item.MenuNumber == number {
				groups[g].items = append(items[:i], items[i+1:]...)
				return true
			}
		}
	}
	return false
}

func cloneGroups(groups []pendingGroup) []pendingGroup {
	out := make([]pendingGroup, len(groups))
	for i, group := range groups {
		out[i] = pendingGroup{placed: group.placed, items: append([]Item(nil), group.items...)}
	}
	return out
}
