// Package menu holds the café's static catalog: menu items and wait staff.
package menu

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/tab"
)

//go:embed menu.yaml
var defaultMenu string

var (
	// ErrUnknownItem indicates a menu number that is not on the menu.
	ErrUnknownItem = errors.New("unknown menu item")
	// ErrInvalidQuantity indicates a negative order quantity.
	ErrInvalidQuantity = errors.New("order quantity must not be negative")
)

// Item is one entry on the menu.
type Item struct {
	Number      int
	Description string
	IsDrink     bool
	Price       tab.Money
}

// Ordered returns the item as it is recorded on a tab.
func (i Item) Ordered() tab.OrderedItem {
	return tab.OrderedItem{
		MenuNumber:  i.Number,
		Description: i.Description,
		IsDrink:     i.IsDrink,
		Price:       i.Price,
	}
}

// Menu is an immutable catalog. It is safe for concurrent use.
type Menu struct {
	items     []Item
	byNumber  map[int]Item
	waitStaff []string
}

type document struct {
	Items []struct {
		Number      int    `yaml:"number"`
		Description string `yaml:"description"`
		Drink       bool   `yaml:"drink"`
		Price       string `yaml:"price"`
	} `yaml:"items"`
	WaitStaff []string `yaml:"wait_staff"`
}

var loadDefault = sync.OnceValues(func() (*Menu, error) {
	return Load(strings.NewReader(defaultMenu))
})

// Default returns the embedded house menu.
func Default() (*Menu, error) {
	return loadDefault()
}

// Load decodes a YAML menu document.
func Load(r io.Reader) (*Menu, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode menu: %w", err)
	}
	m := &Menu{byNumber: make(map[int]Item, len(doc.Items))}
	for _, raw := range doc.Items {
		if raw.Number <= 0 {
			return nil, fmt.Errorf("menu item %q: number must be positive", raw.Description)
		}
		if _, dup := m.byNumber[raw.Number]; dup {
			return nil, fmt.Errorf("menu item %d defined twice", raw.Number)
		}
		description := strings.TrimSpace(raw.Description)
		if description == "" {
			return nil, fmt.Errorf("menu item %d: description is required", raw.Number)
		}
		price, err := tab.ParseMoney(raw.Price)
		if err != nil {
			return nil, fmt.Errorf("menu item %d: %w", raw.Number, err)
		}
		if price < 0 {
			return nil, fmt.Errorf("menu item %d: price must not be negative", raw.Number)
		}
		item := Item{Number: raw.Number, Description: description, IsDrink: raw.Drink, Price: price}
		m.byNumber[item.Number] = item
		m.items = append(m.items, item)
	}
	sort.Slice(m.items, func(i, j int) bool { return m.items[i].Number < m.items[j].Number })
	for _, name := range doc.WaitStaff {
		if name = strings.TrimSpace(name); name != "" {
			m.waitStaff = append(m.waitStaff, name)
		}
	}
	return m, nil
}

// Items lists the menu ordered by number.
func (m *Menu) Items() []Item {
	return append([]Item(nil), m.items...)
}

// Item looks up a menu number.
func (m *Menu) Item(number int) (Item, bool) {
	item, ok := m.byNumber[number]
	return item, ok
}

// WaitStaff lists the waiters in the order they are configured.
func (m *Menu) WaitStaff() []string {
	return append([]string(nil), m.waitStaff...)
}

// IsWaiter reports whether name is on the staff list.
func (m *Menu) IsWaiter(name string) bool {
	name = strings.TrimSpace(name)
	for _, w := range m.waitStaff {
		if strings.EqualFold(w, name) {
			return true
		}
	}
	return false
}

// Line is one row of an order form: a menu number and how many to order.
type Line struct {
	MenuNumber int `yaml:"item"`
	Quantity   int `yaml:"quantity"`
}

// Order expands lines into one ordered item per unit. Lines with a zero
// quantity are skipped.
func (m *Menu) Order(lines ...Line) ([]tab.OrderedItem, error) {
	var items []tab.OrderedItem
	for _, line := range lines {
		if line.Quantity < 0 {
			return nil, fmt.Errorf("%w: item %d quantity %d", ErrInvalidQuantity, line.MenuNumber, line.Quantity)
		}
		if line.Quantity == 0 {
			continue
		}
		item, ok := m.byNumber[line.MenuNumber]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownItem, line.MenuNumber)
		}
		for n := 0; n < line.Quantity; n++ {
			items = append(items, item.Ordered())
		}
	}
	return items, nil
}
