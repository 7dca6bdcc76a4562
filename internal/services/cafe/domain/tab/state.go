package tab

// State captures the replayed tab used to decide commands.
//
// Item slices are never modified in place; folds build new slices so a state
// value handed to a decider stays stable.
type State struct {
	// Open is true between tab.opened and tab.closed.
	Open bool
	// Table is the table number the tab was opened for.
	Table int
	// Waiter names the member of staff serving the table.
	Waiter string
	// OutstandingDrinks are drinks ordered but not yet served.
	OutstandingDrinks []OrderedItem
	// OutstandingFood is food ordered but not yet prepared.
	OutstandingFood []OrderedItem
	// PreparedFood is food prepared but not yet served.
	PreparedFood []OrderedItem
	// ServedValue is the running total of served items.
	ServedValue Money
}

// HasUnservedItems reports whether anything is still outstanding or prepared.
func (s State) HasUnservedItems() bool {
	return len(s.OutstandingDrinks) > 0 || len(s.OutstandingFood) > 0 || len(s.PreparedFood) > 0
}

// takeAll removes one item per requested menu number. It returns the items left
// over and the items taken, or ok=false when any number has no match.
func takeAll(items []OrderedItem, menuNumbers []int) (remaining, taken []OrderedItem, ok bool) {
	if len(menuNumbers) == 0 {
		return nil, nil, false
	}
	remaining = append([]OrderedItem(nil), items...)
	taken = make([]OrderedItem, 0, len(menuNumbers))
	for _, number := range menuNumbers {
		idx := -1
		for i, item := range remaining {
			if item.MenuNumber == number {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, nil, false
		}
		taken = append(taken, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return remaining, taken, true
}

func total(items []OrderedItem) Money {
	var sum Money
	for _, item := range items {
		sum += item.Price
	}
	return sum
}
