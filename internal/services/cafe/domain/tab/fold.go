package tab

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
)

// FoldHandledTypes returns the event types handled by the tab fold function.
func FoldHandledTypes() []event.Type {
	return []event.Type{
		EventTypeOpened,
		EventTypeDrinksOrdered,
		EventTypeFoodOrdered,
		EventTypeDrinksServed,
		EventTypeFoodPrepared,
		EventTypeFoodServed,
		EventTypeClosed,
	}
}

// Fold applies an event to tab state. It returns an error if a recognized
// event carries a payload that cannot be unmarshalled or that refers to items
// the tab does not hold.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case EventTypeOpened:
		var payload OpenPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("tab fold %s: %w", evt.Type, err)
		}
		return State{Open: true, Table: payload.Table, Waiter: payload.Waiter}, nil
	case EventTypeDrinksOrdered:
		var payload ItemsOrderedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("tab fold %s: %w", evt.Type, err)
		}
		state.OutstandingDrinks = appendItems(state.OutstandingDrinks, payload.Items)
	case EventTypeFoodOrdered:
		var payload ItemsOrderedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("tab fold %s: %w", evt.Type, err)
		}
		state.OutstandingFood = appendItems(state.OutstandingFood, payload.Items)
	case EventTypeDrinksServed:
		remaining, served, err := foldTake(state.OutstandingDrinks, evt)
		if err != nil {
			return state, err
		}
		state.OutstandingDrinks = remaining
		state.ServedValue += total(served)
	case EventTypeFoodPrepared:
		remaining, prepared, err := foldTake(state.OutstandingFood, evt)
		if err != nil {
			return state, err
		}
		state.OutstandingFood = remaining
		state.PreparedFood = appendItems(state.PreparedFood, prepared)
	case EventTypeFoodServed:
		remaining, served, err := foldTake(state.PreparedFood, evt)
		if err != nil {
			return state, err
		}
		state.PreparedFood = remaining
		state.ServedValue += total(served)
	case EventTypeClosed:
		state.Open = false
	}
	return state, nil
}

func foldTake(pool []OrderedItem, evt event.Event) ([]OrderedItem, []OrderedItem, error) {
	var payload MenuNumbersPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return nil, nil, fmt.Errorf("tab fold %s: %w", evt.Type, err)
	}
	remaining, taken, ok := takeAll(pool, payload.MenuNumbers)
	if !ok {
		return nil, nil, fmt.Errorf("tab fold %s: menu numbers %v do not match held items", evt.Type, payload.MenuNumbers)
	}
	return remaining, taken, nil
}

func appendItems(existing, added []OrderedItem) []OrderedItem {
	out := make([]OrderedItem, 0, len(existing)+len(added))
	out = append(out, existing...)
	return append(out, added...)
}
