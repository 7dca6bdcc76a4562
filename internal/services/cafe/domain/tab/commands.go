package tab

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/command"
)

// OpenTab builds a tab.open command.
func OpenTab(streamID string, table int, waiter string) (command.Command, error) {
	return build(streamID, CommandTypeOpen, OpenPayload{Table: table, Waiter: waiter})
}

// PlaceOrder builds a tab.place_order command.
func PlaceOrder(streamID string, items ...OrderedItem) (command.Command, error) {
	return build(streamID, CommandTypePlaceOrder, PlaceOrderPayload{Items: items})
}

// MarkDrinksServed builds a tab.mark_drinks_served command.
func MarkDrinksServed(streamID string, menuNumbers ...int) (command.Command, error) {
	return build(streamID, CommandTypeMarkDrinksServed, MenuNumbersPayload{MenuNumbers: menuNumbers})
}

// MarkFoodPrepared builds a tab.mark_food_prepared command.
func MarkFoodPrepared(streamID string, menuNumbers ...int) (command.Command, error) {
	return build(streamID, CommandTypeMarkFoodPrepared, MenuNumbersPayload{MenuNumbers: menuNumbers})
}

// MarkFoodServed builds a tab.mark_food_served command.
func MarkFoodServed(streamID string, menuNumbers ...int) (command.Command, error) {
	return build(streamID, CommandTypeMarkFoodServed, MenuNumbersPayload{MenuNumbers: menuNumbers})
}

// CloseTab builds a tab.close command.
func CloseTab(streamID string, amountPaid Money) (command.Command, error) {
	return build(streamID, CommandTypeClose, ClosePayload{AmountPaid: amountPaid})
}

func build(streamID string, cmdType command.Type, payload any) (command.Command, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return command.Command{}, fmt.Errorf("encode %s payload: %w", cmdType, err)
	}
	return command.Command{
		StreamID:    streamID,
		Type:        cmdType,
		PayloadJSON: payloadJSON,
	}, nil
}
