package tab

import (
	"encoding/json"
	"strings"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/command"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
)

const (
	CommandTypeOpen             command.Type = "tab.open"
	CommandTypePlaceOrder       command.Type = "tab.place_order"
	CommandTypeMarkDrinksServed command.Type = "tab.mark_drinks_served"
	CommandTypeMarkFoodPrepared command.Type = "tab.mark_food_prepared"
	CommandTypeMarkFoodServed   command.Type = "tab.mark_food_served"
	CommandTypeClose            command.Type = "tab.close"

	EventTypeOpened        event.Type = "tab.opened"
	EventTypeDrinksOrdered event.Type = "tab.drinks_ordered"
	EventTypeFoodOrdered   event.Type = "tab.food_ordered"
	EventTypeDrinksServed  event.Type = "tab.drinks_served"
	EventTypeFoodPrepared  event.Type = "tab.food_prepared"
	EventTypeFoodServed    event.Type = "tab.food_served"
	EventTypeClosed        event.Type = "tab.closed"

	RejectionCodeTabAlreadyOpen       = "TAB_ALREADY_OPEN"
	RejectionCodeTabNotOpen           = "TAB_NOT_OPEN"
	RejectionCodeOrderEmpty           = "ORDER_EMPTY"
	RejectionCodeDrinksNotOutstanding = "DRINKS_NOT_OUTSTANDING"
	RejectionCodeFoodNotOutstanding   = "FOOD_NOT_OUTSTANDING"
	RejectionCodeFoodNotPrepared      = "FOOD_NOT_PREPARED"
	RejectionCodeTabHasUnservedItems  = "TAB_HAS_UNSERVED_ITEMS"
	RejectionCodeMustPayEnough        = "MUST_PAY_ENOUGH"
	RejectionCodePayloadDecodeFailed  = "PAYLOAD_DECODE_FAILED"
)

// CommandTypes returns the command types handled by Decide.
func CommandTypes() []command.Type {
	return []command.Type{
		CommandTypeOpen,
		CommandTypePlaceOrder,
		CommandTypeMarkDrinksServed,
		CommandTypeMarkFoodPrepared,
		CommandTypeMarkFoodServed,
		CommandTypeClose,
	}
}

// Decide returns the decision for a tab command against current state.
func Decide(state State, cmd command.Command) command.Decision {
	switch cmd.Type {
	case CommandTypeOpen:
		return decideOpen(state, cmd)
	case CommandTypePlaceOrder:
		return decidePlaceOrder(state, cmd)
	case CommandTypeMarkDrinksServed:
		return decideMark(state, cmd, state.OutstandingDrinks, EventTypeDrinksServed,
			RejectionCodeDrinksNotOutstanding, "drinks not outstanding")
	case CommandTypeMarkFoodPrepared:
		return decideMark(state, cmd, state.OutstandingFood, EventTypeFoodPrepared,
			RejectionCodeFoodNotOutstanding, "food not outstanding")
	case CommandTypeMarkFoodServed:
		return decideMark(state, cmd, state.PreparedFood, EventTypeFoodServed,
			RejectionCodeFoodNotPrepared, "food not prepared")
	case CommandTypeClose:
		return decideClose(state, cmd)
	}
	return command.Reject(command.Rejection{
		Code:    "COMMAND_TYPE_UNSUPPORTED",
		Message: "command type is not supported by tab decider",
	})
}

func decideOpen(state State, cmd command.Command) command.Decision {
	if state.Open {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeTabAlreadyOpen,
			Message: "tab already open",
		})
	}
	var payload OpenPayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return rejectPayload(err)
	}
	payload.Waiter = strings.TrimSpace(payload.Waiter)
	return command.Accept(newEvent(cmd, EventTypeOpened, payload))
}

func decidePlaceOrder(state State, cmd command.Command) command.Decision {
	if !state.Open {
		return rejectNotOpen()
	}
	var payload PlaceOrderPayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return rejectPayload(err)
	}
	if len(payload.Items) == 0 {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeOrderEmpty,
			Message: "order has no items",
		})
	}

	var drinks, food []OrderedItem
	for _, item := range payload.Items {
		if item.IsDrink {
			drinks = append(drinks, item)
		} else {
			food = append(food, item)
		}
	}
	events := make([]event.Event, 0, 2)
	if len(drinks) > 0 {
		events = append(events, newEvent(cmd, EventTypeDrinksOrdered, ItemsOrderedPayload{Items: drinks}))
	}
	if len(food) > 0 {
		events = append(events, newEvent(cmd, EventTypeFoodOrdered, ItemsOrderedPayload{Items: food}))
	}
	return command.Accept(events...)
}

func decideMark(state State, cmd command.Command, pool []OrderedItem, evtType event.Type, code, message string) command.Decision {
	if !state.Open {
		return rejectNotOpen()
	}
	var payload MenuNumbersPayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return rejectPayload(err)
	}
	if _, _, ok := takeAll(pool, payload.MenuNumbers); !ok {
		return command.Reject(command.Rejection{Code: code, Message: message})
	}
	return command.Accept(newEvent(cmd, evtType, MenuNumbersPayload{
		MenuNumbers: append([]int(nil), payload.MenuNumbers...),
	}))
}

func decideClose(state State, cmd command.Command) command.Decision {
	if !state.Open {
		return rejectNotOpen()
	}
	if state.HasUnservedItems() {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeTabHasUnservedItems,
			Message: "unserved items",
		})
	}
	var payload ClosePayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return rejectPayload(err)
	}
	if payload.AmountPaid < state.ServedValue {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeMustPayEnough,
			Message: "must pay enough",
		})
	}
	return command.Accept(newEvent(cmd, EventTypeClosed, ClosedPayload{
		AmountPaid: payload.AmountPaid,
		OrderValue: state.ServedValue,
		TipValue:   payload.AmountPaid - state.ServedValue,
	}))
}

func rejectNotOpen() command.Decision {
	return command.Reject(command.Rejection{
		Code:    RejectionCodeTabNotOpen,
		Message: "tab not open",
	})
}

func rejectPayload(err error) command.Decision {
	return command.Reject(command.Rejection{
		Code:    RejectionCodePayloadDecodeFailed,
		Message: "decode payload: " + err.Error(),
	})
}

// newEvent encodes payload into an event for cmd. Payload types in this
// package always marshal.
func newEvent(cmd command.Command, evtType event.Type, payload any) event.Event {
	payloadJSON, _ := json.Marshal(payload)
	return command.NewEvent(cmd, evtType, payloadJSON)
}
