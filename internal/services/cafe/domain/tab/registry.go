package tab

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/aggregate"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/command"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
)

// AggregateName names the tab aggregate in logs and configuration errors.
const AggregateName = "tab"

var definition = sync.OnceValues(newDefinition)

// Kind returns the tab aggregate definition. It is built once and shared.
func Kind() (*aggregate.Definition[State], error) {
	return definition()
}

func newDefinition() (*aggregate.Definition[State], error) {
	def := aggregate.New(AggregateName, func() State { return State{} })
	for _, cmdType := range CommandTypes() {
		if err := def.HandleCommand(cmdType, Decide); err != nil {
			return nil, err
		}
	}
	for _, evtType := range FoldHandledTypes() {
		if err := def.ApplyEvent(evtType, Fold); err != nil {
			return nil, err
		}
	}
	return def, nil
}

// Register adds the tab command and event definitions to the registries.
func Register(commands *command.Registry, events *event.Registry) error {
	if err := RegisterCommands(commands); err != nil {
		return err
	}
	return RegisterEvents(events)
}

// RegisterCommands registers tab commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	defs := []command.Definition{
		{Type: CommandTypeOpen, ValidatePayload: validateOpenPayload},
		{Type: CommandTypePlaceOrder, ValidatePayload: validatePlaceOrderPayload},
		{Type: CommandTypeMarkDrinksServed, ValidatePayload: validateMenuNumbersPayload},
		{Type: CommandTypeMarkFoodPrepared, ValidatePayload: validateMenuNumbersPayload},
		{Type: CommandTypeMarkFoodServed, ValidatePayload: validateMenuNumbersPayload},
		{Type: CommandTypeClose, ValidatePayload: validateClosePayload},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEvents registers tab events with the shared registry.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	defs := []event.Definition{
		{Type: EventTypeOpened, ValidatePayload: validateOpenPayload},
		{Type: EventTypeDrinksOrdered, ValidatePayload: validateItemsOrderedPayload},
		{Type: EventTypeFoodOrdered, ValidatePayload: validateItemsOrderedPayload},
		{Type: EventTypeDrinksServed, ValidatePayload: validateMenuNumbersPayload},
		{Type: EventTypeFoodPrepared, ValidatePayload: validateMenuNumbersPayload},
		{Type: EventTypeFoodServed, ValidatePayload: validateMenuNumbersPayload},
		{Type: EventTypeClosed, ValidatePayload: validateClosedPayload},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func validateOpenPayload(raw json.RawMessage) error {
	var payload OpenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Table <= 0 {
		return errors.New("table must be positive")
	}
	if strings.TrimSpace(payload.Waiter) == "" {
		return errors.New("waiter is required")
	}
	return nil
}

func validatePlaceOrderPayload(raw json.RawMessage) error {
	var payload PlaceOrderPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return validateItems(payload.Items)
}

func validateItemsOrderedPayload(raw json.RawMessage) error {
	var payload ItemsOrderedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if len(payload.Items) == 0 {
		return errors.New("items are required")
	}
	return validateItems(payload.Items)
}

func validateItems(items []OrderedItem) error {
	for i, item := range items {
		if item.MenuNumber <= 0 {
			return fmt.Errorf("items[%d]: menu number must be positive", i)
		}
		if item.Price < 0 {
			return fmt.Errorf("items[%d]: price must not be negative", i)
		}
	}
	return nil
}

// Empty lists pass here so the decider can reject them with a domain code.
func validateMenuNumbersPayload(raw json.RawMessage) error {
	var payload MenuNumbersPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	for i, number := range payload.MenuNumbers {
		if number <= 0 {
			return fmt.Errorf("menu_numbers[%d]: must be positive", i)
		}
	}
	return nil
}

func validateClosePayload(raw json.RawMessage) error {
	var payload ClosePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.AmountPaid < 0 {
		return errors.New("amount paid must not be negative")
	}
	return nil
}

func validateClosedPayload(raw json.RawMessage) error {
	var payload ClosedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.TipValue != payload.AmountPaid-payload.OrderValue {
		return errors.New("tip must equal amount paid minus order value")
	}
	return nil
}
