package tab

// OrderedItem is one menu item on a tab.
type OrderedItem struct {
	MenuNumber  int    `json:"menu_number"`
	Description string `json:"description"`
	IsDrink     bool   `json:"is_drink"`
	Price       Money  `json:"price"`
}

// OpenPayload captures the payload for tab.open commands and tab.opened events.
type OpenPayload struct {
	Table  int    `json:"table"`
	Waiter string `json:"waiter"`
}

// PlaceOrderPayload captures the payload for tab.place_order commands.
type PlaceOrderPayload struct {
	Items []OrderedItem `json:"items"`
}

// ItemsOrderedPayload captures the payload for tab.drinks_ordered and
// tab.food_ordered events.
type ItemsOrderedPayload struct {
	Items []OrderedItem `json:"items"`
}

// MenuNumbersPayload captures the payload for the mark commands and the
// served/prepared events.
type MenuNumbersPayload struct {
	MenuNumbers []int `json:"menu_numbers"`
}

// ClosePayload captures the payload for tab.close commands.
type ClosePayload struct {
	AmountPaid Money `json:"amount_paid"`
}

// ClosedPayload captures the payload for tab.closed events.
type ClosedPayload struct {
	AmountPaid Money `json:"amount_paid"`
	OrderValue Money `json:"order_value"`
	TipValue   Money `json:"tip_value"`
}
