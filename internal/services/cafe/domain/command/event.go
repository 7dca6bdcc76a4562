package command

import "github.com/louisbranch/cafe/internal/services/cafe/domain/event"

// NewEvent builds an event.Event that carries the command's addressing and
// correlation fields. The command id becomes the causation id. Timestamps and
// sequence numbers are left for the dispatcher and the store.
func NewEvent(cmd Command, eventType event.Type, payloadJSON []byte) event.Event {
	return event.Event{
		StreamID:      cmd.StreamID,
		Type:          eventType,
		CorrelationID: cmd.CorrelationID,
		CausationID:   cmd.CommandID,
		PayloadJSON:   payloadJSON,
	}
}
