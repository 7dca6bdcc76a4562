package event

import (
	"bytes"
	"time"
)

// Type identifies the event type string.
type Type string

// Event captures the persisted event envelope.
//
// Seq is the 1-based position of the event inside its stream. It is zero until
// the store accepts the event.
type Event struct {
	StreamID      string
	Seq           uint64
	Type          Type
	Timestamp     time.Time
	CorrelationID string
	CausationID   string
	PayloadJSON   []byte
}

// Clone returns a copy that shares no mutable memory with e.
func (e Event) Clone() Event {
	if e.PayloadJSON != nil {
		e.PayloadJSON = bytes.Clone(e.PayloadJSON)
	}
	return e
}

// CloneAll copies a batch of events.
func CloneAll(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	for i, evt := range events {
		out[i] = evt.Clone()
	}
	return out
}
