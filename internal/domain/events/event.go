package events

import "time"

// DomainEvent encapsulates all event data flowing through the system, providing
// a standardized format for event processing and distribution.
type DomainEvent struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing. Notifications are keyed by
	// installation code so one installation's alerts stay ordered.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on
	// the EventType.
	Payload any
}

// NewDomainEvent stamps an event with the given time.
func NewDomainEvent(typ EventType, key string, payload any, now time.Time) DomainEvent {
	return DomainEvent{Type: typ, Key: key, Timestamp: now, Payload: payload}
}
