package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/equinor/flotilla-sub005/internal/domain/events"
)

// envelope is the JSON wire format of every message on both topics.
type envelope struct {
	Type      events.EventType  `json:"type"`
	Key       string            `json:"key,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Headers   map[string]string `json:"headers,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
}

func encodeEvent(evt events.DomainEvent, params events.PublishParams) ([]byte, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for event %s: %w", evt.Type, err)
	}
	return json.Marshal(envelope{
		Type:      evt.Type,
		Key:       params.Key,
		Timestamp: evt.Timestamp,
		Headers:   params.Headers,
		Payload:   payload,
	})
}

// decodeEvent returns the event with its payload left as json.RawMessage
// for the handler to decode by type.
func decodeEvent(data []byte) (events.DomainEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.DomainEvent{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Type == "" {
		return events.DomainEvent{}, fmt.Errorf("envelope without type")
	}
	return events.DomainEvent{
		Type:      env.Type,
		Key:       env.Key,
		Headers:   env.Headers,
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	}, nil
}
