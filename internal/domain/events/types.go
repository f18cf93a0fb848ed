package events

// EventType represents a domain event category, enabling type-safe event routing and handling.
type EventType string

// Operator-facing notification types. The string values double as the
// labels clients subscribe to.
const (
	EventTypeAutoScheduleFail    EventType = "AutoScheduleFail"
	EventTypeGeneralFail         EventType = "GeneralFail"
	EventTypeDockFailure         EventType = "DockFailure"
	EventTypeMissionRunUpdated   EventType = "MissionRunUpdated"
	EventTypeMissionRunCompleted EventType = "MissionRunCompleted"
	EventTypeRobotAlert          EventType = "RobotAlert"
)

// Robot agent report types, as relayed from ISAR onto the telemetry topic.
const (
	EventTypeIsarBattery    EventType = "isar_battery"
	EventTypeIsarPressure   EventType = "isar_pressure"
	EventTypeIsarPose       EventType = "isar_pose"
	EventTypeIsarStatus     EventType = "isar_status"
	EventTypeIsarMission    EventType = "isar_mission"
	EventTypeIsarTask       EventType = "isar_task"
	EventTypeIsarInspection EventType = "isar_inspection"
)

// IsarEventTypes lists every robot agent report type.
func IsarEventTypes() []EventType {
	return []EventType{
		EventTypeIsarBattery, EventTypeIsarPressure, EventTypeIsarPose, EventTypeIsarStatus,
		EventTypeIsarMission, EventTypeIsarTask, EventTypeIsarInspection,
	}
}

// PublishOption is a function type that modifies PublishParams.
// It enables flexible configuration of event publishing behavior through functional options.
type PublishOption func(*PublishParams)

// PublishParams contains configuration options for publishing domain events.
// It encapsulates parameters that may affect how events are routed and processed.
type PublishParams struct {
	// Key is used as a partition key to control event routing and ordering.
	Key string
	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string
}

// WithKey returns a PublishOption that sets the partition key for event routing.
// The key helps ensure related events are processed in order by the same consumer.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders returns a PublishOption that attaches metadata headers to an event.
// Headers provide additional context and control over event processing.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}

// ApplyOptions folds opts over the event's own key and headers.
func ApplyOptions(evt DomainEvent, opts []PublishOption) PublishParams {
	p := PublishParams{Key: evt.Key, Headers: evt.Headers}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
