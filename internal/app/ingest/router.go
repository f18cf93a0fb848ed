// Package ingest turns robot agent reports into status and telemetry
// updates. Reports reach it either from the event bus or from the HTTP
// callback routes; both paths end in the same Router methods.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/app/scheduling"
	"github.com/equinor/flotilla-sub005/internal/domain/events"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
)

// ErrInvalidReport marks a report that can not be decoded or names an
// unknown status.
var ErrInvalidReport = errors.New("invalid robot agent report")

// StatusHandler applies mission, task and inspection status reports.
type StatusHandler interface {
	HandleMissionUpdate(ctx context.Context, u scheduling.MissionUpdate) error
	HandleTaskUpdate(ctx context.Context, u scheduling.TaskUpdate) error
	HandleInspectionUpdate(ctx context.Context, u scheduling.InspectionUpdate) error
}

// TelemetryHandler applies robot telemetry keyed by ISAR id.
type TelemetryHandler interface {
	UpdateBatteryLevel(ctx context.Context, isarID string, level float64) error
	UpdatePressureLevel(ctx context.Context, isarID string, level *float64) error
	UpdatePose(ctx context.Context, isarID string, pose shared.Pose) error
	UpdateRobotStatus(ctx context.Context, isarID string, status robot.Status) error
}

var (
	_ StatusHandler    = (*scheduling.StatusTracker)(nil)
	_ TelemetryHandler = (*scheduling.TelemetryService)(nil)
)

// Router dispatches reports by type.
type Router struct {
	status    StatusHandler
	telemetry TelemetryHandler

	logger *logger.Logger
	tracer trace.Tracer
}

// NewRouter creates a Router.
func NewRouter(status StatusHandler, telemetry TelemetryHandler, logger *logger.Logger, tracer trace.Tracer) *Router {
	return &Router{
		status:    status,
		telemetry: telemetry,
		logger:    logger.With("component", "isar_ingest"),
		tracer:    tracer,
	}
}

// Start subscribes the router to every robot agent report type.
func (r *Router) Start(ctx context.Context, sub events.DomainEventSubscriber) error {
	if err := sub.Subscribe(ctx, events.IsarEventTypes(), r.HandleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to robot agent reports: %w", err)
	}
	r.logger.Info(ctx, "Robot agent report ingestion started")
	return nil
}

// HandleEvent decodes evt's payload by type and applies it. The event key
// stands in for a report without an isar_id.
func (r *Router) HandleEvent(ctx context.Context, evt events.DomainEvent) error {
	ctx, span := r.tracer.Start(ctx, "isar_ingest.handle_event",
		trace.WithAttributes(
			attribute.String("event_type", string(evt.Type)),
			attribute.String("key", evt.Key),
		))
	defer span.End()

	err := r.route(ctx, evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to handle report")
	}
	return err
}

func (r *Router) route(ctx context.Context, evt events.DomainEvent) error {
	switch evt.Type {
	case events.EventTypeIsarBattery:
		rep, err := decodePayload[BatteryReport](evt.Payload)
		if err != nil {
			return err
		}
		return r.Battery(ctx, orKey(rep.IsarID, evt.Key), rep)
	case events.EventTypeIsarPressure:
		rep, err := decodePayload[PressureReport](evt.Payload)
		if err != nil {
			return err
		}
		return r.Pressure(ctx, orKey(rep.IsarID, evt.Key), rep)
	case events.EventTypeIsarPose:
		rep, err := decodePayload[PoseReport](evt.Payload)
		if err != nil {
			return err
		}
		return r.Pose(ctx, orKey(rep.IsarID, evt.Key), rep)
	case events.EventTypeIsarStatus:
		rep, err := decodePayload[StatusReport](evt.Payload)
		if err != nil {
			return err
		}
		return r.RobotStatus(ctx, orKey(rep.IsarID, evt.Key), rep)
	case events.EventTypeIsarMission:
		rep, err := decodePayload[MissionReport](evt.Payload)
		if err != nil {
			return err
		}
		rep.IsarID = orKey(rep.IsarID, evt.Key)
		return r.Mission(ctx, rep)
	case events.EventTypeIsarTask:
		rep, err := decodePayload[TaskReport](evt.Payload)
		if err != nil {
			return err
		}
		rep.IsarID = orKey(rep.IsarID, evt.Key)
		return r.Task(ctx, rep)
	case events.EventTypeIsarInspection:
		rep, err := decodePayload[InspectionReport](evt.Payload)
		if err != nil {
			return err
		}
		rep.IsarID = orKey(rep.IsarID, evt.Key)
		return r.Inspection(ctx, rep)
	default:
		r.logger.Debug(ctx, "Ignoring event of unhandled type", "event_type", evt.Type)
		return nil
	}
}

func orKey(id, key string) string {
	if id != "" {
		return id
	}
	return key
}

// decodePayload accepts the typed report, a pointer to it, raw JSON from
// Kafka, or any JSON-encodable value such as a decoded map.
func decodePayload[T any](payload any) (T, error) {
	var out T
	switch p := payload.(type) {
	case T:
		return p, nil
	case *T:
		if p == nil {
			return out, fmt.Errorf("nil %T payload: %w", out, ErrInvalidReport)
		}
		return *p, nil
	case json.RawMessage:
		return unmarshalPayload[T](p)
	case []byte:
		return unmarshalPayload[T](p)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return out, fmt.Errorf("payload %T: %v: %w", payload, err, ErrInvalidReport)
		}
		return unmarshalPayload[T](data)
	}
}

func unmarshalPayload[T any](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %T: %v: %w", out, err, ErrInvalidReport)
	}
	return out, nil
}

func requireIsarID(isarID string) error {
	if isarID == "" {
		return fmt.Errorf("missing isar_id: %w", ErrInvalidReport)
	}
	return nil
}

// Battery records a battery level.
func (r *Router) Battery(ctx context.Context, isarID string, rep BatteryReport) error {
	if err := requireIsarID(isarID); err != nil {
		return err
	}
	return r.telemetry.UpdateBatteryLevel(ctx, isarID, rep.BatteryLevel)
}

// Pressure records a pressure level. A nil level clears it.
func (r *Router) Pressure(ctx context.Context, isarID string, rep PressureReport) error {
	if err := requireIsarID(isarID); err != nil {
		return err
	}
	return r.telemetry.UpdatePressureLevel(ctx, isarID, rep.PressureLevel)
}

// Pose records the robot's pose.
func (r *Router) Pose(ctx context.Context, isarID string, rep PoseReport) error {
	if err := requireIsarID(isarID); err != nil {
		return err
	}
	return r.telemetry.UpdatePose(ctx, isarID, rep.Pose)
}

// RobotStatus records the robot's operational status.
func (r *Router) RobotStatus(ctx context.Context, isarID string, rep StatusReport) error {
	if err := requireIsarID(isarID); err != nil {
		return err
	}
	status := robot.ParseStatus(rep.Status)
	if status == "" {
		return fmt.Errorf("robot status %q: %w", rep.Status, ErrInvalidReport)
	}
	return r.telemetry.UpdateRobotStatus(ctx, isarID, status)
}

// Mission applies a mission status report.
func (r *Router) Mission(ctx context.Context, rep MissionReport) error {
	if err := requireIsarID(rep.IsarID); err != nil {
		return err
	}
	status := mission.ParseMissionStatus(rep.Status)
	if status == "" {
		return fmt.Errorf("mission status %q: %w", rep.Status, ErrInvalidReport)
	}
	return r.status.HandleMissionUpdate(ctx, scheduling.MissionUpdate{
		IsarID:        rep.IsarID,
		IsarMissionID: rep.MissionID,
		Status:        status,
	})
}

// Task applies a task status report.
func (r *Router) Task(ctx context.Context, rep TaskReport) error {
	if err := requireIsarID(rep.IsarID); err != nil {
		return err
	}
	status := mission.ParseTaskStatus(rep.Status)
	if status == "" {
		return fmt.Errorf("task status %q: %w", rep.Status, ErrInvalidReport)
	}
	return r.status.HandleTaskUpdate(ctx, scheduling.TaskUpdate{
		IsarID:        rep.IsarID,
		IsarMissionID: rep.MissionID,
		IsarTaskID:    rep.TaskID,
		Status:        status,
	})
}

// Inspection applies an inspection status report.
func (r *Router) Inspection(ctx context.Context, rep InspectionReport) error {
	if err := requireIsarID(rep.IsarID); err != nil {
		return err
	}
	status := mission.ParseInspectionStatus(rep.Status)
	if status == "" {
		return fmt.Errorf("inspection status %q: %w", rep.Status, ErrInvalidReport)
	}
	return r.status.HandleInspectionUpdate(ctx, scheduling.InspectionUpdate{
		IsarID:           rep.IsarID,
		IsarMissionID:    rep.MissionID,
		IsarTaskID:       rep.TaskID,
		IsarInspectionID: rep.InspectionID,
		Status:           status,
	})
}
