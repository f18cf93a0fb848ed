package scheduling

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/domain/events"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
)

// DefaultTelemetryTolerance is the change below which a telemetry value is
// considered unchanged and not written.
const DefaultTelemetryTolerance = 1e-5

const (
	telemetryBattery  = "battery"
	telemetryPressure = "pressure"
	telemetryPose     = "pose"
	telemetryStatus   = "status"
)

// RobotAlertMessage is published when telemetry crosses a model limit.
type RobotAlertMessage struct {
	RobotID   string  `json:"robot_id"`
	RobotName string  `json:"robot_name"`
	Kind      string  `json:"kind"`
	Value     float64 `json:"value"`
	Message   string  `json:"message"`
}

// TelemetryService persists robot telemetry. Values within tolerance of the
// stored value are dropped so a chatty agent does not turn every heartbeat
// into a write.
type TelemetryService struct {
	robots     robot.Repository
	dispatcher Dispatcher
	notifier   NotificationSink
	tolerance  float64

	metrics SchedulerMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewTelemetryService creates a TelemetryService. A non-positive tolerance
// selects DefaultTelemetryTolerance.
func NewTelemetryService(
	robots robot.Repository,
	dispatcher Dispatcher,
	notifier NotificationSink,
	tolerance float64,
	metrics SchedulerMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *TelemetryService {
	if tolerance <= 0 {
		tolerance = DefaultTelemetryTolerance
	}
	return &TelemetryService{
		robots:     robots,
		dispatcher: dispatcher,
		notifier:   notifier,
		tolerance:  tolerance,
		metrics:    metrics,
		logger:     logger.With("component", "telemetry_service"),
		tracer:     tracer,
	}
}

func (s *TelemetryService) robotByIsarID(ctx context.Context, span trace.Span, isarID string) (*robot.Robot, error) {
	rb, err := s.robots.GetRobotByIsarID(ctx, isarID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read robot")
		return nil, fmt.Errorf("failed to read robot (isar_id: %s): %w", isarID, err)
	}
	if rb == nil {
		s.logger.Warn(ctx, "Telemetry for unknown robot", "isar_id", isarID)
		span.AddEvent("unknown_robot")
	}
	return rb, nil
}

func (s *TelemetryService) skip(ctx context.Context, span trace.Span, kind string) {
	s.metrics.IncTelemetrySkipped(ctx, kind)
	span.AddEvent("telemetry_unchanged")
}

func (s *TelemetryService) written(ctx context.Context, kind string) {
	s.metrics.IncTelemetryWrites(ctx, kind)
}

// UpdateBatteryLevel stores a battery reading in percent.
func (s *TelemetryService) UpdateBatteryLevel(ctx context.Context, isarID string, level float64) error {
	ctx, span := s.tracer.Start(ctx, "telemetry_service.update_battery_level",
		trace.WithAttributes(attribute.String("isar_id", isarID), attribute.Float64("battery_level", level)))
	defer span.End()

	rb, err := s.robotByIsarID(ctx, span, isarID)
	if err != nil || rb == nil {
		return err
	}
	if shared.NearlyEqual(rb.BatteryLevel, level, s.tolerance) {
		s.skip(ctx, span, telemetryBattery)
		return nil
	}

	wasLow := rb.BatteryLow()
	if err := s.robots.UpdateBatteryLevel(ctx, rb.ID, level); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist battery level")
		return fmt.Errorf("failed to persist battery level (robot_id: %s): %w", rb.ID, err)
	}
	s.written(ctx, telemetryBattery)

	rb.BatteryLevel = level
	if !wasLow && rb.BatteryLow() {
		s.alert(ctx, rb, telemetryBattery, level,
			fmt.Sprintf("Battery of %s is at %.1f%%, below the warning threshold", rb.Name, level))
	}
	return nil
}

// UpdatePressureLevel stores a pressure reading in bar. A nil level means
// the robot has no pressure sensor.
func (s *TelemetryService) UpdatePressureLevel(ctx context.Context, isarID string, level *float64) error {
	ctx, span := s.tracer.Start(ctx, "telemetry_service.update_pressure_level",
		trace.WithAttributes(attribute.String("isar_id", isarID)))
	defer span.End()

	rb, err := s.robotByIsarID(ctx, span, isarID)
	if err != nil || rb == nil {
		return err
	}
	if pressureUnchanged(rb.PressureLevel, level, s.tolerance) {
		s.skip(ctx, span, telemetryPressure)
		return nil
	}

	wasOut := rb.PressureOutOfRange()
	if err := s.robots.UpdatePressureLevel(ctx, rb.ID, level); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist pressure level")
		return fmt.Errorf("failed to persist pressure level (robot_id: %s): %w", rb.ID, err)
	}
	s.written(ctx, telemetryPressure)

	rb.PressureLevel = level
	if !wasOut && rb.PressureOutOfRange() {
		s.alert(ctx, rb, telemetryPressure, *level,
			fmt.Sprintf("Pressure of %s is %.3f bar, outside the allowed range", rb.Name, *level))
	}
	return nil
}

func pressureUnchanged(current, next *float64, tol float64) bool {
	switch {
	case current == nil && next == nil:
		return true
	case current == nil || next == nil:
		return false
	default:
		return shared.NearlyEqual(*current, *next, tol)
	}
}

// UpdatePose stores the robot's pose.
func (s *TelemetryService) UpdatePose(ctx context.Context, isarID string, pose shared.Pose) error {
	ctx, span := s.tracer.Start(ctx, "telemetry_service.update_pose",
		trace.WithAttributes(attribute.String("isar_id", isarID)))
	defer span.End()

	rb, err := s.robotByIsarID(ctx, span, isarID)
	if err != nil || rb == nil {
		return err
	}
	if rb.Pose.WithinTolerance(pose, s.tolerance) {
		s.skip(ctx, span, telemetryPose)
		return nil
	}

	if err := s.robots.UpdatePose(ctx, rb.ID, pose); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist pose")
		return fmt.Errorf("failed to persist pose (robot_id: %s): %w", rb.ID, err)
	}
	s.written(ctx, telemetryPose)
	return nil
}

// UpdateRobotStatus stores the status reported by the agent. An Available
// report triggers a dispatch attempt even when the status did not change,
// since that is when queued work can start.
func (s *TelemetryService) UpdateRobotStatus(ctx context.Context, isarID string, status robot.Status) error {
	ctx, span := s.tracer.Start(ctx, "telemetry_service.update_robot_status",
		trace.WithAttributes(attribute.String("isar_id", isarID), attribute.String("status", status.String())))
	defer span.End()

	rb, err := s.robotByIsarID(ctx, span, isarID)
	if err != nil || rb == nil {
		return err
	}

	if rb.Status == status {
		s.skip(ctx, span, telemetryStatus)
	} else {
		if err := s.robots.UpdateStatus(ctx, rb.ID, status); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to persist robot status")
			return fmt.Errorf("failed to persist robot status (robot_id: %s): %w", rb.ID, err)
		}
		s.written(ctx, telemetryStatus)
		s.logger.Info(ctx, "Robot status changed", "robot_id", rb.ID, "from", rb.Status, "to", status)
	}

	if status == robot.StatusAvailable {
		if _, err := s.dispatcher.StartNextMissionRunIfSystemIsAvailable(ctx, rb.ID); err != nil {
			s.logger.Warn(ctx, "Failed to start next mission run", "robot_id", rb.ID, "error", err)
		}
	}
	return nil
}

func (s *TelemetryService) alert(ctx context.Context, rb *robot.Robot, kind string, value float64, msg string) {
	s.logger.Warn(ctx, "Robot telemetry outside limits", "robot_id", rb.ID, "kind", kind, "value", value)
	s.notifier.SendMessage(ctx, events.EventTypeRobotAlert, rb.InstallationCode, RobotAlertMessage{
		RobotID:   rb.ID,
		RobotName: rb.Name,
		Kind:      kind,
		Value:     value,
		Message:   msg,
	})
}
