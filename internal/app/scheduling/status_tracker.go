package scheduling

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/common/timeutil"
)

// MissionUpdate is a mission-level status reported by a robot agent.
type MissionUpdate struct {
	IsarID        string
	IsarMissionID string
	Status        mission.MissionStatus
}

// TaskUpdate is a task status reported by a robot agent.
type TaskUpdate struct {
	IsarID        string
	IsarMissionID string
	IsarTaskID    string
	Status        mission.TaskStatus
}

// InspectionUpdate is an inspection status reported by a robot agent.
type InspectionUpdate struct {
	IsarID           string
	IsarMissionID    string
	IsarTaskID       string
	IsarInspectionID string
	Status           mission.InspectionStatus
}

// StatusTracker applies agent status reports to mission runs. Reports that
// reference unknown runs or tasks, or that try to change a finished entity,
// are logged and dropped rather than returned as errors: agents resend
// state, and a stale report is not a failure of the caller.
type StatusTracker struct {
	runs        mission.RunRepository
	definitions mission.DefinitionRepository
	robots      robot.Repository
	dispatcher  Dispatcher
	notifier    NotificationSink
	clock       timeutil.Provider

	// runLocks serializes read-modify-write cycles per agent mission.
	runLocks *keyedMutex

	metrics SchedulerMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewStatusTracker creates a StatusTracker. dispatcher is asked for the next
// run whenever a run finishes.
func NewStatusTracker(
	runs mission.RunRepository,
	definitions mission.DefinitionRepository,
	robots robot.Repository,
	dispatcher Dispatcher,
	notifier NotificationSink,
	clock timeutil.Provider,
	metrics SchedulerMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *StatusTracker {
	return &StatusTracker{
		runs:        runs,
		definitions: definitions,
		robots:      robots,
		dispatcher:  dispatcher,
		notifier:    notifier,
		clock:       clock,
		runLocks:    newKeyedMutex(),
		metrics:     metrics,
		logger:      logger.With("component", "status_tracker"),
		tracer:      tracer,
	}
}

// HandleMissionUpdate folds a mission-level status into the run's tasks.
func (t *StatusTracker) HandleMissionUpdate(ctx context.Context, u MissionUpdate) error {
	ctx, span := t.tracer.Start(ctx, "status_tracker.handle_mission_update",
		trace.WithAttributes(
			attribute.String("isar_mission_id", u.IsarMissionID),
			attribute.String("status", u.Status.String()),
		))
	defer span.End()

	if u.Status == mission.MissionStatusFailed {
		t.reportAgentFailure(ctx, u)
	}

	return t.apply(ctx, span, u.IsarMissionID, func(run *mission.MissionRun) error {
		return run.ApplyAgentStatus(u.Status, t.clock.Now())
	})
}

// HandleTaskUpdate applies a task status and re-derives the run status.
func (t *StatusTracker) HandleTaskUpdate(ctx context.Context, u TaskUpdate) error {
	ctx, span := t.tracer.Start(ctx, "status_tracker.handle_task_update",
		trace.WithAttributes(
			attribute.String("isar_mission_id", u.IsarMissionID),
			attribute.String("isar_task_id", u.IsarTaskID),
			attribute.String("status", u.Status.String()),
		))
	defer span.End()

	return t.apply(ctx, span, u.IsarMissionID, func(run *mission.MissionRun) error {
		return run.UpdateTaskStatus(u.IsarTaskID, u.Status, t.clock.Now())
	})
}

// HandleInspectionUpdate applies an inspection status.
func (t *StatusTracker) HandleInspectionUpdate(ctx context.Context, u InspectionUpdate) error {
	ctx, span := t.tracer.Start(ctx, "status_tracker.handle_inspection_update",
		trace.WithAttributes(
			attribute.String("isar_mission_id", u.IsarMissionID),
			attribute.String("isar_task_id", u.IsarTaskID),
			attribute.String("isar_inspection_id", u.IsarInspectionID),
		))
	defer span.End()

	return t.apply(ctx, span, u.IsarMissionID, func(run *mission.MissionRun) error {
		return run.UpdateInspectionStatus(u.IsarTaskID, u.IsarInspectionID, u.Status, t.clock.Now())
	})
}

func (t *StatusTracker) apply(
	ctx context.Context,
	span trace.Span,
	isarMissionID string,
	mutate func(*mission.MissionRun) error,
) error {
	t.runLocks.Lock(isarMissionID)
	completed, err := t.applyLocked(ctx, isarMissionID, mutate)
	t.runLocks.Unlock(isarMissionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to apply status update")
		return err
	}

	if completed != nil {
		span.AddEvent("mission_run_completed", trace.WithAttributes(attribute.String("status", completed.Status.String())))
		t.onRunCompleted(ctx, completed)
	}
	return nil
}

// applyLocked returns the run when this update finished it.
func (t *StatusTracker) applyLocked(
	ctx context.Context,
	isarMissionID string,
	mutate func(*mission.MissionRun) error,
) (*mission.MissionRun, error) {
	run, err := t.runs.GetMissionRunByIsarMissionID(ctx, isarMissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission run (isar_mission_id: %s): %w", isarMissionID, err)
	}
	if run == nil {
		t.ignore(ctx, "unknown_mission", "Status update for unknown mission", "isar_mission_id", isarMissionID)
		return nil, nil
	}

	wasCompleted := run.IsCompleted()
	if err := mutate(run); err != nil {
		switch {
		case errors.Is(err, mission.ErrTerminalStatus):
			t.ignore(ctx, "terminal", "Status update for finished entity ignored", "mission_run_id", run.ID, "reason", err.Error())
			return nil, nil
		case errors.Is(err, mission.ErrInvalidTransition):
			t.ignore(ctx, "invalid_transition", "Status regression ignored", "mission_run_id", run.ID, "reason", err.Error())
			return nil, nil
		case errors.Is(err, mission.ErrTaskNotFound), errors.Is(err, mission.ErrInspectionNotFound):
			t.ignore(ctx, "unknown_task", "Status update for unknown task or inspection", "mission_run_id", run.ID, "reason", err.Error())
			return nil, nil
		default:
			return nil, err
		}
	}

	if err := t.runs.UpdateMissionRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist mission run (mission_run_id: %s): %w", run.ID, err)
	}
	t.notifier.MissionRunUpdated(ctx, run)

	if !wasCompleted && run.IsCompleted() {
		return run, nil
	}
	return nil, nil
}

func (t *StatusTracker) ignore(ctx context.Context, reason, msg string, args ...any) {
	t.metrics.IncStatusUpdatesIgnored(ctx, reason)
	t.logger.Warn(ctx, msg, args...)
}

// onRunCompleted releases the robot, records the run on its definition and
// asks for the next run. Each step is independent; failures are logged.
func (t *StatusTracker) onRunCompleted(ctx context.Context, run *mission.MissionRun) {
	t.logger.Info(ctx, "Mission run finished",
		"mission_run_id", run.ID,
		"robot_id", run.RobotID,
		"status", run.Status,
	)

	if err := t.releaseRobot(ctx, run); err != nil {
		t.logger.Error(ctx, "Failed to release robot after mission run", "mission_run_id", run.ID, "error", err)
	}

	if run.Status == mission.MissionStatusSuccessful && run.MissionDefinitionID != "" {
		if err := t.recordSuccessfulRun(ctx, run); err != nil {
			t.logger.Error(ctx, "Failed to record last successful run", "mission_run_id", run.ID, "error", err)
		}
	}

	if _, err := t.dispatcher.StartNextMissionRunIfSystemIsAvailable(ctx, run.RobotID); err != nil {
		t.logger.Warn(ctx, "Failed to start next mission run", "robot_id", run.RobotID, "error", err)
	}
}

func (t *StatusTracker) releaseRobot(ctx context.Context, run *mission.MissionRun) error {
	rb, err := t.robots.GetRobot(ctx, run.RobotID)
	if err != nil {
		return err
	}
	if rb == nil {
		return fmt.Errorf("robot %s: %w", run.RobotID, robot.ErrRobotNotFound)
	}
	if !rb.ReleaseMission(run.ID) {
		return nil
	}
	return t.robots.UpdateRobot(ctx, rb)
}

func (t *StatusTracker) recordSuccessfulRun(ctx context.Context, run *mission.MissionRun) error {
	def, err := t.definitions.GetMissionDefinition(ctx, run.MissionDefinitionID)
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("mission definition %s: %w", run.MissionDefinitionID, mission.ErrMissionDefinitionNotFound)
	}
	def.SetLastSuccessfulRun(run.ID)
	return t.definitions.UpdateMissionDefinition(ctx, def)
}

func (t *StatusTracker) reportAgentFailure(ctx context.Context, u MissionUpdate) {
	if u.IsarID == "" {
		return
	}
	rb, err := t.robots.GetRobotByIsarID(ctx, u.IsarID)
	if err != nil || rb == nil {
		return
	}
	t.notifier.ReportGeneralFail(ctx, rb,
		fmt.Sprintf("Mission failed on %s", rb.Name),
		fmt.Sprintf("Robot %s reported mission %s as failed", rb.Name, u.IsarMissionID),
	)
}
