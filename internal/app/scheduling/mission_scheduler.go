package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/common/timeutil"
)

// ReasonStoppedByOperator is recorded on runs cancelled through StopCurrentMissionRun.
const ReasonStoppedByOperator = "Stopped by operator"

// installationFanOut bounds concurrent dispatch attempts per installation.
const installationFanOut = 4

var (
	_ Dispatcher             = (*MissionScheduler)(nil)
	_ DefinitionRunScheduler = (*MissionScheduler)(nil)
)

// MissionScheduler owns the per-robot mission queue. All state changes for
// a robot are serialized through a per-robot lock, so at most one run is
// ever dispatched to a robot at a time.
type MissionScheduler struct {
	runs        mission.RunRepository
	definitions mission.DefinitionRepository
	robots      robot.Repository
	agent       RobotAgent
	notifier    NotificationSink
	clock       timeutil.Provider

	robotLocks *keyedMutex

	metrics SchedulerMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewMissionScheduler creates a MissionScheduler.
func NewMissionScheduler(
	runs mission.RunRepository,
	definitions mission.DefinitionRepository,
	robots robot.Repository,
	agent RobotAgent,
	notifier NotificationSink,
	clock timeutil.Provider,
	metrics SchedulerMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *MissionScheduler {
	return &MissionScheduler{
		runs:        runs,
		definitions: definitions,
		robots:      robots,
		agent:       agent,
		notifier:    notifier,
		clock:       clock,
		robotLocks:  newKeyedMutex(),
		metrics:     metrics,
		logger:      logger.With("component", "mission_scheduler"),
		tracer:      tracer,
	}
}

// StartNextMissionRunIfSystemIsAvailable dispatches the robot's next due
// pending run when the robot can accept work. It returns the dispatched run,
// or nil when nothing was started. A run the agent refuses stays Pending and
// the error wraps the agent failure; a run the agent started with a different
// task list is stopped and failed.
func (s *MissionScheduler) StartNextMissionRunIfSystemIsAvailable(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.start_next_mission_run",
		trace.WithAttributes(attribute.String("robot_id", robotID)))
	defer span.End()

	s.robotLocks.Lock(robotID)
	defer s.robotLocks.Unlock(robotID)

	run, err := s.startNextLocked(ctx, robotID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start next mission run")
		return nil, err
	}
	if run != nil {
		span.SetAttributes(attribute.String("mission_run_id", run.ID))
	}
	return run, nil
}

func (s *MissionScheduler) startNextLocked(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	rb, err := s.getRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}

	reason, err := s.unavailableReason(ctx, rb)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		s.logger.Debug(ctx, "Robot not available for a new mission run", "robot_id", rb.ID, "reason", reason)
		trace.SpanFromContext(ctx).AddEvent("robot_not_available", trace.WithAttributes(attribute.String("reason", reason)))
		return nil, nil
	}

	pending, err := s.runs.ListMissionRuns(ctx, mission.RunFilter{
		RobotID:  rb.ID,
		Statuses: []mission.MissionStatus{mission.MissionStatusPending},
		Order:    mission.RunOrderQueue,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending mission runs (robot_id: %s): %w", rb.ID, err)
	}

	now := s.clock.Now()
	var next *mission.MissionRun
	for _, r := range pending {
		if r.IsDue(now) {
			next = r
			break
		}
	}
	if next == nil {
		s.logger.Debug(ctx, "No due mission runs in queue", "robot_id", rb.ID, "pending", len(pending))
		return nil, nil
	}

	if rb.MissionQueueFrozen && next.Priority < mission.PriorityEmergency {
		s.logger.Debug(ctx, "Mission queue frozen", "robot_id", rb.ID)
		return nil, nil
	}

	if rb.DueForReturn() && !next.IsReturnHome() {
		home, err := s.pendingReturnHomeRun(ctx, rb, pending)
		if err != nil {
			if errors.Is(err, robot.ErrNoInspectionArea) {
				s.notifier.ReportDockFailure(ctx, rb, "Robot needs to return home but has no current inspection area")
			}
			return nil, err
		}
		s.logger.Info(ctx, "Robot due for return, sending it home before next mission run",
			"robot_id", rb.ID,
			"battery_level", rb.BatteryLevel,
			"deferred_mission_run_id", next.ID,
		)
		next = home
	}

	if err := s.dispatch(ctx, rb, next); err != nil {
		return nil, err
	}

	if !next.IsReturnHome() {
		s.queueReturnHomeIfLastInArea(ctx, rb, next, pending)
	}
	return next, nil
}

// unavailableReason describes why rb can not take a new run, or returns ""
// when it can. The frozen queue is checked separately since emergency runs
// bypass it.
func (s *MissionScheduler) unavailableReason(ctx context.Context, rb *robot.Robot) (string, error) {
	switch {
	case !rb.Enabled:
		return "robot is disabled", nil
	case rb.Status != robot.StatusAvailable:
		return fmt.Sprintf("robot status is %s", rb.Status), nil
	case rb.HasActiveMission():
		return fmt.Sprintf("robot is running mission run %s", rb.CurrentMissionID), nil
	}

	active, err := s.runs.ListMissionRuns(ctx, mission.RunFilter{
		RobotID:  rb.ID,
		Statuses: mission.ActiveStatuses(),
		PageSize: 1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list active mission runs (robot_id: %s): %w", rb.ID, err)
	}
	if len(active) > 0 {
		return fmt.Sprintf("mission run %s is %s", active[0].ID, active[0].Status), nil
	}
	return "", nil
}

// dispatch hands run to the agent and records the outcome. When the agent
// refuses the run it stays queued and the operator is alerted.
func (s *MissionScheduler) dispatch(ctx context.Context, rb *robot.Robot, run *mission.MissionRun) error {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.dispatch",
		trace.WithAttributes(
			attribute.String("robot_id", rb.ID),
			attribute.String("mission_run_id", run.ID),
			attribute.String("run_type", string(run.RunType)),
		))
	defer span.End()

	start := time.Now()
	am, err := s.agent.StartMission(ctx, rb, run)
	s.metrics.ObserveDispatchLatency(ctx, time.Since(start))
	if err != nil {
		s.metrics.IncDispatchFailures(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "robot agent failed to start mission")
		s.logger.Error(ctx, "Failed to start mission run on robot",
			"robot_id", rb.ID,
			"mission_run_id", run.ID,
			"error", err,
		)
		s.notifier.ReportGeneralFail(ctx, rb,
			fmt.Sprintf("Failed to start mission %s", run.Name),
			fmt.Sprintf("Robot %s could not start mission %q: %v", rb.Name, run.Name, err),
		)
		return fmt.Errorf("failed to start mission run (mission_run_id: %s, robot_id: %s): %w", run.ID, rb.ID, err)
	}

	if err := run.MarkDispatched(*am); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record dispatched mission")
		s.abandonDispatch(ctx, rb, run, err)
		return fmt.Errorf("failed to record dispatched mission run (mission_run_id: %s): %w", run.ID, err)
	}
	if err := s.runs.UpdateMissionRun(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist dispatched mission run")
		return fmt.Errorf("failed to persist dispatched mission run (mission_run_id: %s): %w", run.ID, err)
	}

	rb.AssignMission(run.ID)
	if err := s.robots.UpdateRobot(ctx, rb); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist robot")
		return fmt.Errorf("failed to persist robot after dispatch (robot_id: %s): %w", rb.ID, err)
	}

	s.metrics.IncMissionRunsDispatched(ctx, string(run.RunType))
	span.AddEvent("mission_run_dispatched", trace.WithAttributes(attribute.String("isar_mission_id", run.IsarMissionID)))
	s.logger.Info(ctx, "Mission run started",
		"robot_id", rb.ID,
		"mission_run_id", run.ID,
		"isar_mission_id", run.IsarMissionID,
		"run_type", run.RunType,
	)
	s.notifier.MissionRunUpdated(ctx, run)
	return nil
}

// abandonDispatch undoes a start the agent accepted but that can not be
// recorded: the robot is told to stop and the run is failed, so the robot
// never executes a run that is still queued here.
func (s *MissionScheduler) abandonDispatch(ctx context.Context, rb *robot.Robot, run *mission.MissionRun, cause error) {
	s.metrics.IncDispatchFailures(ctx)
	s.logger.Error(ctx, "Robot agent started mission run inconsistently, stopping it",
		"robot_id", rb.ID,
		"mission_run_id", run.ID,
		"error", cause,
	)

	if err := s.agent.StopMission(ctx, rb); err != nil && !errors.Is(err, mission.ErrAgentNoActiveMission) {
		s.logger.Error(ctx, "Failed to stop inconsistently started mission", "robot_id", rb.ID, "error", err)
	}

	if err := run.Fail(mission.ReasonAgentMismatch, s.clock.Now()); err != nil {
		s.logger.Warn(ctx, "Could not fail mission run", "mission_run_id", run.ID, "error", err)
		return
	}
	if err := s.runs.UpdateMissionRun(ctx, run); err != nil {
		s.logger.Error(ctx, "Failed to persist failed mission run", "mission_run_id", run.ID, "error", err)
		return
	}
	s.notifier.MissionRunUpdated(ctx, run)
	s.notifier.ReportGeneralFail(ctx, rb,
		fmt.Sprintf("Failed to start mission %s", run.Name),
		fmt.Sprintf("Robot %s started mission %q with a different task list and was stopped", rb.Name, run.Name),
	)
}

// pendingReturnHomeRun returns the robot's queued return-to-home run,
// creating one if none is queued.
func (s *MissionScheduler) pendingReturnHomeRun(ctx context.Context, rb *robot.Robot, pending []*mission.MissionRun) (*mission.MissionRun, error) {
	for _, r := range pending {
		if r.IsReturnHome() {
			return r, nil
		}
	}
	return s.createReturnHomeRun(ctx, rb, rb.CurrentInspectionAreaID)
}

func (s *MissionScheduler) createReturnHomeRun(ctx context.Context, rb *robot.Robot, inspectionAreaID string) (*mission.MissionRun, error) {
	if inspectionAreaID == "" {
		return nil, fmt.Errorf("robot %s: %w", rb.ID, robot.ErrNoInspectionArea)
	}

	run := mission.NewReturnHomeRun(rb.InstallationCode, rb.ID, inspectionAreaID, rb.Home, s.clock.Now())
	if err := s.runs.CreateMissionRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create return home mission run (robot_id: %s): %w", rb.ID, err)
	}
	s.metrics.IncReturnHomeRunsCreated(ctx)
	s.logger.Info(ctx, "Return home mission run created",
		"robot_id", rb.ID,
		"mission_run_id", run.ID,
		"inspection_area_id", inspectionAreaID,
	)
	return run, nil
}

// queueReturnHomeIfLastInArea queues a return-to-home run behind dispatched
// when no other work remains for the robot in the same inspection area.
// Failures are logged; the dispatch already succeeded.
func (s *MissionScheduler) queueReturnHomeIfLastInArea(
	ctx context.Context,
	rb *robot.Robot,
	dispatched *mission.MissionRun,
	pending []*mission.MissionRun,
) {
	area := dispatched.InspectionAreaID
	if area == "" {
		area = rb.CurrentInspectionAreaID
	}
	if area == "" {
		return
	}

	for _, r := range pending {
		if r.ID == dispatched.ID {
			continue
		}
		if r.IsReturnHome() {
			return
		}
		if r.InspectionAreaID == area {
			return
		}
	}

	if _, err := s.createReturnHomeRun(ctx, rb, area); err != nil {
		s.logger.Warn(ctx, "Failed to queue return home after last mission run in area",
			"robot_id", rb.ID,
			"inspection_area_id", area,
			"error", err,
		)
	}
}

// ScheduleReturnToHomeMissionRunIfNotAlreadyScheduled queues a return-to-home
// run for the robot unless one is already queued or running, then tries to
// dispatch. It returns nil when a return-to-home run already existed.
func (s *MissionScheduler) ScheduleReturnToHomeMissionRunIfNotAlreadyScheduled(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.schedule_return_home",
		trace.WithAttributes(attribute.String("robot_id", robotID)))
	defer span.End()

	run, err := s.scheduleReturnHome(ctx, robotID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to schedule return home")
		return nil, err
	}
	if run != nil {
		s.tryStartNext(ctx, robotID)
	}
	return run, nil
}

func (s *MissionScheduler) scheduleReturnHome(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	s.robotLocks.Lock(robotID)
	defer s.robotLocks.Unlock(robotID)

	rb, err := s.getRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}

	existing, err := s.runs.ListMissionRuns(ctx, mission.RunFilter{
		RobotID:  rb.ID,
		Statuses: append(mission.ActiveStatuses(), mission.MissionStatusPending),
		RunTypes: []mission.RunType{mission.RunTypeReturnHome},
		PageSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list return home mission runs (robot_id: %s): %w", rb.ID, err)
	}
	if len(existing) > 0 {
		s.logger.Debug(ctx, "Return home already scheduled", "robot_id", rb.ID, "mission_run_id", existing[0].ID)
		return nil, nil
	}

	run, err := s.createReturnHomeRun(ctx, rb, rb.CurrentInspectionAreaID)
	if err != nil {
		if errors.Is(err, robot.ErrNoInspectionArea) {
			s.notifier.ReportDockFailure(ctx, rb, "Robot has no current inspection area to return home in")
		}
		return nil, err
	}
	return run, nil
}

// ScheduleMissionRunFromMissionDefinitionLastSuccessfulRun creates a new
// Pending run on robotID that repeats the definition's last successful run,
// then tries to dispatch it.
func (s *MissionScheduler) ScheduleMissionRunFromMissionDefinitionLastSuccessfulRun(
	ctx context.Context,
	definitionID, robotID string,
) (*mission.MissionRun, error) {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.schedule_from_definition",
		trace.WithAttributes(
			attribute.String("mission_definition_id", definitionID),
			attribute.String("robot_id", robotID),
		))
	defer span.End()

	run, err := s.newRunFromDefinition(ctx, definitionID, robotID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to schedule mission run from definition")
		return nil, err
	}
	span.SetAttributes(attribute.String("mission_run_id", run.ID))

	s.notifier.MissionRunUpdated(ctx, run)
	s.tryStartNext(ctx, robotID)
	return run, nil
}

func (s *MissionScheduler) newRunFromDefinition(ctx context.Context, definitionID, robotID string) (*mission.MissionRun, error) {
	def, err := s.definitions.GetMissionDefinition(ctx, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission definition (mission_definition_id: %s): %w", definitionID, err)
	}
	if def == nil {
		return nil, fmt.Errorf("mission definition %s: %w", definitionID, mission.ErrMissionDefinitionNotFound)
	}
	if def.LastSuccessfulRunID == "" {
		return nil, fmt.Errorf("mission definition %s has no successful run: %w", def.ID, mission.ErrMissionRunNotFound)
	}

	last, err := s.runs.GetMissionRun(ctx, def.LastSuccessfulRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last successful mission run (mission_run_id: %s): %w", def.LastSuccessfulRunID, err)
	}
	if last == nil {
		return nil, fmt.Errorf("last successful mission run %s: %w", def.LastSuccessfulRunID, mission.ErrMissionRunNotFound)
	}

	rb, err := s.getRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}

	area := def.InspectionAreaID
	if area == "" {
		area = last.InspectionAreaID
	}
	opts := []mission.MissionRunOption{
		mission.WithMissionDefinition(def.ID),
		mission.WithInspectionArea(area),
		mission.WithEstimatedDuration(last.EstimatedDuration),
	}
	if last.MapMetadata != nil {
		opts = append(opts, mission.WithMapMetadata(*last.MapMetadata))
	}

	run := mission.NewMissionRun(def.Name, def.InstallationCode, rb.ID, last.CloneTasks(), s.clock.Now(), opts...)
	if err := s.runs.CreateMissionRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create mission run (mission_definition_id: %s): %w", def.ID, err)
	}
	s.logger.Info(ctx, "Mission run scheduled from definition",
		"mission_definition_id", def.ID,
		"mission_run_id", run.ID,
		"robot_id", rb.ID,
	)
	return run, nil
}

// StopCurrentMissionRun cancels the robot's active run and then tells the
// agent to stop. The run is marked Cancelled before the agent confirms; when
// the agent call fails the cancelled run is returned along with the error.
func (s *MissionScheduler) StopCurrentMissionRun(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.stop_current_mission_run",
		trace.WithAttributes(attribute.String("robot_id", robotID)))
	defer span.End()

	s.robotLocks.Lock(robotID)
	defer s.robotLocks.Unlock(robotID)

	rb, err := s.getRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}
	run, err := s.stopLocked(ctx, rb, ReasonStoppedByOperator)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stop mission run")
	}
	return run, err
}

// stopLocked cancels rb's active run with reason and tells the agent to
// stop. The caller holds the robot lock.
func (s *MissionScheduler) stopLocked(ctx context.Context, rb *robot.Robot, reason string) (*mission.MissionRun, error) {
	run, err := s.activeRun(ctx, rb)
	if err != nil {
		return nil, err
	}

	if err := run.Cancel(reason, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.runs.UpdateMissionRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist stopped mission run (mission_run_id: %s): %w", run.ID, err)
	}
	if rb.ReleaseMission(run.ID) {
		if err := s.robots.UpdateRobot(ctx, rb); err != nil {
			return nil, fmt.Errorf("failed to persist robot (robot_id: %s): %w", rb.ID, err)
		}
	}
	s.notifier.MissionRunUpdated(ctx, run)

	if err := s.agent.StopMission(ctx, rb); err != nil && !errors.Is(err, mission.ErrAgentNoActiveMission) {
		if errors.Is(err, mission.ErrRobotAgentUnavailable) {
			if uerr := s.markUnreachableLocked(ctx, rb, nil); uerr != nil {
				s.logger.Error(ctx, "Failed to disable unreachable robot", "robot_id", rb.ID, "error", uerr)
			}
		}
		return run, fmt.Errorf("failed to stop mission run on robot (mission_run_id: %s, robot_id: %s): %w", run.ID, rb.ID, err)
	}

	s.logger.Info(ctx, "Mission run stopped", "robot_id", rb.ID, "mission_run_id", run.ID, "reason", reason)
	return run, nil
}

// PauseCurrentMissionRun asks the agent to pause the robot's active run.
func (s *MissionScheduler) PauseCurrentMissionRun(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	return s.controlCurrentMissionRun(ctx, "pause", robotID, s.agent.PauseMission, (*mission.MissionRun).Pause)
}

// ResumeCurrentMissionRun asks the agent to resume the robot's paused run.
func (s *MissionScheduler) ResumeCurrentMissionRun(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	return s.controlCurrentMissionRun(ctx, "resume", robotID, s.agent.ResumeMission, (*mission.MissionRun).Resume)
}

func (s *MissionScheduler) controlCurrentMissionRun(
	ctx context.Context,
	op, robotID string,
	command func(context.Context, *robot.Robot) error,
	apply func(*mission.MissionRun, time.Time) error,
) (*mission.MissionRun, error) {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler."+op+"_current_mission_run",
		trace.WithAttributes(attribute.String("robot_id", robotID)))
	defer span.End()

	s.robotLocks.Lock(robotID)
	defer s.robotLocks.Unlock(robotID)

	rb, err := s.getRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}
	run, err := s.activeRun(ctx, rb)
	if err != nil {
		return nil, err
	}

	if err := command(ctx, rb); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "robot agent rejected command")
		if errors.Is(err, mission.ErrRobotAgentUnavailable) {
			if uerr := s.markUnreachableLocked(ctx, rb, run); uerr != nil {
				s.logger.Error(ctx, "Failed to disable unreachable robot", "robot_id", rb.ID, "error", uerr)
			}
		}
		return nil, fmt.Errorf("failed to %s mission run (mission_run_id: %s, robot_id: %s): %w", op, run.ID, rb.ID, err)
	}

	if err := apply(run, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.runs.UpdateMissionRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist mission run (mission_run_id: %s): %w", run.ID, err)
	}
	s.notifier.MissionRunUpdated(ctx, run)
	return run, nil
}

// activeRun returns the robot's Ongoing or Paused run.
func (s *MissionScheduler) activeRun(ctx context.Context, rb *robot.Robot) (*mission.MissionRun, error) {
	if rb.CurrentMissionID != "" {
		run, err := s.runs.GetMissionRun(ctx, rb.CurrentMissionID)
		if err != nil {
			return nil, fmt.Errorf("failed to read mission run (mission_run_id: %s): %w", rb.CurrentMissionID, err)
		}
		if run != nil && run.IsActive() {
			return run, nil
		}
	}

	active, err := s.runs.ListMissionRuns(ctx, mission.RunFilter{
		RobotID:  rb.ID,
		Statuses: mission.ActiveStatuses(),
		Order:    mission.RunOrderNewestFirst,
		PageSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list active mission runs (robot_id: %s): %w", rb.ID, err)
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("robot %s has no active mission run: %w", rb.ID, mission.ErrMissionRunNotFound)
	}
	return active[0], nil
}

// FreezeMissionRunQueueForRobot stops dispatching regular runs to the robot.
func (s *MissionScheduler) FreezeMissionRunQueueForRobot(ctx context.Context, robotID string) error {
	return s.setQueueFrozen(ctx, robotID, true)
}

// UnfreezeMissionRunQueueForRobot resumes dispatching and immediately tries to start
// the next run.
func (s *MissionScheduler) UnfreezeMissionRunQueueForRobot(ctx context.Context, robotID string) error {
	if err := s.setQueueFrozen(ctx, robotID, false); err != nil {
		return err
	}
	s.tryStartNext(ctx, robotID)
	return nil
}

func (s *MissionScheduler) setQueueFrozen(ctx context.Context, robotID string, frozen bool) error {
	s.robotLocks.Lock(robotID)
	defer s.robotLocks.Unlock(robotID)

	rb, err := s.getRobot(ctx, robotID)
	if err != nil {
		return err
	}
	if rb.MissionQueueFrozen == frozen {
		return nil
	}
	rb.MissionQueueFrozen = frozen
	if err := s.robots.UpdateRobot(ctx, rb); err != nil {
		return fmt.Errorf("failed to persist robot (robot_id: %s): %w", rb.ID, err)
	}
	s.logger.Info(ctx, "Mission queue updated", "robot_id", rb.ID, "frozen", frozen)
	return nil
}

// OnIsarUnavailable handles a robot whose agent stopped answering: the
// robot is disabled and its active run, if any, is failed.
func (s *MissionScheduler) OnIsarUnavailable(ctx context.Context, robotID string) error {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.on_isar_unavailable",
		trace.WithAttributes(attribute.String("robot_id", robotID)))
	defer span.End()

	s.robotLocks.Lock(robotID)
	defer s.robotLocks.Unlock(robotID)

	rb, err := s.getRobot(ctx, robotID)
	if err != nil {
		return err
	}
	run, err := s.activeRun(ctx, rb)
	if err != nil && !errors.Is(err, mission.ErrMissionRunNotFound) {
		return err
	}
	return s.markUnreachableLocked(ctx, rb, run)
}

// markUnreachableLocked disables rb and fails run. The caller holds the
// robot lock; run may be nil.
func (s *MissionScheduler) markUnreachableLocked(ctx context.Context, rb *robot.Robot, run *mission.MissionRun) error {
	if run != nil {
		if err := run.Fail(mission.ReasonLostConnection, s.clock.Now()); err != nil {
			s.logger.Warn(ctx, "Could not fail mission run of unreachable robot", "mission_run_id", run.ID, "error", err)
		} else if err := s.runs.UpdateMissionRun(ctx, run); err != nil {
			return fmt.Errorf("failed to persist failed mission run (mission_run_id: %s): %w", run.ID, err)
		} else {
			s.notifier.MissionRunUpdated(ctx, run)
		}
	}

	rb.MarkUnreachable()
	if err := s.robots.UpdateRobot(ctx, rb); err != nil {
		return fmt.Errorf("failed to persist unreachable robot (robot_id: %s): %w", rb.ID, err)
	}

	s.logger.Warn(ctx, "Robot agent unreachable, robot disabled", "robot_id", rb.ID)
	s.notifier.ReportGeneralFail(ctx, rb,
		fmt.Sprintf("Lost connection to %s", rb.Name),
		fmt.Sprintf("Robot %s is not answering and has been disabled", rb.Name),
	)
	return nil
}

// OnRobotAvailable is called when a robot reports it can accept work.
func (s *MissionScheduler) OnRobotAvailable(ctx context.Context, robotID string) {
	s.tryStartNext(ctx, robotID)
}

// StartNextMissionRunsForInstallation tries to dispatch on every robot of
// the installation. A failure on one robot does not affect the others.
func (s *MissionScheduler) StartNextMissionRunsForInstallation(ctx context.Context, installationCode string) error {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.start_next_for_installation",
		trace.WithAttributes(attribute.String("installation_code", installationCode)))
	defer span.End()

	robots, err := s.robots.ListRobotsForInstallation(ctx, installationCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list robots")
		return fmt.Errorf("failed to list robots (installation_code: %s): %w", installationCode, err)
	}

	var g errgroup.Group
	g.SetLimit(installationFanOut)
	for _, rb := range robots {
		robotID := rb.ID
		g.Go(func() error {
			s.tryStartNext(ctx, robotID)
			return nil
		})
	}
	return g.Wait()
}

func (s *MissionScheduler) tryStartNext(ctx context.Context, robotID string) {
	if _, err := s.StartNextMissionRunIfSystemIsAvailable(ctx, robotID); err != nil {
		s.logger.Warn(ctx, "Failed to start next mission run", "robot_id", robotID, "error", err)
	}
}

func (s *MissionScheduler) getRobot(ctx context.Context, robotID string) (*robot.Robot, error) {
	rb, err := s.robots.GetRobot(ctx, robotID)
	if err != nil {
		return nil, fmt.Errorf("failed to read robot (robot_id: %s): %w", robotID, err)
	}
	if rb == nil {
		return nil, fmt.Errorf("robot %s: %w", robotID, robot.ErrRobotNotFound)
	}
	return rb, nil
}
