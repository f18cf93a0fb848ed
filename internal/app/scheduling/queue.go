package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
)

// RemoveQueuedMissionRun aborts a Pending run so it is never dispatched.
// Runs that already started are refused with ErrMissionRunNotQueued.
func (s *MissionScheduler) RemoveQueuedMissionRun(ctx context.Context, runID string) (*mission.MissionRun, error) {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.remove_queued_mission_run",
		trace.WithAttributes(attribute.String("mission_run_id", runID)))
	defer span.End()

	run, err := s.getRun(ctx, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read mission run")
		return nil, err
	}

	removed, err := s.removeQueued(ctx, run.RobotID, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to remove queued mission run")
		return nil, err
	}
	return removed, nil
}

// RemoveQueuedMissionRuns aborts every Pending run matching filter and
// returns the removed runs. The status criterion of filter is ignored.
// Runs that start while the queue is being emptied are skipped.
func (s *MissionScheduler) RemoveQueuedMissionRuns(ctx context.Context, filter mission.RunFilter) ([]*mission.MissionRun, error) {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.remove_queued_mission_runs",
		trace.WithAttributes(
			attribute.String("robot_id", filter.RobotID),
			attribute.String("installation_code", filter.InstallationCode),
		))
	defer span.End()

	filter.Statuses = []mission.MissionStatus{mission.MissionStatusPending}
	filter.Page, filter.PageSize = 0, 0
	queued, err := s.runs.ListMissionRuns(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list queued mission runs")
		return nil, fmt.Errorf("failed to list queued mission runs: %w", err)
	}

	removed := make([]*mission.MissionRun, 0, len(queued))
	for _, q := range queued {
		run, err := s.removeQueued(ctx, q.RobotID, q.ID)
		if errors.Is(err, mission.ErrMissionRunNotQueued) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to remove queued mission run")
			return removed, err
		}
		removed = append(removed, run)
	}

	span.SetAttributes(attribute.Int("removed", len(removed)))
	s.logger.Info(ctx, "Mission run queue emptied",
		"robot_id", filter.RobotID,
		"installation_code", filter.InstallationCode,
		"removed", len(removed),
	)
	return removed, nil
}

// removeQueued re-reads the run under the robot lock so a concurrent
// dispatch can not race the abort.
func (s *MissionScheduler) removeQueued(ctx context.Context, robotID, runID string) (*mission.MissionRun, error) {
	s.robotLocks.Lock(robotID)
	defer s.robotLocks.Unlock(robotID)

	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != mission.MissionStatusPending {
		return nil, fmt.Errorf("mission run %s is %s: %w", run.ID, run.Status, mission.ErrMissionRunNotQueued)
	}

	if err := run.Abort(mission.ReasonRemovedFromQueue, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.runs.UpdateMissionRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist removed mission run (mission_run_id: %s): %w", run.ID, err)
	}
	s.notifier.MissionRunUpdated(ctx, run)
	s.logger.Info(ctx, "Mission run removed from queue", "robot_id", run.RobotID, "mission_run_id", run.ID)
	return run, nil
}

// RerunMissionRun queues a new Pending run holding the tasks of a finished
// run that did not succeed. An empty robotID reruns on the original robot
// and a nil desiredStart means as soon as possible. A run whose every task
// succeeded yields ErrTaskNotFound.
func (s *MissionScheduler) RerunMissionRun(
	ctx context.Context,
	runID, robotID string,
	desiredStart *time.Time,
) (*mission.MissionRun, error) {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.rerun_mission_run",
		trace.WithAttributes(
			attribute.String("mission_run_id", runID),
			attribute.String("robot_id", robotID),
		))
	defer span.End()

	run, err := s.newRerun(ctx, runID, robotID, desiredStart)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to rerun mission run")
		return nil, err
	}
	span.SetAttributes(attribute.String("rerun_mission_run_id", run.ID))

	s.notifier.MissionRunUpdated(ctx, run)
	s.tryStartNext(ctx, run.RobotID)
	return run, nil
}

func (s *MissionScheduler) newRerun(ctx context.Context, runID, robotID string, desiredStart *time.Time) (*mission.MissionRun, error) {
	src, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !src.IsCompleted() {
		return nil, fmt.Errorf("mission run %s is %s: %w", src.ID, src.Status, mission.ErrMissionRunNotFinished)
	}

	tasks := src.CloneUnfinishedTasks()
	if len(tasks) == 0 {
		return nil, fmt.Errorf("mission run %s has no unfinished tasks: %w", src.ID, mission.ErrTaskNotFound)
	}

	if robotID == "" {
		robotID = src.RobotID
	}
	rb, err := s.getRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	opts := []mission.MissionRunOption{
		mission.WithInspectionArea(src.InspectionAreaID),
		mission.WithEstimatedDuration(src.EstimatedDuration),
	}
	if src.MissionDefinitionID != "" {
		opts = append(opts, mission.WithMissionDefinition(src.MissionDefinitionID))
	}
	if src.MapMetadata != nil {
		opts = append(opts, mission.WithMapMetadata(*src.MapMetadata))
	}
	if desiredStart != nil {
		opts = append(opts, mission.WithDesiredStartTime(*desiredStart))
	}

	run := mission.NewMissionRun(src.Name, src.InstallationCode, rb.ID, tasks, now, opts...)
	if err := s.runs.CreateMissionRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create rerun mission run (mission_run_id: %s): %w", src.ID, err)
	}
	s.logger.Info(ctx, "Mission run rerun",
		"source_mission_run_id", src.ID,
		"mission_run_id", run.ID,
		"robot_id", rb.ID,
		"tasks", len(tasks),
	)
	return run, nil
}

func (s *MissionScheduler) getRun(ctx context.Context, runID string) (*mission.MissionRun, error) {
	run, err := s.runs.GetMissionRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission run (mission_run_id: %s): %w", runID, err)
	}
	if run == nil {
		return nil, fmt.Errorf("mission run %s: %w", runID, mission.ErrMissionRunNotFound)
	}
	return run, nil
}
