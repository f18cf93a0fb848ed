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
)

// ReasonEmergencyLockdown is recorded on runs cancelled by an emergency lockdown.
const ReasonEmergencyLockdown = "Stopped by emergency lockdown"

// LockdownInstallation puts every robot of the installation into emergency
// lockdown; see LockdownRobot. Every robot is attempted and the failures
// are joined.
func (s *MissionScheduler) LockdownInstallation(ctx context.Context, installationCode string) error {
	return s.forEachRobot(ctx, "lockdown_installation", installationCode, s.LockdownRobot)
}

// ReleaseInstallationFromLockdown unfreezes every robot of the installation
// and lets queued runs dispatch again.
func (s *MissionScheduler) ReleaseInstallationFromLockdown(ctx context.Context, installationCode string) error {
	return s.forEachRobot(ctx, "release_installation", installationCode, s.ReleaseRobotFromLockdown)
}

func (s *MissionScheduler) forEachRobot(
	ctx context.Context,
	op, installationCode string,
	fn func(context.Context, string) error,
) error {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler."+op,
		trace.WithAttributes(attribute.String("installation_code", installationCode)))
	defer span.End()

	robots, err := s.robots.ListRobotsForInstallation(ctx, installationCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list robots")
		return fmt.Errorf("failed to list robots (installation_code: %s): %w", installationCode, err)
	}

	var errs []error
	for _, rb := range robots {
		if err := fn(ctx, rb.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed on some robots")
		return err
	}
	return nil
}

// LockdownRobot freezes the robot's queue, stops its active run and sends
// it home with an emergency return-to-home run, which bypasses the frozen
// queue. When the robot could not be stopped it is not sent home.
func (s *MissionScheduler) LockdownRobot(ctx context.Context, robotID string) error {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.lockdown_robot",
		trace.WithAttributes(attribute.String("robot_id", robotID)))
	defer span.End()

	home, err := s.lockdownLocked(ctx, robotID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to lock robot down")
		return err
	}
	if home != nil {
		span.SetAttributes(attribute.String("return_home_mission_run_id", home.ID))
		s.tryStartNext(ctx, robotID)
	}
	return nil
}

func (s *MissionScheduler) lockdownLocked(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	s.robotLocks.Lock(robotID)
	defer s.robotLocks.Unlock(robotID)

	rb, err := s.getRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}
	if !rb.MissionQueueFrozen {
		rb.MissionQueueFrozen = true
		if err := s.robots.UpdateRobot(ctx, rb); err != nil {
			return nil, fmt.Errorf("failed to persist robot (robot_id: %s): %w", rb.ID, err)
		}
	}

	if _, err := s.stopLocked(ctx, rb, ReasonEmergencyLockdown); err != nil && !errors.Is(err, mission.ErrMissionRunNotFound) {
		s.logger.Error(ctx, "Failed to stop robot during emergency lockdown, not sending it home",
			"robot_id", rb.ID,
			"error", err,
		)
		return nil, err
	}

	home, err := s.emergencyReturnHome(ctx, rb)
	if err != nil {
		if errors.Is(err, robot.ErrNoInspectionArea) {
			s.notifier.ReportDockFailure(ctx, rb, "Robot is in emergency lockdown but has no current inspection area to return home in")
		}
		return nil, err
	}
	s.logger.Warn(ctx, "Robot in emergency lockdown", "robot_id", rb.ID, "return_home_mission_run_id", home.ID)
	return home, nil
}

// emergencyReturnHome makes sure rb has a return-to-home run at emergency
// priority, escalating a queued one before creating a new one. A return
// home that is already running is kept.
func (s *MissionScheduler) emergencyReturnHome(ctx context.Context, rb *robot.Robot) (*mission.MissionRun, error) {
	existing, err := s.runs.ListMissionRuns(ctx, mission.RunFilter{
		RobotID:  rb.ID,
		Statuses: append(mission.ActiveStatuses(), mission.MissionStatusPending),
		RunTypes: []mission.RunType{mission.RunTypeReturnHome},
		Order:    mission.RunOrderQueue,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list return home mission runs (robot_id: %s): %w", rb.ID, err)
	}
	for _, r := range existing {
		if r.IsActive() {
			return r, nil
		}
	}
	if len(existing) > 0 {
		home := existing[0]
		if home.Priority != mission.PriorityEmergency {
			if err := home.Escalate(); err != nil {
				return nil, err
			}
			if err := s.runs.UpdateMissionRun(ctx, home); err != nil {
				return nil, fmt.Errorf("failed to persist escalated return home (mission_run_id: %s): %w", home.ID, err)
			}
		}
		return home, nil
	}

	home, err := s.createReturnHomeRun(ctx, rb, rb.CurrentInspectionAreaID)
	if err != nil {
		return nil, err
	}
	if err := home.Escalate(); err != nil {
		return nil, err
	}
	if err := s.runs.UpdateMissionRun(ctx, home); err != nil {
		return nil, fmt.Errorf("failed to persist escalated return home (mission_run_id: %s): %w", home.ID, err)
	}
	return home, nil
}

// ReleaseRobotFromLockdown unfreezes the robot's queue and tries to
// dispatch its next run.
func (s *MissionScheduler) ReleaseRobotFromLockdown(ctx context.Context, robotID string) error {
	ctx, span := s.tracer.Start(ctx, "mission_scheduler.release_robot_from_lockdown",
		trace.WithAttributes(attribute.String("robot_id", robotID)))
	defer span.End()

	if err := s.UnfreezeMissionRunQueueForRobot(ctx, robotID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to release robot from lockdown")
		return err
	}
	s.logger.Info(ctx, "Robot released from emergency lockdown", "robot_id", robotID)
	return nil
}
