// Package scheduling decides when and on which robot mission runs execute.
// It owns the dispatch loop, the return-to-home policy, the daily
// auto-scheduling cycle and the ingestion of robot status reports.
package scheduling

import (
	"context"
	"time"

	"github.com/equinor/flotilla-sub005/internal/domain/events"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
)

// RobotAgent is the control interface of the software running on a robot.
// Implementations wrap transport failures in mission.ErrRobotAgentUnavailable
// and rejected commands in mission.ErrRobotAgent.
type RobotAgent interface {
	// StartMission hands run to the robot and returns the agent's
	// identifiers for the mission, its tasks and inspections.
	StartMission(ctx context.Context, r *robot.Robot, run *mission.MissionRun) (*mission.AgentMission, error)
	StopMission(ctx context.Context, r *robot.Robot) error
	PauseMission(ctx context.Context, r *robot.Robot) error
	ResumeMission(ctx context.Context, r *robot.Robot) error
}

// NotificationSink delivers operator-facing messages. Delivery is best
// effort; implementations never fail the caller.
type NotificationSink interface {
	SendMessage(ctx context.Context, label events.EventType, installationCode string, payload any)
	ReportDockFailure(ctx context.Context, r *robot.Robot, message string)
	ReportGeneralFail(ctx context.Context, r *robot.Robot, title, message string)
	ReportAutoScheduleFail(ctx context.Context, def *mission.MissionDefinition, message string)
	MissionRunUpdated(ctx context.Context, run *mission.MissionRun)
}

// DelayedJobScheduler runs callbacks after a delay. Jobs run with the
// scheduler's own lifetime context, not the context passed to Schedule, and
// receive the handle Schedule returned. A job never runs on the goroutine
// that called Schedule.
type DelayedJobScheduler interface {
	Schedule(ctx context.Context, delay time.Duration, job func(ctx context.Context, jobID string)) (string, error)
	// Cancel stops a job that has not fired yet. It reports whether the job
	// was still pending.
	Cancel(jobID string) bool
}

// Dispatcher starts the next queued run on a robot when it is free.
type Dispatcher interface {
	StartNextMissionRunIfSystemIsAvailable(ctx context.Context, robotID string) (*mission.MissionRun, error)
}

// DefinitionRunScheduler creates runs from mission definitions.
type DefinitionRunScheduler interface {
	ScheduleMissionRunFromMissionDefinitionLastSuccessfulRun(ctx context.Context, definitionID, robotID string) (*mission.MissionRun, error)
}
