package scheduling

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
)

func returnHomeRuns(t *testing.T, env *testEnv, robotID string) []*mission.MissionRun {
	t.Helper()
	return env.listRuns(t, mission.RunFilter{RobotID: robotID, RunTypes: []mission.RunType{mission.RunTypeReturnHome}})
}

func TestLockdownRobot_StopsAndSendsHome(t *testing.T) {
	env := newTestEnv(t)
	running := dispatchOne(t, env)
	queued := env.addPendingRun(t, "robot-1", "area-1", 1)
	env.agent.On("StopMission", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, env.scheduler.LockdownRobot(context.Background(), "robot-1"))

	stopped := env.getRun(t, running.ID)
	assert.Equal(t, mission.MissionStatusCancelled, stopped.Status)
	assert.Equal(t, ReasonEmergencyLockdown, stopped.StatusReason)
	assert.Equal(t, mission.MissionStatusPending, env.getRun(t, queued.ID).Status, "regular work stays queued")

	home := returnHomeRuns(t, env, "robot-1")
	require.Len(t, home, 1, "the queued return home is reused")
	assert.Equal(t, mission.PriorityEmergency, home[0].Priority)
	assert.Equal(t, mission.MissionStatusOngoing, home[0].Status, "emergency return home bypasses the frozen queue")

	r := env.getRobot(t, "robot-1")
	assert.True(t, r.MissionQueueFrozen)
	assert.Equal(t, home[0].ID, r.CurrentMissionID)
}

func TestLockdownRobot_IdleRobot(t *testing.T) {
	env := newTestEnv(t)
	env.agent.acceptAll()
	env.addRobot(t, "robot-1", "area-1")

	require.NoError(t, env.scheduler.LockdownRobot(context.Background(), "robot-1"))

	home := returnHomeRuns(t, env, "robot-1")
	require.Len(t, home, 1)
	assert.Equal(t, mission.PriorityEmergency, home[0].Priority)
	assert.Equal(t, mission.MissionStatusOngoing, home[0].Status)
	env.agent.AssertNotCalled(t, "StopMission", mock.Anything, mock.Anything)
}

func TestLockdownRobot_StopFailureSkipsReturnHome(t *testing.T) {
	env := newTestEnv(t)
	dispatchOne(t, env)
	before := returnHomeRuns(t, env, "robot-1")
	env.agent.On("StopMission", mock.Anything, mock.Anything).
		Return(fmt.Errorf("status 500: %w", mission.ErrRobotAgent))

	err := env.scheduler.LockdownRobot(context.Background(), "robot-1")
	assert.ErrorIs(t, err, mission.ErrRobotAgent)

	after := returnHomeRuns(t, env, "robot-1")
	require.Len(t, after, len(before))
	for _, r := range after {
		assert.NotEqual(t, mission.PriorityEmergency, r.Priority)
	}
	assert.True(t, env.getRobot(t, "robot-1").MissionQueueFrozen)
}

func TestLockdownRobot_NoInspectionArea(t *testing.T) {
	env := newTestEnv(t)
	env.addRobot(t, "robot-1", "")

	err := env.scheduler.LockdownRobot(context.Background(), "robot-1")
	assert.ErrorIs(t, err, robot.ErrNoInspectionArea)
	assert.True(t, env.getRobot(t, "robot-1").MissionQueueFrozen)
	env.notifier.AssertCalled(t, "ReportDockFailure", mock.Anything, mock.Anything, mock.Anything)
}

func TestLockdownAndReleaseInstallation(t *testing.T) {
	env := newTestEnv(t)
	env.agent.acceptAll()
	env.addRobot(t, "robot-a", "area-1")
	env.addRobot(t, "robot-b", "")
	ctx := context.Background()

	err := env.scheduler.LockdownInstallation(ctx, "HUA")
	assert.ErrorIs(t, err, robot.ErrNoInspectionArea, "robot-b has nowhere to go")

	for _, id := range []string{"robot-a", "robot-b"} {
		assert.True(t, env.getRobot(t, id).MissionQueueFrozen, id)
	}
	require.Len(t, returnHomeRuns(t, env, "robot-a"), 1, "robot-a is handled despite robot-b failing")

	// Regular work queued during the lockdown waits for the release.
	queued := env.addPendingRun(t, "robot-b", "area-2", 1)
	run, err := env.scheduler.StartNextMissionRunIfSystemIsAvailable(ctx, "robot-b")
	require.NoError(t, err)
	assert.Nil(t, run)

	require.NoError(t, env.scheduler.ReleaseInstallationFromLockdown(ctx, "HUA"))
	for _, id := range []string{"robot-a", "robot-b"} {
		assert.False(t, env.getRobot(t, id).MissionQueueFrozen, id)
	}
	assert.Equal(t, mission.MissionStatusOngoing, env.getRun(t, queued.ID).Status)
}

func TestReleaseRobotFromLockdown_UnknownRobot(t *testing.T) {
	env := newTestEnv(t)
	err := env.scheduler.ReleaseRobotFromLockdown(context.Background(), "IDoNotExist")
	assert.ErrorIs(t, err, robot.ErrRobotNotFound)
}
