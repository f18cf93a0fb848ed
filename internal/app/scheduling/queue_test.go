package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
)

func TestRemoveQueuedMissionRun(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(t *testing.T, env *testEnv) string
		wantErr error
	}{
		{
			name: "pending run is aborted",
			setup: func(t *testing.T, env *testEnv) string {
				env.addRobot(t, "robot-1", "area-1")
				return env.addPendingRun(t, "robot-1", "area-1", 2).ID
			},
		},
		{
			name:    "unknown run",
			setup:   func(*testing.T, *testEnv) string { return "IDoNotExist" },
			wantErr: mission.ErrMissionRunNotFound,
		},
		{
			name: "running run is refused",
			setup: func(t *testing.T, env *testEnv) string {
				return dispatchOne(t, env).ID
			},
			wantErr: mission.ErrMissionRunNotQueued,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			id := tt.setup(t, env)

			removed, err := env.scheduler.RemoveQueuedMissionRun(ctx, id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, removed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, removed.ID)

			stored := env.getRun(t, id)
			assert.Equal(t, mission.MissionStatusAborted, stored.Status)
			assert.Equal(t, mission.ReasonRemovedFromQueue, stored.StatusReason)
			for _, task := range stored.Tasks {
				assert.Equal(t, mission.TaskStatusCancelled, task.Status)
			}
			env.notifier.AssertCalled(t, "MissionRunUpdated", mock.Anything, mock.Anything)
		})
	}
}

func TestRemoveQueuedMissionRun_NeverDispatched(t *testing.T) {
	env := newTestEnv(t)
	env.agent.acceptAll()
	env.addRobot(t, "robot-1", "area-1")
	queued := env.addPendingRun(t, "robot-1", "area-1", 1)
	ctx := context.Background()

	_, err := env.scheduler.RemoveQueuedMissionRun(ctx, queued.ID)
	require.NoError(t, err)

	run, err := env.scheduler.StartNextMissionRunIfSystemIsAvailable(ctx, "robot-1")
	require.NoError(t, err)
	assert.Nil(t, run)
	env.agent.AssertNotCalled(t, "StartMission", mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveQueuedMissionRuns(t *testing.T) {
	env := newTestEnv(t)
	running := dispatchOne(t, env)
	env.addRobot(t, "robot-2", "area-2")
	a := env.addPendingRun(t, "robot-1", "area-1", 1)
	b := env.addPendingRun(t, "robot-2", "area-2", 1)
	ctx := context.Background()

	t.Run("filtered by robot", func(t *testing.T) {
		removed, err := env.scheduler.RemoveQueuedMissionRuns(ctx, mission.RunFilter{RobotID: "robot-2"})
		require.NoError(t, err)
		require.Len(t, removed, 1)
		assert.Equal(t, b.ID, removed[0].ID)
		assert.Equal(t, mission.MissionStatusPending, env.getRun(t, a.ID).Status)
	})

	t.Run("whole installation", func(t *testing.T) {
		removed, err := env.scheduler.RemoveQueuedMissionRuns(ctx, mission.RunFilter{
			InstallationCode: "HUA",
			Statuses:         []mission.MissionStatus{mission.MissionStatusOngoing},
		})
		require.NoError(t, err)

		ids := make([]string, len(removed))
		for i, r := range removed {
			ids[i] = r.ID
		}
		assert.Contains(t, ids, a.ID)
		assert.NotContains(t, ids, running.ID)

		assert.Empty(t, env.listRuns(t, mission.RunFilter{Statuses: []mission.MissionStatus{mission.MissionStatusPending}}))
		assert.Equal(t, mission.MissionStatusOngoing, env.getRun(t, running.ID).Status)
	})
}

// finishRun drives a dispatched run through the agent reports: the first
// task succeeds and the second fails.
func finishRun(t *testing.T, env *testEnv, run *mission.MissionRun) {
	t.Helper()
	ctx := context.Background()
	updates := []mission.TaskStatus{mission.TaskStatusSuccessful, mission.TaskStatusFailed}
	for i, st := range updates {
		require.NoError(t, env.tracker.HandleTaskUpdate(ctx, TaskUpdate{
			IsarMissionID: "isar-" + run.ID,
			IsarTaskID:    run.Tasks[i].ID,
			Status:        st,
		}))
	}
	require.True(t, env.getRun(t, run.ID).IsCompleted())
}

func TestRerunMissionRun(t *testing.T) {
	ctx := context.Background()

	t.Run("queues unfinished tasks only", func(t *testing.T) {
		env := newTestEnv(t)
		src := dispatchOne(t, env)
		finishRun(t, env, src)
		env.addRobot(t, "robot-2", "area-1")
		later := testNow.Add(2 * time.Hour)

		run, err := env.scheduler.RerunMissionRun(ctx, src.ID, "robot-2", &later)
		require.NoError(t, err)

		assert.NotEqual(t, src.ID, run.ID)
		assert.Equal(t, "robot-2", run.RobotID)
		assert.Equal(t, src.Name, run.Name)
		assert.Equal(t, mission.RunTypeNormal, run.RunType)
		assert.Equal(t, mission.PriorityNormal, run.Priority)
		assert.Equal(t, later, run.DesiredStartTime)
		require.Len(t, run.Tasks, 1)
		assert.NotEqual(t, src.Tasks[1].ID, run.Tasks[0].ID)
		assert.Equal(t, src.Tasks[1].InspectionTarget, run.Tasks[0].InspectionTarget)
		assert.Equal(t, mission.TaskStatusNotStarted, run.Tasks[0].Status)

		assert.Equal(t, mission.MissionStatusPending, env.getRun(t, run.ID).Status, "not due yet")
	})

	t.Run("defaults to the original robot and dispatches", func(t *testing.T) {
		env := newTestEnv(t)
		src := dispatchOne(t, env)
		// Keep the queued return home from taking the robot once src ends.
		_, err := env.scheduler.RemoveQueuedMissionRuns(ctx, mission.RunFilter{RobotID: "robot-1"})
		require.NoError(t, err)
		finishRun(t, env, src)

		run, err := env.scheduler.RerunMissionRun(ctx, src.ID, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "robot-1", run.RobotID)
		assert.Equal(t, testNow, run.DesiredStartTime)
		assert.Equal(t, mission.MissionStatusOngoing, env.getRun(t, run.ID).Status)
	})

	t.Run("every task succeeded", func(t *testing.T) {
		env := newTestEnv(t)
		src := dispatchOne(t, env)
		for _, task := range src.Tasks {
			require.NoError(t, env.tracker.HandleTaskUpdate(ctx, TaskUpdate{
				IsarMissionID: "isar-" + src.ID,
				IsarTaskID:    task.ID,
				Status:        mission.TaskStatusSuccessful,
			}))
		}

		_, err := env.scheduler.RerunMissionRun(ctx, src.ID, "", nil)
		assert.ErrorIs(t, err, mission.ErrTaskNotFound)
	})

	t.Run("run still in progress", func(t *testing.T) {
		env := newTestEnv(t)
		src := dispatchOne(t, env)

		_, err := env.scheduler.RerunMissionRun(ctx, src.ID, "", nil)
		assert.ErrorIs(t, err, mission.ErrMissionRunNotFinished)
	})

	t.Run("unknown run", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.scheduler.RerunMissionRun(ctx, "IDoNotExist", "", nil)
		assert.ErrorIs(t, err, mission.ErrMissionRunNotFound)
	})
}
