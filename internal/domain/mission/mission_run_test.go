package mission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestRun(n int) *MissionRun {
	tasks := make([]*MissionTask, n)
	for i := range tasks {
		tasks[i] = NewInspectionTask("tag", shared.DefaultPose(), shared.Position{X: float64(i)},
			NewInspection(InspectionTypeImage))
	}
	return NewMissionRun("Deck A", "HUA", "robot-1", tasks, t0, WithInspectionArea("area-1"))
}

func dispatch(t *testing.T, r *MissionRun) {
	t.Helper()
	am := AgentMission{IsarMissionID: "isar-m", StartTime: t0}
	for i := range r.Tasks {
		am.Tasks = append(am.Tasks, AgentTask{
			IsarTaskID:        "isar-t" + string(rune('0'+i)),
			IsarInspectionIDs: []string{"isar-i" + string(rune('0'+i))},
		})
	}
	require.NoError(t, r.MarkDispatched(am))
}

func TestNewMissionRun(t *testing.T) {
	r := newTestRun(3)

	assert.Equal(t, MissionStatusPending, r.Status)
	assert.Equal(t, RunTypeNormal, r.RunType)
	assert.Equal(t, PriorityNormal, r.Priority)
	for i, task := range r.Tasks {
		assert.Equal(t, i, task.TaskOrder)
		assert.Equal(t, TaskStatusNotStarted, task.Status)
	}
}

func TestNewReturnHomeRun(t *testing.T) {
	r := NewReturnHomeRun("HUA", "robot-1", "area-1", shared.DefaultPose(), t0)

	assert.True(t, r.IsReturnHome())
	assert.Equal(t, PriorityLow, r.Priority)
	require.Len(t, r.Tasks, 1)
	assert.Equal(t, TaskTypeReturnHome, r.Tasks[0].Type)
	assert.Equal(t, "area-1", r.InspectionAreaID)
}

func TestMissionRun_MarkDispatched(t *testing.T) {
	r := newTestRun(2)
	dispatch(t, r)

	assert.Equal(t, MissionStatusOngoing, r.Status)
	assert.Equal(t, "isar-m", r.IsarMissionID)
	assert.Equal(t, "isar-t1", r.Tasks[1].IsarTaskID)
	assert.Equal(t, "isar-i1", r.Tasks[1].Inspections[0].IsarInspectionID)
	require.NotNil(t, r.StartTime)

	err := r.MarkDispatched(AgentMission{IsarMissionID: "again"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMissionRun_MarkDispatched_TaskCountMismatch(t *testing.T) {
	r := newTestRun(2)
	err := r.MarkDispatched(AgentMission{IsarMissionID: "m", Tasks: []AgentTask{{IsarTaskID: "x"}}})
	assert.ErrorIs(t, err, ErrInvalidData)
	assert.Equal(t, MissionStatusPending, r.Status)
}

func TestMissionRun_UpdateTaskStatus_DerivesStatus(t *testing.T) {
	r := newTestRun(2)
	dispatch(t, r)
	later := t0.Add(time.Minute)

	require.NoError(t, r.UpdateTaskStatus("isar-t0", TaskStatusInProgress, later))
	assert.Equal(t, MissionStatusOngoing, r.Status)

	require.NoError(t, r.UpdateTaskStatus("isar-t0", TaskStatusSuccessful, later))
	assert.Equal(t, MissionStatusOngoing, r.Status)

	require.NoError(t, r.UpdateTaskStatus("isar-t1", TaskStatusSuccessful, later))
	assert.Equal(t, MissionStatusSuccessful, r.Status)
	require.NotNil(t, r.EndTime)
	assert.Equal(t, later, *r.EndTime)
}

func TestMissionRun_UpdateTaskStatus_TerminalIsImmutable(t *testing.T) {
	r := newTestRun(2)
	dispatch(t, r)

	require.NoError(t, r.UpdateTaskStatus("isar-t0", TaskStatusFailed, t0))
	err := r.UpdateTaskStatus("isar-t0", TaskStatusSuccessful, t0)
	assert.ErrorIs(t, err, ErrTerminalStatus)
	assert.Equal(t, TaskStatusFailed, r.Tasks[0].Status)
	assert.Equal(t, InspectionStatusFailed, r.Tasks[0].Inspections[0].Status)

	assert.ErrorIs(t, r.UpdateTaskStatus("nope", TaskStatusSuccessful, t0), ErrTaskNotFound)
}

func TestMissionRun_ApplyAgentStatus(t *testing.T) {
	tests := []struct {
		name      string
		prepare   func(r *MissionRun)
		status    MissionStatus
		want      MissionStatus
		wantTasks []TaskStatus
	}{
		{
			name:      "paused pauses running tasks",
			prepare:   func(r *MissionRun) { _ = r.UpdateTaskStatus("isar-t0", TaskStatusInProgress, t0) },
			status:    MissionStatusPaused,
			want:      MissionStatusPaused,
			wantTasks: []TaskStatus{TaskStatusPaused, TaskStatusNotStarted},
		},
		{
			name:      "paused before any task started",
			prepare:   func(*MissionRun) {},
			status:    MissionStatusPaused,
			want:      MissionStatusPaused,
			wantTasks: []TaskStatus{TaskStatusNotStarted, TaskStatusNotStarted},
		},
		{
			name: "in progress resumes paused tasks",
			prepare: func(r *MissionRun) {
				_ = r.UpdateTaskStatus("isar-t0", TaskStatusInProgress, t0)
				_ = r.UpdateTaskStatus("isar-t0", TaskStatusPaused, t0)
			},
			status:    MissionStatusOngoing,
			want:      MissionStatusOngoing,
			wantTasks: []TaskStatus{TaskStatusInProgress, TaskStatusNotStarted},
		},
		{
			name:      "failed fails remaining tasks",
			prepare:   func(r *MissionRun) { _ = r.UpdateTaskStatus("isar-t0", TaskStatusSuccessful, t0) },
			status:    MissionStatusFailed,
			want:      MissionStatusFailed,
			wantTasks: []TaskStatus{TaskStatusSuccessful, TaskStatusFailed},
		},
		{
			name:      "cancelled after partial success",
			prepare:   func(r *MissionRun) { _ = r.UpdateTaskStatus("isar-t0", TaskStatusSuccessful, t0) },
			status:    MissionStatusCancelled,
			want:      MissionStatusPartiallySuccessful,
			wantTasks: []TaskStatus{TaskStatusSuccessful, TaskStatusCancelled},
		},
		{
			name:      "successful completes everything",
			prepare:   func(*MissionRun) {},
			status:    MissionStatusSuccessful,
			want:      MissionStatusSuccessful,
			wantTasks: []TaskStatus{TaskStatusSuccessful, TaskStatusSuccessful},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRun(2)
			dispatch(t, r)
			tt.prepare(r)

			require.NoError(t, r.ApplyAgentStatus(tt.status, t0))
			assert.Equal(t, tt.want, r.Status)
			for i, want := range tt.wantTasks {
				assert.Equal(t, want, r.Tasks[i].Status, "task %d", i)
			}
		})
	}
}

func TestMissionRun_PauseAndResume(t *testing.T) {
	r := newTestRun(2)
	dispatch(t, r)
	require.NoError(t, r.UpdateTaskStatus("isar-t0", TaskStatusInProgress, t0))

	require.NoError(t, r.Pause(t0))
	assert.Equal(t, MissionStatusPaused, r.Status)
	assert.Equal(t, TaskStatusPaused, r.Tasks[0].Status)
	assert.Equal(t, TaskStatusNotStarted, r.Tasks[1].Status)
	require.NoError(t, r.Pause(t0))

	// A repeated report for the paused task does not resume the run.
	require.NoError(t, r.UpdateTaskStatus("isar-t0", TaskStatusPaused, t0))
	assert.Equal(t, MissionStatusPaused, r.Status)

	require.NoError(t, r.Resume(t0))
	assert.Equal(t, MissionStatusOngoing, r.Status)
	assert.Equal(t, TaskStatusInProgress, r.Tasks[0].Status)
	require.NoError(t, r.Resume(t0))

	require.NoError(t, r.Pause(t0))
	require.NoError(t, r.UpdateTaskStatus("isar-t0", TaskStatusInProgress, t0))
	assert.Equal(t, MissionStatusOngoing, r.Status, "progress from the agent resumes the run")

	pending := newTestRun(1)
	assert.ErrorIs(t, pending.Resume(t0), ErrInvalidTransition)
}

func TestMissionRun_Cancel(t *testing.T) {
	r := newTestRun(2)
	dispatch(t, r)
	require.NoError(t, r.UpdateTaskStatus("isar-t0", TaskStatusSuccessful, t0))

	require.NoError(t, r.Cancel("operator", t0))
	assert.Equal(t, MissionStatusCancelled, r.Status)
	assert.Equal(t, TaskStatusSuccessful, r.Tasks[0].Status)
	assert.Equal(t, TaskStatusCancelled, r.Tasks[1].Status)

	// The agent's late report cannot override the operator.
	assert.ErrorIs(t, r.ApplyAgentStatus(MissionStatusFailed, t0), ErrTerminalStatus)
	assert.ErrorIs(t, r.Cancel("again", t0), ErrTerminalStatus)
}

func TestMissionRun_Fail(t *testing.T) {
	r := newTestRun(1)
	dispatch(t, r)

	require.NoError(t, r.Fail(ReasonLostConnection, t0))
	assert.Equal(t, MissionStatusFailed, r.Status)
	assert.Equal(t, ReasonLostConnection, r.StatusReason)
	assert.Equal(t, TaskStatusFailed, r.Tasks[0].Status)
	assert.Equal(t, InspectionStatusFailed, r.Tasks[0].Inspections[0].Status)
}

func TestMissionRun_UpdateInspectionStatus(t *testing.T) {
	r := newTestRun(1)
	dispatch(t, r)

	require.NoError(t, r.UpdateInspectionStatus("isar-t0", "isar-i0", InspectionStatusSuccessful, t0))
	assert.ErrorIs(t, r.UpdateInspectionStatus("isar-t0", "isar-i0", InspectionStatusFailed, t0), ErrTerminalStatus)
	assert.ErrorIs(t, r.UpdateInspectionStatus("isar-t0", "unknown", InspectionStatusFailed, t0), ErrInspectionNotFound)
}

func TestMissionRun_CloneTasks(t *testing.T) {
	r := newTestRun(2)
	dispatch(t, r)
	require.NoError(t, r.UpdateTaskStatus("isar-t0", TaskStatusSuccessful, t0))

	clones := r.CloneTasks()
	require.Len(t, clones, 2)
	for i, c := range clones {
		assert.NotEqual(t, r.Tasks[i].ID, c.ID)
		assert.Empty(t, c.IsarTaskID)
		assert.Equal(t, TaskStatusNotStarted, c.Status)
		assert.Equal(t, r.Tasks[i].TaskOrder, c.TaskOrder)
		assert.Equal(t, r.Tasks[i].InspectionTarget, c.InspectionTarget)
		require.Len(t, c.Inspections, 1)
		assert.Equal(t, InspectionStatusNotStarted, c.Inspections[0].Status)
		assert.Empty(t, c.Inspections[0].IsarInspectionID)
	}
}

func TestMissionRun_CloneUnfinishedTasks(t *testing.T) {
	r := newTestRun(4)
	dispatch(t, r)
	require.NoError(t, r.UpdateTaskStatus("isar-t0", TaskStatusSuccessful, t0))
	require.NoError(t, r.UpdateTaskStatus("isar-t1", TaskStatusPartiallySuccessful, t0))
	require.NoError(t, r.UpdateTaskStatus("isar-t2", TaskStatusFailed, t0))
	require.NoError(t, r.Cancel("operator", t0))

	clones := r.CloneUnfinishedTasks()
	require.Len(t, clones, 2)
	assert.Equal(t, r.Tasks[2].InspectionTarget, clones[0].InspectionTarget)
	assert.Equal(t, r.Tasks[3].InspectionTarget, clones[1].InspectionTarget)
	for _, c := range clones {
		assert.Equal(t, TaskStatusNotStarted, c.Status)
		assert.Empty(t, c.IsarTaskID)
	}

	done := newTestRun(1)
	dispatch(t, done)
	require.NoError(t, done.UpdateTaskStatus("isar-t0", TaskStatusSuccessful, t0))
	assert.Empty(t, done.CloneUnfinishedTasks())
}

func TestMissionRun_Abort(t *testing.T) {
	r := newTestRun(2)

	require.NoError(t, r.Abort(ReasonRemovedFromQueue, t0))
	assert.Equal(t, MissionStatusAborted, r.Status)
	assert.Equal(t, ReasonRemovedFromQueue, r.StatusReason)
	require.NotNil(t, r.EndTime)
	for _, task := range r.Tasks {
		assert.Equal(t, TaskStatusCancelled, task.Status)
	}
	assert.ErrorIs(t, r.Abort(ReasonRemovedFromQueue, t0), ErrTerminalStatus)
}

func TestMissionRun_Escalate(t *testing.T) {
	r := newTestRun(1)
	require.NoError(t, r.Escalate())
	assert.Equal(t, PriorityEmergency, r.Priority)

	dispatch(t, r)
	assert.ErrorIs(t, r.Escalate(), ErrMissionRunNotQueued)
}
