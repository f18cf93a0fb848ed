package mission

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_ValidateTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    TaskStatus
		to      TaskStatus
		wantErr error
	}{
		{name: "not started to in progress", from: TaskStatusNotStarted, to: TaskStatusInProgress},
		{name: "not started to cancelled", from: TaskStatusNotStarted, to: TaskStatusCancelled},
		{name: "in progress to paused", from: TaskStatusInProgress, to: TaskStatusPaused},
		{name: "paused to in progress", from: TaskStatusPaused, to: TaskStatusInProgress},
		{name: "paused to failed", from: TaskStatusPaused, to: TaskStatusFailed},
		{name: "in progress to successful", from: TaskStatusInProgress, to: TaskStatusSuccessful},
		{name: "in progress back to not started", from: TaskStatusInProgress, to: TaskStatusNotStarted, wantErr: ErrInvalidTransition},
		{name: "successful to failed", from: TaskStatusSuccessful, to: TaskStatusFailed, wantErr: ErrTerminalStatus},
		{name: "cancelled to in progress", from: TaskStatusCancelled, to: TaskStatusInProgress, wantErr: ErrTerminalStatus},
		{name: "partially successful to successful", from: TaskStatusPartiallySuccessful, to: TaskStatusSuccessful, wantErr: ErrTerminalStatus},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.from.ValidateTransition(tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestParseStatuses(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TaskStatusInProgress, ParseTaskStatus("in_progress"))
	assert.Equal(t, TaskStatusPartiallySuccessful, ParseTaskStatus("PARTIALLY_SUCCESSFUL"))
	assert.Equal(t, TaskStatus(""), ParseTaskStatus("bogus"))

	assert.Equal(t, MissionStatusPending, ParseMissionStatus("not_started"))
	assert.Equal(t, MissionStatusOngoing, ParseMissionStatus("in_progress"))
	assert.Equal(t, MissionStatusCancelled, ParseMissionStatus("cancelled"))
	assert.Equal(t, MissionStatus(""), ParseMissionStatus("running"))

	assert.Equal(t, InspectionStatusFailed, ParseInspectionStatus("failed"))
}

func TestMissionStatus_ValidateTransition(t *testing.T) {
	t.Parallel()

	assert.NoError(t, MissionStatusPending.ValidateTransition(MissionStatusOngoing))
	assert.NoError(t, MissionStatusPending.ValidateTransition(MissionStatusAborted))
	assert.NoError(t, MissionStatusOngoing.ValidateTransition(MissionStatusPaused))
	assert.NoError(t, MissionStatusPaused.ValidateTransition(MissionStatusOngoing))
	assert.ErrorIs(t, MissionStatusOngoing.ValidateTransition(MissionStatusPending), ErrInvalidTransition)
	assert.ErrorIs(t, MissionStatusAborted.ValidateTransition(MissionStatusCancelled), ErrTerminalStatus)
}

func tasksWith(statuses ...TaskStatus) []*MissionTask {
	out := make([]*MissionTask, len(statuses))
	for i, s := range statuses {
		out[i] = &MissionTask{ID: string(rune('a' + i)), Status: s}
	}
	return out
}

func TestDeriveStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		tasks []*MissionTask
		want  MissionStatus
	}{
		{name: "all not started", tasks: tasksWith(TaskStatusNotStarted, TaskStatusNotStarted), want: MissionStatusOngoing},
		{name: "one in progress among finished", tasks: tasksWith(TaskStatusSuccessful, TaskStatusInProgress), want: MissionStatusOngoing},
		{name: "active beats failed", tasks: tasksWith(TaskStatusFailed, TaskStatusNotStarted), want: MissionStatusOngoing},
		{name: "paused", tasks: tasksWith(TaskStatusSuccessful, TaskStatusPaused), want: MissionStatusPaused},
		{name: "all successful", tasks: tasksWith(TaskStatusSuccessful, TaskStatusSuccessful), want: MissionStatusSuccessful},
		{name: "no tasks", tasks: nil, want: MissionStatusSuccessful},
		{name: "failed and successful", tasks: tasksWith(TaskStatusSuccessful, TaskStatusFailed), want: MissionStatusFailed},
		{name: "partial mix", tasks: tasksWith(TaskStatusSuccessful, TaskStatusPartiallySuccessful), want: MissionStatusPartiallySuccessful},
		{name: "successful and cancelled", tasks: tasksWith(TaskStatusSuccessful, TaskStatusCancelled), want: MissionStatusPartiallySuccessful},
		{name: "all cancelled", tasks: tasksWith(TaskStatusCancelled, TaskStatusCancelled), want: MissionStatusCancelled},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DeriveStatus(tt.tasks))
		})
	}
}

// Successful iff every task is Successful; Ongoing iff some task is
// NotStarted or InProgress. Checked over every pair of task statuses.
func TestDeriveStatus_Properties(t *testing.T) {
	t.Parallel()

	all := []TaskStatus{
		TaskStatusNotStarted, TaskStatusInProgress, TaskStatusPaused, TaskStatusSuccessful,
		TaskStatusPartiallySuccessful, TaskStatusFailed, TaskStatusCancelled,
	}
	for _, a := range all {
		for _, b := range all {
			tasks := tasksWith(a, b)
			got := DeriveStatus(tasks)

			allSuccessful := a == TaskStatusSuccessful && b == TaskStatusSuccessful
			anyActive := a.IsActive() || b.IsActive()

			assert.Equal(t, allSuccessful, got == MissionStatusSuccessful, "%s,%s -> %s", a, b, got)
			assert.Equal(t, anyActive, got == MissionStatusOngoing, "%s,%s -> %s", a, b, got)
		}
	}
}
