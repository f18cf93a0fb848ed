package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newRun(robotID string, opts ...mission.MissionRunOption) *mission.MissionRun {
	task := mission.NewInspectionTask("tag", shared.DefaultPose(), shared.Position{},
		mission.NewInspection(mission.InspectionTypeImage))
	return mission.NewMissionRun("Deck", "HUA", robotID, []*mission.MissionTask{task}, now, opts...)
}

func TestRunStore_UnknownIDReturnsNil(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	run, err := s.GetMissionRun(context.Background(), "IDoNotExist")
	require.NoError(t, err)
	assert.Nil(t, run)

	run, err = s.GetMissionRunByIsarMissionID(context.Background(), "IDoNotExist")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestRunStore_CopiesOnReadAndWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	run := newRun("robot-1")
	require.NoError(t, s.CreateMissionRun(ctx, run))

	run.Tasks[0].Status = mission.TaskStatusFailed
	got, err := s.GetMissionRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.TaskStatusNotStarted, got.Tasks[0].Status)

	got.Tasks[0].Inspections[0].Status = mission.InspectionStatusFailed
	again, err := s.GetMissionRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.InspectionStatusNotStarted, again.Tasks[0].Inspections[0].Status)
}

func TestRunStore_ListAndUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	normal := newRun("robot-1")
	urgent := newRun("robot-1", mission.WithPriority(mission.PriorityEmergency))
	other := newRun("robot-2")
	for _, r := range []*mission.MissionRun{normal, urgent, other} {
		require.NoError(t, s.CreateMissionRun(ctx, r))
	}

	runs, err := s.ListMissionRuns(ctx, mission.RunFilter{RobotID: "robot-1", Order: mission.RunOrderQueue})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, urgent.ID, runs[0].ID)

	require.NoError(t, urgent.MarkDispatched(mission.AgentMission{IsarMissionID: "isar-1", StartTime: now}))
	require.NoError(t, s.UpdateMissionRun(ctx, urgent))

	byIsar, err := s.GetMissionRunByIsarMissionID(ctx, "isar-1")
	require.NoError(t, err)
	require.NotNil(t, byIsar)
	assert.Equal(t, urgent.ID, byIsar.ID)

	active, err := s.ListMissionRuns(ctx, mission.RunFilter{Statuses: mission.ActiveStatuses()})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	err = s.UpdateMissionRun(ctx, newRun("robot-3"))
	assert.ErrorIs(t, err, mission.ErrMissionRunNotFound)
	assert.Equal(t, 3, s.Count())
}

func TestDefinitionStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewDefinitionStore()

	got, err := s.GetMissionDefinition(ctx, "IDoNotExist")
	require.NoError(t, err)
	assert.Nil(t, got)

	plain := mission.NewMissionDefinition("src-1", "Plain", "HUA", "area-1", now)
	recurring := mission.NewMissionDefinition("src-2", "Recurring", "HUA", "area-1", now)
	freq, err := mission.NewAutoScheduleFrequency([]mission.TimeAndDay{
		{DayOfWeek: mission.DayOfWeek(time.Monday), TimeOfDay: mission.MustTimeOfDay(10, 0, 0)},
	})
	require.NoError(t, err)
	recurring.SetAutoSchedule(freq)
	require.NoError(t, s.CreateMissionDefinition(ctx, plain))
	require.NoError(t, s.CreateMissionDefinition(ctx, recurring))

	list, err := s.ListAutoScheduledMissionDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, recurring.ID, list[0].ID)

	// Bookkeeping on a read copy does not leak into the store until updated.
	list[0].AutoScheduleFrequency.RecordScheduledJob(mission.MustTimeOfDay(10, 0, 0), "job-1")
	stored, err := s.GetMissionDefinition(ctx, recurring.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.AutoScheduleFrequency.ScheduledJobs)

	require.NoError(t, s.UpdateMissionDefinition(ctx, list[0]))
	stored, err = s.GetMissionDefinition(ctx, recurring.ID)
	require.NoError(t, err)
	id, ok := stored.AutoScheduleFrequency.ScheduledJob(mission.MustTimeOfDay(10, 0, 0))
	assert.True(t, ok)
	assert.Equal(t, "job-1", id)

	bySource, err := s.GetMissionDefinitionBySourceID(ctx, "src-1")
	require.NoError(t, err)
	require.NotNil(t, bySource)
	assert.Equal(t, plain.ID, bySource.ID)
}
