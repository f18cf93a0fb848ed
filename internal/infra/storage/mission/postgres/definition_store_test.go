package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/infra/storage"
)

func setupDefinitionStoreTest(t *testing.T) (context.Context, *pgxpool.Pool, *definitionStore, func()) {
	t.Helper()

	db, cleanup := storage.SetupTestContainer(t)
	store := NewDefinitionStore(db, storage.NoOpTracer())
	ctx := context.Background()

	return ctx, db, store, cleanup
}

func newRecurringDefinition(t *testing.T, sourceID string) *mission.MissionDefinition {
	t.Helper()
	def := mission.NewMissionDefinition(sourceID, "Recurring", "HUA", "area-1", now)
	freq, err := mission.NewAutoScheduleFrequency([]mission.TimeAndDay{
		{DayOfWeek: mission.DayOfWeek(time.Monday), TimeOfDay: mission.MustTimeOfDay(10, 0, 0)},
		{DayOfWeek: mission.DayOfWeek(time.Friday), TimeOfDay: mission.MustTimeOfDay(22, 30, 15)},
	})
	require.NoError(t, err)
	def.SetAutoSchedule(freq)
	return def
}

func TestDefinitionStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupDefinitionStoreTest(t)
	defer cleanup()

	def := newRecurringDefinition(t, "src-1")
	require.NoError(t, store.CreateMissionDefinition(ctx, def))

	loaded, err := store.GetMissionDefinition(ctx, def.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, def.Name, loaded.Name)
	require.NotNil(t, loaded.AutoScheduleFrequency)
	assert.Equal(t, def.AutoScheduleFrequency.TimesAndDays, loaded.AutoScheduleFrequency.TimesAndDays)
	assert.Empty(t, loaded.AutoScheduleFrequency.ScheduledJobs)

	missing, err := store.GetMissionDefinition(ctx, "IDoNotExist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDefinitionStore_ScheduledJobsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupDefinitionStoreTest(t)
	defer cleanup()

	def := newRecurringDefinition(t, "src-1")
	require.NoError(t, store.CreateMissionDefinition(ctx, def))

	def.AutoScheduleFrequency.RecordScheduledJob(mission.MustTimeOfDay(10, 0, 0), "job-1")
	def.SetLastSuccessfulRun("run-1")
	require.NoError(t, store.UpdateMissionDefinition(ctx, def))

	loaded, err := store.GetMissionDefinition(ctx, def.ID)
	require.NoError(t, err)
	id, ok := loaded.AutoScheduleFrequency.ScheduledJob(mission.MustTimeOfDay(10, 0, 0))
	assert.True(t, ok)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, "run-1", loaded.LastSuccessfulRunID)

	err = store.UpdateMissionDefinition(ctx, mission.NewMissionDefinition("x", "x", "HUA", "", now))
	assert.ErrorIs(t, err, mission.ErrMissionDefinitionNotFound)
}

func TestDefinitionStore_ListAutoScheduled(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupDefinitionStoreTest(t)
	defer cleanup()

	plain := mission.NewMissionDefinition("src-plain", "Plain", "HUA", "area-1", now)
	recurring := newRecurringDefinition(t, "src-recurring")
	deprecated := newRecurringDefinition(t, "src-deprecated")
	deprecated.Deprecate()
	for _, d := range []*mission.MissionDefinition{plain, recurring, deprecated} {
		require.NoError(t, store.CreateMissionDefinition(ctx, d))
	}

	list, err := store.ListAutoScheduledMissionDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, recurring.ID, list[0].ID)

	bySource, err := store.GetMissionDefinitionBySourceID(ctx, "src-deprecated")
	require.NoError(t, err)
	assert.Nil(t, bySource)

	bySource, err = store.GetMissionDefinitionBySourceID(ctx, "src-plain")
	require.NoError(t, err)
	require.NotNil(t, bySource)
	assert.Equal(t, plain.ID, bySource.ID)
}

func TestDefinitionStore_CorruptScheduledJobsFailTheList(t *testing.T) {
	t.Parallel()
	ctx, db, store, cleanup := setupDefinitionStoreTest(t)
	defer cleanup()

	def := newRecurringDefinition(t, "src-1")
	require.NoError(t, store.CreateMissionDefinition(ctx, def))
	_, err := db.Exec(ctx, `UPDATE mission_definitions SET scheduled_jobs = '["10:00:00"]' WHERE id = $1`, def.ID)
	require.NoError(t, err)

	_, err = store.ListAutoScheduledMissionDefinitions(ctx)
	assert.ErrorIs(t, err, mission.ErrInvalidData)
}
