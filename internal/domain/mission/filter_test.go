package mission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortRuns_QueueOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	mk := func(id string, p Priority, desired, created time.Duration) *MissionRun {
		return &MissionRun{
			ID:               id,
			Priority:         p,
			DesiredStartTime: base.Add(desired),
			CreatedAt:        base.Add(created),
		}
	}

	runs := []*MissionRun{
		mk("home", PriorityLow, 0, 0),
		mk("late", PriorityNormal, time.Hour, 0),
		mk("second-created", PriorityNormal, 0, time.Minute),
		mk("b-same", PriorityNormal, 0, 0),
		mk("a-same", PriorityNormal, 0, 0),
		mk("urgent", PriorityEmergency, 2*time.Hour, 0),
	}
	SortRuns(runs, RunOrderQueue)

	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"urgent", "a-same", "b-same", "second-created", "late", "home"}, ids)
}

func TestRunFilter_MatchesAndPaginate(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	r := &MissionRun{
		ID: "r1", RobotID: "robot-1", InstallationCode: "HUA", Status: MissionStatusPending,
		RunType: RunTypeNormal, DesiredStartTime: now, CreatedAt: now,
	}

	assert.True(t, RunFilter{}.Matches(r))
	assert.True(t, RunFilter{RobotID: "robot-1", Statuses: []MissionStatus{MissionStatusPending}}.Matches(r))
	assert.False(t, RunFilter{Statuses: ActiveStatuses()}.Matches(r))
	assert.False(t, RunFilter{RunTypes: []RunType{RunTypeReturnHome}}.Matches(r))
	later := now.Add(time.Minute)
	assert.False(t, RunFilter{CreatedFrom: &later}.Matches(r))
	assert.True(t, RunFilter{DesiredStartTo: &later}.Matches(r))

	runs := []*MissionRun{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	assert.Len(t, RunFilter{PageSize: 2}.Paginate(runs), 2)
	assert.Len(t, RunFilter{Page: 1, PageSize: 2}.Paginate(runs), 1)
	assert.Nil(t, RunFilter{Page: 2, PageSize: 2}.Paginate(runs))
	assert.Len(t, RunFilter{}.Paginate(runs), 3)
}
