package mission

import (
	"slices"
	"sort"
	"time"
)

// RunOrder selects how ListMissionRuns sorts its result.
type RunOrder int

const (
	// RunOrderQueue is dispatch order: priority descending, then desired
	// start time, then creation time, then id. It is total, so dispatch
	// is deterministic.
	RunOrderQueue RunOrder = iota
	// RunOrderNewestFirst sorts by creation time descending.
	RunOrderNewestFirst
)

// RunFilter narrows ListMissionRuns. Zero values match everything.
type RunFilter struct {
	RobotID             string
	InstallationCode    string
	MissionDefinitionID string
	InspectionAreaID    string
	Statuses            []MissionStatus
	RunTypes            []RunType

	DesiredStartFrom *time.Time
	DesiredStartTo   *time.Time
	CreatedFrom      *time.Time
	CreatedTo        *time.Time

	Order RunOrder

	// Page is zero based. PageSize 0 disables pagination.
	Page     int
	PageSize int
}

// Matches reports whether r satisfies every set criterion.
func (f RunFilter) Matches(r *MissionRun) bool {
	switch {
	case f.RobotID != "" && r.RobotID != f.RobotID:
		return false
	case f.InstallationCode != "" && r.InstallationCode != f.InstallationCode:
		return false
	case f.MissionDefinitionID != "" && r.MissionDefinitionID != f.MissionDefinitionID:
		return false
	case f.InspectionAreaID != "" && r.InspectionAreaID != f.InspectionAreaID:
		return false
	case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status):
		return false
	case len(f.RunTypes) > 0 && !slices.Contains(f.RunTypes, r.RunType):
		return false
	case f.DesiredStartFrom != nil && r.DesiredStartTime.Before(*f.DesiredStartFrom):
		return false
	case f.DesiredStartTo != nil && r.DesiredStartTime.After(*f.DesiredStartTo):
		return false
	case f.CreatedFrom != nil && r.CreatedAt.Before(*f.CreatedFrom):
		return false
	case f.CreatedTo != nil && r.CreatedAt.After(*f.CreatedTo):
		return false
	}
	return true
}

// SortRuns orders runs in place.
func SortRuns(runs []*MissionRun, order RunOrder) {
	switch order {
	case RunOrderNewestFirst:
		sort.SliceStable(runs, func(i, j int) bool {
			if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
				return runs[i].CreatedAt.After(runs[j].CreatedAt)
			}
			return runs[i].ID > runs[j].ID
		})
	default:
		sort.SliceStable(runs, func(i, j int) bool { return queueLess(runs[i], runs[j]) })
	}
}

func queueLess(a, b *MissionRun) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.DesiredStartTime.Equal(b.DesiredStartTime) {
		return a.DesiredStartTime.Before(b.DesiredStartTime)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Paginate applies Page and PageSize.
func (f RunFilter) Paginate(runs []*MissionRun) []*MissionRun {
	if f.PageSize <= 0 {
		return runs
	}
	start := f.Page * f.PageSize
	if start >= len(runs) {
		return nil
	}
	end := min(start+f.PageSize, len(runs))
	return runs[start:end]
}
