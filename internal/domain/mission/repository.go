package mission

import "context"

// RunRepository persists mission runs together with their tasks and
// inspections. Lookups of unknown ids return (nil, nil).
type RunRepository interface {
	// CreateMissionRun inserts a new run and its tasks.
	CreateMissionRun(ctx context.Context, run *MissionRun) error
	// GetMissionRun returns the run or nil when it does not exist.
	GetMissionRun(ctx context.Context, id string) (*MissionRun, error)
	// GetMissionRunByIsarMissionID resolves a run from the agent's mission id.
	GetMissionRunByIsarMissionID(ctx context.Context, isarMissionID string) (*MissionRun, error)
	// ListMissionRuns returns runs matching filter, ordered and paginated.
	ListMissionRuns(ctx context.Context, filter RunFilter) ([]*MissionRun, error)
	// UpdateMissionRun writes the run and its tasks. Unknown runs yield
	// ErrMissionRunNotFound.
	UpdateMissionRun(ctx context.Context, run *MissionRun) error
}

// DefinitionRepository persists mission definitions.
type DefinitionRepository interface {
	CreateMissionDefinition(ctx context.Context, def *MissionDefinition) error
	// GetMissionDefinition returns the definition or nil when it does not exist.
	GetMissionDefinition(ctx context.Context, id string) (*MissionDefinition, error)
	GetMissionDefinitionBySourceID(ctx context.Context, sourceID string) (*MissionDefinition, error)
	// ListAutoScheduledMissionDefinitions returns every non-deprecated
	// definition with an AutoScheduleFrequency. Undecodable rows fail the
	// whole call with ErrInvalidData.
	ListAutoScheduledMissionDefinitions(ctx context.Context) ([]*MissionDefinition, error)
	// UpdateMissionDefinition writes the definition. Unknown definitions
	// yield ErrMissionDefinitionNotFound.
	UpdateMissionDefinition(ctx context.Context, def *MissionDefinition) error
}
