package mission

import (
	"time"

	"github.com/google/uuid"
)

// MissionDefinition is a reusable mission template. Definitions are never
// deleted, only deprecated.
type MissionDefinition struct {
	ID               string
	SourceID         string
	Name             string
	Comment          string
	InstallationCode string
	InspectionAreaID string

	// AutoScheduleFrequency is nil for definitions that only run on demand.
	AutoScheduleFrequency *AutoScheduleFrequency

	// LastSuccessfulRunID is a weak back-reference used as the template for
	// automatic rescheduling.
	LastSuccessfulRunID string

	IsDeprecated bool
	CreatedAt    time.Time
}

// NewMissionDefinition creates a definition without a recurrence.
func NewMissionDefinition(sourceID, name, installationCode, inspectionAreaID string, now time.Time) *MissionDefinition {
	return &MissionDefinition{
		ID:               uuid.NewString(),
		SourceID:         sourceID,
		Name:             name,
		InstallationCode: installationCode,
		InspectionAreaID: inspectionAreaID,
		CreatedAt:        now,
	}
}

// HasAutoSchedule reports whether the definition recurs.
func (d *MissionDefinition) HasAutoSchedule() bool { return d.AutoScheduleFrequency != nil }

// SetAutoSchedule replaces the recurrence, dropping any recorded jobs.
func (d *MissionDefinition) SetAutoSchedule(f *AutoScheduleFrequency) { d.AutoScheduleFrequency = f }

// SetLastSuccessfulRun updates the back-reference after a run succeeds.
func (d *MissionDefinition) SetLastSuccessfulRun(runID string) { d.LastSuccessfulRunID = runID }

// Deprecate soft-deletes the definition.
func (d *MissionDefinition) Deprecate() { d.IsDeprecated = true }
