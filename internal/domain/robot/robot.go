// Package robot models the inspection robots of the fleet.
package robot

import (
	"time"

	"github.com/google/uuid"

	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

// Model carries per-model operating limits.
type Model struct {
	Name string

	// BatteryWarningThreshold is the level in percent under which the robot
	// is sent home instead of being given more work. Zero disables it.
	BatteryWarningThreshold float64

	// Pressure limits in bar. Zero disables the respective check.
	LowerPressureWarningThreshold float64
	UpperPressureWarningThreshold float64
}

// Robot is a physical or simulated agent able to run missions.
type Robot struct {
	ID                      string
	Name                    string
	IsarID                  string
	IsarURI                 string
	InstallationCode        string
	CurrentInspectionAreaID string
	Model                   Model
	Capabilities            []string

	Status             Status
	Enabled            bool
	MissionQueueFrozen bool
	CurrentMissionID   string

	BatteryLevel  float64
	PressureLevel *float64
	Pose          shared.Pose

	// Home is where return-to-home runs drive to.
	Home shared.Pose

	UpdatedAt time.Time
}

// New creates an enabled, Available robot.
func New(name, isarID, isarURI, installationCode string, model Model) *Robot {
	return &Robot{
		ID:               uuid.NewString(),
		Name:             name,
		IsarID:           isarID,
		IsarURI:          isarURI,
		InstallationCode: installationCode,
		Model:            model,
		Status:           StatusAvailable,
		Enabled:          true,
		Pose:             shared.DefaultPose(),
		Home:             shared.DefaultPose(),
	}
}

// HasActiveMission reports whether the robot is bound to a run.
func (r *Robot) HasActiveMission() bool { return r.CurrentMissionID != "" }

// BatteryLow reports whether the battery is under the model's warning threshold.
func (r *Robot) BatteryLow() bool {
	return r.Model.BatteryWarningThreshold > 0 && r.BatteryLevel < r.Model.BatteryWarningThreshold
}

// PressureOutOfRange reports whether a reported pressure is outside the
// model's limits.
func (r *Robot) PressureOutOfRange() bool {
	if r.PressureLevel == nil {
		return false
	}
	p := *r.PressureLevel
	if r.Model.LowerPressureWarningThreshold > 0 && p < r.Model.LowerPressureWarningThreshold {
		return true
	}
	return r.Model.UpperPressureWarningThreshold > 0 && p > r.Model.UpperPressureWarningThreshold
}

// DueForReturn reports whether the robot should go home before taking more work.
func (r *Robot) DueForReturn() bool { return r.BatteryLow() || r.PressureOutOfRange() }

// HasCapability reports whether the robot supports capability c.
func (r *Robot) HasCapability(c string) bool {
	for _, have := range r.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// AssignMission binds the robot to a dispatched run.
func (r *Robot) AssignMission(runID string) {
	r.CurrentMissionID = runID
	r.Status = StatusBusy
}

// ReleaseMission unbinds the robot from runID. A Busy robot returns to
// Available; other statuses came from the agent and are kept.
func (r *Robot) ReleaseMission(runID string) bool {
	if r.CurrentMissionID != runID {
		return false
	}
	r.CurrentMissionID = ""
	if r.Status == StatusBusy {
		r.Status = StatusAvailable
	}
	return true
}

// MarkUnreachable disables the robot after its agent stopped answering.
func (r *Robot) MarkUnreachable() {
	r.Enabled = false
	r.Status = StatusOffline
	r.CurrentMissionID = ""
}
