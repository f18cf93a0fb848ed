package api

import (
	"encoding/json"
	"time"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

// MissionRun is the wire form of a mission run.
type MissionRun struct {
	ID                  string                 `json:"id"`
	Name                string                 `json:"name"`
	InstallationCode    string                 `json:"installation_code"`
	MissionDefinitionID string                 `json:"mission_definition_id,omitempty"`
	RobotID             string                 `json:"robot_id"`
	InspectionAreaID    string                 `json:"inspection_area_id,omitempty"`
	Status              string                 `json:"status"`
	StatusReason        string                 `json:"status_reason,omitempty"`
	RunType             string                 `json:"run_type"`
	Priority            int                    `json:"priority"`
	IsarMissionID       string                 `json:"isar_mission_id,omitempty"`
	MapMetadata         *shared.MapMetadata    `json:"map_metadata,omitempty"`
	EstimatedDurationS  float64                `json:"estimated_duration_seconds"`
	DesiredStartTime    time.Time              `json:"desired_start_time"`
	CreatedAt           time.Time              `json:"created_at"`
	StartTime           *time.Time             `json:"start_time,omitempty"`
	EndTime             *time.Time             `json:"end_time,omitempty"`
	Tasks               []*mission.MissionTask `json:"tasks"`
}

// Encode implements the web.Encoder interface.
func (m MissionRun) Encode() ([]byte, string, error) {
	data, err := json.Marshal(m)
	return data, "application/json", err
}

// ToMissionRun converts a domain run.
func ToMissionRun(r *mission.MissionRun) MissionRun {
	tasks := r.Tasks
	if tasks == nil {
		tasks = []*mission.MissionTask{}
	}
	return MissionRun{
		ID:                  r.ID,
		Name:                r.Name,
		InstallationCode:    r.InstallationCode,
		MissionDefinitionID: r.MissionDefinitionID,
		RobotID:             r.RobotID,
		InspectionAreaID:    r.InspectionAreaID,
		Status:              r.Status.String(),
		StatusReason:        r.StatusReason,
		RunType:             string(r.RunType),
		Priority:            int(r.Priority),
		IsarMissionID:       r.IsarMissionID,
		MapMetadata:         r.MapMetadata,
		EstimatedDurationS:  r.EstimatedDuration.Seconds(),
		DesiredStartTime:    r.DesiredStartTime,
		CreatedAt:           r.CreatedAt,
		StartTime:           r.StartTime,
		EndTime:             r.EndTime,
		Tasks:               tasks,
	}
}

// MissionRuns is a page of runs.
type MissionRuns struct {
	Items []MissionRun `json:"items"`
	Page  int          `json:"page"`
	Rows  int          `json:"rows"`
}

// Encode implements the web.Encoder interface.
func (m MissionRuns) Encode() ([]byte, string, error) {
	data, err := json.Marshal(m)
	return data, "application/json", err
}

// ToMissionRuns converts a page of domain runs.
func ToMissionRuns(runs []*mission.MissionRun, page, rows int) MissionRuns {
	items := make([]MissionRun, len(runs))
	for i, r := range runs {
		items[i] = ToMissionRun(r)
	}
	return MissionRuns{Items: items, Page: page, Rows: rows}
}

// Robot is the wire form of a robot.
type Robot struct {
	ID                      string      `json:"id"`
	Name                    string      `json:"name"`
	IsarID                  string      `json:"isar_id"`
	InstallationCode        string      `json:"installation_code"`
	CurrentInspectionAreaID string      `json:"current_inspection_area_id,omitempty"`
	Model                   string      `json:"model"`
	Status                  string      `json:"status"`
	Enabled                 bool        `json:"enabled"`
	MissionQueueFrozen      bool        `json:"mission_queue_frozen"`
	CurrentMissionID        string      `json:"current_mission_id,omitempty"`
	BatteryLevel            float64     `json:"battery_level"`
	PressureLevel           *float64    `json:"pressure_level,omitempty"`
	Pose                    shared.Pose `json:"pose"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// Encode implements the web.Encoder interface.
func (m Robot) Encode() ([]byte, string, error) {
	data, err := json.Marshal(m)
	return data, "application/json", err
}

// ToRobot converts a domain robot.
func ToRobot(r *robot.Robot) Robot {
	return Robot{
		ID:                      r.ID,
		Name:                    r.Name,
		IsarID:                  r.IsarID,
		InstallationCode:        r.InstallationCode,
		CurrentInspectionAreaID: r.CurrentInspectionAreaID,
		Model:                   r.Model.Name,
		Status:                  r.Status.String(),
		Enabled:                 r.Enabled,
		MissionQueueFrozen:      r.MissionQueueFrozen,
		CurrentMissionID:        r.CurrentMissionID,
		BatteryLevel:            r.BatteryLevel,
		PressureLevel:           r.PressureLevel,
		Pose:                    r.Pose,
		UpdatedAt:               r.UpdatedAt,
	}
}
