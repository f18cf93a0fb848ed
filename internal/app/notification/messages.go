package notification

import (
	"time"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
)

// AlertMessage is the payload of operator-visible failure notifications.
type AlertMessage struct {
	Title            string `json:"title"`
	Message          string `json:"message"`
	InstallationCode string `json:"installation_code"`
	RobotID          string `json:"robot_id,omitempty"`
	RobotName        string `json:"robot_name,omitempty"`
	MissionName      string `json:"mission_name,omitempty"`
}

// MissionRunMessage is the payload of mission run status notifications.
type MissionRunMessage struct {
	MissionRunID        string     `json:"mission_run_id"`
	Name                string     `json:"name"`
	RobotID             string     `json:"robot_id"`
	MissionDefinitionID string     `json:"mission_definition_id,omitempty"`
	Status              string     `json:"status"`
	StatusReason        string     `json:"status_reason,omitempty"`
	RunType             string     `json:"run_type"`
	IsarMissionID       string     `json:"isar_mission_id,omitempty"`
	StartTime           *time.Time `json:"start_time,omitempty"`
	EndTime             *time.Time `json:"end_time,omitempty"`
}

// NewMissionRunMessage summarizes a run for clients.
func NewMissionRunMessage(run *mission.MissionRun) MissionRunMessage {
	return MissionRunMessage{
		MissionRunID:        run.ID,
		Name:                run.Name,
		RobotID:             run.RobotID,
		MissionDefinitionID: run.MissionDefinitionID,
		Status:              run.Status.String(),
		StatusReason:        run.StatusReason,
		RunType:             string(run.RunType),
		IsarMissionID:       run.IsarMissionID,
		StartTime:           run.StartTime,
		EndTime:             run.EndTime,
	}
}
