package isar

import (
	"fmt"
	"strconv"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

// Frame names understood by ISAR.
const (
	frameRobot = "robot"
	frameAsset = "asset"
)

type startMissionRequest struct {
	MissionDefinition missionDefinition `json:"mission_definition"`
}

type missionDefinition struct {
	Name  string           `json:"name"`
	Tasks []taskDefinition `json:"tasks"`
}

type taskDefinition struct {
	ID         string                `json:"id,omitempty"`
	Type       string                `json:"type"`
	Pose       pose                  `json:"pose"`
	Tag        string                `json:"tag,omitempty"`
	Inspection *inspectionDefinition `json:"inspection,omitempty"`
}

type inspectionDefinition struct {
	Type             string            `json:"type"`
	InspectionTarget *position         `json:"inspection_target,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type position struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	FrameName string  `json:"frame_name"`
}

type orientation struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	W         float64 `json:"w"`
	FrameName string  `json:"frame_name"`
}

type pose struct {
	Position    position    `json:"position"`
	Orientation orientation `json:"orientation"`
	FrameName   string      `json:"frame_name"`
}

type startMissionResponse struct {
	ID    string         `json:"id"`
	Tasks []taskResponse `json:"tasks"`
}

type taskResponse struct {
	ID           string `json:"id"`
	TagID        string `json:"tag_id,omitempty"`
	InspectionID string `json:"inspection_id,omitempty"`
}

type controlResponse struct {
	Message string `json:"message"`
}

func toPose(p shared.Pose) pose {
	return pose{
		Position: position{
			X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z,
			FrameName: frameRobot,
		},
		Orientation: orientation{
			X: p.Orientation.X, Y: p.Orientation.Y, Z: p.Orientation.Z, W: p.Orientation.W,
			FrameName: frameRobot,
		},
		FrameName: frameRobot,
	}
}

// newMissionDefinition renders run in ISAR's start-mission format, one ISAR
// task per run task. ISAR runs a single inspection per task, so only the
// first inspection of a task is sent.
func newMissionDefinition(run *mission.MissionRun) missionDefinition {
	def := missionDefinition{Name: run.Name, Tasks: make([]taskDefinition, 0, len(run.Tasks))}

	for _, t := range run.Tasks {
		td := taskDefinition{
			ID:   t.IsarTaskID,
			Pose: toPose(t.TargetPose),
			Tag:  t.TagID,
		}

		switch {
		case t.Type == mission.TaskTypeReturnHome:
			td.Type = "return_to_home"
		case len(t.Inspections) == 0:
			td.Type = "drive_to"
		default:
			td.Type = "inspection"
			td.Inspection = &inspectionDefinition{
				Type: string(t.Inspections[0].Type),
				InspectionTarget: &position{
					X: t.InspectionTarget.X, Y: t.InspectionTarget.Y, Z: t.InspectionTarget.Z,
					FrameName: frameAsset,
				},
				Metadata: inspectionMetadata(run),
			}
		}
		def.Tasks = append(def.Tasks, td)
	}
	return def
}

func inspectionMetadata(run *mission.MissionRun) map[string]string {
	md := map[string]string{
		"asset_code":         run.InstallationCode,
		"mission_name":       run.Name,
		"estimated_duration": strconv.FormatInt(int64(run.EstimatedDuration.Seconds()), 10),
	}
	if run.MapMetadata != nil {
		md["map"] = run.MapMetadata.MapName
	}
	return md
}

// toAgentMission matches ISAR's tasks to run's tasks by order. An empty
// task list is passed through; the run then addresses tasks by its own ids.
func toAgentMission(run *mission.MissionRun, resp *startMissionResponse) (*mission.AgentMission, error) {
	am := &mission.AgentMission{IsarMissionID: resp.ID}
	if len(resp.Tasks) == 0 {
		return am, nil
	}
	if len(resp.Tasks) != len(run.Tasks) {
		return nil, fmt.Errorf("ISAR returned %d tasks for mission run %s with %d tasks: %w",
			len(resp.Tasks), run.ID, len(run.Tasks), mission.ErrRobotAgent)
	}

	am.Tasks = make([]mission.AgentTask, len(resp.Tasks))
	for i, rt := range resp.Tasks {
		am.Tasks[i] = mission.AgentTask{IsarTaskID: rt.ID}
		if rt.InspectionID != "" {
			am.Tasks[i].IsarInspectionIDs = []string{rt.InspectionID}
		}
	}
	return am, nil
}
