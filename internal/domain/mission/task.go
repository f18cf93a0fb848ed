package mission

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

// TaskType distinguishes inspection stops from the synthetic return-home stop.
type TaskType string

const (
	TaskTypeInspection TaskType = "INSPECTION"
	TaskTypeReturnHome TaskType = "RETURN_HOME"
)

// MissionTask is one stop within a MissionRun. Tasks have no existence
// outside their run.
type MissionTask struct {
	ID               string          `json:"id"`
	IsarTaskID       string          `json:"isar_task_id,omitempty"`
	TaskOrder        int             `json:"task_order"`
	Type             TaskType        `json:"type"`
	TagID            string          `json:"tag_id,omitempty"`
	Description      string          `json:"description,omitempty"`
	TargetPose       shared.Pose     `json:"target_pose"`
	InspectionTarget shared.Position `json:"inspection_target"`
	Inspections      []*Inspection   `json:"inspections"`
	Status           TaskStatus      `json:"status"`
	StartTime        *time.Time      `json:"start_time,omitempty"`
	EndTime          *time.Time      `json:"end_time,omitempty"`
}

// NewInspectionTask creates a NotStarted task that drives to pose and
// performs the given inspections. The order is assigned by the owning run.
func NewInspectionTask(tagID string, pose shared.Pose, target shared.Position, inspections ...*Inspection) *MissionTask {
	return &MissionTask{
		ID:               uuid.NewString(),
		Type:             TaskTypeInspection,
		TagID:            tagID,
		TargetPose:       pose,
		InspectionTarget: target,
		Inspections:      inspections,
		Status:           TaskStatusNotStarted,
	}
}

// NewReturnHomeTask creates the single task of a return-to-home run.
func NewReturnHomeTask(home shared.Pose) *MissionTask {
	return &MissionTask{
		ID:          uuid.NewString(),
		Type:        TaskTypeReturnHome,
		Description: "Return to home",
		TargetPose:  home,
		Status:      TaskStatusNotStarted,
	}
}

// UpdateStatus moves the task to status. Setting the current status again is
// a no-op. Terminal tasks return ErrTerminalStatus and regressions return
// ErrInvalidTransition; in both cases the task is left untouched.
func (t *MissionTask) UpdateStatus(status TaskStatus, now time.Time) error {
	if status == t.Status {
		return nil
	}
	if err := t.Status.ValidateTransition(status); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}

	t.Status = status
	if status == TaskStatusInProgress && t.StartTime == nil {
		t.StartTime = &now
	}
	if status.IsTerminal() {
		if t.EndTime == nil {
			t.EndTime = &now
		}
		// Inspections cannot outlive their task.
		terminal := InspectionStatusCancelled
		if status == TaskStatusFailed {
			terminal = InspectionStatusFailed
		}
		for _, insp := range t.Inspections {
			if !insp.Status.IsTerminal() {
				_ = insp.UpdateStatus(terminal, now)
			}
		}
	}
	return nil
}

// InspectionByIsarID finds an inspection by its ISAR id.
func (t *MissionTask) InspectionByIsarID(isarID string) *Inspection {
	for _, insp := range t.Inspections {
		if insp.IsarInspectionID == isarID {
			return insp
		}
	}
	return nil
}

// Clone returns a fresh NotStarted copy with new ids, used when a run is
// rescheduled from a previous one.
func (t *MissionTask) Clone() *MissionTask {
	c := &MissionTask{
		ID:               uuid.NewString(),
		TaskOrder:        t.TaskOrder,
		Type:             t.Type,
		TagID:            t.TagID,
		Description:      t.Description,
		TargetPose:       t.TargetPose,
		InspectionTarget: t.InspectionTarget,
		Status:           TaskStatusNotStarted,
	}
	for _, insp := range t.Inspections {
		c.Inspections = append(c.Inspections, insp.clone())
	}
	return c
}
