// Package mission models mission definitions, mission runs and their tasks,
// including the status rules that govern how runs progress.
package mission

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

// RunType separates regular inspection runs from synthesized return-to-home runs.
type RunType string

const (
	RunTypeNormal     RunType = "NORMAL"
	RunTypeReturnHome RunType = "RETURN_HOME"
)

// Priority orders pending runs; higher values are dispatched first.
type Priority int

const (
	// PriorityLow is used for return-to-home runs so they queue behind
	// any inspection work.
	PriorityLow       Priority = 0
	PriorityNormal    Priority = 1
	PriorityEmergency Priority = 2
)

const (
	// ReasonLostConnection is recorded on runs failed because the agent went away.
	ReasonLostConnection = "Lost connection to ISAR during mission"
	// ReasonAgentMismatch is recorded on runs the agent started with a task
	// list that does not match the run.
	ReasonAgentMismatch = "ISAR started the mission with a different task list"
	// ReasonRemovedFromQueue is recorded on queued runs removed by an operator.
	ReasonRemovedFromQueue = "Removed from queue by operator"
)

// MissionRun is one concrete, ordered execution of a mission on one robot.
type MissionRun struct {
	ID                  string
	Name                string
	InstallationCode    string
	MissionDefinitionID string // empty for ad hoc runs
	RobotID             string
	InspectionAreaID    string
	Tasks               []*MissionTask
	Status              MissionStatus
	StatusReason        string
	RunType             RunType
	Priority            Priority
	IsarMissionID       string
	MapMetadata         *shared.MapMetadata
	EstimatedDuration   time.Duration
	DesiredStartTime    time.Time
	CreatedAt           time.Time
	StartTime           *time.Time
	EndTime             *time.Time
}

// MissionRunOption configures optional fields of a new run.
type MissionRunOption func(*MissionRun)

// WithMissionDefinition links the run to the definition it was created from.
func WithMissionDefinition(definitionID string) MissionRunOption {
	return func(r *MissionRun) { r.MissionDefinitionID = definitionID }
}

// WithInspectionArea sets the inspection area the run takes place in.
func WithInspectionArea(areaID string) MissionRunOption {
	return func(r *MissionRun) { r.InspectionAreaID = areaID }
}

// WithPriority overrides PriorityNormal.
func WithPriority(p Priority) MissionRunOption {
	return func(r *MissionRun) { r.Priority = p }
}

// WithDesiredStartTime delays the run until t.
func WithDesiredStartTime(t time.Time) MissionRunOption {
	return func(r *MissionRun) { r.DesiredStartTime = t }
}

// WithMapMetadata attaches map information.
func WithMapMetadata(m shared.MapMetadata) MissionRunOption {
	return func(r *MissionRun) { r.MapMetadata = &m }
}

// WithEstimatedDuration records the planner's duration estimate.
func WithEstimatedDuration(d time.Duration) MissionRunOption {
	return func(r *MissionRun) { r.EstimatedDuration = d }
}

// NewMissionRun creates a Pending Normal run. Task order is taken from the
// slice order and is immutable afterwards.
func NewMissionRun(
	name, installationCode, robotID string,
	tasks []*MissionTask,
	now time.Time,
	opts ...MissionRunOption,
) *MissionRun {
	r := &MissionRun{
		ID:               uuid.NewString(),
		Name:             name,
		InstallationCode: installationCode,
		RobotID:          robotID,
		Tasks:            tasks,
		Status:           MissionStatusPending,
		RunType:          RunTypeNormal,
		Priority:         PriorityNormal,
		DesiredStartTime: now,
		CreatedAt:        now,
	}
	for i, t := range r.Tasks {
		t.TaskOrder = i
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewReturnHomeRun creates a Pending, low priority run with a single
// return-to-home task.
func NewReturnHomeRun(installationCode, robotID, inspectionAreaID string, home shared.Pose, now time.Time) *MissionRun {
	r := NewMissionRun(
		"Return Home",
		installationCode,
		robotID,
		[]*MissionTask{NewReturnHomeTask(home)},
		now,
		WithInspectionArea(inspectionAreaID),
		WithPriority(PriorityLow),
	)
	r.RunType = RunTypeReturnHome
	return r
}

// IsReturnHome reports whether the run is a synthesized return-to-home run.
func (r *MissionRun) IsReturnHome() bool { return r.RunType == RunTypeReturnHome }

// IsActive reports whether the run occupies its robot.
func (r *MissionRun) IsActive() bool { return r.Status.IsActive() }

// IsCompleted reports whether the run reached a terminal status.
func (r *MissionRun) IsCompleted() bool { return r.Status.IsTerminal() }

// IsDue reports whether a pending run may be dispatched at now.
func (r *MissionRun) IsDue(now time.Time) bool { return !r.DesiredStartTime.After(now) }

// AgentTask is the robot agent's view of one dispatched task.
type AgentTask struct {
	IsarTaskID        string
	IsarInspectionIDs []string
}

// AgentMission is what the robot agent reports back when a run is started.
type AgentMission struct {
	IsarMissionID string
	StartTime     time.Time
	Tasks         []AgentTask
}

// MarkDispatched records the agent's identifiers and moves the run to
// Ongoing. Agent tasks are matched to run tasks by order.
func (r *MissionRun) MarkDispatched(am AgentMission) error {
	if err := r.Status.ValidateTransition(MissionStatusOngoing); err != nil {
		return fmt.Errorf("mission run %s: %w", r.ID, err)
	}
	if len(am.Tasks) != 0 && len(am.Tasks) != len(r.Tasks) {
		return fmt.Errorf("mission run %s: agent returned %d tasks, run has %d: %w",
			r.ID, len(am.Tasks), len(r.Tasks), ErrInvalidData)
	}

	r.IsarMissionID = am.IsarMissionID
	if len(am.Tasks) == 0 {
		// Agents that do not echo task ids address tasks by our ids.
		for _, t := range r.Tasks {
			t.IsarTaskID = t.ID
		}
	}
	for i, at := range am.Tasks {
		t := r.Tasks[i]
		t.IsarTaskID = at.IsarTaskID
		for j, inspID := range at.IsarInspectionIDs {
			if j < len(t.Inspections) {
				t.Inspections[j].IsarInspectionID = inspID
			}
		}
	}
	r.setStatus(MissionStatusOngoing, am.StartTime)
	return nil
}

// TaskByIsarID finds a task by its ISAR id.
func (r *MissionRun) TaskByIsarID(isarTaskID string) *MissionTask {
	for _, t := range r.Tasks {
		if t.IsarTaskID == isarTaskID {
			return t
		}
	}
	return nil
}

// UpdateTaskStatus applies a task status update and re-derives the run
// status. The returned error wraps ErrTaskNotFound, ErrTerminalStatus or
// ErrInvalidTransition; the run is unchanged in those cases.
func (r *MissionRun) UpdateTaskStatus(isarTaskID string, status TaskStatus, now time.Time) error {
	task := r.TaskByIsarID(isarTaskID)
	if task == nil {
		return fmt.Errorf("mission run %s isar task %s: %w", r.ID, isarTaskID, ErrTaskNotFound)
	}
	if r.IsCompleted() {
		return fmt.Errorf("mission run %s is %s: %w", r.ID, r.Status, ErrTerminalStatus)
	}
	if err := task.UpdateStatus(status, now); err != nil {
		return err
	}
	r.refreshStatus(now)
	return nil
}

// UpdateInspectionStatus applies an inspection update within a task.
func (r *MissionRun) UpdateInspectionStatus(isarTaskID, isarInspectionID string, status InspectionStatus, now time.Time) error {
	task := r.TaskByIsarID(isarTaskID)
	if task == nil {
		return fmt.Errorf("mission run %s isar task %s: %w", r.ID, isarTaskID, ErrTaskNotFound)
	}
	insp := task.InspectionByIsarID(isarInspectionID)
	if insp == nil {
		return fmt.Errorf("mission run %s isar inspection %s: %w", r.ID, isarInspectionID, ErrInspectionNotFound)
	}
	return insp.UpdateStatus(status, now)
}

// ApplyAgentStatus folds a mission-level status reported by the agent into
// the tasks, then re-derives the run status. Pause and resume set the run
// status directly since unstarted tasks would otherwise keep it Ongoing.
func (r *MissionRun) ApplyAgentStatus(status MissionStatus, now time.Time) error {
	if r.IsCompleted() {
		return fmt.Errorf("mission run %s is %s: %w", r.ID, r.Status, ErrTerminalStatus)
	}

	var from []TaskStatus
	var to TaskStatus
	switch status {
	case MissionStatusPending:
		return nil
	case MissionStatusOngoing:
		if r.Status == MissionStatusPaused {
			return r.Resume(now)
		}
		from, to = []TaskStatus{TaskStatusPaused}, TaskStatusInProgress
	case MissionStatusPaused:
		return r.Pause(now)
	case MissionStatusFailed:
		from, to = activeOrPaused(), TaskStatusFailed
	case MissionStatusCancelled, MissionStatusAborted:
		from, to = activeOrPaused(), TaskStatusCancelled
	case MissionStatusSuccessful:
		from, to = activeOrPaused(), TaskStatusSuccessful
	case MissionStatusPartiallySuccessful:
		from, to = activeOrPaused(), TaskStatusPartiallySuccessful
	default:
		return fmt.Errorf("mission run %s: unknown agent status %q: %w", r.ID, status, ErrInvalidTransition)
	}

	for _, t := range r.Tasks {
		for _, f := range from {
			if t.Status == f {
				_ = t.UpdateStatus(to, now)
				break
			}
		}
	}
	if r.Status == MissionStatusPending {
		r.setStatus(MissionStatusOngoing, now)
	}
	r.refreshStatus(now)
	return nil
}

// Pause moves the run and its in-progress tasks to Paused. Pausing a
// paused run is a no-op.
func (r *MissionRun) Pause(now time.Time) error {
	if r.Status == MissionStatusPaused {
		return nil
	}
	if err := r.Status.ValidateTransition(MissionStatusPaused); err != nil {
		return fmt.Errorf("mission run %s: %w", r.ID, err)
	}
	r.moveTasks(TaskStatusInProgress, TaskStatusPaused, now)
	r.setStatus(MissionStatusPaused, now)
	return nil
}

// Resume moves the run back to Ongoing and its paused tasks to InProgress.
// Resuming an ongoing run is a no-op.
func (r *MissionRun) Resume(now time.Time) error {
	if r.Status == MissionStatusOngoing {
		return nil
	}
	if r.Status != MissionStatusPaused {
		return fmt.Errorf("mission run %s is %s, not paused: %w", r.ID, r.Status, ErrInvalidTransition)
	}
	r.moveTasks(TaskStatusPaused, TaskStatusInProgress, now)
	r.setStatus(MissionStatusOngoing, now)
	return nil
}

func (r *MissionRun) moveTasks(from, to TaskStatus, now time.Time) {
	for _, t := range r.Tasks {
		if t.Status == from {
			_ = t.UpdateStatus(to, now)
		}
	}
}

func activeOrPaused() []TaskStatus {
	return []TaskStatus{TaskStatusNotStarted, TaskStatusInProgress, TaskStatusPaused}
}

// Cancel marks the run Cancelled regardless of task states. Unfinished
// tasks are cancelled with it.
func (r *MissionRun) Cancel(reason string, now time.Time) error {
	return r.terminate(MissionStatusCancelled, TaskStatusCancelled, reason, now)
}

// Fail marks the run and its unfinished tasks Failed.
func (r *MissionRun) Fail(reason string, now time.Time) error {
	return r.terminate(MissionStatusFailed, TaskStatusFailed, reason, now)
}

// Abort removes a run from the queue before it started.
func (r *MissionRun) Abort(reason string, now time.Time) error {
	return r.terminate(MissionStatusAborted, TaskStatusCancelled, reason, now)
}

func (r *MissionRun) terminate(status MissionStatus, taskStatus TaskStatus, reason string, now time.Time) error {
	if err := r.Status.ValidateTransition(status); err != nil {
		return fmt.Errorf("mission run %s: %w", r.ID, err)
	}
	for _, t := range r.Tasks {
		if !t.Status.IsTerminal() {
			_ = t.UpdateStatus(taskStatus, now)
		}
	}
	r.StatusReason = reason
	r.setStatus(status, now)
	return nil
}

// refreshStatus re-derives the status of a dispatched, unfinished run. A
// paused run stays paused until one of its tasks is in progress again.
func (r *MissionRun) refreshStatus(now time.Time) {
	if r.Status == MissionStatusPending || r.Status.IsTerminal() {
		return
	}
	status := DeriveStatus(r.Tasks)
	if r.Status == MissionStatusPaused && status == MissionStatusOngoing && !r.hasTaskInProgress() {
		return
	}
	r.setStatus(status, now)
}

func (r *MissionRun) hasTaskInProgress() bool {
	for _, t := range r.Tasks {
		if t.Status == TaskStatusInProgress {
			return true
		}
	}
	return false
}

func (r *MissionRun) setStatus(status MissionStatus, now time.Time) {
	r.Status = status
	if status == MissionStatusOngoing && r.StartTime == nil {
		r.StartTime = &now
	}
	if status.IsTerminal() && r.EndTime == nil {
		r.EndTime = &now
	}
}

// CloneTasks returns fresh NotStarted copies of the run's tasks in order.
func (r *MissionRun) CloneTasks() []*MissionTask {
	out := make([]*MissionTask, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		out = append(out, t.Clone())
	}
	return out
}

// CloneUnfinishedTasks returns fresh NotStarted copies of the tasks that
// did not succeed, in order. Successful and partially successful tasks are
// left out.
func (r *MissionRun) CloneUnfinishedTasks() []*MissionTask {
	var out []*MissionTask
	for _, t := range r.Tasks {
		if t.Status == TaskStatusSuccessful || t.Status == TaskStatusPartiallySuccessful {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

// Escalate raises a queued run to emergency priority so it is dispatched
// ahead of everything else, frozen queue included.
func (r *MissionRun) Escalate() error {
	if r.Status != MissionStatusPending {
		return fmt.Errorf("mission run %s is %s: %w", r.ID, r.Status, ErrMissionRunNotQueued)
	}
	r.Priority = PriorityEmergency
	return nil
}
