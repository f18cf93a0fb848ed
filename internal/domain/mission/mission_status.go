package mission

import (
	"fmt"
	"strings"
)

// MissionStatus is the aggregate status of a MissionRun. Once a run is
// dispatched the status is derived from its tasks, see DeriveStatus.
type MissionStatus string

const (
	MissionStatusPending             MissionStatus = "PENDING"
	MissionStatusOngoing             MissionStatus = "ONGOING"
	MissionStatusPaused              MissionStatus = "PAUSED"
	MissionStatusAborted             MissionStatus = "ABORTED"
	MissionStatusCancelled           MissionStatus = "CANCELLED"
	MissionStatusFailed              MissionStatus = "FAILED"
	MissionStatusSuccessful          MissionStatus = "SUCCESSFUL"
	MissionStatusPartiallySuccessful MissionStatus = "PARTIALLY_SUCCESSFUL"
)

func (s MissionStatus) String() string { return string(s) }

// IsTerminal reports whether the run has finished.
func (s MissionStatus) IsTerminal() bool {
	switch s {
	case MissionStatusAborted, MissionStatusCancelled, MissionStatusFailed,
		MissionStatusSuccessful, MissionStatusPartiallySuccessful:
		return true
	default:
		return false
	}
}

// IsActive reports whether the run occupies its robot.
func (s MissionStatus) IsActive() bool {
	return s == MissionStatusOngoing || s == MissionStatusPaused
}

// ActiveStatuses is the status set checked by the one-active-run-per-robot rule.
func ActiveStatuses() []MissionStatus {
	return []MissionStatus{MissionStatusOngoing, MissionStatusPaused}
}

// ParseMissionStatus converts a persisted or API string to a MissionStatus.
// ISAR's vocabulary (not_started, in_progress) is accepted as well.
func ParseMissionStatus(s string) MissionStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING", "NOT_STARTED":
		return MissionStatusPending
	case "ONGOING", "IN_PROGRESS":
		return MissionStatusOngoing
	case "PAUSED":
		return MissionStatusPaused
	case "ABORTED":
		return MissionStatusAborted
	case "CANCELLED":
		return MissionStatusCancelled
	case "FAILED":
		return MissionStatusFailed
	case "SUCCESSFUL":
		return MissionStatusSuccessful
	case "PARTIALLY_SUCCESSFUL":
		return MissionStatusPartiallySuccessful
	default:
		return ""
	}
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s MissionStatus) ValidateTransition(target MissionStatus) error {
	if s.IsTerminal() {
		return fmt.Errorf("mission status %s to %s: %w", s, target, ErrTerminalStatus)
	}
	if !s.isValidTransition(target) {
		return fmt.Errorf("mission status %s to %s: %w", s, target, ErrInvalidTransition)
	}
	return nil
}

func (s MissionStatus) isValidTransition(target MissionStatus) bool {
	switch s {
	case MissionStatusPending:
		return target != MissionStatusPending && target != ""
	case MissionStatusOngoing:
		return target == MissionStatusPaused || target.IsTerminal()
	case MissionStatusPaused:
		return target == MissionStatusOngoing || target.IsTerminal()
	default:
		return false
	}
}

// DeriveStatus folds task statuses into the mission status of a dispatched
// run:
//
//   - any task NotStarted or InProgress: Ongoing
//   - otherwise any task Paused: Paused
//   - otherwise any task Failed: Failed
//   - otherwise every task Successful (or no tasks): Successful
//   - otherwise any Successful or PartiallySuccessful: PartiallySuccessful
//   - otherwise (all Cancelled): Cancelled
//
// Operator cancellation is not derived; see MissionRun.Cancel.
func DeriveStatus(tasks []*MissionTask) MissionStatus {
	var paused, failed, succeeded, partial, cancelled int
	for _, t := range tasks {
		switch t.Status {
		case TaskStatusNotStarted, TaskStatusInProgress:
			return MissionStatusOngoing
		case TaskStatusPaused:
			paused++
		case TaskStatusFailed:
			failed++
		case TaskStatusSuccessful:
			succeeded++
		case TaskStatusPartiallySuccessful:
			partial++
		case TaskStatusCancelled:
			cancelled++
		}
	}

	switch {
	case paused > 0:
		return MissionStatusPaused
	case failed > 0:
		return MissionStatusFailed
	case succeeded == len(tasks):
		return MissionStatusSuccessful
	case succeeded+partial > 0:
		return MissionStatusPartiallySuccessful
	default:
		return MissionStatusCancelled
	}
}
