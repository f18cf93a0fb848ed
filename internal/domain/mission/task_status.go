package mission

import (
	"fmt"
	"strings"
)

// TaskStatus mirrors the task status vocabulary reported by ISAR.
type TaskStatus string

const (
	// TaskStatusNotStarted indicates the robot has not reached the task yet.
	TaskStatusNotStarted TaskStatus = "NOT_STARTED"
	// TaskStatusInProgress indicates the robot is executing the task.
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	// TaskStatusPaused is the only non-terminal state that can return to
	// TaskStatusInProgress.
	TaskStatusPaused TaskStatus = "PAUSED"

	TaskStatusSuccessful          TaskStatus = "SUCCESSFUL"
	TaskStatusPartiallySuccessful TaskStatus = "PARTIALLY_SUCCESSFUL"
	TaskStatusFailed              TaskStatus = "FAILED"
	TaskStatusCancelled           TaskStatus = "CANCELLED"
)

func (s TaskStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSuccessful, TaskStatusPartiallySuccessful, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the task still has work left to do.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusNotStarted || s == TaskStatusInProgress
}

// ParseTaskStatus accepts both the persisted form (IN_PROGRESS) and the ISAR
// form (in_progress). Unknown values map to "".
func ParseTaskStatus(s string) TaskStatus {
	switch TaskStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case TaskStatusNotStarted:
		return TaskStatusNotStarted
	case TaskStatusInProgress:
		return TaskStatusInProgress
	case TaskStatusPaused:
		return TaskStatusPaused
	case TaskStatusSuccessful:
		return TaskStatusSuccessful
	case TaskStatusPartiallySuccessful:
		return TaskStatusPartiallySuccessful
	case TaskStatusFailed:
		return TaskStatusFailed
	case TaskStatusCancelled:
		return TaskStatusCancelled
	default:
		return ""
	}
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s TaskStatus) ValidateTransition(target TaskStatus) error {
	if s.IsTerminal() {
		return fmt.Errorf("task status %s to %s: %w", s, target, ErrTerminalStatus)
	}
	if !s.isValidTransition(target) {
		return fmt.Errorf("task status %s to %s: %w", s, target, ErrInvalidTransition)
	}
	return nil
}

func (s TaskStatus) isValidTransition(target TaskStatus) bool {
	switch s {
	case TaskStatusNotStarted:
		return target != TaskStatusNotStarted && target != ""
	case TaskStatusInProgress:
		return target == TaskStatusPaused || target.IsTerminal()
	case TaskStatusPaused:
		return target == TaskStatusInProgress || target.IsTerminal()
	default:
		return false
	}
}
