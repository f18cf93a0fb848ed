package mission

import "errors"

var (
	// ErrMissionRunNotFound is returned when a mission run cannot be located,
	// including when a definition has no last successful run to clone.
	ErrMissionRunNotFound = errors.New("mission run not found")

	// ErrMissionDefinitionNotFound is returned when a mission definition
	// cannot be located.
	ErrMissionDefinitionNotFound = errors.New("mission definition not found")

	// ErrTaskNotFound is returned when a status update references a task that
	// is not part of the mission run.
	ErrTaskNotFound = errors.New("mission task not found")

	// ErrInspectionNotFound is returned when an inspection update references
	// an unknown inspection.
	ErrInspectionNotFound = errors.New("inspection not found")

	// ErrMissionRunNotQueued is returned when an operation that only applies
	// to Pending runs targets a run that already started or finished.
	ErrMissionRunNotQueued = errors.New("mission run is not queued")

	// ErrMissionRunNotFinished is returned when a run is rerun before it
	// reached a terminal status.
	ErrMissionRunNotFinished = errors.New("mission run has not finished")

	// ErrTerminalStatus is returned when a status update targets an entity
	// that already reached a terminal status. Callers treat it as a no-op.
	ErrTerminalStatus = errors.New("status is terminal")

	// ErrInvalidTransition is returned for status regressions such as
	// InProgress back to NotStarted.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidData is returned by stores when persisted data cannot be
	// decoded into domain types.
	ErrInvalidData = errors.New("invalid mission data")

	// ErrRobotAgent is returned when the robot agent answers with an error.
	ErrRobotAgent = errors.New("robot agent returned an error")

	// ErrRobotAgentUnavailable is returned when the robot agent cannot be
	// reached at all.
	ErrRobotAgentUnavailable = errors.New("robot agent unavailable")

	// ErrAgentNoActiveMission is returned when a control command reaches an
	// agent that is not running any mission.
	ErrAgentNoActiveMission = errors.New("robot agent has no active mission")

	// ErrInvalidSchedule is returned when an AutoScheduleFrequency is
	// malformed.
	ErrInvalidSchedule = errors.New("invalid auto schedule frequency")
)
