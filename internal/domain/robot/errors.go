package robot

import "errors"

var (
	// ErrRobotNotFound is returned when a robot cannot be located.
	ErrRobotNotFound = errors.New("robot not found")

	// ErrNoInspectionArea is returned when an operation needs the robot's
	// current inspection area and it has none.
	ErrNoInspectionArea = errors.New("robot has no current inspection area")
)
