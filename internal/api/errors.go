package api

import (
	"context"
	"errors"

	"github.com/equinor/flotilla-sub005/internal/api/errs"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
)

// DomainError maps an application error onto an API error code. Errors
// that match no known sentinel become Internal and their text is hidden by
// the Errors middleware.
func DomainError(err error) *errs.Error {
	if ae := errs.GetError(err); ae != nil {
		return ae
	}

	switch {
	case errors.Is(err, robot.ErrRobotNotFound),
		errors.Is(err, mission.ErrMissionRunNotFound),
		errors.Is(err, mission.ErrMissionDefinitionNotFound),
		errors.Is(err, mission.ErrTaskNotFound),
		errors.Is(err, mission.ErrInspectionNotFound):
		return errs.New(errs.NotFound, err)

	case errors.Is(err, mission.ErrAgentNoActiveMission),
		errors.Is(err, robot.ErrNoInspectionArea),
		errors.Is(err, mission.ErrTerminalStatus),
		errors.Is(err, mission.ErrInvalidTransition),
		errors.Is(err, mission.ErrMissionRunNotQueued),
		errors.Is(err, mission.ErrMissionRunNotFinished):
		return errs.New(errs.FailedPrecondition, err)

	case errors.Is(err, mission.ErrInvalidSchedule):
		return errs.New(errs.InvalidArgument, err)

	case errors.Is(err, mission.ErrRobotAgentUnavailable):
		return errs.New(errs.Unavailable, err)

	case errors.Is(err, mission.ErrRobotAgent):
		return errs.New(errs.BadGateway, err)

	case errors.Is(err, context.DeadlineExceeded):
		return errs.New(errs.DeadlineExceeded, err)

	case errors.Is(err, context.Canceled):
		return errs.New(errs.Canceled, err)
	}

	return errs.New(errs.Internal, err)
}
