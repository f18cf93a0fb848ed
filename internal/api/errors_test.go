package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/equinor/flotilla-sub005/internal/api/errs"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
)

func TestDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrCode
	}{
		{name: "robot not found", err: fmt.Errorf("robot r1: %w", robot.ErrRobotNotFound), want: errs.NotFound},
		{name: "run not found", err: mission.ErrMissionRunNotFound, want: errs.NotFound},
		{name: "definition not found", err: mission.ErrMissionDefinitionNotFound, want: errs.NotFound},
		{name: "no inspection area", err: robot.ErrNoInspectionArea, want: errs.FailedPrecondition},
		{name: "run not queued", err: fmt.Errorf("mission run r1: %w", mission.ErrMissionRunNotQueued), want: errs.FailedPrecondition},
		{name: "run not finished", err: mission.ErrMissionRunNotFinished, want: errs.FailedPrecondition},
		{
			name: "agent conflict wins over generic agent error",
			err:  errors.Join(mission.ErrRobotAgent, mission.ErrAgentNoActiveMission),
			want: errs.FailedPrecondition,
		},
		{name: "agent unreachable", err: mission.ErrRobotAgentUnavailable, want: errs.Unavailable},
		{name: "agent error", err: mission.ErrRobotAgent, want: errs.BadGateway},
		{name: "deadline", err: context.DeadlineExceeded, want: errs.DeadlineExceeded},
		{name: "api error passes through", err: errs.Newf(errs.InvalidArgument, "bad"), want: errs.InvalidArgument},
		{name: "unknown", err: errors.New("boom"), want: errs.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainError(tt.err).Code)
		})
	}
}
