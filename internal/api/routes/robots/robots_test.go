package robots

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/equinor/flotilla-sub005/internal/api"
	"github.com/equinor/flotilla-sub005/internal/api/mid"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

type mockCommander struct{ mock.Mock }

func (m *mockCommander) run(args mock.Arguments) (*mission.MissionRun, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mission.MissionRun), args.Error(1)
}

func (m *mockCommander) StartNextMissionRunIfSystemIsAvailable(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	return m.run(m.Called(ctx, robotID))
}

func (m *mockCommander) StopCurrentMissionRun(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	return m.run(m.Called(ctx, robotID))
}

func (m *mockCommander) PauseCurrentMissionRun(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	return m.run(m.Called(ctx, robotID))
}

func (m *mockCommander) ResumeCurrentMissionRun(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	return m.run(m.Called(ctx, robotID))
}

func (m *mockCommander) FreezeMissionRunQueueForRobot(ctx context.Context, robotID string) error {
	return m.Called(ctx, robotID).Error(0)
}

func (m *mockCommander) UnfreezeMissionRunQueueForRobot(ctx context.Context, robotID string) error {
	return m.Called(ctx, robotID).Error(0)
}

func (m *mockCommander) ScheduleReturnToHomeMissionRunIfNotAlreadyScheduled(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	return m.run(m.Called(ctx, robotID))
}

type stubRobots struct {
	robots map[string]*robot.Robot
}

func (s stubRobots) GetRobot(_ context.Context, id string) (*robot.Robot, error) {
	return s.robots[id], nil
}

func (s stubRobots) ListRobotsForInstallation(_ context.Context, installationCode string) ([]*robot.Robot, error) {
	var out []*robot.Robot
	for _, r := range s.robots {
		if r.InstallationCode == installationCode {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestApp(cmd *mockCommander, robots stubRobots) *web.App {
	log := logger.Noop()
	app := web.NewApp(
		func(context.Context, string, ...any) {},
		noop.NewTracerProvider().Tracer("test"),
		mid.Errors(log),
		mid.Panics(),
	)
	Routes(app, Config{Log: log, Robots: robots, Scheduler: cmd, Metrics: api.NoopMetrics{}})
	return app
}

func do(app http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func testRun(robotID string) *mission.MissionRun {
	return mission.NewMissionRun("inspect", "HUA", robotID, nil, time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
}

func TestGetRobot(t *testing.T) {
	rb := robot.New("r2d2", "isar-1", "http://isar", "HUA", robot.Model{Name: "ExR2"})
	app := newTestApp(new(mockCommander), stubRobots{robots: map[string]*robot.Robot{rb.ID: rb}})

	rec := do(app, http.MethodGet, "/v1/robots/"+rb.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got api.Robot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, rb.ID, got.ID)
	assert.Equal(t, "ExR2", got.Model)

	rec = do(app, http.MethodGet, "/v1/robots/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRobots(t *testing.T) {
	rb := robot.New("r2d2", "isar-1", "http://isar", "HUA", robot.Model{})
	app := newTestApp(new(mockCommander), stubRobots{robots: map[string]*robot.Robot{rb.ID: rb}})

	rec := do(app, http.MethodGet, "/v1/robots?installation_code=HUA")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), rb.ID)

	rec = do(app, http.MethodGet, "/v1/robots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatch(t *testing.T) {
	run := testRun("r1")

	tests := []struct {
		name        string
		setup       func(m *mockCommander)
		wantCode    int
		wantStarted bool
	}{
		{
			name: "run started",
			setup: func(m *mockCommander) {
				m.On("StartNextMissionRunIfSystemIsAvailable", mock.Anything, "r1").Return(run, nil).Once()
			},
			wantCode:    http.StatusOK,
			wantStarted: true,
		},
		{
			name: "nothing to start",
			setup: func(m *mockCommander) {
				m.On("StartNextMissionRunIfSystemIsAvailable", mock.Anything, "r1").Return(nil, nil).Once()
			},
			wantCode: http.StatusOK,
		},
		{
			name: "robot unknown",
			setup: func(m *mockCommander) {
				m.On("StartNextMissionRunIfSystemIsAvailable", mock.Anything, "r1").
					Return(nil, fmt.Errorf("robot r1: %w", robot.ErrRobotNotFound)).Once()
			},
			wantCode: http.StatusNotFound,
		},
		{
			name: "agent unreachable",
			setup: func(m *mockCommander) {
				m.On("StartNextMissionRunIfSystemIsAvailable", mock.Anything, "r1").
					Return(nil, mission.ErrRobotAgentUnavailable).Once()
			},
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := new(mockCommander)
			tt.setup(cmd)
			app := newTestApp(cmd, stubRobots{})

			rec := do(app, http.MethodPost, "/v1/robots/r1/dispatch")
			assert.Equal(t, tt.wantCode, rec.Code)

			if tt.wantCode == http.StatusOK {
				var got dispatchResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, tt.wantStarted, got.Started)
			}
			cmd.AssertExpectations(t)
		})
	}
}

func TestControlCommands(t *testing.T) {
	run := testRun("r1")

	tests := []struct {
		path     string
		method   string
		err      error
		wantCode int
	}{
		{path: "stop", method: "StopCurrentMissionRun", wantCode: http.StatusOK},
		{path: "pause", method: "PauseCurrentMissionRun", wantCode: http.StatusOK},
		{path: "resume", method: "ResumeCurrentMissionRun", wantCode: http.StatusOK},
		{path: "pause", method: "PauseCurrentMissionRun", err: mission.ErrAgentNoActiveMission, wantCode: http.StatusConflict},
		{path: "stop", method: "StopCurrentMissionRun", err: mission.ErrRobotAgent, wantCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			cmd := new(mockCommander)
			if tt.err != nil {
				cmd.On(tt.method, mock.Anything, "r1").Return(nil, tt.err).Once()
			} else {
				cmd.On(tt.method, mock.Anything, "r1").Return(run, nil).Once()
			}
			app := newTestApp(cmd, stubRobots{})

			rec := do(app, http.MethodPost, "/v1/robots/r1/"+tt.path)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.err == nil {
				assert.Contains(t, rec.Body.String(), run.ID)
			}
			cmd.AssertExpectations(t)
		})
	}
}

func TestQueueCommands(t *testing.T) {
	cmd := new(mockCommander)
	cmd.On("FreezeMissionRunQueueForRobot", mock.Anything, "r1").Return(nil).Once()
	cmd.On("UnfreezeMissionRunQueueForRobot", mock.Anything, "r1").Return(robot.ErrRobotNotFound).Once()
	app := newTestApp(cmd, stubRobots{})

	assert.Equal(t, http.StatusNoContent, do(app, http.MethodPost, "/v1/robots/r1/freeze").Code)
	assert.Equal(t, http.StatusNotFound, do(app, http.MethodPost, "/v1/robots/r1/unfreeze").Code)
	cmd.AssertExpectations(t)
}

func TestReturnHome(t *testing.T) {
	run := testRun("r1")
	cmd := new(mockCommander)
	cmd.On("ScheduleReturnToHomeMissionRunIfNotAlreadyScheduled", mock.Anything, "r1").Return(run, nil).Once()
	cmd.On("ScheduleReturnToHomeMissionRunIfNotAlreadyScheduled", mock.Anything, "r1").Return(nil, nil).Once()
	cmd.On("ScheduleReturnToHomeMissionRunIfNotAlreadyScheduled", mock.Anything, "r1").Return(nil, robot.ErrNoInspectionArea).Once()
	app := newTestApp(cmd, stubRobots{})

	rec := do(app, http.MethodPost, "/v1/robots/r1/return-home")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), run.ID)

	rec = do(app, http.MethodPost, "/v1/robots/r1/return-home")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"already_scheduled":true}`, rec.Body.String())

	rec = do(app, http.MethodPost, "/v1/robots/r1/return-home")
	assert.Equal(t, http.StatusConflict, rec.Code)
	cmd.AssertExpectations(t)
}
