package scheduling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/equinor/flotilla-sub005/internal/domain/events"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

func TestUpdateBatteryLevel_Tolerance(t *testing.T) {
	tests := []struct {
		name       string
		next       float64
		wantWrites int
		wantLevel  float64
	}{
		{name: "within tolerance", next: 80 + 1e-6, wantWrites: 0, wantLevel: 80},
		{name: "exactly equal", next: 80, wantWrites: 0, wantLevel: 80},
		{name: "outside tolerance", next: 80 + 1e-4, wantWrites: 1, wantLevel: 80 + 1e-4},
		{name: "large drop", next: 42, wantWrites: 1, wantLevel: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.addRobot(t, "robot-1", "area-1")

			require.NoError(t, env.telemetry.UpdateBatteryLevel(context.Background(), "isar-robot-1", tt.next))

			assert.Equal(t, tt.wantWrites, env.robots.Writes("battery_level"))
			assert.InDelta(t, tt.wantLevel, env.getRobot(t, "robot-1").BatteryLevel, 1e-9)
		})
	}
}

func TestUpdateBatteryLevel_AlertsWhenCrossingThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.addRobot(t, "robot-1", "area-1")
	ctx := context.Background()

	require.NoError(t, env.telemetry.UpdateBatteryLevel(ctx, "isar-robot-1", 15))
	require.NoError(t, env.telemetry.UpdateBatteryLevel(ctx, "isar-robot-1", 12))

	env.notifier.AssertNumberOfCalls(t, "SendMessage", 1)
	env.notifier.AssertCalled(t, "SendMessage", mock.Anything, events.EventTypeRobotAlert, "HUA",
		mock.MatchedBy(func(m RobotAlertMessage) bool { return m.Kind == "battery" && m.Value == 15 }))
}

func TestUpdatePressureLevel(t *testing.T) {
	env := newTestEnv(t)
	env.addRobot(t, "robot-1", "area-1")
	ctx := context.Background()
	p := func(v float64) *float64 { return &v }

	require.NoError(t, env.telemetry.UpdatePressureLevel(ctx, "isar-robot-1", nil))
	assert.Equal(t, 0, env.robots.Writes("pressure_level"))

	require.NoError(t, env.telemetry.UpdatePressureLevel(ctx, "isar-robot-1", p(0.5)))
	require.NoError(t, env.telemetry.UpdatePressureLevel(ctx, "isar-robot-1", p(0.5+1e-7)))
	assert.Equal(t, 1, env.robots.Writes("pressure_level"))

	require.NoError(t, env.telemetry.UpdatePressureLevel(ctx, "isar-robot-1", nil))
	assert.Equal(t, 2, env.robots.Writes("pressure_level"))
	assert.Nil(t, env.getRobot(t, "robot-1").PressureLevel)
}

func TestUpdatePose_Tolerance(t *testing.T) {
	env := newTestEnv(t)
	env.addRobot(t, "robot-1", "area-1")
	ctx := context.Background()

	jitter := shared.DefaultPose()
	jitter.Position.X += 1e-7
	require.NoError(t, env.telemetry.UpdatePose(ctx, "isar-robot-1", jitter))
	assert.Equal(t, 0, env.robots.Writes("pose"))

	moved := shared.DefaultPose()
	moved.Position.X = 2.5
	require.NoError(t, env.telemetry.UpdatePose(ctx, "isar-robot-1", moved))
	assert.Equal(t, 1, env.robots.Writes("pose"))
	assert.InDelta(t, 2.5, env.getRobot(t, "robot-1").Pose.Position.X, 1e-9)
}

func TestTelemetry_UnknownRobotIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.NoError(t, env.telemetry.UpdateBatteryLevel(ctx, "IDoNotExist", 50))
	assert.NoError(t, env.telemetry.UpdatePose(ctx, "IDoNotExist", shared.DefaultPose()))
	assert.NoError(t, env.telemetry.UpdateRobotStatus(ctx, "IDoNotExist", robot.StatusAvailable))
	assert.Equal(t, 0, env.robots.Writes("battery_level"))
}

func TestUpdateRobotStatus(t *testing.T) {
	tests := []struct {
		name         string
		initial      robot.Status
		reported     robot.Status
		wantWrites   int
		wantDispatch bool
	}{
		{name: "unchanged busy", initial: robot.StatusBusy, reported: robot.StatusBusy, wantWrites: 0},
		{name: "blocked", initial: robot.StatusAvailable, reported: robot.StatusBlocked, wantWrites: 1},
		{name: "becomes available", initial: robot.StatusOffline, reported: robot.StatusAvailable, wantWrites: 1, wantDispatch: true},
		{name: "still available", initial: robot.StatusAvailable, reported: robot.StatusAvailable, wantWrites: 0, wantDispatch: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			r := env.addRobot(t, "robot-1", "area-1")
			r.Status = tt.initial
			require.NoError(t, env.robots.UpdateRobot(context.Background(), r))

			dispatcher := new(mockDispatcher)
			if tt.wantDispatch {
				dispatcher.On("StartNextMissionRunIfSystemIsAvailable", mock.Anything, "robot-1").Return(nil, nil).Once()
			}
			svc := NewTelemetryService(env.robots, dispatcher, env.notifier, 0,
				env.telemetry.metrics, env.telemetry.logger, env.telemetry.tracer)

			require.NoError(t, svc.UpdateRobotStatus(context.Background(), "isar-robot-1", tt.reported))

			assert.Equal(t, tt.wantWrites, env.robots.Writes("status"))
			assert.Equal(t, tt.reported, env.getRobot(t, "robot-1").Status)
			dispatcher.AssertExpectations(t)
			if !tt.wantDispatch {
				dispatcher.AssertNotCalled(t, "StartNextMissionRunIfSystemIsAvailable", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestUpdateRobotStatus_AvailableStartsQueuedRun(t *testing.T) {
	env := newTestEnv(t)
	env.agent.acceptAll()
	r := env.addRobot(t, "robot-1", "area-1")
	r.Status = robot.StatusRecharging
	require.NoError(t, env.robots.UpdateRobot(context.Background(), r))
	pending := env.addPendingRun(t, "robot-1", "area-1", 1)

	require.NoError(t, env.telemetry.UpdateRobotStatus(context.Background(), "isar-robot-1", robot.StatusAvailable))

	assert.Equal(t, pending.ID, env.getRobot(t, "robot-1").CurrentMissionID)
}
