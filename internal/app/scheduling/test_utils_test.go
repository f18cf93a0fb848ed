package scheduling

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/equinor/flotilla-sub005/internal/domain/events"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
	missionmem "github.com/equinor/flotilla-sub005/internal/infra/storage/mission/memory"
	robotmem "github.com/equinor/flotilla-sub005/internal/infra/storage/robot/memory"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/common/timeutil"
)

// Monday 10 March 2025, 09:00 UTC.
var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// mockRobotAgent implements RobotAgent for testing.
type mockRobotAgent struct{ mock.Mock }

func (m *mockRobotAgent) StartMission(ctx context.Context, r *robot.Robot, run *mission.MissionRun) (*mission.AgentMission, error) {
	args := m.Called(ctx, r, run)
	switch am := args.Get(0).(type) {
	case *mission.AgentMission:
		return am, args.Error(1)
	case func(context.Context, *robot.Robot, *mission.MissionRun) *mission.AgentMission:
		return am(ctx, r, run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRobotAgent) StopMission(ctx context.Context, r *robot.Robot) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRobotAgent) PauseMission(ctx context.Context, r *robot.Robot) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRobotAgent) ResumeMission(ctx context.Context, r *robot.Robot) error {
	return m.Called(ctx, r).Error(0)
}

// acceptAll makes StartMission succeed with an ISAR mission id derived from
// the run id.
func (m *mockRobotAgent) acceptAll() {
	m.On("StartMission", mock.Anything, mock.Anything, mock.Anything).
		Return(func(_ context.Context, _ *robot.Robot, run *mission.MissionRun) *mission.AgentMission {
			return &mission.AgentMission{IsarMissionID: "isar-" + run.ID, StartTime: testNow}
		}, nil)
}

// mockNotifier implements NotificationSink for testing.
type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) SendMessage(ctx context.Context, label events.EventType, installationCode string, payload any) {
	m.Called(ctx, label, installationCode, payload)
}

func (m *mockNotifier) ReportDockFailure(ctx context.Context, r *robot.Robot, message string) {
	m.Called(ctx, r, message)
}

func (m *mockNotifier) ReportGeneralFail(ctx context.Context, r *robot.Robot, title, message string) {
	m.Called(ctx, r, title, message)
}

func (m *mockNotifier) ReportAutoScheduleFail(ctx context.Context, def *mission.MissionDefinition, message string) {
	m.Called(ctx, def, message)
}

func (m *mockNotifier) MissionRunUpdated(ctx context.Context, run *mission.MissionRun) {
	m.Called(ctx, run)
}

// newMockNotifier returns a notifier that accepts every call.
func newMockNotifier() *mockNotifier {
	n := new(mockNotifier)
	n.On("SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	n.On("ReportDockFailure", mock.Anything, mock.Anything, mock.Anything).Maybe()
	n.On("ReportGeneralFail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	n.On("ReportAutoScheduleFail", mock.Anything, mock.Anything, mock.Anything).Maybe()
	n.On("MissionRunUpdated", mock.Anything, mock.Anything).Maybe()
	return n
}

// fakeJobs implements DelayedJobScheduler, holding jobs until fired.
type fakeJobs struct {
	mu        sync.Mutex
	next      int
	pending   map[string]fakeJob
	cancelled []string
}

type fakeJob struct {
	delay time.Duration
	fn    func(context.Context, string)
}

func newFakeJobs() *fakeJobs { return &fakeJobs{pending: make(map[string]fakeJob)} }

func (f *fakeJobs) Schedule(_ context.Context, delay time.Duration, job func(context.Context, string)) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("job-%d", f.next)
	f.pending[id] = fakeJob{delay: delay, fn: job}
	return id, nil
}

func (f *fakeJobs) Cancel(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	if _, ok := f.pending[jobID]; !ok {
		return false
	}
	delete(f.pending, jobID)
	return true
}

func (f *fakeJobs) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// fire runs a pending job synchronously.
func (f *fakeJobs) fire(ctx context.Context, jobID string) {
	f.mu.Lock()
	job, ok := f.pending[jobID]
	delete(f.pending, jobID)
	f.mu.Unlock()
	if ok {
		job.fn(ctx, jobID)
	}
}

// immediateJobs implements DelayedJobScheduler by firing every job on its
// own goroutine right away, ignoring the delay.
type immediateJobs struct {
	mu    sync.Mutex
	next  int
	fired []string
	wg    sync.WaitGroup
}

func (j *immediateJobs) Schedule(_ context.Context, _ time.Duration, job func(context.Context, string)) (string, error) {
	j.mu.Lock()
	j.next++
	id := fmt.Sprintf("now-%d", j.next)
	j.mu.Unlock()

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.mu.Lock()
		j.fired = append(j.fired, id)
		j.mu.Unlock()
		job(context.Background(), id)
	}()
	return id, nil
}

func (j *immediateJobs) Cancel(string) bool { return false }

func (j *immediateJobs) firedIDs() []string {
	j.wg.Wait()
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.fired...)
}

// steppingClock returns its times in order, then keeps returning the last.
type steppingClock struct {
	mu    sync.Mutex
	times []time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return now
}

// failingDefinitions fails the bulk read of auto scheduled definitions and
// delegates everything else.
type failingDefinitions struct {
	mission.DefinitionRepository
	err error
}

func (f *failingDefinitions) ListAutoScheduledMissionDefinitions(context.Context) ([]*mission.MissionDefinition, error) {
	return nil, f.err
}

// mockDispatcher implements Dispatcher for testing.
type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) StartNextMissionRunIfSystemIsAvailable(ctx context.Context, robotID string) (*mission.MissionRun, error) {
	args := m.Called(ctx, robotID)
	if run := args.Get(0); run != nil {
		return run.(*mission.MissionRun), args.Error(1)
	}
	return nil, args.Error(1)
}

// testEnv wires the scheduling services over in-memory stores.
type testEnv struct {
	runs        *missionmem.RunStore
	definitions *missionmem.DefinitionStore
	robots      *robotmem.RobotStore
	agent       *mockRobotAgent
	notifier    *mockNotifier
	jobs        *fakeJobs
	clock       *timeutil.Mock

	scheduler *MissionScheduler
	tracker   *StatusTracker
	telemetry *TelemetryService
	auto      *AutoScheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	metrics, err := NewSchedulerMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)
	tracer := noop.NewTracerProvider().Tracer("test")
	log := logger.Noop()

	env := &testEnv{
		runs:        missionmem.NewRunStore(),
		definitions: missionmem.NewDefinitionStore(),
		robots:      robotmem.NewRobotStore(),
		agent:       new(mockRobotAgent),
		notifier:    newMockNotifier(),
		jobs:        newFakeJobs(),
		clock:       timeutil.NewMock(testNow),
	}
	env.scheduler = NewMissionScheduler(env.runs, env.definitions, env.robots, env.agent, env.notifier, env.clock, metrics, log, tracer)
	env.tracker = NewStatusTracker(env.runs, env.definitions, env.robots, env.scheduler, env.notifier, env.clock, metrics, log, tracer)
	env.telemetry = NewTelemetryService(env.robots, env.scheduler, env.notifier, DefaultTelemetryTolerance, metrics, log, tracer)
	env.auto = NewAutoScheduler(env.definitions, env.robots, env.scheduler, env.jobs, env.notifier, env.clock,
		AutoSchedulerConfig{Location: time.UTC}, metrics, log, tracer)
	return env
}

// addRobot stores an enabled, Available robot standing in areaID.
func (e *testEnv) addRobot(t *testing.T, id, areaID string) *robot.Robot {
	t.Helper()
	r := robot.New("Robot "+id, "isar-"+id, "http://"+id, "HUA", robot.Model{
		Name:                    "AnymalX",
		BatteryWarningThreshold: 20,
	})
	r.ID = id
	r.CurrentInspectionAreaID = areaID
	r.BatteryLevel = 80
	require.NoError(t, e.robots.CreateRobot(context.Background(), r))
	return r
}

// addPendingRun stores a Pending normal run with n inspection tasks.
func (e *testEnv) addPendingRun(t *testing.T, robotID, areaID string, n int, opts ...mission.MissionRunOption) *mission.MissionRun {
	t.Helper()
	tasks := make([]*mission.MissionTask, n)
	for i := range tasks {
		tasks[i] = mission.NewInspectionTask(fmt.Sprintf("tag-%d", i), shared.DefaultPose(), shared.Position{X: float64(i)},
			mission.NewInspection(mission.InspectionTypeImage))
	}
	opts = append([]mission.MissionRunOption{mission.WithInspectionArea(areaID)}, opts...)
	run := mission.NewMissionRun("Deck inspection", "HUA", robotID, tasks, e.clock.Now(), opts...)
	require.NoError(t, e.runs.CreateMissionRun(context.Background(), run))
	return run
}

func (e *testEnv) getRun(t *testing.T, id string) *mission.MissionRun {
	t.Helper()
	run, err := e.runs.GetMissionRun(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, run)
	return run
}

func (e *testEnv) getRobot(t *testing.T, id string) *robot.Robot {
	t.Helper()
	r, err := e.robots.GetRobot(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}

func (e *testEnv) listRuns(t *testing.T, f mission.RunFilter) []*mission.MissionRun {
	t.Helper()
	runs, err := e.runs.ListMissionRuns(context.Background(), f)
	require.NoError(t, err)
	return runs
}
