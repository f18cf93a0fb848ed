package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/common/timeutil"
)

// DailyCycleSpec fires the planning cycle at local midnight.
const DailyCycleSpec = "0 0 * * *"

// AutoSchedulerConfig tunes the daily planning cycle.
type AutoSchedulerConfig struct {
	// Location is the time zone schedule times are expressed in.
	Location *time.Location
	// AbortCycleOnMissingTimes stops the whole cycle when a definition that
	// should have times left today yields none. By default the definition is
	// skipped and the cycle continues.
	AbortCycleOnMissingTimes bool
	// CycleSpec is the cron expression for planning cycles. Empty means
	// DailyCycleSpec.
	CycleSpec string
}

// PlannedJob describes one delayed job registered by a cycle.
type PlannedJob struct {
	DefinitionID   string            `json:"mission_definition_id"`
	DefinitionName string            `json:"mission_definition_name"`
	TimeOfDay      mission.TimeOfDay `json:"time_of_day"`
	At             time.Time         `json:"at"`
	Delay          time.Duration     `json:"delay"`
	JobID          string            `json:"job_id,omitempty"`
}

// CycleReport summarizes a planning cycle.
type CycleReport struct {
	Reset          int          `json:"reset"`
	Scheduled      []PlannedJob `json:"scheduled"`
	Duplicates     int          `json:"duplicates"`
	MissingLastRun []string     `json:"missing_last_run,omitempty"`
	Aborted        bool         `json:"aborted"`
}

// AutoScheduler turns recurring mission definitions into delayed jobs for
// the rest of the day. Each job, when it fires, creates a run from the
// definition's last successful run on a robot in the right inspection area.
type AutoScheduler struct {
	definitions mission.DefinitionRepository
	robots      robot.Repository
	scheduler   DefinitionRunScheduler
	jobs        DelayedJobScheduler
	notifier    NotificationSink
	clock       timeutil.Provider
	cfg         AutoSchedulerConfig

	// cycleMu keeps cycles from interleaving when a manual run overlaps the
	// cron trigger.
	cycleMu sync.Mutex

	outstandingMu sync.Mutex
	outstanding   map[string]struct{}

	metrics SchedulerMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewAutoScheduler creates an AutoScheduler. A nil Location means UTC.
func NewAutoScheduler(
	definitions mission.DefinitionRepository,
	robots robot.Repository,
	scheduler DefinitionRunScheduler,
	jobs DelayedJobScheduler,
	notifier NotificationSink,
	clock timeutil.Provider,
	cfg AutoSchedulerConfig,
	metrics SchedulerMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *AutoScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &AutoScheduler{
		definitions: definitions,
		robots:      robots,
		scheduler:   scheduler,
		jobs:        jobs,
		notifier:    notifier,
		clock:       clock,
		cfg:         cfg,
		outstanding: make(map[string]struct{}),
		metrics:     metrics,
		logger:      logger.With("component", "auto_scheduler"),
		tracer:      tracer,
	}
}

func (a *AutoScheduler) now() time.Time { return a.clock.Now().In(a.cfg.Location) }

// Run executes one cycle immediately and then one every midnight until ctx
// is done. Jobs registered by this instance are cancelled on return so a
// successor does not fire them twice.
func (a *AutoScheduler) Run(ctx context.Context) error {
	a.logger.Info(ctx, "Auto scheduler starting", "location", a.cfg.Location.String())

	if _, err := a.RunCycle(ctx); err != nil {
		a.logger.Error(ctx, "Startup auto schedule cycle failed", "error", err)
	}

	spec := a.cfg.CycleSpec
	if spec == "" {
		spec = DailyCycleSpec
	}

	c := cron.New(cron.WithLocation(a.cfg.Location))
	if _, err := c.AddFunc(spec, func() {
		if _, err := a.RunCycle(ctx); err != nil {
			a.logger.Error(ctx, "Auto schedule cycle failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to register auto schedule cycle %q: %w", spec, err)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	cancelled := a.cancelOutstanding()
	a.logger.Info(context.Background(), "Auto scheduler stopped", "cancelled_jobs", cancelled)
	return nil
}

// PlanCycle reports what RunCycle would schedule now without registering
// jobs or touching stored bookkeeping.
func (a *AutoScheduler) PlanCycle(ctx context.Context) ([]PlannedJob, error) {
	ctx, span := a.tracer.Start(ctx, "auto_scheduler.plan_cycle")
	defer span.End()

	defs, err := a.definitions.ListAutoScheduledMissionDefinitions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list auto scheduled definitions")
		return nil, fmt.Errorf("failed to list auto scheduled mission definitions: %w", err)
	}

	now := a.now()
	var plan []PlannedJob
	for _, def := range defs {
		if def.LastSuccessfulRunID == "" {
			continue
		}
		for _, st := range def.AutoScheduleFrequency.SchedulingTimesUntilMidnight(now) {
			plan = append(plan, plannedJob(def, st, ""))
		}
	}
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].At.Before(plan[j].At) })
	return plan, nil
}

func plannedJob(def *mission.MissionDefinition, st mission.ScheduledTime, jobID string) PlannedJob {
	return PlannedJob{
		DefinitionID:   def.ID,
		DefinitionName: def.Name,
		TimeOfDay:      st.TimeOfDay,
		At:             st.At,
		Delay:          st.Delay,
		JobID:          jobID,
	}
}

// RunCycle cancels every job registered by the previous cycle and registers
// one delayed job per remaining schedule time today. Per-definition failures
// are logged and alerted; only failing to read the definitions fails the
// cycle.
func (a *AutoScheduler) RunCycle(ctx context.Context) (*CycleReport, error) {
	ctx, span := a.tracer.Start(ctx, "auto_scheduler.run_cycle")
	defer span.End()

	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	defs, err := a.definitions.ListAutoScheduledMissionDefinitions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list auto scheduled definitions")
		return nil, fmt.Errorf("failed to list auto scheduled mission definitions: %w", err)
	}

	report := &CycleReport{}
	a.resetJobs(ctx, defs, report)

	for _, def := range defs {
		if abort := a.scheduleDefinition(ctx, def, report); abort {
			report.Aborted = true
			break
		}
	}

	span.SetAttributes(
		attribute.Int("definitions", len(defs)),
		attribute.Int("jobs_scheduled", len(report.Scheduled)),
		attribute.Bool("aborted", report.Aborted),
	)
	a.logger.Info(ctx, "Auto schedule cycle completed",
		"definitions", len(defs),
		"reset", report.Reset,
		"scheduled", len(report.Scheduled),
		"duplicates", report.Duplicates,
		"missing_last_run", len(report.MissingLastRun),
		"aborted", report.Aborted,
	)
	return report, nil
}

func (a *AutoScheduler) resetJobs(ctx context.Context, defs []*mission.MissionDefinition, report *CycleReport) {
	for _, def := range defs {
		if len(def.AutoScheduleFrequency.ScheduledJobs) == 0 {
			continue
		}
		for _, jobID := range def.AutoScheduleFrequency.ResetScheduledJobs() {
			a.jobs.Cancel(jobID)
			a.forget(jobID)
		}
		if err := a.definitions.UpdateMissionDefinition(ctx, def); err != nil {
			a.logger.Error(ctx, "Failed to clear scheduled jobs", "mission_definition_id", def.ID, "error", err)
			continue
		}
		report.Reset++
	}
}

// scheduleDefinition registers today's jobs for def. It reports whether the
// cycle should stop.
func (a *AutoScheduler) scheduleDefinition(ctx context.Context, def *mission.MissionDefinition, report *CycleReport) bool {
	freq := def.AutoScheduleFrequency
	if !freq.HasSchedulingTimesUntilMidnight(a.now()) {
		return false
	}

	if def.LastSuccessfulRunID == "" {
		report.MissingLastRun = append(report.MissingLastRun, def.ID)
		a.metrics.IncAutoScheduleFailures(ctx, "missing_last_run")
		a.notifier.ReportAutoScheduleFail(ctx, def,
			fmt.Sprintf("Mission %q has never completed successfully and can not be repeated", def.Name))
		return false
	}

	times := freq.SchedulingTimesUntilMidnight(a.now())
	if times == nil {
		// The window closed between the two checks.
		a.logger.Warn(ctx, "No scheduling times left for definition", "mission_definition_id", def.ID)
		return a.cfg.AbortCycleOnMissingTimes
	}

	changed := false
	for _, st := range times {
		if _, ok := freq.ScheduledJob(st.TimeOfDay); ok {
			report.Duplicates++
			continue
		}

		jobID, err := a.scheduleJob(ctx, st.Delay, def.ID)
		if err != nil {
			a.logger.Error(ctx, "Failed to register auto schedule job",
				"mission_definition_id", def.ID,
				"time_of_day", st.TimeOfDay.String(),
				"error", err,
			)
			continue
		}
		freq.RecordScheduledJob(st.TimeOfDay, jobID)
		changed = true
		a.metrics.IncAutoScheduleJobsScheduled(ctx)
		report.Scheduled = append(report.Scheduled, plannedJob(def, st, jobID))
		a.logger.Debug(ctx, "Auto schedule job registered",
			"mission_definition_id", def.ID,
			"job_id", jobID,
			"at", st.At,
		)
	}

	if changed {
		if err := a.definitions.UpdateMissionDefinition(ctx, def); err != nil {
			a.logger.Error(ctx, "Failed to persist scheduled jobs", "mission_definition_id", def.ID, "error", err)
		}
	}
	return false
}

// AutoScheduleMissionRun is the body of a fired job. It reloads the
// definition, picks the first robot (by id) standing in the definition's
// inspection area and schedules a run there.
func (a *AutoScheduler) AutoScheduleMissionRun(ctx context.Context, definitionID string) {
	ctx, span := a.tracer.Start(ctx, "auto_scheduler.auto_schedule_mission_run",
		trace.WithAttributes(attribute.String("mission_definition_id", definitionID)))
	defer span.End()

	fail := func(def *mission.MissionDefinition, reason, msg string) {
		span.SetStatus(codes.Error, msg)
		a.metrics.IncAutoScheduleFailures(ctx, reason)
		a.notifier.ReportAutoScheduleFail(ctx, def, msg)
	}

	def, err := a.definitions.GetMissionDefinition(ctx, definitionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read mission definition")
		a.logger.Error(ctx, "Failed to read mission definition", "mission_definition_id", definitionID, "error", err)
		return
	}
	if def == nil || def.IsDeprecated {
		a.logger.Warn(ctx, "Auto scheduled definition no longer exists", "mission_definition_id", definitionID)
		return
	}

	if def.InspectionAreaID == "" {
		fail(def, "no_inspection_area", fmt.Sprintf("Mission %q has no inspection area", def.Name))
		return
	}

	robots, err := a.robots.ListRobotsForInstallation(ctx, def.InstallationCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list robots")
		a.logger.Error(ctx, "Failed to list robots", "installation_code", def.InstallationCode, "error", err)
		return
	}
	sort.Slice(robots, func(i, j int) bool { return robots[i].ID < robots[j].ID })

	var chosen *robot.Robot
	for _, rb := range robots {
		if rb.CurrentInspectionAreaID == def.InspectionAreaID {
			chosen = rb
			break
		}
	}
	if chosen == nil {
		fail(def, "no_robot_in_area", fmt.Sprintf("No robot is in the inspection area of mission %q", def.Name))
		return
	}
	span.SetAttributes(attribute.String("robot_id", chosen.ID))

	run, err := a.scheduler.ScheduleMissionRunFromMissionDefinitionLastSuccessfulRun(ctx, def.ID, chosen.ID)
	if err != nil {
		span.RecordError(err)
		a.logger.Error(ctx, "Failed to schedule mission run", "mission_definition_id", def.ID, "robot_id", chosen.ID, "error", err)
		fail(def, "schedule_failed", fmt.Sprintf("Mission %q could not be scheduled on %s: %v", def.Name, chosen.Name, err))
		return
	}
	a.logger.Info(ctx, "Auto scheduled mission run",
		"mission_definition_id", def.ID,
		"mission_run_id", run.ID,
		"robot_id", chosen.ID,
	)
}

// scheduleJob registers a delayed AutoScheduleMissionRun. The handle is
// recorded before the job can observe it, so a job firing at once still
// removes its own entry.
func (a *AutoScheduler) scheduleJob(ctx context.Context, delay time.Duration, definitionID string) (string, error) {
	a.outstandingMu.Lock()
	defer a.outstandingMu.Unlock()

	jobID, err := a.jobs.Schedule(ctx, delay, func(jobCtx context.Context, jobID string) {
		a.forget(jobID)
		a.AutoScheduleMissionRun(jobCtx, definitionID)
	})
	if err != nil {
		return "", err
	}
	a.outstanding[jobID] = struct{}{}
	return jobID, nil
}

func (a *AutoScheduler) forget(jobID string) {
	a.outstandingMu.Lock()
	defer a.outstandingMu.Unlock()
	delete(a.outstanding, jobID)
}

func (a *AutoScheduler) cancelOutstanding() int {
	a.outstandingMu.Lock()
	defer a.outstandingMu.Unlock()

	n := 0
	for jobID := range a.outstanding {
		if a.jobs.Cancel(jobID) {
			n++
		}
		delete(a.outstanding, jobID)
	}
	return n
}
