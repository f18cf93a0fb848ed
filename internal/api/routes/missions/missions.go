// Package missions binds the mission run queries, queue edits and scheduling
// from a mission definition.
package missions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/equinor/flotilla-sub005/internal/api"
	"github.com/equinor/flotilla-sub005/internal/api/errs"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

const (
	defaultRows = 100
	maxRows     = 1000
)

// RunReader reads mission runs.
type RunReader interface {
	GetMissionRun(ctx context.Context, id string) (*mission.MissionRun, error)
	ListMissionRuns(ctx context.Context, filter mission.RunFilter) ([]*mission.MissionRun, error)
}

// DefinitionScheduler creates runs from a definition's last successful run.
type DefinitionScheduler interface {
	ScheduleMissionRunFromMissionDefinitionLastSuccessfulRun(ctx context.Context, definitionID, robotID string) (*mission.MissionRun, error)
}

// QueueEditor removes queued runs and reruns finished ones.
type QueueEditor interface {
	RemoveQueuedMissionRun(ctx context.Context, runID string) (*mission.MissionRun, error)
	RemoveQueuedMissionRuns(ctx context.Context, filter mission.RunFilter) ([]*mission.MissionRun, error)
	RerunMissionRun(ctx context.Context, runID, robotID string, desiredStart *time.Time) (*mission.MissionRun, error)
}

// Scheduler is the part of the mission scheduler the mission routes drive.
type Scheduler interface {
	DefinitionScheduler
	QueueEditor
}

// Config contains the dependencies needed by the mission handlers.
type Config struct {
	Log       *logger.Logger
	Runs      RunReader
	Scheduler Scheduler
	Metrics   api.APIMetrics
}

// Routes binds all the mission endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFunc(http.MethodGet, version, "/mission-runs", list(cfg))
	app.HandlerFunc(http.MethodGet, version, "/mission-runs/{id}", get(cfg))
	app.HandlerFunc(http.MethodDelete, version, "/mission-runs/queued", removeQueued(cfg))
	app.HandlerFunc(http.MethodDelete, version, "/mission-runs/{id}", remove(cfg))
	app.HandlerFunc(http.MethodPost, version, "/mission-runs/{id}/rerun", rerun(cfg))
	app.HandlerFunc(http.MethodPost, version, "/mission-definitions/{id}/schedule", schedule(cfg))
}

func get(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id := web.Param(r, "id")

		run, err := cfg.Runs.GetMissionRun(ctx, id)
		if err != nil {
			return api.DomainError(err)
		}
		if run == nil {
			return errs.New(errs.NotFound, fmt.Errorf("mission run %s: %w", id, mission.ErrMissionRunNotFound))
		}
		return api.ToMissionRun(run)
	}
}

// list pages through runs newest first. page is one based.
func list(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		filter, page, rows, err := parseFilter(r)
		if err != nil {
			return err
		}

		runs, lerr := cfg.Runs.ListMissionRuns(ctx, filter)
		if lerr != nil {
			return api.DomainError(lerr)
		}
		return api.ToMissionRuns(runs, page, rows)
	}
}

func parseFilter(r *http.Request) (mission.RunFilter, int, int, *errs.Error) {
	q := r.URL.Query()
	var fe errs.FieldErrors

	page, err := web.QueryInt(r, "page", 1)
	if err != nil || page < 1 {
		fe.Add("page", fmt.Errorf("page must be a positive integer"))
	}
	rows, err := web.QueryInt(r, "rows", defaultRows)
	if err != nil || rows < 1 || rows > maxRows {
		fe.Add("rows", fmt.Errorf("rows must be between 1 and %d", maxRows))
	}

	var statuses []mission.MissionStatus
	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			st := mission.ParseMissionStatus(strings.TrimSpace(s))
			if st == "" {
				fe.Add("status", fmt.Errorf("unknown mission status %q", s))
				continue
			}
			statuses = append(statuses, st)
		}
	}

	if len(fe) > 0 {
		return mission.RunFilter{}, 0, 0, fe.ToError()
	}

	return mission.RunFilter{
		RobotID:          q.Get("robot_id"),
		InstallationCode: q.Get("installation_code"),
		Statuses:         statuses,
		Order:            mission.RunOrderNewestFirst,
		Page:             page - 1,
		PageSize:         rows,
	}, page, rows, nil
}

// scheduleRequest names the robot the new run is queued on.
type scheduleRequest struct {
	RobotID string `json:"robot_id" validate:"required"`
}

// scheduleResponse is the created run.
type scheduleResponse struct {
	api.MissionRun
}

// HTTPStatus implements the httpStatus interface to set the response status code.
func (scheduleResponse) HTTPStatus() int { return http.StatusCreated }

func schedule(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		definitionID := web.Param(r, "id")
		cfg.Metrics.IncOperatorCommands(ctx, "schedule")

		var req scheduleRequest
		if err := web.Decode(r, &req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}
		if err := errs.Check(req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		run, err := cfg.Scheduler.ScheduleMissionRunFromMissionDefinitionLastSuccessfulRun(ctx, definitionID, req.RobotID)
		if err != nil {
			return api.DomainError(err)
		}

		cfg.Log.Info(ctx, "Mission run scheduled by operator",
			"mission_definition_id", definitionID, "robot_id", req.RobotID, "mission_run_id", run.ID)
		return scheduleResponse{MissionRun: api.ToMissionRun(run)}
	}
}

func remove(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id := web.Param(r, "id")
		cfg.Metrics.IncOperatorCommands(ctx, "remove")

		run, err := cfg.Scheduler.RemoveQueuedMissionRun(ctx, id)
		if err != nil {
			return api.DomainError(err)
		}

		cfg.Log.Info(ctx, "Mission run removed by operator", "mission_run_id", run.ID, "robot_id", run.RobotID)
		return api.ToMissionRun(run)
	}
}

// removedRuns lists the runs taken off the queue.
type removedRuns struct {
	Items []api.MissionRun `json:"items"`
}

// Encode implements the web.Encoder interface.
func (rr removedRuns) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rr)
	return data, "application/json", err
}

// removeQueued empties the queue. installation_code and robot_id narrow
// it; without either every queued run is removed.
func removeQueued(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		q := r.URL.Query()
		filter := mission.RunFilter{
			InstallationCode: q.Get("installation_code"),
			RobotID:          q.Get("robot_id"),
		}
		cfg.Metrics.IncOperatorCommands(ctx, "remove-queued")

		runs, err := cfg.Scheduler.RemoveQueuedMissionRuns(ctx, filter)
		if err != nil {
			return api.DomainError(err)
		}

		items := make([]api.MissionRun, len(runs))
		for i, run := range runs {
			items[i] = api.ToMissionRun(run)
		}
		cfg.Log.Info(ctx, "Queued mission runs removed by operator",
			"installation_code", filter.InstallationCode, "robot_id", filter.RobotID, "removed", len(items))
		return removedRuns{Items: items}
	}
}

// rerunRequest picks the robot and start time of a rerun. Both are
// optional.
type rerunRequest struct {
	RobotID          string     `json:"robot_id"`
	DesiredStartTime *time.Time `json:"desired_start_time"`
}

func rerun(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		runID := web.Param(r, "id")
		cfg.Metrics.IncOperatorCommands(ctx, "rerun")

		var req rerunRequest
		if err := web.Decode(r, &req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		run, err := cfg.Scheduler.RerunMissionRun(ctx, runID, req.RobotID, req.DesiredStartTime)
		if err != nil {
			return api.DomainError(err)
		}

		cfg.Log.Info(ctx, "Mission run rerun by operator",
			"source_mission_run_id", runID, "robot_id", run.RobotID, "mission_run_id", run.ID)
		return scheduleResponse{MissionRun: api.ToMissionRun(run)}
	}
}
