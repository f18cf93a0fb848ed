// Package robots binds the operator commands addressed to a single robot.
package robots

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/equinor/flotilla-sub005/internal/api"
	"github.com/equinor/flotilla-sub005/internal/api/errs"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

// Commander is the part of the mission scheduler the operator drives.
type Commander interface {
	StartNextMissionRunIfSystemIsAvailable(ctx context.Context, robotID string) (*mission.MissionRun, error)
	StopCurrentMissionRun(ctx context.Context, robotID string) (*mission.MissionRun, error)
	PauseCurrentMissionRun(ctx context.Context, robotID string) (*mission.MissionRun, error)
	ResumeCurrentMissionRun(ctx context.Context, robotID string) (*mission.MissionRun, error)
	FreezeMissionRunQueueForRobot(ctx context.Context, robotID string) error
	UnfreezeMissionRunQueueForRobot(ctx context.Context, robotID string) error
	ScheduleReturnToHomeMissionRunIfNotAlreadyScheduled(ctx context.Context, robotID string) (*mission.MissionRun, error)
}

// RobotReader looks robots up.
type RobotReader interface {
	GetRobot(ctx context.Context, id string) (*robot.Robot, error)
	ListRobotsForInstallation(ctx context.Context, installationCode string) ([]*robot.Robot, error)
}

// Config contains the dependencies needed by the robot handlers.
type Config struct {
	Log       *logger.Logger
	Robots    RobotReader
	Scheduler Commander
	Metrics   api.APIMetrics
}

// Routes binds all the robot endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFunc(http.MethodGet, version, "/robots", list(cfg))
	app.HandlerFunc(http.MethodGet, version, "/robots/{id}", get(cfg))
	app.HandlerFunc(http.MethodPost, version, "/robots/{id}/dispatch", dispatch(cfg))
	app.HandlerFunc(http.MethodPost, version, "/robots/{id}/stop", control(cfg, "stop", cfg.Scheduler.StopCurrentMissionRun))
	app.HandlerFunc(http.MethodPost, version, "/robots/{id}/pause", control(cfg, "pause", cfg.Scheduler.PauseCurrentMissionRun))
	app.HandlerFunc(http.MethodPost, version, "/robots/{id}/resume", control(cfg, "resume", cfg.Scheduler.ResumeCurrentMissionRun))
	app.HandlerFunc(http.MethodPost, version, "/robots/{id}/freeze", queue(cfg, "freeze", cfg.Scheduler.FreezeMissionRunQueueForRobot))
	app.HandlerFunc(http.MethodPost, version, "/robots/{id}/unfreeze", queue(cfg, "unfreeze", cfg.Scheduler.UnfreezeMissionRunQueueForRobot))
	app.HandlerFunc(http.MethodPost, version, "/robots/{id}/return-home", returnHome(cfg))
}

// robotList is the response for listing an installation's robots.
type robotList struct {
	Items []api.Robot `json:"items"`
}

// Encode implements the web.Encoder interface.
func (rl robotList) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rl)
	return data, "application/json", err
}

func list(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		installation := r.URL.Query().Get("installation_code")
		if installation == "" {
			return errs.NewFieldErrors("installation_code", fmt.Errorf("installation_code is a required field"))
		}

		robots, err := cfg.Robots.ListRobotsForInstallation(ctx, installation)
		if err != nil {
			return api.DomainError(err)
		}

		items := make([]api.Robot, len(robots))
		for i, rb := range robots {
			items[i] = api.ToRobot(rb)
		}
		return robotList{Items: items}
	}
}

func get(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id := web.Param(r, "id")

		rb, err := cfg.Robots.GetRobot(ctx, id)
		if err != nil {
			return api.DomainError(err)
		}
		if rb == nil {
			return errs.New(errs.NotFound, fmt.Errorf("robot %s: %w", id, robot.ErrRobotNotFound))
		}
		return api.ToRobot(rb)
	}
}

// dispatchResponse tells whether a run was started. Nothing is started
// when the robot is busy, its queue is frozen or no run is due.
type dispatchResponse struct {
	Started    bool            `json:"started"`
	MissionRun *api.MissionRun `json:"mission_run,omitempty"`
}

// Encode implements the web.Encoder interface.
func (dr dispatchResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(dr)
	return data, "application/json", err
}

func dispatch(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id := web.Param(r, "id")
		cfg.Metrics.IncOperatorCommands(ctx, "dispatch")

		run, err := cfg.Scheduler.StartNextMissionRunIfSystemIsAvailable(ctx, id)
		if err != nil {
			return api.DomainError(err)
		}
		if run == nil {
			return dispatchResponse{}
		}

		view := api.ToMissionRun(run)
		return dispatchResponse{Started: true, MissionRun: &view}
	}
}

func control(cfg Config, command string, fn func(context.Context, string) (*mission.MissionRun, error)) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id := web.Param(r, "id")
		cfg.Metrics.IncOperatorCommands(ctx, command)

		run, err := fn(ctx, id)
		if err != nil {
			return api.DomainError(err)
		}

		cfg.Log.Info(ctx, "Operator command applied", "command", command, "robot_id", id, "mission_run_id", run.ID)
		return api.ToMissionRun(run)
	}
}

func queue(cfg Config, command string, fn func(context.Context, string) error) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id := web.Param(r, "id")
		cfg.Metrics.IncOperatorCommands(ctx, command)

		if err := fn(ctx, id); err != nil {
			return api.DomainError(err)
		}

		cfg.Log.Info(ctx, "Operator command applied", "command", command, "robot_id", id)
		return nil
	}
}

// returnHomeResponse reports the queued return-to-home run, or that one
// was already queued.
type returnHomeResponse struct {
	AlreadyScheduled bool            `json:"already_scheduled"`
	MissionRun       *api.MissionRun `json:"mission_run,omitempty"`
}

// Encode implements the web.Encoder interface.
func (rr returnHomeResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rr)
	return data, "application/json", err
}

// HTTPStatus implements the httpStatus interface to set the response status code.
func (rr returnHomeResponse) HTTPStatus() int {
	if rr.AlreadyScheduled {
		return http.StatusOK
	}
	return http.StatusCreated
}

func returnHome(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id := web.Param(r, "id")
		cfg.Metrics.IncOperatorCommands(ctx, "return-home")

		run, err := cfg.Scheduler.ScheduleReturnToHomeMissionRunIfNotAlreadyScheduled(ctx, id)
		if err != nil {
			return api.DomainError(err)
		}
		if run == nil {
			return returnHomeResponse{AlreadyScheduled: true}
		}

		view := api.ToMissionRun(run)
		return returnHomeResponse{MissionRun: &view}
	}
}
