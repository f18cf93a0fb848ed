// Package isar binds the callback endpoints robot agents post their
// reports to. The bodies are the same reports the event bus carries.
package isar

import (
	"context"
	"errors"
	"net/http"

	"github.com/equinor/flotilla-sub005/internal/api"
	"github.com/equinor/flotilla-sub005/internal/api/errs"
	"github.com/equinor/flotilla-sub005/internal/app/ingest"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

// Ingestor applies robot agent reports. *ingest.Router satisfies it.
type Ingestor interface {
	Battery(ctx context.Context, isarID string, rep ingest.BatteryReport) error
	Pressure(ctx context.Context, isarID string, rep ingest.PressureReport) error
	Pose(ctx context.Context, isarID string, rep ingest.PoseReport) error
	RobotStatus(ctx context.Context, isarID string, rep ingest.StatusReport) error
	Mission(ctx context.Context, rep ingest.MissionReport) error
	Task(ctx context.Context, rep ingest.TaskReport) error
	Inspection(ctx context.Context, rep ingest.InspectionReport) error
}

var _ Ingestor = (*ingest.Router)(nil)

// Config contains the dependencies needed by the callback handlers.
type Config struct {
	Log      *logger.Logger
	Ingestor Ingestor
	Metrics  api.APIMetrics
}

// Routes binds all the robot agent callback endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFunc(http.MethodPost, version, "/isar/{isar_id}/battery", telemetry(cfg, "battery", cfg.Ingestor.Battery))
	app.HandlerFunc(http.MethodPost, version, "/isar/{isar_id}/pressure", telemetry(cfg, "pressure", cfg.Ingestor.Pressure))
	app.HandlerFunc(http.MethodPost, version, "/isar/{isar_id}/pose", telemetry(cfg, "pose", cfg.Ingestor.Pose))
	app.HandlerFunc(http.MethodPost, version, "/isar/{isar_id}/status", telemetry(cfg, "status", cfg.Ingestor.RobotStatus))
	app.HandlerFunc(http.MethodPost, version, "/isar/missions", status(cfg, "mission", cfg.Ingestor.Mission))
	app.HandlerFunc(http.MethodPost, version, "/isar/tasks", status(cfg, "task", cfg.Ingestor.Task))
	app.HandlerFunc(http.MethodPost, version, "/isar/inspections", status(cfg, "inspection", cfg.Ingestor.Inspection))
}

// telemetry handles reports addressed by the isar_id path parameter.
func telemetry[T any](cfg Config, kind string, apply func(context.Context, string, T) error) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		cfg.Metrics.IncIsarCallbacks(ctx, kind)

		rep, err := decode[T](r)
		if err != nil {
			return err
		}

		if err := apply(ctx, web.Param(r, "isar_id"), *rep); err != nil {
			return toError(err)
		}
		return nil
	}
}

// status handles mission, task and inspection reports, which carry their
// isar_id in the body.
func status[T any](cfg Config, kind string, apply func(context.Context, T) error) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		cfg.Metrics.IncIsarCallbacks(ctx, kind)

		rep, err := decode[T](r)
		if err != nil {
			return err
		}

		if err := apply(ctx, *rep); err != nil {
			return toError(err)
		}
		return nil
	}
}

func decode[T any](r *http.Request) (*T, *errs.Error) {
	var rep T
	if err := web.Decode(r, &rep); err != nil {
		return nil, errs.New(errs.InvalidArgument, err)
	}
	if err := errs.Check(rep); err != nil {
		return nil, errs.New(errs.InvalidArgument, err)
	}
	return &rep, nil
}

func toError(err error) *errs.Error {
	if errors.Is(err, ingest.ErrInvalidReport) {
		return errs.New(errs.InvalidArgument, err)
	}
	return api.DomainError(err)
}
