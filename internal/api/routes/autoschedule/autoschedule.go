// Package autoschedule exposes the daily planning cycle to operators.
package autoschedule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/equinor/flotilla-sub005/internal/api"
	"github.com/equinor/flotilla-sub005/internal/api/errs"
	"github.com/equinor/flotilla-sub005/internal/app/scheduling"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

// Planner runs and previews planning cycles.
type Planner interface {
	PlanCycle(ctx context.Context) ([]scheduling.PlannedJob, error)
	RunCycle(ctx context.Context) (*scheduling.CycleReport, error)
}

// Leader tells whether this replica owns the planning cycle.
type Leader interface {
	IsLeader() bool
}

// Config contains the dependencies needed by the auto schedule handlers.
type Config struct {
	Log     *logger.Logger
	Planner Planner
	Leader  Leader
	Metrics api.APIMetrics
}

// Routes binds all the auto schedule endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFunc(http.MethodGet, version, "/auto-schedule/plan", plan(cfg))
	app.HandlerFunc(http.MethodPost, version, "/auto-schedule/run", run(cfg))
}

// planResponse lists the jobs a cycle started now would register.
type planResponse struct {
	Jobs []scheduling.PlannedJob `json:"jobs"`
}

// Encode implements the web.Encoder interface.
func (pr planResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(pr)
	return data, "application/json", err
}

func plan(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		jobs, err := cfg.Planner.PlanCycle(ctx)
		if err != nil {
			return api.DomainError(err)
		}
		if jobs == nil {
			jobs = []scheduling.PlannedJob{}
		}
		return planResponse{Jobs: jobs}
	}
}

// runResponse is the report of a cycle started by an operator.
type runResponse struct {
	*scheduling.CycleReport
}

// Encode implements the web.Encoder interface.
func (rr runResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rr.CycleReport)
	return data, "application/json", err
}

// run replaces today's jobs. Only the leader may do it, jobs registered by
// a follower would fire alongside the leader's.
func run(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		cfg.Metrics.IncOperatorCommands(ctx, "auto-schedule")

		if cfg.Leader != nil && !cfg.Leader.IsLeader() {
			return errs.New(errs.FailedPrecondition, errors.New("this replica does not lead the auto scheduler, retry against the leader"))
		}

		report, err := cfg.Planner.RunCycle(ctx)
		if err != nil {
			return api.DomainError(err)
		}
		if report.Scheduled == nil {
			report.Scheduled = []scheduling.PlannedJob{}
		}

		cfg.Log.Info(ctx, "Auto schedule cycle run by operator", "scheduled", len(report.Scheduled))
		return runResponse{CycleReport: report}
	}
}
