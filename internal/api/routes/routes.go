// Package routes binds every route group of the service.
package routes

import (
	"github.com/equinor/flotilla-sub005/internal/api/mux"
	"github.com/equinor/flotilla-sub005/internal/api/routes/autoschedule"
	"github.com/equinor/flotilla-sub005/internal/api/routes/emergency"
	"github.com/equinor/flotilla-sub005/internal/api/routes/health"
	"github.com/equinor/flotilla-sub005/internal/api/routes/isar"
	"github.com/equinor/flotilla-sub005/internal/api/routes/missions"
	"github.com/equinor/flotilla-sub005/internal/api/routes/robots"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

// Routes constructs an add value which provides the implementation of
// RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

// Add implements the RouteAdder interface.
func (add) Add(app *web.App, cfg mux.Config) {
	health.Routes(app, health.Config{
		Build: cfg.Build,
		Log:   cfg.Log,
		DB:    cfg.DB,
	})

	robots.Routes(app, robots.Config{
		Log:       cfg.Log,
		Robots:    cfg.Robots,
		Scheduler: cfg.Scheduler,
		Metrics:   cfg.Metrics,
	})

	missions.Routes(app, missions.Config{
		Log:       cfg.Log,
		Runs:      cfg.Runs,
		Scheduler: cfg.Scheduler,
		Metrics:   cfg.Metrics,
	})

	emergency.Routes(app, emergency.Config{
		Log:      cfg.Log,
		Lockdown: cfg.Scheduler,
		Metrics:  cfg.Metrics,
	})

	autoschedule.Routes(app, autoschedule.Config{
		Log:     cfg.Log,
		Planner: cfg.Planner,
		Leader:  cfg.Leader,
		Metrics: cfg.Metrics,
	})

	isar.Routes(app, isar.Config{
		Log:      cfg.Log,
		Ingestor: cfg.IsarIngestor,
		Metrics:  cfg.Metrics,
	})
}
