// Package mux provides support to bind domain level routes
// to the application mux.
package mux

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/api"
	"github.com/equinor/flotilla-sub005/internal/api/mid"
	"github.com/equinor/flotilla-sub005/internal/api/routes/autoschedule"
	"github.com/equinor/flotilla-sub005/internal/api/routes/emergency"
	"github.com/equinor/flotilla-sub005/internal/api/routes/health"
	"github.com/equinor/flotilla-sub005/internal/api/routes/isar"
	"github.com/equinor/flotilla-sub005/internal/api/routes/missions"
	"github.com/equinor/flotilla-sub005/internal/api/routes/robots"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

// Options represent optional parameters.
type Options struct {
	corsOrigin []string
}

// WithCORS provides configuration options for CORS.
func WithCORS(origins []string) func(opts *Options) {
	return func(opts *Options) {
		opts.corsOrigin = origins
	}
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build   string
	Log     *logger.Logger
	Tracer  trace.Tracer
	Metrics api.APIMetrics

	// DB is nil on the in-memory backend.
	DB           health.Pinger
	Robots       robots.RobotReader
	Runs         missions.RunReader
	Scheduler    Scheduler
	Planner      autoschedule.Planner
	Leader       autoschedule.Leader
	IsarIngestor isar.Ingestor
}

// Scheduler is everything the operator routes ask of the mission scheduler.
type Scheduler interface {
	robots.Commander
	missions.Scheduler
	emergency.Lockdown
}

// RouteAdder defines behavior that sets the routes to bind for an instance
// of the service.
type RouteAdder interface {
	Add(app *web.App, cfg Config)
}

// WebAPI constructs a http.Handler with all application routes bound.
func WebAPI(cfg Config, routeAdder RouteAdder, options ...func(opts *Options)) http.Handler {
	logger := func(ctx context.Context, msg string, args ...any) {
		cfg.Log.Info(ctx, msg, args...)
	}

	app := web.NewApp(
		logger,
		cfg.Tracer,
		mid.Otel(cfg.Tracer),
		mid.Logger(cfg.Log),
		mid.Metrics(cfg.Metrics),
		mid.Errors(cfg.Log),
		mid.Panics(),
	)

	var opts Options
	for _, option := range options {
		option(&opts)
	}

	if len(opts.corsOrigin) > 0 {
		app.EnableCORS(opts.corsOrigin)
	}

	routeAdder.Add(app, cfg)

	// Server spans are named after the request path so the sampler can
	// drop the health check routes.
	return otelhttp.NewHandler(app, "flotilla-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.URL.Path
		}),
	)
}
