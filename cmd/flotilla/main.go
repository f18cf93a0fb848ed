package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/equinor/flotilla-sub005/internal/api"
	"github.com/equinor/flotilla-sub005/internal/api/debug"
	"github.com/equinor/flotilla-sub005/internal/api/mux"
	"github.com/equinor/flotilla-sub005/internal/api/routes"
	"github.com/equinor/flotilla-sub005/internal/app/cluster"
	"github.com/equinor/flotilla-sub005/internal/app/ingest"
	"github.com/equinor/flotilla-sub005/internal/app/notification"
	"github.com/equinor/flotilla-sub005/internal/app/scheduling"
	"github.com/equinor/flotilla-sub005/internal/config"
	"github.com/equinor/flotilla-sub005/internal/config/fileloader"
	"github.com/equinor/flotilla-sub005/internal/domain/events"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/internal/infra/cluster/kubernetes"
	"github.com/equinor/flotilla-sub005/internal/infra/eventbus/kafka"
	"github.com/equinor/flotilla-sub005/internal/infra/eventbus/memory"
	"github.com/equinor/flotilla-sub005/internal/infra/isar"
	"github.com/equinor/flotilla-sub005/internal/infra/jobs"
	"github.com/equinor/flotilla-sub005/internal/infra/storage"
	missionMemory "github.com/equinor/flotilla-sub005/internal/infra/storage/mission/memory"
	missionStore "github.com/equinor/flotilla-sub005/internal/infra/storage/mission/postgres"
	robotMemory "github.com/equinor/flotilla-sub005/internal/infra/storage/robot/memory"
	robotStore "github.com/equinor/flotilla-sub005/internal/infra/storage/robot/postgres"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/common/otel"
	"github.com/equinor/flotilla-sub005/pkg/common/timeutil"
)

var build = "develop"

const serviceType = "flotilla"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	cfg, err := config.Load(os.Getenv("FLOTILLA_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("FLOTILLA-%s", hostname)
	metadata := map[string]string{
		"service":     svcName,
		"hostname":    hostname,
		"pod":         os.Getenv("POD_NAME"),
		"namespace":   os.Getenv("POD_NAMESPACE"),
		"app":         serviceType,
		"environment": cfg.Environment,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.ParseLevel(cfg.Log.Level), svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, cfg, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

// repositories groups the stores of the selected backend.
type repositories struct {
	robots      robot.Repository
	runs        mission.RunRepository
	definitions mission.DefinitionRepository
	db          *pgxpool.Pool
}

func run(ctx context.Context, log *logger.Logger, cfg *config.Config, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	location, err := cfg.Scheduler.Location()
	if err != nil {
		return fmt.Errorf("loading scheduler time zone: %w", err)
	}

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.ServiceName,
		ExporterEndpoint: cfg.Otel.Endpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/readiness": {},
			"/v1/liveness":  {},
			"/debug":        {},
		},
		Probability: cfg.Otel.SampleRatio,
		ResourceAttributes: map[string]string{
			"library.language":       "go",
			"deployment.environment": cfg.Environment,
			"k8s.pod.name":           os.Getenv("POD_NAME"),
			"k8s.namespace":          os.Getenv("POD_NAMESPACE"),
			"k8s.container.id":       hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(cfg.ServiceName)
	mp := otel.GetMeterProvider()

	// -------------------------------------------------------------------------
	// Storage
	log.Info(ctx, "startup", "status", "initializing storage", "backend", cfg.Storage.Backend)

	repos, closeStorage, err := openStorage(ctx, cfg.Storage, tracer)
	if err != nil {
		return err
	}
	defer closeStorage()

	if cfg.Storage.SeedFile != "" {
		seed, err := fileloader.NewFileLoader(cfg.Storage.SeedFile).Load(ctx)
		if err != nil {
			return fmt.Errorf("loading seed: %w", err)
		}
		res, err := seed.Apply(ctx, repos.robots, repos.definitions, repos.runs, time.Now())
		if err != nil {
			return fmt.Errorf("applying seed: %w", err)
		}
		log.Info(ctx, "startup", "status", "seed applied", "robots", res.Robots, "mission_definitions", res.Definitions)
	}

	// -------------------------------------------------------------------------
	// Initialize Event Bus
	log.Info(ctx, "startup", "status", "initializing event bus", "backend", cfg.Events.Backend)

	schedMetrics, err := scheduling.NewSchedulerMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating scheduler metrics: %w", err)
	}

	var (
		publisher  events.DomainEventPublisher
		subscriber events.DomainEventSubscriber
	)
	switch cfg.Events.Backend {
	case config.BackendKafka:
		bus, err := kafka.ConnectWithRetry(ctx, &cfg.Events.Kafka, log, schedMetrics, tracer)
		if err != nil {
			return fmt.Errorf("connecting event bus: %w", err)
		}
		defer bus.Close()
		publisher, subscriber = bus, bus
	default:
		broker := memory.NewBroker()
		publisher, subscriber = broker, broker
	}

	// -------------------------------------------------------------------------
	// Scheduling
	log.Info(ctx, "startup", "status", "initializing scheduling")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.Default()
	notifier := notification.NewNotifier(publisher, clock, log, tracer)
	agent := isar.NewClient(cfg.Isar, nil, clock, log, tracer)
	delayed := jobs.NewDelayedScheduler(ctx, int(cfg.Scheduler.DelayedJobWorkers), log, tracer)

	scheduler := scheduling.NewMissionScheduler(
		repos.runs, repos.definitions, repos.robots, agent, notifier, clock, schedMetrics, log, tracer)
	tracker := scheduling.NewStatusTracker(
		repos.runs, repos.definitions, repos.robots, scheduler, notifier, clock, schedMetrics, log, tracer)
	telemetry := scheduling.NewTelemetryService(
		repos.robots, scheduler, notifier, cfg.Scheduler.TelemetryTolerance, schedMetrics, log, tracer)
	autoScheduler := scheduling.NewAutoScheduler(
		repos.definitions, repos.robots, scheduler, delayed, notifier, clock,
		scheduling.AutoSchedulerConfig{
			Location:                 location,
			AbortCycleOnMissingTimes: cfg.Scheduler.AbortCycleOnMissingTimes,
			CycleSpec:                cfg.Scheduler.CycleSpec,
		},
		schedMetrics, log, tracer)

	reports := ingest.NewRouter(tracker, telemetry, log, tracer)
	if err := reports.Start(ctx, subscriber); err != nil {
		return fmt.Errorf("starting report ingestion: %w", err)
	}

	coordinator, err := newCoordinator(cfg.Cluster, log, tracer)
	if err != nil {
		return err
	}
	gate := cluster.NewLeaderGate(coordinator, log)

	// -------------------------------------------------------------------------
	// Start Debug Service

	if cfg.Web.DebugHost != "" {
		go func() {
			log.Info(ctx, "startup", "status", "debug router started", "host", cfg.Web.DebugHost)

			if err := http.ListenAndServe(cfg.Web.DebugHost, debug.Mux()); err != nil {
				log.Error(ctx, "shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "msg", err)
			}
		}()
	}

	// -------------------------------------------------------------------------
	// Start API Service

	log.Info(ctx, "startup", "status", "initializing API support")

	metricCollector, err := api.NewAPIMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	cfgMux := mux.Config{
		Build:        build,
		Log:          log,
		Tracer:       tracer,
		Metrics:      metricCollector,
		Robots:       repos.robots,
		Runs:         repos.runs,
		Scheduler:    scheduler,
		Planner:      autoScheduler,
		Leader:       gate,
		IsarIngestor: reports,
	}
	if repos.db != nil {
		cfgMux.DB = repos.db
	}

	webAPI := mux.WebAPI(cfgMux,
		routes.Routes(),
		mux.WithCORS(cfg.Web.CORSAllowedOrigins),
	)

	apiServer := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      webAPI,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := coordinator.Start(gctx); err != nil {
			return fmt.Errorf("coordinator: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		gate.Run(gctx, func(ctx context.Context) {
			if err := autoScheduler.Run(ctx); err != nil {
				log.Error(ctx, "auto scheduler stopped", "err", err)
			}
		})
		return nil
	})

	g.Go(func() error {
		log.Info(gctx, "startup", "status", "api router started", "host", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// -------------------------------------------------------------------------
	// Shutdown

	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutdown", "status", "shutdown started")
		defer log.Info(ctx, "shutdown", "status", "shutdown complete")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("could not stop server gracefully: %w", err))
		}
		if err := coordinator.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping coordinator: %w", err))
		}
		if err := delayed.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// openStorage returns the repositories of the configured backend and a
// function releasing them.
func openStorage(ctx context.Context, cfg config.StorageConfig, tracer trace.Tracer) (*repositories, func(), error) {
	if cfg.Backend != config.BackendPostgres {
		return &repositories{
			robots:      robotMemory.NewRobotStore(),
			runs:        missionMemory.NewRunStore(),
			definitions: missionMemory.NewDefinitionStore(),
		}, func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing db config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating db pool: %w", err)
	}

	if cfg.MigrateOnStart {
		if err := storage.RunMigrations(pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	return &repositories{
		robots:      robotStore.NewRobotStore(pool, tracer),
		runs:        missionStore.NewRunStore(pool, tracer),
		definitions: missionStore.NewDefinitionStore(pool, tracer),
		db:          pool,
	}, pool.Close, nil
}

func newCoordinator(cfg config.ClusterConfig, log *logger.Logger, tracer trace.Tracer) (cluster.Coordinator, error) {
	if cfg.Mode != config.ClusterKubernetes {
		return cluster.NewStandalone(), nil
	}

	client, err := kubernetes.NewClient(cfg.Kubernetes.KubeConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	coord, err := kubernetes.NewCoordinator(cfg.Kubernetes, client, log, tracer)
	if err != nil {
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}
	return coord, nil
}
