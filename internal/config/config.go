// Package config holds the service configuration and the seed data format.
package config

import (
	"time"

	"github.com/equinor/flotilla-sub005/internal/infra/cluster/kubernetes"
	"github.com/equinor/flotilla-sub005/internal/infra/eventbus/kafka"
	"github.com/equinor/flotilla-sub005/internal/infra/isar"
)

// Backend names.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendKafka      = "kafka"
	ClusterStandalone = "standalone"
	ClusterKubernetes = "kubernetes"
)

// Config is the complete service configuration.
type Config struct {
	ServiceName string `mapstructure:"service_name" validate:"required"`
	Environment string `mapstructure:"environment"`

	Log       LogConfig       `mapstructure:"log"`
	Web       WebConfig       `mapstructure:"web"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Events    EventsConfig    `mapstructure:"events"`
	Isar      isar.Config     `mapstructure:"isar"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Otel      OtelConfig      `mapstructure:"otel"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type WebConfig struct {
	APIHost         string        `mapstructure:"api_host" validate:"required,hostname_port"`
	DebugHost       string        `mapstructure:"debug_host" validate:"omitempty,hostname_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`

	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory postgres"`
	// DSN is required for the postgres backend.
	DSN string `mapstructure:"dsn" validate:"required_if=Backend postgres"`
	// MaxConns bounds the pgx pool. Zero keeps the pgx default.
	MaxConns int32 `mapstructure:"max_conns" validate:"gte=0"`
	// MigrateOnStart applies pending migrations before serving.
	MigrateOnStart bool `mapstructure:"migrate_on_start"`
	// SeedFile is an optional YAML file of robots and mission definitions
	// loaded at startup.
	SeedFile string `mapstructure:"seed_file"`
}

type EventsConfig struct {
	Backend string       `mapstructure:"backend" validate:"oneof=memory kafka"`
	Kafka   kafka.Config `mapstructure:"kafka"`
}

type SchedulerConfig struct {
	// Timezone is the IANA zone recurring schedules are expressed in.
	Timezone string `mapstructure:"timezone" validate:"required"`
	// CycleSpec is the cron expression of the daily planning cycle.
	CycleSpec string `mapstructure:"cycle_spec" validate:"required"`
	// AbortCycleOnMissingTimes stops a planning cycle at the first
	// definition that unexpectedly has no times left today.
	AbortCycleOnMissingTimes bool `mapstructure:"abort_cycle_on_missing_times"`
	// DelayedJobWorkers bounds concurrently running delayed jobs.
	DelayedJobWorkers int64 `mapstructure:"delayed_job_workers" validate:"gte=1"`
	// TelemetryTolerance is the change under which telemetry is not written.
	TelemetryTolerance float64 `mapstructure:"telemetry_tolerance" validate:"gt=0"`
}

type ClusterConfig struct {
	Mode       string            `mapstructure:"mode" validate:"oneof=standalone kubernetes"`
	Kubernetes kubernetes.Config `mapstructure:"kubernetes"`
}

type OtelConfig struct {
	// Endpoint is the OTLP gRPC collector. Empty disables export.
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// Location resolves the scheduler time zone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
