package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/equinor/flotilla-sub005/internal/app/scheduling"
	"github.com/equinor/flotilla-sub005/internal/infra/cluster/kubernetes"
	"github.com/equinor/flotilla-sub005/internal/infra/isar"
)

// EnvPrefix prefixes every environment override, e.g.
// FLOTILLA_STORAGE_DSN for storage.dsn.
const EnvPrefix = "FLOTILLA"

// Load reads path, when given, applies FLOTILLA_* environment overrides
// on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// the file does not mention.
func setDefaults(v *viper.Viper) {
	isarDefaults := isar.DefaultConfig()
	k8sDefaults := kubernetes.DefaultConfig()

	v.SetDefault("service_name", "flotilla")
	v.SetDefault("environment", "development")

	v.SetDefault("log.level", "info")

	v.SetDefault("web.api_host", "0.0.0.0:8000")
	v.SetDefault("web.debug_host", "0.0.0.0:3010")
	v.SetDefault("web.read_timeout", "5s")
	v.SetDefault("web.write_timeout", "10s")
	v.SetDefault("web.idle_timeout", "120s")
	v.SetDefault("web.shutdown_timeout", "20s")
	v.SetDefault("web.cors_allowed_origins", []string{"*"})

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_conns", 0)
	v.SetDefault("storage.migrate_on_start", true)
	v.SetDefault("storage.seed_file", "")

	v.SetDefault("events.backend", BackendMemory)
	v.SetDefault("events.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("events.kafka.notification_topic", "flotilla.notifications")
	v.SetDefault("events.kafka.telemetry_topic", "isar.telemetry")
	v.SetDefault("events.kafka.group_id", "flotilla")
	v.SetDefault("events.kafka.client_id", "flotilla")

	v.SetDefault("isar.timeout", isarDefaults.Timeout)
	v.SetDefault("isar.requests_per_second", isarDefaults.RequestsPerSecond)
	v.SetDefault("isar.burst", isarDefaults.Burst)
	v.SetDefault("isar.control_retries", isarDefaults.ControlRetries)

	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.cycle_spec", scheduling.DailyCycleSpec)
	v.SetDefault("scheduler.abort_cycle_on_missing_times", false)
	v.SetDefault("scheduler.delayed_job_workers", 8)
	v.SetDefault("scheduler.telemetry_tolerance", scheduling.DefaultTelemetryTolerance)

	v.SetDefault("cluster.mode", ClusterStandalone)
	v.SetDefault("cluster.kubernetes.namespace", k8sDefaults.Namespace)
	v.SetDefault("cluster.kubernetes.lease_name", k8sDefaults.LeaseName)
	v.SetDefault("cluster.kubernetes.identity", "")
	v.SetDefault("cluster.kubernetes.kubeconfig", "")
	v.SetDefault("cluster.kubernetes.lease_duration", k8sDefaults.LeaseDuration)
	v.SetDefault("cluster.kubernetes.renew_deadline", k8sDefaults.RenewDeadline)
	v.SetDefault("cluster.kubernetes.retry_period", k8sDefaults.RetryPeriod)

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.sample_ratio", 1.0)
}

// Validate checks struct tags, then the settings only meaningful for the
// selected backends.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructExcept(cfg, "Events.Kafka", "Cluster.Kubernetes"); err != nil {
		return err
	}

	var errs []error
	if cfg.Events.Backend == BackendKafka {
		if err := validate.Struct(cfg.Events.Kafka); err != nil {
			errs = append(errs, fmt.Errorf("events.kafka: %w", err))
		}
	}
	if cfg.Cluster.Mode == ClusterKubernetes {
		if err := validate.Struct(cfg.Cluster.Kubernetes); err != nil {
			errs = append(errs, fmt.Errorf("cluster.kubernetes: %w", err))
		}
	}
	if _, err := cfg.Scheduler.Location(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
	}
	return errors.Join(errs...)
}
