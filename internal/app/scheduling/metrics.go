package scheduling

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/equinor/flotilla-sub005/internal/infra/eventbus/kafka"
)

// SchedulerMetrics defines the metrics recorded by the scheduling services.
type SchedulerMetrics interface {
	// Messaging metrics
	kafka.BrokerMetrics

	// Dispatch metrics
	IncMissionRunsDispatched(ctx context.Context, runType string)
	IncDispatchFailures(ctx context.Context)
	IncReturnHomeRunsCreated(ctx context.Context)
	ObserveDispatchLatency(ctx context.Context, d time.Duration)

	// Auto-scheduling metrics
	IncAutoScheduleJobsScheduled(ctx context.Context)
	IncAutoScheduleFailures(ctx context.Context, reason string)

	// Status ingestion metrics
	IncTelemetryWrites(ctx context.Context, kind string)
	IncTelemetrySkipped(ctx context.Context, kind string)
	IncStatusUpdatesIgnored(ctx context.Context, reason string)
}

// schedulerMetrics implements SchedulerMetrics.
type schedulerMetrics struct {
	// Messaging metrics
	messagesPublished metric.Int64Counter
	messagesConsumed  metric.Int64Counter
	publishErrors     metric.Int64Counter
	consumeErrors     metric.Int64Counter

	// Dispatch metrics
	runsDispatched    metric.Int64Counter
	dispatchFailures  metric.Int64Counter
	returnHomeCreated metric.Int64Counter
	dispatchLatency   metric.Float64Histogram

	// Auto-scheduling metrics
	jobsScheduled        metric.Int64Counter
	autoScheduleFailures metric.Int64Counter

	// Status ingestion metrics
	telemetryWrites      metric.Int64Counter
	telemetrySkipped     metric.Int64Counter
	statusUpdatesIgnored metric.Int64Counter
}

const namespace = "flotilla"

// NewSchedulerMetrics creates the scheduling metrics on mp.
func NewSchedulerMetrics(mp metric.MeterProvider) (*schedulerMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	s := new(schedulerMetrics)
	var err error

	if s.messagesPublished, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of messages published"),
	); err != nil {
		return nil, err
	}

	if s.messagesConsumed, err = meter.Int64Counter(
		"messages_consumed_total",
		metric.WithDescription("Total number of messages consumed"),
	); err != nil {
		return nil, err
	}

	if s.publishErrors, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of publish errors"),
	); err != nil {
		return nil, err
	}

	if s.consumeErrors, err = meter.Int64Counter(
		"consume_errors_total",
		metric.WithDescription("Total number of consume errors"),
	); err != nil {
		return nil, err
	}

	if s.runsDispatched, err = meter.Int64Counter(
		"mission_runs_dispatched_total",
		metric.WithDescription("Total number of mission runs handed to a robot"),
	); err != nil {
		return nil, err
	}

	if s.dispatchFailures, err = meter.Int64Counter(
		"dispatch_failures_total",
		metric.WithDescription("Total number of mission runs the robot agent refused or could not receive"),
	); err != nil {
		return nil, err
	}

	if s.returnHomeCreated, err = meter.Int64Counter(
		"return_home_runs_created_total",
		metric.WithDescription("Total number of synthesized return-to-home runs"),
	); err != nil {
		return nil, err
	}

	if s.dispatchLatency, err = meter.Float64Histogram(
		"dispatch_duration_seconds",
		metric.WithDescription("Time spent starting a mission run on the robot agent"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if s.jobsScheduled, err = meter.Int64Counter(
		"auto_schedule_jobs_scheduled_total",
		metric.WithDescription("Total number of delayed auto-schedule jobs registered"),
	); err != nil {
		return nil, err
	}

	if s.autoScheduleFailures, err = meter.Int64Counter(
		"auto_schedule_failures_total",
		metric.WithDescription("Total number of auto-schedule attempts that did not produce a run"),
	); err != nil {
		return nil, err
	}

	if s.telemetryWrites, err = meter.Int64Counter(
		"telemetry_writes_total",
		metric.WithDescription("Total number of telemetry values persisted"),
	); err != nil {
		return nil, err
	}

	if s.telemetrySkipped, err = meter.Int64Counter(
		"telemetry_skipped_total",
		metric.WithDescription("Total number of telemetry values dropped as unchanged"),
	); err != nil {
		return nil, err
	}

	if s.statusUpdatesIgnored, err = meter.Int64Counter(
		"status_updates_ignored_total",
		metric.WithDescription("Total number of agent status updates that were not applied"),
	); err != nil {
		return nil, err
	}

	return s, nil
}

// Messaging metrics
func (m *schedulerMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *schedulerMetrics) IncMessageConsumed(ctx context.Context, topic string) {
	m.messagesConsumed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *schedulerMetrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *schedulerMetrics) IncConsumeError(ctx context.Context, topic string) {
	m.consumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

// Dispatch metrics
func (m *schedulerMetrics) IncMissionRunsDispatched(ctx context.Context, runType string) {
	m.runsDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("run_type", runType)))
}

func (m *schedulerMetrics) IncDispatchFailures(ctx context.Context) {
	m.dispatchFailures.Add(ctx, 1)
}

func (m *schedulerMetrics) IncReturnHomeRunsCreated(ctx context.Context) {
	m.returnHomeCreated.Add(ctx, 1)
}

func (m *schedulerMetrics) ObserveDispatchLatency(ctx context.Context, d time.Duration) {
	m.dispatchLatency.Record(ctx, d.Seconds())
}

// Auto-scheduling metrics
func (m *schedulerMetrics) IncAutoScheduleJobsScheduled(ctx context.Context) {
	m.jobsScheduled.Add(ctx, 1)
}

func (m *schedulerMetrics) IncAutoScheduleFailures(ctx context.Context, reason string) {
	m.autoScheduleFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Status ingestion metrics
func (m *schedulerMetrics) IncTelemetryWrites(ctx context.Context, kind string) {
	m.telemetryWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *schedulerMetrics) IncTelemetrySkipped(ctx context.Context, kind string) {
	m.telemetrySkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *schedulerMetrics) IncStatusUpdatesIgnored(ctx context.Context, reason string) {
	m.statusUpdatesIgnored.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
