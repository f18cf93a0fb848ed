// Package api holds what the HTTP surface shares across route groups.
package api

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const namespace = "flotilla_api"

// APIMetrics defines metrics operations needed by the HTTP API.
type APIMetrics interface {
	IncRequestsTotal(ctx context.Context, method, route string, status int)
	ObserveRequestDuration(ctx context.Context, method, route string, duration time.Duration)
	IncOperatorCommands(ctx context.Context, command string)
	IncIsarCallbacks(ctx context.Context, kind string)
}

type apiMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	operatorCommands metric.Int64Counter
	isarCallbacks    metric.Int64Counter
}

// NewAPIMetrics registers the API instruments on mp.
func NewAPIMetrics(mp metric.MeterProvider) (*apiMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(apiMetrics)
	var err error

	if m.requestsTotal, err = meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, err
	}

	if m.operatorCommands, err = meter.Int64Counter(
		"operator_commands_total",
		metric.WithDescription("Total number of operator commands received"),
	); err != nil {
		return nil, err
	}

	if m.isarCallbacks, err = meter.Int64Counter(
		"isar_callbacks_total",
		metric.WithDescription("Total number of ISAR reports received over HTTP"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *apiMetrics) IncRequestsTotal(ctx context.Context, method, route string, status int) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}

func (m *apiMetrics) ObserveRequestDuration(ctx context.Context, method, route string, duration time.Duration) {
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}

func (m *apiMetrics) IncOperatorCommands(ctx context.Context, command string) {
	m.operatorCommands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

func (m *apiMetrics) IncIsarCallbacks(ctx context.Context, kind string) {
	m.isarCallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// NoopMetrics discards everything. Used by tests.
type NoopMetrics struct{}

func (NoopMetrics) IncRequestsTotal(context.Context, string, string, int)                 {}
func (NoopMetrics) ObserveRequestDuration(context.Context, string, string, time.Duration) {}
func (NoopMetrics) IncOperatorCommands(context.Context, string)                           {}
func (NoopMetrics) IncIsarCallbacks(context.Context, string)                              {}
