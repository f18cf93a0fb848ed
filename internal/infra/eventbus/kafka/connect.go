package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/pkg/common/logger"
)

// ConnectWithRetry dials Kafka with exponential backoff, starting at five
// seconds and giving up after five minutes or when ctx ends.
func ConnectWithRetry(
	ctx context.Context,
	cfg *Config,
	logger *logger.Logger,
	metrics BrokerMetrics,
	tracer trace.Tracer,
) (*EventBus, error) {
	var bus *EventBus

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	attempt := 0
	operation := func() error {
		attempt++
		var err error
		bus, err = NewEventBusFromConfig(cfg, logger, metrics, tracer)
		if err != nil {
			logger.Warn(ctx, "Failed to connect to Kafka, will retry", "attempt", attempt, "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return bus, nil
}
