// Package kubernetes elects the planning replica with a Kubernetes lease.
package kubernetes

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/equinor/flotilla-sub005/internal/app/cluster"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
)

var _ cluster.Coordinator = (*Coordinator)(nil)

// Coordinator holds a lease while this replica leads. Losing the lease
// reports the loss and then campaigns again until Start's context ends.
type Coordinator struct {
	identity string
	election leaderelection.LeaderElectionConfig

	mu                 sync.Mutex
	leadershipChangeCB func(isLeader bool)
	isLeader           atomic.Bool

	logger *logger.Logger
	tracer trace.Tracer
}

// NewCoordinator builds a lease-based coordinator over client.
func NewCoordinator(cfg Config, client kubernetes.Interface, logger *logger.Logger, tracer trace.Tracer) (*Coordinator, error) {
	_, span := tracer.Start(context.Background(), "kubernetes_coordinator.new",
		trace.WithAttributes(
			attribute.String("namespace", cfg.Namespace),
			attribute.String("lease_name", cfg.LeaseName),
		),
	)
	defer span.End()

	identity := cfg.Identity
	if identity == "" {
		host, err := os.Hostname()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to resolve identity")
			return nil, fmt.Errorf("resolving leader election identity: %w", err)
		}
		identity = host
	}

	c := &Coordinator{
		identity: identity,
		logger: logger.With(
			"component", "kubernetes_coordinator",
			"namespace", cfg.Namespace,
			"lease_name", cfg.LeaseName,
			"identity", identity,
		),
		tracer: tracer,
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      cfg.LeaseName,
			Namespace: cfg.Namespace,
		},
		Client: client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: identity,
		},
	}

	c.election = leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   cfg.LeaseDuration,
		RenewDeadline:   cfg.RenewDeadline,
		RetryPeriod:     cfg.RetryPeriod,
		ReleaseOnCancel: true,
		Name:            cfg.LeaseName,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: c.onStartedLeading,
			OnStoppedLeading: c.onStoppedLeading,
		},
	}

	// Validates the timings up front instead of on the first Start.
	if _, err := leaderelection.NewLeaderElector(c.election); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid leader election config")
		return nil, fmt.Errorf("creating leader elector: %w", err)
	}
	span.AddEvent("leader_elector_configured")

	return c, nil
}

// Start campaigns for the lease until ctx is done.
func (c *Coordinator) Start(ctx context.Context) error {
	c.logger.Info(ctx, "Starting leader election")

	for {
		elector, err := leaderelection.NewLeaderElector(c.election)
		if err != nil {
			return fmt.Errorf("creating leader elector: %w", err)
		}
		elector.Run(ctx)

		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn(ctx, "Leader election round ended, campaigning again")
	}
}

// Stop is a no-op; cancelling Start's context releases the lease.
func (c *Coordinator) Stop() error {
	c.logger.Info(context.Background(), "Stopping leader elector")
	return nil
}

// OnLeadershipChange registers a callback that will be invoked when this instance
// gains or loses leadership.
func (c *Coordinator) OnLeadershipChange(cb func(isLeader bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leadershipChangeCB = cb
}

// IsLeader reports whether this replica currently holds the lease.
func (c *Coordinator) IsLeader() bool { return c.isLeader.Load() }

func (c *Coordinator) notify(isLeader bool) {
	c.isLeader.Store(isLeader)
	c.mu.Lock()
	cb := c.leadershipChangeCB
	c.mu.Unlock()
	if cb != nil {
		cb(isLeader)
	}
}

func (c *Coordinator) onStartedLeading(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "kubernetes_coordinator.on_started_leading",
		trace.WithAttributes(attribute.String("identity", c.identity)))
	defer span.End()

	c.logger.Info(ctx, "Became leader")
	c.notify(true)
}

func (c *Coordinator) onStoppedLeading() {
	ctx, span := c.tracer.Start(context.Background(), "kubernetes_coordinator.on_stopped_leading",
		trace.WithAttributes(attribute.String("identity", c.identity)))
	defer span.End()

	c.logger.Info(ctx, "Lost leadership")
	c.notify(false)
}
