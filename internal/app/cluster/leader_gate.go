package cluster

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/equinor/flotilla-sub005/pkg/common/logger"
)

// LeaderGate runs work only while this instance holds leadership.
type LeaderGate struct {
	changes chan bool
	leading atomic.Bool
	logger  *logger.Logger
}

// NewLeaderGate registers with c. It must be created before c is started
// so no leadership change is missed.
func NewLeaderGate(c Coordinator, logger *logger.Logger) *LeaderGate {
	g := &LeaderGate{
		changes: make(chan bool, 1),
		logger:  logger.With("component", "leader_gate"),
	}
	c.OnLeadershipChange(g.signal)
	return g
}

// signal keeps only the latest leadership state in the channel.
func (g *LeaderGate) signal(isLeader bool) {
	g.leading.Store(isLeader)
	for {
		select {
		case g.changes <- isLeader:
			return
		default:
		}
		select {
		case <-g.changes:
		default:
		}
	}
}

// IsLeader reports the last leadership state seen.
func (g *LeaderGate) IsLeader() bool { return g.leading.Load() }

// Run starts work on each gain of leadership and cancels its context on
// loss. It returns once ctx is done and work has returned.
func (g *LeaderGate) Run(ctx context.Context, work func(ctx context.Context)) {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	stop := func() {
		if cancel != nil {
			cancel()
			wg.Wait()
			cancel = nil
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case isLeader := <-g.changes:
			g.logger.Info(ctx, "Leadership change", "is_leader", isLeader)
			if !isLeader {
				stop()
				continue
			}
			if cancel != nil {
				continue
			}
			var workCtx context.Context
			workCtx, cancel = context.WithCancel(ctx)
			wg.Add(1)
			go func() {
				defer wg.Done()
				work(workCtx)
			}()
		}
	}
}
