package cluster

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equinor/flotilla-sub005/pkg/common/logger"
)

type manualCoordinator struct {
	cb func(bool)
}

func (m *manualCoordinator) Start(ctx context.Context) error  { <-ctx.Done(); return nil }
func (m *manualCoordinator) Stop() error                      { return nil }
func (m *manualCoordinator) OnLeadershipChange(cb func(bool)) { m.cb = cb }

func TestLeaderGate_RunsOnlyWhileLeading(t *testing.T) {
	t.Parallel()

	coord := &manualCoordinator{}
	gate := NewLeaderGate(coord, logger.Noop())
	require.NotNil(t, coord.cb)

	var (
		running atomic.Int32
		starts  atomic.Int32
	)
	work := func(ctx context.Context) {
		starts.Add(1)
		running.Add(1)
		<-ctx.Done()
		running.Add(-1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gate.Run(ctx, work)
		close(done)
	}()

	assert.False(t, gate.IsLeader())

	coord.cb(true)
	assert.Eventually(t, func() bool { return running.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, gate.IsLeader())

	coord.cb(false)
	assert.Eventually(t, func() bool { return running.Load() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, gate.IsLeader())

	coord.cb(true)
	assert.Eventually(t, func() bool { return starts.Load() == 2 && running.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, int32(0), running.Load())
}

func TestLeaderGate_RepeatedLeadershipStartsOnce(t *testing.T) {
	t.Parallel()

	coord := &manualCoordinator{}
	gate := NewLeaderGate(coord, logger.Noop())

	var starts atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gate.Run(ctx, func(ctx context.Context) {
		starts.Add(1)
		<-ctx.Done()
	})

	coord.cb(true)
	assert.Eventually(t, func() bool { return starts.Load() == 1 }, time.Second, 5*time.Millisecond)
	coord.cb(true)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), starts.Load())
}

func TestStandalone(t *testing.T) {
	t.Parallel()

	s := NewStandalone()
	changes := make(chan bool, 2)
	s.OnLeadershipChange(func(isLeader bool) { changes <- isLeader })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.True(t, <-changes)
	cancel()
	assert.False(t, <-changes)
	assert.NoError(t, <-done)
	assert.NoError(t, s.Stop())
}
