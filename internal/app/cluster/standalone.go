package cluster

import (
	"context"
	"sync"
)

var _ Coordinator = (*Standalone)(nil)

// Standalone is the coordinator of a single-replica deployment. It leads
// from Start until its context ends.
type Standalone struct {
	mu sync.Mutex
	cb func(isLeader bool)
}

// NewStandalone creates a Standalone coordinator.
func NewStandalone() *Standalone { return &Standalone{} }

func (s *Standalone) Start(ctx context.Context) error {
	s.notify(true)
	<-ctx.Done()
	s.notify(false)
	return nil
}

func (s *Standalone) Stop() error { return nil }

func (s *Standalone) OnLeadershipChange(cb func(isLeader bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

func (s *Standalone) notify(isLeader bool) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(isLeader)
	}
}
