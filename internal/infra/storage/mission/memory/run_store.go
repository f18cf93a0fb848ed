// Package memory provides in-memory mission stores for tests and for
// running the service without a database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
)

var _ mission.RunRepository = (*RunStore)(nil)

// RunStore is an in-memory mission.RunRepository. Runs are copied on the
// way in and out so callers never share state with the store.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*mission.MissionRun
}

// NewRunStore creates an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*mission.MissionRun)}
}

// CreateMissionRun stores a new run.
func (s *RunStore) CreateMissionRun(_ context.Context, run *mission.MissionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("mission run %s already exists", run.ID)
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

// GetMissionRun returns the run, or nil when it does not exist.
func (s *RunStore) GetMissionRun(_ context.Context, id string) (*mission.MissionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return copyRun(r), nil
}

// GetMissionRunByIsarMissionID returns the run dispatched under isarMissionID.
func (s *RunStore) GetMissionRunByIsarMissionID(_ context.Context, isarMissionID string) (*mission.MissionRun, error) {
	if isarMissionID == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.runs {
		if r.IsarMissionID == isarMissionID {
			return copyRun(r), nil
		}
	}
	return nil, nil
}

// ListMissionRuns returns matching runs in the filter's order.
func (s *RunStore) ListMissionRuns(_ context.Context, filter mission.RunFilter) ([]*mission.MissionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*mission.MissionRun
	for _, r := range s.runs {
		if filter.Matches(r) {
			out = append(out, copyRun(r))
		}
	}
	mission.SortRuns(out, filter.Order)
	return filter.Paginate(out), nil
}

// UpdateMissionRun replaces a stored run.
func (s *RunStore) UpdateMissionRun(_ context.Context, run *mission.MissionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("mission run %s: %w", run.ID, mission.ErrMissionRunNotFound)
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

// Count returns the number of stored runs.
func (s *RunStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
