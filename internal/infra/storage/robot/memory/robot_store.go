// Package memory provides an in-memory robot store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

var _ robot.Repository = (*RobotStore)(nil)

// RobotStore is an in-memory robot.Repository. It counts telemetry writes
// so callers can observe write amplification.
type RobotStore struct {
	mu     sync.RWMutex
	robots map[string]*robot.Robot
	writes map[string]int
}

// NewRobotStore creates an empty RobotStore.
func NewRobotStore() *RobotStore {
	return &RobotStore{
		robots: make(map[string]*robot.Robot),
		writes: make(map[string]int),
	}
}

func copyRobot(r *robot.Robot) *robot.Robot {
	c := *r
	c.Capabilities = append([]string(nil), r.Capabilities...)
	if r.PressureLevel != nil {
		p := *r.PressureLevel
		c.PressureLevel = &p
	}
	return &c
}

func (s *RobotStore) CreateRobot(_ context.Context, r *robot.Robot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.robots[r.ID]; exists {
		return fmt.Errorf("robot %s already exists", r.ID)
	}
	s.robots[r.ID] = copyRobot(r)
	return nil
}

func (s *RobotStore) GetRobot(_ context.Context, id string) (*robot.Robot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.robots[id]
	if !ok {
		return nil, nil
	}
	return copyRobot(r), nil
}

func (s *RobotStore) GetRobotByIsarID(_ context.Context, isarID string) (*robot.Robot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.robots {
		if r.IsarID == isarID {
			return copyRobot(r), nil
		}
	}
	return nil, nil
}

func (s *RobotStore) ListRobotsForInstallation(_ context.Context, installationCode string) ([]*robot.Robot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*robot.Robot
	for _, r := range s.robots {
		if r.InstallationCode == installationCode {
			out = append(out, copyRobot(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateRobot writes everything except the telemetry fields, which keep
// their stored values.
func (s *RobotStore) UpdateRobot(_ context.Context, r *robot.Robot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.robots[r.ID]
	if !ok {
		return fmt.Errorf("robot %s: %w", r.ID, robot.ErrRobotNotFound)
	}
	next := copyRobot(r)
	next.BatteryLevel = cur.BatteryLevel
	next.PressureLevel = cur.PressureLevel
	next.Pose = cur.Pose
	s.robots[r.ID] = next
	return nil
}

func (s *RobotStore) update(robotID, column string, fn func(*robot.Robot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.robots[robotID]
	if !ok {
		return fmt.Errorf("robot %s: %w", robotID, robot.ErrRobotNotFound)
	}
	fn(r)
	s.writes[column]++
	return nil
}

func (s *RobotStore) UpdateBatteryLevel(_ context.Context, robotID string, level float64) error {
	return s.update(robotID, "battery_level", func(r *robot.Robot) { r.BatteryLevel = level })
}

func (s *RobotStore) UpdatePressureLevel(_ context.Context, robotID string, level *float64) error {
	return s.update(robotID, "pressure_level", func(r *robot.Robot) {
		if level == nil {
			r.PressureLevel = nil
			return
		}
		v := *level
		r.PressureLevel = &v
	})
}

func (s *RobotStore) UpdatePose(_ context.Context, robotID string, pose shared.Pose) error {
	return s.update(robotID, "pose", func(r *robot.Robot) { r.Pose = pose })
}

func (s *RobotStore) UpdateStatus(_ context.Context, robotID string, status robot.Status) error {
	return s.update(robotID, "status", func(r *robot.Robot) { r.Status = status })
}

// Writes returns how many single-column writes hit column.
func (s *RobotStore) Writes(column string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[column]
}
