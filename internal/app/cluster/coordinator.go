// Package cluster decides which replica runs the planner. Only the leader
// plans the day's auto-scheduled missions; every replica serves the API
// and ingests robot reports.
package cluster

import "context"

// Coordinator manages leader election so that only one instance plans.
type Coordinator interface {
	// Start initiates coordination and blocks until context cancellation or error.
	Start(ctx context.Context) error
	// Stop gracefully terminates coordination.
	Stop() error
	// OnLeadershipChange registers a callback for leadership status changes.
	OnLeadershipChange(cb func(isLeader bool))
}
