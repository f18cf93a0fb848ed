package robot

import (
	"context"

	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

// Repository persists robots. Lookups of unknown ids return (nil, nil).
type Repository interface {
	CreateRobot(ctx context.Context, r *Robot) error
	GetRobot(ctx context.Context, id string) (*Robot, error)
	GetRobotByIsarID(ctx context.Context, isarID string) (*Robot, error)
	// ListRobotsForInstallation returns the installation's robots ordered by id.
	ListRobotsForInstallation(ctx context.Context, installationCode string) ([]*Robot, error)
	// UpdateRobot writes every field except the telemetry columns below.
	// Unknown robots yield ErrRobotNotFound.
	UpdateRobot(ctx context.Context, r *Robot) error

	// Telemetry writes touch a single column so concurrent telemetry and
	// scheduling writes do not clobber each other.
	UpdateBatteryLevel(ctx context.Context, robotID string, level float64) error
	UpdatePressureLevel(ctx context.Context, robotID string, level *float64) error
	UpdatePose(ctx context.Context, robotID string, pose shared.Pose) error
	UpdateStatus(ctx context.Context, robotID string, status Status) error
}
