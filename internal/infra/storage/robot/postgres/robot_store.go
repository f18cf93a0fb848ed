// Package postgres persists robots in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
	"github.com/equinor/flotilla-sub005/internal/infra/storage"
)

var _ robot.Repository = (*robotStore)(nil)

// robotStore implements robot.Repository using PostgreSQL.
type robotStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewRobotStore creates a PostgreSQL-backed robot repository with tracing.
func NewRobotStore(pool *pgxpool.Pool, tracer trace.Tracer) *robotStore {
	return &robotStore{db: pool, tracer: tracer}
}

const robotColumns = `
	id, name, isar_id, isar_uri, installation_code, current_inspection_area_id,
	model, capabilities, status, enabled, mission_queue_frozen, current_mission_id,
	battery_level, pressure_level, pose, home, updated_at`

func (s *robotStore) CreateRobot(ctx context.Context, r *robot.Robot) error {
	dbAttrs := storage.Attrs(
		attribute.String("robot_id", r.ID),
		attribute.String("isar_id", r.IsarID),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_robot", dbAttrs, func(ctx context.Context) error {
		model, err := json.Marshal(r.Model)
		if err != nil {
			return fmt.Errorf("failed to marshal model of robot %s: %w", r.ID, err)
		}
		pose, err := json.Marshal(r.Pose)
		if err != nil {
			return fmt.Errorf("failed to marshal pose of robot %s: %w", r.ID, err)
		}
		home, err := json.Marshal(r.Home)
		if err != nil {
			return fmt.Errorf("failed to marshal home of robot %s: %w", r.ID, err)
		}
		capabilities := r.Capabilities
		if capabilities == nil {
			capabilities = []string{}
		}

		_, err = s.db.Exec(ctx, `INSERT INTO robots (`+robotColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())`,
			r.ID, r.Name, r.IsarID, r.IsarURI, r.InstallationCode, r.CurrentInspectionAreaID,
			model, capabilities, r.Status.String(), r.Enabled, r.MissionQueueFrozen, r.CurrentMissionID,
			r.BatteryLevel, r.PressureLevel, pose, home)
		if err != nil {
			return fmt.Errorf("CreateRobot insert error: %w", err)
		}
		return nil
	})
}

func (s *robotStore) GetRobot(ctx context.Context, id string) (*robot.Robot, error) {
	return s.getOne(ctx, "postgres.get_robot",
		`SELECT `+robotColumns+` FROM robots WHERE id = $1`,
		attribute.String("robot_id", id), id)
}

func (s *robotStore) GetRobotByIsarID(ctx context.Context, isarID string) (*robot.Robot, error) {
	return s.getOne(ctx, "postgres.get_robot_by_isar_id",
		`SELECT `+robotColumns+` FROM robots WHERE isar_id = $1`,
		attribute.String("isar_id", isarID), isarID)
}

func (s *robotStore) getOne(ctx context.Context, span, query string, attr attribute.KeyValue, arg string) (*robot.Robot, error) {
	var r *robot.Robot
	err := storage.ExecuteAndTrace(ctx, s.tracer, span, storage.Attrs(attr), func(ctx context.Context) error {
		var err error
		r, err = scanRobot(s.db.QueryRow(ctx, query, arg))
		if errors.Is(err, pgx.ErrNoRows) {
			r = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *robotStore) ListRobotsForInstallation(ctx context.Context, installationCode string) ([]*robot.Robot, error) {
	dbAttrs := storage.Attrs(attribute.String("installation_code", installationCode))

	var robots []*robot.Robot
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_robots_for_installation", dbAttrs, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `SELECT `+robotColumns+` FROM robots
			WHERE installation_code = $1 ORDER BY id COLLATE "C"`, installationCode)
		if err != nil {
			return fmt.Errorf("ListRobotsForInstallation query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRobot(rows)
			if err != nil {
				return err
			}
			robots = append(robots, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return robots, nil
}

// UpdateRobot leaves battery, pressure and pose alone. Those columns belong
// to the telemetry writers.
func (s *robotStore) UpdateRobot(ctx context.Context, r *robot.Robot) error {
	dbAttrs := storage.Attrs(
		attribute.String("robot_id", r.ID),
		attribute.String("status", r.Status.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_robot", dbAttrs, func(ctx context.Context) error {
		model, err := json.Marshal(r.Model)
		if err != nil {
			return fmt.Errorf("failed to marshal model of robot %s: %w", r.ID, err)
		}
		home, err := json.Marshal(r.Home)
		if err != nil {
			return fmt.Errorf("failed to marshal home of robot %s: %w", r.ID, err)
		}
		capabilities := r.Capabilities
		if capabilities == nil {
			capabilities = []string{}
		}

		tag, err := s.db.Exec(ctx, `
			UPDATE robots SET
				name = $2,
				isar_id = $3,
				isar_uri = $4,
				installation_code = $5,
				current_inspection_area_id = $6,
				model = $7,
				capabilities = $8,
				status = $9,
				enabled = $10,
				mission_queue_frozen = $11,
				current_mission_id = $12,
				home = $13,
				updated_at = NOW()
			WHERE id = $1`,
			r.ID, r.Name, r.IsarID, r.IsarURI, r.InstallationCode, r.CurrentInspectionAreaID,
			model, capabilities, r.Status.String(), r.Enabled, r.MissionQueueFrozen, r.CurrentMissionID, home)
		if err != nil {
			return fmt.Errorf("UpdateRobot update error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("robot %s: %w", r.ID, robot.ErrRobotNotFound)
		}
		return nil
	})
}

func (s *robotStore) UpdateBatteryLevel(ctx context.Context, robotID string, level float64) error {
	return s.updateColumn(ctx, "postgres.update_robot_battery_level", "battery_level", robotID, level)
}

func (s *robotStore) UpdatePressureLevel(ctx context.Context, robotID string, level *float64) error {
	return s.updateColumn(ctx, "postgres.update_robot_pressure_level", "pressure_level", robotID, level)
}

func (s *robotStore) UpdatePose(ctx context.Context, robotID string, pose shared.Pose) error {
	b, err := json.Marshal(pose)
	if err != nil {
		return fmt.Errorf("failed to marshal pose of robot %s: %w", robotID, err)
	}
	return s.updateColumn(ctx, "postgres.update_robot_pose", "pose", robotID, b)
}

func (s *robotStore) UpdateStatus(ctx context.Context, robotID string, status robot.Status) error {
	return s.updateColumn(ctx, "postgres.update_robot_status", "status", robotID, status.String())
}

// updateColumn writes one column. column is always a constant from this file.
func (s *robotStore) updateColumn(ctx context.Context, span, column, robotID string, value any) error {
	dbAttrs := storage.Attrs(
		attribute.String("robot_id", robotID),
		attribute.String("column", column),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, span, dbAttrs, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx,
			`UPDATE robots SET `+column+` = $2, updated_at = NOW() WHERE id = $1`, robotID, value)
		if err != nil {
			return fmt.Errorf("update robot %s error: %w", column, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("robot %s: %w", robotID, robot.ErrRobotNotFound)
		}
		return nil
	})
}

func scanRobot(row pgx.Row) (*robot.Robot, error) {
	var (
		r      robot.Robot
		model  []byte
		status string
		pose   []byte
		home   []byte
	)
	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.IsarID,
		&r.IsarURI,
		&r.InstallationCode,
		&r.CurrentInspectionAreaID,
		&model,
		&r.Capabilities,
		&status,
		&r.Enabled,
		&r.MissionQueueFrozen,
		&r.CurrentMissionID,
		&r.BatteryLevel,
		&r.PressureLevel,
		&pose,
		&home,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("robot scan error: %w", err)
	}

	if err := json.Unmarshal(model, &r.Model); err != nil {
		return nil, fmt.Errorf("robot %s model: %w", r.ID, err)
	}
	if err := json.Unmarshal(pose, &r.Pose); err != nil {
		return nil, fmt.Errorf("robot %s pose: %w", r.ID, err)
	}
	if err := json.Unmarshal(home, &r.Home); err != nil {
		return nil, fmt.Errorf("robot %s home: %w", r.ID, err)
	}
	r.Status = robot.ParseStatus(status)
	if r.Status == "" {
		return nil, fmt.Errorf("robot %s has unknown status %q", r.ID, status)
	}
	return &r, nil
}
