// Package postgres persists mission runs and definitions in PostgreSQL.
// Tasks and inspections are owned by their run and stored with it as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
	"github.com/equinor/flotilla-sub005/internal/infra/storage"
)

var _ mission.RunRepository = (*runStore)(nil)

// runStore implements mission.RunRepository using PostgreSQL.
type runStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewRunStore creates a PostgreSQL-backed mission run repository with tracing.
func NewRunStore(pool *pgxpool.Pool, tracer trace.Tracer) *runStore {
	return &runStore{db: pool, tracer: tracer}
}

const runColumns = `
	id, name, installation_code, mission_definition_id, robot_id, inspection_area_id,
	tasks, status, status_reason, run_type, priority, isar_mission_id, map_metadata,
	estimated_duration_ms, desired_start_time, created_at, start_time, end_time`

// CreateMissionRun persists a new run with its tasks.
func (r *runStore) CreateMissionRun(ctx context.Context, run *mission.MissionRun) error {
	dbAttrs := storage.Attrs(
		attribute.String("mission_run_id", run.ID),
		attribute.String("robot_id", run.RobotID),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_mission_run", dbAttrs, func(ctx context.Context) error {
		args, err := runArgs(run)
		if err != nil {
			return err
		}
		_, err = r.db.Exec(ctx, `INSERT INTO mission_runs (`+runColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			args...)
		if err != nil {
			return fmt.Errorf("CreateMissionRun insert error: %w", err)
		}
		return nil
	})
}

// GetMissionRun returns nil when the run does not exist.
func (r *runStore) GetMissionRun(ctx context.Context, id string) (*mission.MissionRun, error) {
	dbAttrs := storage.Attrs(attribute.String("mission_run_id", id))

	var run *mission.MissionRun
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_mission_run", dbAttrs, func(ctx context.Context) error {
		var err error
		run, err = scanRun(r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM mission_runs WHERE id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			run = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetMissionRunByIsarMissionID returns nil when no run carries the id.
func (r *runStore) GetMissionRunByIsarMissionID(ctx context.Context, isarMissionID string) (*mission.MissionRun, error) {
	if isarMissionID == "" {
		return nil, nil
	}
	dbAttrs := storage.Attrs(attribute.String("isar_mission_id", isarMissionID))

	var run *mission.MissionRun
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_mission_run_by_isar_id", dbAttrs, func(ctx context.Context) error {
		var err error
		run, err = scanRun(r.db.QueryRow(ctx,
			`SELECT `+runColumns+` FROM mission_runs WHERE isar_mission_id = $1 ORDER BY created_at DESC LIMIT 1`,
			isarMissionID))
		if errors.Is(err, pgx.ErrNoRows) {
			run = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListMissionRuns builds the WHERE clause from the set filter fields.
func (r *runStore) ListMissionRuns(ctx context.Context, filter mission.RunFilter) ([]*mission.MissionRun, error) {
	query, args := listRunsQuery(filter)
	dbAttrs := storage.Attrs(
		attribute.String("robot_id", filter.RobotID),
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	)

	var runs []*mission.MissionRun
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_mission_runs", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("ListMissionRuns query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("mission_runs_returned", len(runs)))
	return runs, nil
}

func listRunsQuery(f mission.RunFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.RobotID != "" {
		add("robot_id = $%d", f.RobotID)
	}
	if f.InstallationCode != "" {
		add("installation_code = $%d", f.InstallationCode)
	}
	if f.MissionDefinitionID != "" {
		add("mission_definition_id = $%d", f.MissionDefinitionID)
	}
	if f.InspectionAreaID != "" {
		add("inspection_area_id = $%d", f.InspectionAreaID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = s.String()
		}
		add("status = ANY($%d)", statuses)
	}
	if len(f.RunTypes) > 0 {
		types := make([]string, len(f.RunTypes))
		for i, t := range f.RunTypes {
			types[i] = string(t)
		}
		add("run_type = ANY($%d)", types)
	}
	if f.DesiredStartFrom != nil {
		add("desired_start_time >= $%d", *f.DesiredStartFrom)
	}
	if f.DesiredStartTo != nil {
		add("desired_start_time <= $%d", *f.DesiredStartTo)
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("created_at <= $%d", *f.CreatedTo)
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + runColumns + ` FROM mission_runs`)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	// COLLATE "C" keeps the id tie-break byte ordered, matching Go string order.
	switch f.Order {
	case mission.RunOrderNewestFirst:
		b.WriteString(` ORDER BY created_at DESC, id COLLATE "C" DESC`)
	default:
		b.WriteString(` ORDER BY priority DESC, desired_start_time ASC, created_at ASC, id COLLATE "C" ASC`)
	}

	if f.PageSize > 0 {
		args = append(args, f.PageSize, f.Page*f.PageSize)
		fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	return b.String(), args
}

// UpdateMissionRun rewrites the run and its tasks.
func (r *runStore) UpdateMissionRun(ctx context.Context, run *mission.MissionRun) error {
	dbAttrs := storage.Attrs(
		attribute.String("mission_run_id", run.ID),
		attribute.String("status", run.Status.String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_mission_run", dbAttrs, func(ctx context.Context) error {
		args, err := runArgs(run)
		if err != nil {
			return err
		}
		tag, err := r.db.Exec(ctx, `
			UPDATE mission_runs SET
				name = $2,
				installation_code = $3,
				mission_definition_id = $4,
				robot_id = $5,
				inspection_area_id = $6,
				tasks = $7,
				status = $8,
				status_reason = $9,
				run_type = $10,
				priority = $11,
				isar_mission_id = $12,
				map_metadata = $13,
				estimated_duration_ms = $14,
				desired_start_time = $15,
				created_at = $16,
				start_time = $17,
				end_time = $18
			WHERE id = $1`, args...)
		if err != nil {
			return fmt.Errorf("UpdateMissionRun update error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("mission run %s: %w", run.ID, mission.ErrMissionRunNotFound)
		}
		return nil
	})
}

func runArgs(run *mission.MissionRun) ([]any, error) {
	tasks, err := json.Marshal(run.Tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tasks of mission run %s: %w", run.ID, err)
	}
	var mapMetadata []byte
	if run.MapMetadata != nil {
		if mapMetadata, err = json.Marshal(run.MapMetadata); err != nil {
			return nil, fmt.Errorf("failed to marshal map metadata of mission run %s: %w", run.ID, err)
		}
	}

	return []any{
		run.ID,
		run.Name,
		run.InstallationCode,
		run.MissionDefinitionID,
		run.RobotID,
		run.InspectionAreaID,
		tasks,
		run.Status.String(),
		run.StatusReason,
		string(run.RunType),
		int(run.Priority),
		run.IsarMissionID,
		mapMetadata,
		run.EstimatedDuration.Milliseconds(),
		run.DesiredStartTime,
		run.CreatedAt,
		run.StartTime,
		run.EndTime,
	}, nil
}

func scanRun(row pgx.Row) (*mission.MissionRun, error) {
	var (
		run         mission.MissionRun
		tasks       []byte
		status      string
		runType     string
		priority    int
		mapMetadata []byte
		durationMS  int64
	)
	err := row.Scan(
		&run.ID,
		&run.Name,
		&run.InstallationCode,
		&run.MissionDefinitionID,
		&run.RobotID,
		&run.InspectionAreaID,
		&tasks,
		&status,
		&run.StatusReason,
		&runType,
		&priority,
		&run.IsarMissionID,
		&mapMetadata,
		&durationMS,
		&run.DesiredStartTime,
		&run.CreatedAt,
		&run.StartTime,
		&run.EndTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("mission run scan error: %w", err)
	}

	if err := json.Unmarshal(tasks, &run.Tasks); err != nil {
		return nil, fmt.Errorf("mission run %s tasks: %v: %w", run.ID, err, mission.ErrInvalidData)
	}
	if len(mapMetadata) > 0 {
		var m shared.MapMetadata
		if err := json.Unmarshal(mapMetadata, &m); err != nil {
			return nil, fmt.Errorf("mission run %s map metadata: %v: %w", run.ID, err, mission.ErrInvalidData)
		}
		run.MapMetadata = &m
	}

	run.Status = mission.ParseMissionStatus(status)
	if run.Status == "" {
		return nil, fmt.Errorf("mission run %s status %q: %w", run.ID, status, mission.ErrInvalidData)
	}
	run.RunType = mission.RunType(runType)
	run.Priority = mission.Priority(priority)
	run.EstimatedDuration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}
