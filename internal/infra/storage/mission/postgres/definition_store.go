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

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/infra/storage"
)

var _ mission.DefinitionRepository = (*definitionStore)(nil)

// definitionStore implements mission.DefinitionRepository using PostgreSQL.
// The recurrence is split over two columns: the configured weekly times and
// the job handles recorded for today.
type definitionStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewDefinitionStore creates a PostgreSQL-backed mission definition repository.
func NewDefinitionStore(pool *pgxpool.Pool, tracer trace.Tracer) *definitionStore {
	return &definitionStore{db: pool, tracer: tracer}
}

const definitionColumns = `
	id, source_id, name, comment, installation_code, inspection_area_id,
	times_and_days, scheduled_jobs, last_successful_run_id, is_deprecated, created_at`

func (s *definitionStore) CreateMissionDefinition(ctx context.Context, def *mission.MissionDefinition) error {
	dbAttrs := storage.Attrs(attribute.String("mission_definition_id", def.ID))

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_mission_definition", dbAttrs, func(ctx context.Context) error {
		args, err := definitionArgs(def)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(ctx, `INSERT INTO mission_definitions (`+definitionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, args...)
		if err != nil {
			return fmt.Errorf("CreateMissionDefinition insert error: %w", err)
		}
		return nil
	})
}

func (s *definitionStore) GetMissionDefinition(ctx context.Context, id string) (*mission.MissionDefinition, error) {
	return s.getOne(ctx, "postgres.get_mission_definition",
		`SELECT `+definitionColumns+` FROM mission_definitions WHERE id = $1`,
		attribute.String("mission_definition_id", id), id)
}

// GetMissionDefinitionBySourceID ignores deprecated definitions.
func (s *definitionStore) GetMissionDefinitionBySourceID(ctx context.Context, sourceID string) (*mission.MissionDefinition, error) {
	return s.getOne(ctx, "postgres.get_mission_definition_by_source_id",
		`SELECT `+definitionColumns+` FROM mission_definitions
		 WHERE source_id = $1 AND NOT is_deprecated
		 ORDER BY created_at DESC LIMIT 1`,
		attribute.String("source_id", sourceID), sourceID)
}

func (s *definitionStore) getOne(ctx context.Context, span, query string, attr attribute.KeyValue, arg string) (*mission.MissionDefinition, error) {
	var def *mission.MissionDefinition
	err := storage.ExecuteAndTrace(ctx, s.tracer, span, storage.Attrs(attr), func(ctx context.Context) error {
		var err error
		def, err = scanDefinition(s.db.QueryRow(ctx, query, arg))
		if errors.Is(err, pgx.ErrNoRows) {
			def = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return def, nil
}

// ListAutoScheduledMissionDefinitions fails as a whole when any row can not
// be decoded, so a corrupt row never silently drops a schedule.
func (s *definitionStore) ListAutoScheduledMissionDefinitions(ctx context.Context) ([]*mission.MissionDefinition, error) {
	var defs []*mission.MissionDefinition
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_auto_scheduled_mission_definitions", storage.Attrs(),
		func(ctx context.Context) error {
			rows, err := s.db.Query(ctx, `SELECT `+definitionColumns+` FROM mission_definitions
				WHERE times_and_days IS NOT NULL AND NOT is_deprecated
				ORDER BY id COLLATE "C"`)
			if err != nil {
				return fmt.Errorf("ListAutoScheduledMissionDefinitions query error: %w", err)
			}
			defer rows.Close()

			for rows.Next() {
				def, err := scanDefinition(rows)
				if err != nil {
					return err
				}
				defs = append(defs, def)
			}
			return rows.Err()
		})
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func (s *definitionStore) UpdateMissionDefinition(ctx context.Context, def *mission.MissionDefinition) error {
	dbAttrs := storage.Attrs(attribute.String("mission_definition_id", def.ID))

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_mission_definition", dbAttrs, func(ctx context.Context) error {
		args, err := definitionArgs(def)
		if err != nil {
			return err
		}
		tag, err := s.db.Exec(ctx, `
			UPDATE mission_definitions SET
				source_id = $2,
				name = $3,
				comment = $4,
				installation_code = $5,
				inspection_area_id = $6,
				times_and_days = $7,
				scheduled_jobs = $8,
				last_successful_run_id = $9,
				is_deprecated = $10,
				created_at = $11
			WHERE id = $1`, args...)
		if err != nil {
			return fmt.Errorf("UpdateMissionDefinition update error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("mission definition %s: %w", def.ID, mission.ErrMissionDefinitionNotFound)
		}
		return nil
	})
}

func definitionArgs(def *mission.MissionDefinition) ([]any, error) {
	var timesAndDays, scheduledJobs []byte
	if f := def.AutoScheduleFrequency; f != nil {
		var err error
		if timesAndDays, err = json.Marshal(f.TimesAndDays); err != nil {
			return nil, fmt.Errorf("failed to marshal schedule of mission definition %s: %w", def.ID, err)
		}
		if scheduledJobs, err = f.MarshalScheduledJobs(); err != nil {
			return nil, fmt.Errorf("failed to marshal scheduled jobs of mission definition %s: %w", def.ID, err)
		}
	}

	return []any{
		def.ID,
		def.SourceID,
		def.Name,
		def.Comment,
		def.InstallationCode,
		def.InspectionAreaID,
		timesAndDays,
		scheduledJobs,
		def.LastSuccessfulRunID,
		def.IsDeprecated,
		def.CreatedAt,
	}, nil
}

func scanDefinition(row pgx.Row) (*mission.MissionDefinition, error) {
	var (
		def           mission.MissionDefinition
		timesAndDays  []byte
		scheduledJobs []byte
	)
	err := row.Scan(
		&def.ID,
		&def.SourceID,
		&def.Name,
		&def.Comment,
		&def.InstallationCode,
		&def.InspectionAreaID,
		&timesAndDays,
		&scheduledJobs,
		&def.LastSuccessfulRunID,
		&def.IsDeprecated,
		&def.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("mission definition scan error: %w", err)
	}

	if len(timesAndDays) > 0 {
		f := &mission.AutoScheduleFrequency{}
		if err := json.Unmarshal(timesAndDays, &f.TimesAndDays); err != nil {
			return nil, fmt.Errorf("mission definition %s schedule: %v: %w", def.ID, err, mission.ErrInvalidData)
		}
		if err := f.UnmarshalScheduledJobs(scheduledJobs); err != nil {
			return nil, fmt.Errorf("mission definition %s: %w", def.ID, err)
		}
		def.AutoScheduleFrequency = f
	}
	return &def, nil
}
