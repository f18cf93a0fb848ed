package config

import (
	"context"
	"fmt"
	"time"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

// SeedLoader provides seed data. It abstracts the source so that files and
// tests can feed the same startup path.
type SeedLoader interface {
	Load(ctx context.Context) (*Seed, error)
}

// Seed is the fleet a deployment starts with: robots, and mission
// definitions with the template run their recurring schedule copies.
type Seed struct {
	Robots             []RobotSeed      `yaml:"robots"`
	MissionDefinitions []DefinitionSeed `yaml:"mission_definitions"`
}

type RobotSeed struct {
	Name             string      `yaml:"name"`
	IsarID           string      `yaml:"isar_id"`
	IsarURI          string      `yaml:"isar_uri"`
	InstallationCode string      `yaml:"installation_code"`
	InspectionAreaID string      `yaml:"inspection_area_id"`
	Capabilities     []string    `yaml:"capabilities"`
	Home             shared.Pose `yaml:"home"`
	Model            ModelSeed   `yaml:"model"`
}

type ModelSeed struct {
	Name                          string  `yaml:"name"`
	BatteryWarningThreshold       float64 `yaml:"battery_warning_threshold"`
	LowerPressureWarningThreshold float64 `yaml:"lower_pressure_warning_threshold"`
	UpperPressureWarningThreshold float64 `yaml:"upper_pressure_warning_threshold"`
}

type DefinitionSeed struct {
	SourceID         string               `yaml:"source_id"`
	Name             string               `yaml:"name"`
	Comment          string               `yaml:"comment"`
	InstallationCode string               `yaml:"installation_code"`
	InspectionAreaID string               `yaml:"inspection_area_id"`
	Schedule         []mission.TimeAndDay `yaml:"schedule"`
	Tasks            []TaskSeed           `yaml:"tasks"`
}

type TaskSeed struct {
	TagID       string                   `yaml:"tag_id"`
	Pose        shared.Pose              `yaml:"pose"`
	Target      shared.Position          `yaml:"target"`
	Inspections []mission.InspectionType `yaml:"inspections"`
}

// SeedResult counts what Apply created.
type SeedResult struct {
	Robots      int
	Definitions int
}

// Apply creates the seeded robots and definitions that do not exist yet.
// Robots are matched by ISAR id and definitions by source id, so applying
// the same seed twice is a no-op.
func (s *Seed) Apply(
	ctx context.Context,
	robots robot.Repository,
	definitions mission.DefinitionRepository,
	runs mission.RunRepository,
	now time.Time,
) (SeedResult, error) {
	var res SeedResult

	for _, rs := range s.Robots {
		existing, err := robots.GetRobotByIsarID(ctx, rs.IsarID)
		if err != nil {
			return res, fmt.Errorf("failed to look up robot (isar_id: %s): %w", rs.IsarID, err)
		}
		if existing != nil {
			continue
		}

		rb := robot.New(rs.Name, rs.IsarID, rs.IsarURI, rs.InstallationCode, robot.Model(rs.Model))
		rb.CurrentInspectionAreaID = rs.InspectionAreaID
		rb.Capabilities = rs.Capabilities
		if rs.Home != (shared.Pose{}) {
			rb.Home = rs.Home
		}
		if err := robots.CreateRobot(ctx, rb); err != nil {
			return res, fmt.Errorf("failed to create robot (isar_id: %s): %w", rs.IsarID, err)
		}
		res.Robots++
	}

	for _, ds := range s.MissionDefinitions {
		existing, err := definitions.GetMissionDefinitionBySourceID(ctx, ds.SourceID)
		if err != nil {
			return res, fmt.Errorf("failed to look up mission definition (source_id: %s): %w", ds.SourceID, err)
		}
		if existing != nil {
			continue
		}
		if err := applyDefinition(ctx, ds, definitions, runs, now); err != nil {
			return res, err
		}
		res.Definitions++
	}
	return res, nil
}

// applyDefinition stores the definition with a successful template run
// made from the seeded tasks.
func applyDefinition(
	ctx context.Context,
	ds DefinitionSeed,
	definitions mission.DefinitionRepository,
	runs mission.RunRepository,
	now time.Time,
) error {
	def := mission.NewMissionDefinition(ds.SourceID, ds.Name, ds.InstallationCode, ds.InspectionAreaID, now)
	def.Comment = ds.Comment
	if len(ds.Schedule) > 0 {
		freq, err := mission.NewAutoScheduleFrequency(ds.Schedule)
		if err != nil {
			return fmt.Errorf("mission definition %s schedule: %w", ds.SourceID, err)
		}
		def.SetAutoSchedule(freq)
	}

	if len(ds.Tasks) > 0 {
		tasks := make([]*mission.MissionTask, 0, len(ds.Tasks))
		for _, ts := range ds.Tasks {
			inspections := make([]*mission.Inspection, 0, len(ts.Inspections))
			for _, typ := range ts.Inspections {
				inspections = append(inspections, mission.NewInspection(typ))
			}
			tasks = append(tasks, mission.NewInspectionTask(ts.TagID, ts.Pose, ts.Target, inspections...))
		}

		template := mission.NewMissionRun(ds.Name, ds.InstallationCode, "", tasks, now,
			mission.WithMissionDefinition(def.ID),
			mission.WithInspectionArea(ds.InspectionAreaID),
		)
		template.Status = mission.MissionStatusSuccessful
		if err := runs.CreateMissionRun(ctx, template); err != nil {
			return fmt.Errorf("failed to create template run for mission definition %s: %w", ds.SourceID, err)
		}
		def.SetLastSuccessfulRun(template.ID)
	}

	if err := definitions.CreateMissionDefinition(ctx, def); err != nil {
		return fmt.Errorf("failed to create mission definition %s: %w", ds.SourceID, err)
	}
	return nil
}
