package mission

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InspectionType is the sensor action performed at a task.
type InspectionType string

const (
	InspectionTypeImage          InspectionType = "IMAGE"
	InspectionTypeThermalImage   InspectionType = "THERMAL_IMAGE"
	InspectionTypeVideo          InspectionType = "VIDEO"
	InspectionTypeThermalVideo   InspectionType = "THERMAL_VIDEO"
	InspectionTypeAudio          InspectionType = "AUDIO"
	InspectionTypeCO2Measurement InspectionType = "CO2_MEASUREMENT"
	InspectionTypeGasMeasurement InspectionType = "GAS_MEASUREMENT"
)

func (t InspectionType) String() string { return string(t) }

// InspectionStatus is the status of a single inspection. ISAR calls these steps.
type InspectionStatus string

const (
	InspectionStatusNotStarted InspectionStatus = "NOT_STARTED"
	InspectionStatusInProgress InspectionStatus = "IN_PROGRESS"
	InspectionStatusSuccessful InspectionStatus = "SUCCESSFUL"
	InspectionStatusFailed     InspectionStatus = "FAILED"
	InspectionStatusCancelled  InspectionStatus = "CANCELLED"
)

func (s InspectionStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are allowed.
func (s InspectionStatus) IsTerminal() bool {
	return s == InspectionStatusSuccessful || s == InspectionStatusFailed || s == InspectionStatusCancelled
}

// ParseInspectionStatus converts persisted or ISAR strings. Unknown values map to "".
func ParseInspectionStatus(s string) InspectionStatus {
	switch v := InspectionStatus(strings.ToUpper(strings.TrimSpace(s))); v {
	case InspectionStatusNotStarted, InspectionStatusInProgress, InspectionStatusSuccessful,
		InspectionStatusFailed, InspectionStatusCancelled:
		return v
	default:
		return ""
	}
}

// Inspection is one sensor capture within a MissionTask.
type Inspection struct {
	ID               string           `json:"id"`
	IsarInspectionID string           `json:"isar_inspection_id,omitempty"`
	Type             InspectionType   `json:"type"`
	Status           InspectionStatus `json:"status"`
	VideoDuration    *float64         `json:"video_duration,omitempty"`
	AnalysisType     string           `json:"analysis_type,omitempty"`
	StartTime        *time.Time       `json:"start_time,omitempty"`
	EndTime          *time.Time       `json:"end_time,omitempty"`
}

// NewInspection creates a NotStarted inspection of the given type.
func NewInspection(typ InspectionType) *Inspection {
	return &Inspection{
		ID:     uuid.NewString(),
		Type:   typ,
		Status: InspectionStatusNotStarted,
	}
}

// UpdateStatus applies an ISAR inspection update. Terminal inspections
// reject every change with ErrTerminalStatus.
func (i *Inspection) UpdateStatus(status InspectionStatus, now time.Time) error {
	if status == i.Status {
		return nil
	}
	if i.Status.IsTerminal() {
		return fmt.Errorf("inspection status %s to %s: %w", i.Status, status, ErrTerminalStatus)
	}
	if status == InspectionStatusNotStarted || status == "" {
		return fmt.Errorf("inspection status %s to %s: %w", i.Status, status, ErrInvalidTransition)
	}

	i.Status = status
	if status == InspectionStatusInProgress && i.StartTime == nil {
		i.StartTime = &now
	}
	if status.IsTerminal() && i.EndTime == nil {
		i.EndTime = &now
	}
	return nil
}

func (i *Inspection) clone() *Inspection {
	c := NewInspection(i.Type)
	c.AnalysisType = i.AnalysisType
	if i.VideoDuration != nil {
		d := *i.VideoDuration
		c.VideoDuration = &d
	}
	return c
}
