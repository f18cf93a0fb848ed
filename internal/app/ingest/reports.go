package ingest

import (
	"github.com/equinor/flotilla-sub005/internal/domain/shared"
)

// Robot agent report bodies. The same shapes arrive as Kafka payloads and
// as HTTP callback bodies. IsarID may be left empty when the transport
// carries it elsewhere (the message key or the URL).

type BatteryReport struct {
	IsarID       string  `json:"isar_id"`
	BatteryLevel float64 `json:"battery_level" validate:"gte=0,lte=100"`
}

type PressureReport struct {
	IsarID        string   `json:"isar_id"`
	PressureLevel *float64 `json:"pressure_level"`
}

type PoseReport struct {
	IsarID string      `json:"isar_id"`
	Pose   shared.Pose `json:"pose"`
}

type StatusReport struct {
	IsarID string `json:"isar_id"`
	Status string `json:"status" validate:"required"`
}

type MissionReport struct {
	IsarID    string `json:"isar_id" validate:"required"`
	MissionID string `json:"mission_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

type TaskReport struct {
	IsarID    string `json:"isar_id" validate:"required"`
	MissionID string `json:"mission_id" validate:"required"`
	TaskID    string `json:"task_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

type InspectionReport struct {
	IsarID       string `json:"isar_id" validate:"required"`
	MissionID    string `json:"mission_id" validate:"required"`
	TaskID       string `json:"task_id" validate:"required"`
	InspectionID string `json:"inspection_id" validate:"required"`
	Status       string `json:"status" validate:"required"`
}
