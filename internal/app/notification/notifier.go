// Package notification turns scheduling outcomes into operator-facing
// notifications published on the event bus.
package notification

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/domain/events"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/common/timeutil"
)

// Notifier is a fire-and-forget notification sink. Publishing failures are
// logged and never returned, so alerting can not break scheduling.
type Notifier struct {
	publisher events.DomainEventPublisher
	clock     timeutil.Provider

	logger *logger.Logger
	tracer trace.Tracer
}

// NewNotifier creates a Notifier publishing through publisher.
func NewNotifier(publisher events.DomainEventPublisher, clock timeutil.Provider, logger *logger.Logger, tracer trace.Tracer) *Notifier {
	return &Notifier{
		publisher: publisher,
		clock:     clock,
		logger:    logger.With("component", "notifier"),
		tracer:    tracer,
	}
}

// SendMessage publishes payload under label, keyed by installation code.
func (n *Notifier) SendMessage(ctx context.Context, label events.EventType, installationCode string, payload any) {
	ctx, span := n.tracer.Start(ctx, "notifier.send_message",
		trace.WithAttributes(
			attribute.String("label", string(label)),
			attribute.String("installation_code", installationCode),
		))
	defer span.End()

	evt := events.NewDomainEvent(label, installationCode, payload, n.clock.Now())
	if err := n.publisher.PublishDomainEvent(ctx, evt, events.WithKey(installationCode)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish notification")
		n.logger.Error(ctx, "Failed to publish notification",
			"label", label,
			"installation_code", installationCode,
			"error", err,
		)
	}
}

// ReportDockFailure alerts that a robot could not be sent to its dock.
func (n *Notifier) ReportDockFailure(ctx context.Context, r *robot.Robot, message string) {
	n.SendMessage(ctx, events.EventTypeDockFailure, r.InstallationCode, AlertMessage{
		Title:            fmt.Sprintf("Failed to send %s to dock", r.Name),
		Message:          message,
		InstallationCode: r.InstallationCode,
		RobotID:          r.ID,
		RobotName:        r.Name,
	})
}

// ReportGeneralFail alerts a robot-scoped failure.
func (n *Notifier) ReportGeneralFail(ctx context.Context, r *robot.Robot, title, message string) {
	n.SendMessage(ctx, events.EventTypeGeneralFail, r.InstallationCode, AlertMessage{
		Title:            title,
		Message:          message,
		InstallationCode: r.InstallationCode,
		RobotID:          r.ID,
		RobotName:        r.Name,
	})
}

// ReportAutoScheduleFail alerts that a recurring mission could not be scheduled.
func (n *Notifier) ReportAutoScheduleFail(ctx context.Context, def *mission.MissionDefinition, message string) {
	n.logger.Warn(ctx, "Auto scheduling failed",
		"mission_definition_id", def.ID,
		"mission_name", def.Name,
		"reason", message,
	)
	n.SendMessage(ctx, events.EventTypeAutoScheduleFail, def.InstallationCode, AlertMessage{
		Title:            "Failed to auto schedule mission",
		Message:          message,
		InstallationCode: def.InstallationCode,
		MissionName:      def.Name,
	})
}

// MissionRunUpdated publishes the run's current state.
func (n *Notifier) MissionRunUpdated(ctx context.Context, run *mission.MissionRun) {
	label := events.EventTypeMissionRunUpdated
	if run.IsCompleted() {
		label = events.EventTypeMissionRunCompleted
	}
	n.SendMessage(ctx, label, run.InstallationCode, NewMissionRunMessage(run))
}
