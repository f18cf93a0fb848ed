// Package isar talks to the ISAR robot agents over their HTTP control API.
package isar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/app/scheduling"
	"github.com/equinor/flotilla-sub005/internal/domain/mission"
	"github.com/equinor/flotilla-sub005/internal/domain/robot"
	"github.com/equinor/flotilla-sub005/pkg/common"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/common/timeutil"
)

var _ scheduling.RobotAgent = (*Client)(nil)

const opStartMission = "start-mission"

// Config tunes the ISAR client.
type Config struct {
	// Timeout bounds each HTTP request.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// RequestsPerSecond and Burst throttle requests per robot.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=1"`
	// ControlRetries is how often stop, pause and resume are retried when
	// the agent is unreachable. Starting a mission is never retried.
	ControlRetries uint64 `mapstructure:"control_retries"`
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		ControlRetries:    2,
	}
}

// StatusError is a non-2xx answer from ISAR. It matches
// mission.ErrRobotAgent. A 409 to a control command also matches
// mission.ErrAgentNoActiveMission.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ISAR %s returned %d: %s", e.Operation, e.StatusCode, describeStatus(e.StatusCode, e.Body))
}

func (e *StatusError) Unwrap() []error {
	if e.StatusCode == http.StatusConflict && e.Operation != opStartMission {
		return []error{mission.ErrRobotAgent, mission.ErrAgentNoActiveMission}
	}
	return []error{mission.ErrRobotAgent}
}

func describeStatus(code int, body string) string {
	switch code {
	case http.StatusRequestTimeout:
		return "timeout communicating with the ISAR state machine"
	case http.StatusConflict:
		return "the ISAR state machine does not allow this action in its current state"
	case http.StatusInternalServerError:
		return "internal server error in ISAR"
	}
	if body = strings.TrimSpace(body); body != "" {
		return body
	}
	return http.StatusText(code)
}

// Client implements scheduling.RobotAgent against ISAR's REST API.
type Client struct {
	httpClient *http.Client
	limiter    *common.KeyedRateLimiter
	clock      timeutil.Provider
	cfg        Config

	logger *logger.Logger
	tracer trace.Tracer
}

// NewClient creates a client with a traced transport. A nil httpClient
// gets one built from cfg.
func NewClient(cfg Config, httpClient *http.Client, clock timeutil.Provider, logger *logger.Logger, tracer trace.Tracer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		httpClient: httpClient,
		limiter:    common.NewKeyedRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		clock:      clock,
		cfg:        cfg,
		logger:     logger.With("component", "isar_client"),
		tracer:     tracer,
	}
}

// StartMission posts run to the robot and returns ISAR's identifiers.
func (c *Client) StartMission(ctx context.Context, r *robot.Robot, run *mission.MissionRun) (*mission.AgentMission, error) {
	ctx, span := c.tracer.Start(ctx, "isar_client.start_mission",
		trace.WithAttributes(
			attribute.String("robot_id", r.ID),
			attribute.String("mission_run_id", run.ID),
			attribute.Int("task_count", len(run.Tasks)),
		))
	defer span.End()

	body := startMissionRequest{MissionDefinition: newMissionDefinition(run)}

	var resp startMissionResponse
	if err := c.post(ctx, r, opStartMission, body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start mission")
		return nil, fmt.Errorf("failed to start mission run %s on robot %s: %w", run.ID, r.ID, err)
	}

	am, err := toAgentMission(run, &resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected start mission response")
		return nil, err
	}
	am.StartTime = c.clock.Now()

	span.SetAttributes(attribute.String("isar_mission_id", am.IsarMissionID))
	c.logger.Info(ctx, "ISAR mission started",
		"robot_id", r.ID, "mission_run_id", run.ID, "isar_mission_id", am.IsarMissionID)
	return am, nil
}

// StopMission stops whatever the robot is running.
func (c *Client) StopMission(ctx context.Context, r *robot.Robot) error {
	return c.control(ctx, r, "stop-mission")
}

// PauseMission pauses the robot's current mission.
func (c *Client) PauseMission(ctx context.Context, r *robot.Robot) error {
	return c.control(ctx, r, "pause-mission")
}

// ResumeMission resumes the robot's paused mission.
func (c *Client) ResumeMission(ctx context.Context, r *robot.Robot) error {
	return c.control(ctx, r, "resume-mission")
}

// control sends a body-less command, retrying while the agent is
// unreachable. Answers from ISAR, errors included, end the retries.
func (c *Client) control(ctx context.Context, r *robot.Robot, operation string) error {
	ctx, span := c.tracer.Start(ctx, "isar_client.control",
		trace.WithAttributes(
			attribute.String("robot_id", r.ID),
			attribute.String("operation", operation),
		))
	defer span.End()

	attempts := 0
	op := func() error {
		attempts++
		var resp controlResponse
		err := c.post(ctx, r, operation, nil, &resp)
		if err == nil {
			return nil
		}
		if !errors.Is(err, mission.ErrRobotAgentUnavailable) {
			return backoff.Permanent(err)
		}
		c.logger.Warn(ctx, "ISAR unreachable, retrying", "robot_id", r.ID, "operation", operation, "attempt", attempts)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * c.cfg.Timeout

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.ControlRetries), ctx))
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, operation+" failed")
		return fmt.Errorf("failed to %s on robot %s: %w", strings.ReplaceAll(operation, "-", " "), r.ID, err)
	}

	c.logger.Info(ctx, "ISAR command accepted", "robot_id", r.ID, "operation", operation)
	return nil
}

// post sends body as JSON to {isarURI}/schedule/{operation} and decodes a
// 2xx answer into out. Transport failures wrap
// mission.ErrRobotAgentUnavailable, other answers are *StatusError.
func (c *Client) post(ctx context.Context, r *robot.Robot, operation string, body, out any) error {
	if err := c.limiter.Wait(ctx, r.ID); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		reader = bytes.NewReader(data)
	}

	url := strings.TrimRight(r.IsarURI, "/") + "/schedule/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request to %s: %v: %w", operation, url, err, mission.ErrRobotAgentUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading %s response: %v: %w", operation, err, mission.ErrRobotAgentUnavailable)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Operation: operation, StatusCode: resp.StatusCode, Body: string(data)}
		c.logger.Error(ctx, "Error from ISAR",
			"robot_id", r.ID, "operation", operation, "status_code", resp.StatusCode, "body", serr.Body)
		return serr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %v: %w", operation, err, mission.ErrRobotAgent)
	}
	return nil
}
