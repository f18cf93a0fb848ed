package autoschedule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/equinor/flotilla-sub005/internal/api"
	"github.com/equinor/flotilla-sub005/internal/api/mid"
	"github.com/equinor/flotilla-sub005/internal/app/scheduling"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

type fakePlanner struct {
	plan   []scheduling.PlannedJob
	report *scheduling.CycleReport
	err    error
	runs   int
}

func (f *fakePlanner) PlanCycle(context.Context) ([]scheduling.PlannedJob, error) { return f.plan, f.err }

func (f *fakePlanner) RunCycle(context.Context) (*scheduling.CycleReport, error) {
	f.runs++
	return f.report, f.err
}

type leader bool

func (l leader) IsLeader() bool { return bool(l) }

func newTestApp(p Planner, l Leader) *web.App {
	log := logger.Noop()
	app := web.NewApp(func(context.Context, string, ...any) {}, noop.NewTracerProvider().Tracer("test"),
		mid.Errors(log), mid.Panics())
	Routes(app, Config{Log: log, Planner: p, Leader: l, Metrics: api.NoopMetrics{}})
	return app
}

func TestPlan(t *testing.T) {
	at := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	p := &fakePlanner{plan: []scheduling.PlannedJob{{DefinitionID: "def-1", DefinitionName: "Deck A", At: at, Delay: time.Hour}}}
	app := newTestApp(p, leader(false))

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/auto-schedule/plan", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got planResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Jobs, 1)
	assert.Equal(t, "def-1", got.Jobs[0].DefinitionID)
	assert.True(t, at.Equal(got.Jobs[0].At))
}

func TestPlan_Empty(t *testing.T) {
	app := newTestApp(&fakePlanner{}, nil)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/auto-schedule/plan", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jobs":[]}`, rec.Body.String())
}

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		planner  *fakePlanner
		leader   Leader
		wantCode int
		wantRuns int
	}{
		{
			name:     "leader runs the cycle",
			planner:  &fakePlanner{report: &scheduling.CycleReport{Reset: 2}},
			leader:   leader(true),
			wantCode: http.StatusOK,
			wantRuns: 1,
		},
		{
			name:     "follower refuses",
			planner:  &fakePlanner{report: &scheduling.CycleReport{}},
			leader:   leader(false),
			wantCode: http.StatusConflict,
		},
		{
			name:     "store failure",
			planner:  &fakePlanner{err: errors.New("db down")},
			leader:   leader(true),
			wantCode: http.StatusInternalServerError,
			wantRuns: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(tt.planner, tt.leader)

			rec := httptest.NewRecorder()
			app.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auto-schedule/run", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantRuns, tt.planner.runs)
			if tt.wantCode == http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"reset":2`)
				assert.Contains(t, rec.Body.String(), `"scheduled":[]`)
			}
		})
	}
}
