// Package emergency binds the installation wide emergency lockdown.
package emergency

import (
	"context"
	"net/http"

	"github.com/equinor/flotilla-sub005/internal/api"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

// Lockdown stops an installation's robots and sends them home, and lets
// them go again.
type Lockdown interface {
	LockdownInstallation(ctx context.Context, installationCode string) error
	ReleaseInstallationFromLockdown(ctx context.Context, installationCode string) error
}

// Config contains the dependencies needed by the emergency handlers.
type Config struct {
	Log      *logger.Logger
	Lockdown Lockdown
	Metrics  api.APIMetrics
}

// Routes binds the emergency endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFunc(http.MethodPost, version, "/installations/{code}/emergency/lockdown",
		command(cfg, "lockdown", cfg.Lockdown.LockdownInstallation))
	app.HandlerFunc(http.MethodPost, version, "/installations/{code}/emergency/clear",
		command(cfg, "clear-lockdown", cfg.Lockdown.ReleaseInstallationFromLockdown))
}

func command(cfg Config, name string, fn func(context.Context, string) error) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		code := web.Param(r, "code")
		cfg.Metrics.IncOperatorCommands(ctx, name)

		if err := fn(ctx, code); err != nil {
			cfg.Log.Error(ctx, "Emergency command failed", "command", name, "installation_code", code, "error", err)
			return api.DomainError(err)
		}

		cfg.Log.Warn(ctx, "Emergency command applied", "command", name, "installation_code", code)
		return nil
	}
}
