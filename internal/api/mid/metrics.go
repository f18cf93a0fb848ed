package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/equinor/flotilla-sub005/internal/api"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

type httpStatus interface {
	HTTPStatus() int
}

// Metrics records request counts and latency per route pattern.
func Metrics(m api.APIMetrics) web.MidFunc {
	mw := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}

			status := http.StatusOK
			switch v := resp.(type) {
			case httpStatus:
				status = v.HTTPStatus()
			case error:
				status = http.StatusInternalServerError
			}

			m.IncRequestsTotal(ctx, r.Method, route, status)
			m.ObserveRequestDuration(ctx, r.Method, route, time.Since(web.GetTime(ctx)))

			return resp
		}

		return h
	}

	return mw
}
