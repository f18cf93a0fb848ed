package mid

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/pkg/common/otel"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

// Otel stores the tracer and trace id in the context and wraps the handler
// in a span carrying the method and path.
func Otel(tracer trace.Tracer) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			ctx = otel.InjectTracing(ctx, tracer)

			ctx, span := otel.AddSpan(ctx, tracer, "web.handle",
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			)
			defer span.End()

			return next(ctx, r)
		}

		return h
	}

	return m
}
