package mid

import (
	"context"
	"errors"
	"net/http"
	"path"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/flotilla-sub005/internal/api/errs"
	"github.com/equinor/flotilla-sub005/pkg/common/logger"
	"github.com/equinor/flotilla-sub005/pkg/web"
)

// Errors handles errors coming out of the call chain. Anything that is not
// an *errs.Error is logged and replaced by a generic internal error so
// nothing unexpected leaks to the client.
func Errors(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)
			err, isError := resp.(error)
			if !isError {
				return resp
			}

			span := trace.SpanFromContext(ctx)
			span.RecordError(err)

			var appErr *errs.Error
			if !errors.As(err, &appErr) {
				appErr = errs.Newf(errs.Internal, "Internal Server Error")
			}

			log.Error(ctx, "handled error during request",
				"err", err,
				"source_err_file", path.Base(appErr.FileName),
				"source_err_func", path.Base(appErr.FuncName))

			if appErr.Code == errs.Internal || appErr.Code == errs.Unknown {
				span.SetStatus(codes.Error, appErr.Message)
			}

			return appErr
		}

		return h
	}

	return m
}
