package tracescope

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/telemetrybridge/internal/diagnostics"
	"github.com/fyrsmithlabs/telemetrybridge/internal/logging"
)

// Echo returns an Echo middleware that holds a trace scope open for the
// duration of each request. Handler errors and panics pass through
// unchanged; the scope is closed on every exit path.
func Echo(o Options) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := withRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))

			ctx, end, _ := o.Begin(ctx, diagnostics.DirectionInbound)
			defer end()
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)

			if o.Logger != nil {
				o.Logger.Debug(ctx, "http request",
					zap.String("method", req.Method),
					zap.String("uri", req.RequestURI),
					zap.Int("status", c.Response().Status),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
			}
			return err
		}
	}
}

// Middleware is the net/http form of Echo.
func Middleware(o Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := withRequestID(r.Context(), r.Header.Get(echo.HeaderXRequestID))

			ctx, end, _ := o.Begin(ctx, diagnostics.DirectionInbound)
			defer end()

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))

			if o.Logger != nil {
				o.Logger.Debug(ctx, "http request",
					zap.String("method", r.Method),
					zap.String("uri", r.RequestURI),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

func withRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return logging.WithRequestID(ctx, id)
}
