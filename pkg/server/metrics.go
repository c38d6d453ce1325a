package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/telemetrybridge/internal/instruments"
)

// Instrument names recorded by the request metrics middleware.
const (
	MetricRequests       = "http.requests"
	MetricRequestLatency = "http.request.latency"
)

// requestMetrics records per-route request counts and latency through the
// bridge instrument cache.
type requestMetrics struct {
	requests *instruments.Counter
	latency  *instruments.Histogram
}

func newRequestMetrics(cache *instruments.Cache) (*requestMetrics, error) {
	requests, err := cache.Counter(MetricRequests,
		instruments.WithUnit("{request}"),
		instruments.WithDescription("HTTP requests handled, labeled by method, route and status"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := cache.Histogram(MetricRequestLatency,
		instruments.WithUnit("s"),
		instruments.WithDescription("HTTP request latency in seconds, labeled by method, route and status"),
	)
	if err != nil {
		return nil, err
	}
	return &requestMetrics{requests: requests, latency: latency}, nil
}

func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			ctx := c.Request().Context()
			attrs := metric.WithAttributeSet(attribute.NewSet(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeOf(c)),
				attribute.Int("status", statusOf(c, err)),
			))
			m.requests.Inc(ctx, attrs)
			m.latency.Record(ctx, time.Since(start).Seconds(), attrs)

			return err
		}
	}
}

// routeOf returns the matched route template, which keeps label cardinality
// bounded. Unmatched requests share one label.
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}

// statusOf returns the status the error handler will send for err.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
