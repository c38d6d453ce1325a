package tracescope

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/telemetrybridge/internal/diagnostics"
)

// Transport is an http.RoundTripper that holds a trace scope open for each
// call it forwards to Base. Transport errors pass through unchanged.
type Transport struct {
	// Base performs the call. http.DefaultTransport is used when nil.
	Base http.RoundTripper

	Options
}

// RoundTrip implements http.RoundTripper.
func (t Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	ctx, end, ok := t.Begin(req.Context(), diagnostics.DirectionOutbound)
	defer end()
	if ok {
		req = req.WithContext(ctx)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)

	if t.Logger != nil {
		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("url", req.URL.Redacted()),
			zap.Duration("duration", time.Since(start)),
		}
		if resp != nil {
			fields = append(fields, zap.Int("status", resp.StatusCode))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		t.Logger.Debug(ctx, "outbound request", fields...)
	}
	return resp, err
}
