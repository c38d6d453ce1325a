package tracescope

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/telemetrybridge/internal/diagnostics"
	"github.com/fyrsmithlabs/telemetrybridge/internal/logging"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func okResponse(r *http.Request) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     make(http.Header),
		Request:    r,
	}
}

func TestTransport_ScopeAroundCall(t *testing.T) {
	spanCtx, span := startSpan(t)
	defer span.End()
	m := diagnostics.New(nil)
	log := logging.NewTestLogger()

	var seen *http.Request
	rt := Transport{
		Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			seen = r
			log.Info(r.Context(), "calling inventory")
			return okResponse(r), nil
		}),
		Options: Options{Logger: log.Logger, Metrics: m},
	}

	req := httptest.NewRequest(http.MethodGet, "http://inventory.local/items", nil).WithContext(spanCtx)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	traceID := span.SpanContext().TraceID().String()
	for _, msg := range []string{"calling inventory", "outbound request"} {
		entries := log.FilterMessage(msg).All()
		require.Len(t, entries, 1, msg)
		assert.Equal(t, traceID, entries[0].ContextMap()[TraceIDKey], msg)
	}
	assert.Equal(t, int64(http.StatusOK), log.FilterMessage("outbound request").All()[0].ContextMap()["status"])

	assert.Zero(t, logging.ScopeDepth(seen.Context()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScopesOpened.WithLabelValues(diagnostics.DirectionOutbound)))
}

func TestTransport_ErrorPassesThrough(t *testing.T) {
	spanCtx, span := startSpan(t)
	defer span.End()

	want := errors.New("connection refused")
	var inner *http.Request
	rt := Transport{Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		inner = r
		return nil, want
	})}

	req := httptest.NewRequest(http.MethodGet, "http://inventory.local/items", nil).WithContext(spanCtx)
	resp, err := rt.RoundTrip(req)

	assert.Nil(t, resp)
	assert.Same(t, want, err)
	assert.Zero(t, logging.ScopeDepth(inner.Context()))
}

func TestTransport_NoSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://inventory.local/items", nil)

	var inner *http.Request
	rt := Transport{Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		inner = r
		assert.Zero(t, logging.ScopeDepth(r.Context()))
		return okResponse(r), nil
	})}

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Same(t, req, inner)
}
