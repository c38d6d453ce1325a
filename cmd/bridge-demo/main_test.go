package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/telemetrybridge/internal/logging"
	"github.com/fyrsmithlabs/telemetrybridge/internal/telemetry"
	"github.com/fyrsmithlabs/telemetrybridge/pkg/bridge"
	"github.com/fyrsmithlabs/telemetrybridge/pkg/server"
)

type demoFixture struct {
	bridge *bridge.Bridge
	logs   *observer.ObservedLogs
	spans  *tracetest.SpanRecorder
}

func newDemoFixture(t *testing.T) *demoFixture {
	t.Helper()
	cfg := bridge.NewDefaultConfig()
	cfg.Telemetry.Exporter = telemetry.ExporterNone
	cfg.Logging.Output = logging.OutputConfig{}
	cfg.Logging.Level = zapcore.DebugLevel
	cfg.Logging.Sampling.Enabled = false

	core, logs := observer.New(zapcore.DebugLevel)
	spans := tracetest.NewSpanRecorder()
	b, err := bridge.Install(context.Background(), "bridge-demo",
		bridge.WithConfig(cfg),
		bridge.WithZapCore(core),
		bridge.WithSpanProcessor(spans),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })

	return &demoFixture{bridge: b, logs: logs, spans: spans}
}

func eventAttr(t *testing.T, attrs map[string]interface{}, key string) interface{} {
	t.Helper()
	v, ok := attrs[key]
	require.True(t, ok, "missing attribute %s", key)
	return v
}

func TestRootCmd(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["worker"])
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("downstream"))
}

func TestPing_ChainsToDownstream(t *testing.T) {
	f := newDemoFixture(t)

	downstream, err := server.NewServer(f.bridge, server.Config{})
	require.NoError(t, err)
	ds := httptest.NewServer(downstream.Echo())
	defer ds.Close()

	srv, err := server.NewServer(f.bridge, server.Config{})
	require.NoError(t, err)
	api, err := newPingAPI(f.bridge, ds.URL)
	require.NoError(t, err)
	api.register(srv.Echo())

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, PingResponse{Message: "pong", Service: "bridge-demo", DownstreamStatus: http.StatusOK}, resp)

	// /ping, the client call and the downstream /health share one trace.
	ended := f.spans.Ended()
	require.GreaterOrEqual(t, len(ended), 3)
	traceID := ended[0].SpanContext().TraceID()
	for _, s := range ended {
		assert.Equal(t, traceID, s.SpanContext().TraceID(), s.Name())
	}

	entries := f.logs.FilterMessage("ping received").All()
	require.Len(t, entries, 1)
	assert.Equal(t, traceID.String(), entries[0].ContextMap()["trace_id"])
}

func TestPing_DownstreamFailure(t *testing.T) {
	f := newDemoFixture(t)

	ds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ds.Close()

	api, err := newPingAPI(f.bridge, ds.URL)
	require.NoError(t, err)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ping", nil), httptest.NewRecorder())
	err = api.handlePing(c)

	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadGateway, he.Code)
	assert.Equal(t, 1, f.logs.FilterMessage("downstream probe failed").Len())
}

func TestWorker_Tick(t *testing.T) {
	f := newDemoFixture(t)
	w, err := newWorker(f.bridge, "", time.Second)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.tick(ctx))
	require.NoError(t, w.tick(ctx))
	err = w.tick(ctx)
	assert.ErrorIs(t, err, errSimulated)

	ended := f.spans.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[2].Status().Code)

	// Tick two warns, tick three mirrors the exception.
	assert.Len(t, ended[1].Events(), 2)
	events := ended[2].Events()
	require.Len(t, events, 2)

	attrs := map[string]interface{}{}
	for _, kv := range events[1].Attributes {
		attrs[string(kv.Key)] = telemetry.AttrValue(kv.Value)
	}
	assert.Equal(t, "Error", eventAttr(t, attrs, logging.AttrSeverity))
	assert.Equal(t, "bridge-demo.worker", eventAttr(t, attrs, logging.AttrCategory))
	assert.Equal(t, int64(eventTickFailed), eventAttr(t, attrs, logging.AttrEventID))
	assert.Equal(t, "tick 3: simulated tick failure", eventAttr(t, attrs, string(semconv.ExceptionMessageKey)))

	entries := f.logs.FilterMessage("worker heartbeat").All()
	require.Len(t, entries, 3)
	assert.Equal(t, ended[0].SpanContext().TraceID().String(), entries[0].ContextMap()["trace_id"])
}

func TestWorker_Run(t *testing.T) {
	f := newDemoFixture(t)
	w, err := newWorker(f.bridge, "", 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.run(ctx) }()

	require.Eventually(t, func() bool {
		return f.logs.FilterMessage("worker heartbeat").Len() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, 1, f.logs.FilterMessage("worker stopped").Len())
}

func TestNewWorker_InvalidInterval(t *testing.T) {
	f := newDemoFixture(t)
	_, err := newWorker(f.bridge, "", 0)
	assert.Error(t, err)
}
