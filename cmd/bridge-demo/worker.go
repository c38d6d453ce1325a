package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/telemetrybridge/internal/instruments"
	"github.com/fyrsmithlabs/telemetrybridge/internal/logging"
	"github.com/fyrsmithlabs/telemetrybridge/internal/tracescope"
	"github.com/fyrsmithlabs/telemetrybridge/pkg/bridge"
)

var workerInterval time.Duration

// workerCmd runs the background worker
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the periodic background worker",
	Long: `Run a worker that ticks on a fixed interval. Each tick is traced, counts a
heartbeat, logs through the bridge logger and probes --downstream when set.
Every third tick fails on purpose so error mirroring can be observed.

Examples:
  bridge-demo worker --interval 2s --downstream http://localhost:8080`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().DurationVar(&workerInterval, "interval", 5*time.Second, "tick interval")
}

func runWorker(cmd *cobra.Command, _ []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := installBridge(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, shutdownBridge(b))
	}()

	w, err := newWorker(b, downstreamURL, workerInterval)
	if err != nil {
		return err
	}
	return w.run(ctx)
}

const (
	eventHeartbeat   = 3001
	eventRunsBehind  = 3002
	eventTickFailed  = 3003
	eventProbeResult = 3004
)

// errSimulated marks the deliberate failure of every third tick.
var errSimulated = errors.New("simulated tick failure")

type worker struct {
	logger     *logging.Logger
	tracer     trace.Tracer
	client     *http.Client
	downstream string
	interval   time.Duration

	heartbeats *instruments.Counter
	duration   *instruments.Histogram

	ticks int
}

func newWorker(b *bridge.Bridge, downstream string, interval time.Duration) (*worker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("worker interval must be positive, got %s", interval)
	}
	heartbeats, err := b.Instruments().Counter("demo.worker.heartbeats",
		instruments.WithUnit("{tick}"),
		instruments.WithDescription("Worker ticks started"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating heartbeat counter: %w", err)
	}
	duration, err := b.Instruments().Histogram("demo.worker.tick.duration",
		instruments.WithUnit("s"),
		instruments.WithDescription("Worker tick duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick histogram: %w", err)
	}

	return &worker{
		logger:     b.Logger().Named("worker"),
		tracer:     b.Tracer(),
		client:     b.HTTPClient(),
		downstream: downstream,
		interval:   interval,
		heartbeats: heartbeats,
		duration:   duration,
	}, nil
}

// run ticks until ctx is cancelled.
func (w *worker) run(ctx context.Context) error {
	w.logger.Info(ctx, "worker started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(context.Background(), "worker stopped", zap.Int("ticks", w.ticks))
			return nil
		case <-ticker.C:
			_ = w.tick(ctx)
		}
	}
}

// tick performs one traced unit of work. The returned error is already
// logged and recorded on the span.
func (w *worker) tick(ctx context.Context) error {
	w.ticks++
	n := w.ticks

	ctx, span := w.tracer.Start(ctx, "worker.tick")
	defer span.End()
	ctx, end := logging.BeginScope(ctx, tracescope.Values(span.SpanContext())...)
	defer end()

	start := time.Now()
	defer func() {
		w.duration.Record(ctx, time.Since(start).Seconds())
	}()

	w.heartbeats.Inc(ctx)
	w.logger.Info(ctx, "worker heartbeat", logging.Event(eventHeartbeat, "Heartbeat"), zap.Int("tick", n))

	if n%3 == 0 {
		err := fmt.Errorf("tick %d: %w", n, errSimulated)
		w.logger.Error(ctx, "worker tick failed", logging.Event(eventTickFailed, "TickFailed"), zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if n%2 == 0 {
		w.logger.Warn(ctx, "worker running behind", logging.Event(eventRunsBehind, "RunningBehind"), zap.Int("tick", n))
	}

	if w.downstream != "" {
		status, err := probeDownstream(ctx, w.client, w.downstream)
		if err != nil {
			w.logger.Warn(ctx, "downstream probe failed", logging.Event(eventProbeResult, "ProbeFailed"), zap.Error(err))
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		w.logger.Debug(ctx, "downstream healthy", logging.Event(eventProbeResult, "ProbeSucceeded"), zap.Int("status", status))
	}
	return nil
}
