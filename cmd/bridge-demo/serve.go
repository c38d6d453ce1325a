package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/telemetrybridge/internal/instruments"
	"github.com/fyrsmithlabs/telemetrybridge/internal/logging"
	"github.com/fyrsmithlabs/telemetrybridge/pkg/bridge"
	"github.com/fyrsmithlabs/telemetrybridge/pkg/server"
)

var (
	serveAddr       string
	serveWithWorker bool
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the instrumented HTTP API",
	Long: `Run the HTTP API with /health, /metrics and /ping.

/ping answers "pong" and, when --downstream is set, probes the downstream
/health endpoint through the bridge HTTP client so the trace continues there.

Examples:
  # Serve on the default port
  bridge-demo serve

  # Serve and chain to another instance
  bridge-demo serve --addr :8081 --downstream http://localhost:8080

  # Serve with the background worker in the same process
  bridge-demo serve --with-worker`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", server.DefaultAddr, "listen address")
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "also run the background worker")
}

func runServe(cmd *cobra.Command, _ []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := installBridge(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, shutdownBridge(b))
	}()

	srv, err := server.NewServer(b, server.Config{Addr: serveAddr})
	if err != nil {
		return err
	}
	api, err := newPingAPI(b, downstreamURL)
	if err != nil {
		return err
	}
	api.register(srv.Echo())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if serveWithWorker {
		w, err := newWorker(b, downstreamURL, workerInterval)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return w.run(gctx)
		})
	}
	return g.Wait()
}

// PingResponse is the JSON response for /ping.
type PingResponse struct {
	Message          string `json:"message"`
	Service          string `json:"service"`
	DownstreamStatus int    `json:"downstream_status,omitempty"`
}

const (
	eventPingReceived = 2001
	eventProbeFailed  = 2002
)

type pingAPI struct {
	service    string
	logger     *logging.Logger
	client     *http.Client
	downstream string
	pings      *instruments.Counter
}

func newPingAPI(b *bridge.Bridge, downstream string) (*pingAPI, error) {
	pings, err := b.Instruments().Counter("demo.pings",
		instruments.WithUnit("{ping}"),
		instruments.WithDescription("Pings answered by the demo API"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ping counter: %w", err)
	}
	return &pingAPI{
		service:    b.Settings().ServiceName(),
		logger:     b.Logger().Named("api"),
		client:     b.HTTPClient(),
		downstream: downstream,
		pings:      pings,
	}, nil
}

func (a *pingAPI) register(e *echo.Echo) {
	e.GET("/ping", a.handlePing)
}

// handlePing handles GET /ping requests.
func (a *pingAPI) handlePing(c echo.Context) error {
	ctx := c.Request().Context()
	a.pings.Inc(ctx)
	a.logger.Info(ctx, "ping received", logging.Event(eventPingReceived, "PingReceived"))

	resp := PingResponse{Message: "pong", Service: a.service}
	if a.downstream != "" {
		status, err := probeDownstream(ctx, a.client, a.downstream)
		if err != nil {
			a.logger.Warn(ctx, "downstream probe failed",
				logging.Event(eventProbeFailed, "ProbeFailed"),
				zap.String("downstream", a.downstream),
				zap.Error(err),
			)
			return echo.NewHTTPError(http.StatusBadGateway, "downstream unavailable")
		}
		resp.DownstreamStatus = status
	}
	return c.JSON(http.StatusOK, resp)
}
