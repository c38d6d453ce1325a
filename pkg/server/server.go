// Package server provides an Echo HTTP server instrumented by the telemetry
// bridge.
//
// Every server created here has the bridge pipeline installed (server spans
// plus the trace scope), per-route request metrics, a health check at
// GET /health and the bridge self-metrics at GET /metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/telemetrybridge/pkg/bridge"
)

// Config holds listener settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Defaults applied to zero Config fields.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
)

// Server represents the HTTP server.
type Server struct {
	config Config
	bridge *bridge.Bridge
	echo   *echo.Echo
}

// HealthResponse is the JSON response for /health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Exporting bool   `json:"exporting"`
}

// NewServer creates a server bound to b.
//
// The server includes:
//   - Recover and request ID middleware
//   - The bridge inbound pipeline (server spans and trace scope)
//   - Per-route request metrics through the bridge instrument cache
//   - GET /health and GET /metrics
//
// Example:
//
//	srv, err := server.NewServer(b, server.Config{Addr: ":8080"})
//	if err != nil {
//	    return err
//	}
//	srv.Echo().GET("/orders/:id", getOrder)
//	err = srv.Start(ctx)
func NewServer(b *bridge.Bridge, cfg Config) (*Server, error) {
	if b == nil {
		return nil, errors.New("server: bridge is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	metrics, err := newRequestMetrics(b.Instruments())
	if err != nil {
		return nil, fmt.Errorf("creating request metrics: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	b.Pipeline().Install(e)
	e.Use(metrics.middleware())

	s := &Server{
		config: cfg,
		bridge: b,
		echo:   e,
	}
	s.registerRoutes()

	return s, nil
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if reg := s.bridge.Registry(); reg != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
}

// handleHealth handles GET /health requests. Degraded telemetry does not
// fail the check.
func (s *Server) handleHealth(c echo.Context) error {
	health := s.bridge.Telemetry().Health()
	status := "ok"
	if health.Degraded {
		status = "degraded"
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Service:   s.bridge.Settings().ServiceName(),
		Version:   s.bridge.Settings().ServiceVersion(),
		Exporting: s.bridge.Telemetry().Exporting(),
	})
}

// Start starts the HTTP server and blocks until context is cancelled.
//
// When the context is cancelled, the server performs graceful shutdown
// with the configured timeout.
//
// Returns http.ErrServerClosed on graceful shutdown, or any other
// error encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	s.bridge.Logger().Info(ctx, "http server starting", zap.String("addr", s.config.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		return http.ErrServerClosed
	}
}

// Addr returns the bound listener address, or nil before Start has bound.
func (s *Server) Addr() net.Addr {
	return s.echo.ListenerAddr()
}

// Echo returns the underlying Echo instance for registering additional
// routes. Routes added later still run behind every middleware.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
