// Package httpapi serves the REST surface: search, health, and
// Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loreleaf/loreleaf/internal/cache"
	"github.com/loreleaf/loreleaf/internal/search"
	"github.com/loreleaf/loreleaf/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Deps wires the server's collaborators. Cache, Metrics, Registry and
// Logger are optional.
type Deps struct {
	Engine   *search.Engine
	Cache    cache.QueryCache
	Metrics  *telemetry.Metrics
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Server is the REST server.
type Server struct {
	echo    *echo.Echo
	engine  *search.Engine
	cache   cache.QueryCache
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewServer builds the router. Start must be called to serve.
func NewServer(deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("httpapi: engine is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		echo:    echo.New(),
		engine:  deps.Engine,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		logger:  logger,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("http request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency))
			return nil
		},
	}))

	s.echo.POST("/v1/search", s.handleSearch)
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/readyz", s.handleReady)

	if deps.Registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
			deps.Registry, promhttp.HandlerOpts{})))
	}

	return s, nil
}

// Start serves until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
