// Package webui serves run status over HTTP: stored runs, their rounds,
// and the process's Prometheus metrics.
package webui

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"triad/pkg/logx"
	"triad/pkg/persistence"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// RunStore is the read side of the run database.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]persistence.RunRecord, error)
	GetRun(ctx context.Context, id string) (*persistence.RunRecord, []persistence.RoundRow, error)
}

// Server is the status HTTP server.
type Server struct {
	echo   *echo.Echo
	store  RunStore
	logger *logx.Logger
	addr   string
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// RunsResponse is the body of GET /api/runs.
type RunsResponse struct {
	Runs []persistence.RunRecord `json:"runs"`
}

// RunDetailResponse is the body of GET /api/runs/:id.
type RunDetailResponse struct {
	Run    *persistence.RunRecord `json:"run"`
	Rounds []persistence.RoundRow `json:"rounds"`
}

// NewServer builds a server listening on addr. gatherer may be nil, in
// which case /metrics serves the default registry.
func NewServer(store RunStore, gatherer prometheus.Gatherer, addr string) (*Server, error) {
	if store == nil {
		return nil, errors.New("run store is required")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	logger := logx.NewLogger("webui")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("%s %s -> %d (%s) request_id=%s",
				c.Request().Method,
				c.Request().RequestURI,
				c.Response().Status,
				time.Since(start),
				c.Response().Header().Get(echo.HeaderXRequestID),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		store:  store,
		logger: logger,
		addr:   addr,
	}
	s.registerRoutes(gatherer)
	return s, nil
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.echo.Group("/api")
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxListLimit)
	}

	runs, err := s.store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}
	if runs == nil {
		runs = []persistence.RunRecord{}
	}
	return c.JSON(http.StatusOK, RunsResponse{Runs: runs})
}

func (s *Server) handleGetRun(c echo.Context) error {
	id := c.Param("id")
	run, rounds, err := s.store.GetRun(c.Request().Context(), id)
	if errors.Is(err, persistence.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		s.logger.Error("failed to load run %s: %v", id, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load run")
	}
	if rounds == nil {
		rounds = []persistence.RoundRow{}
	}
	return c.JSON(http.StatusOK, RunDetailResponse{Run: run, Rounds: rounds})
}

// Start blocks serving until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting status server on %s", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err //nolint:wrapcheck // caller adds context
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down status server")
	return s.echo.Shutdown(ctx) //nolint:wrapcheck // caller adds context
}
