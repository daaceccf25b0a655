// Package http exposes the ragd API over HTTP: document upload,
// similarity retrieval, deletion, stats, health, and Prometheus metrics.
// Handlers translate transport concerns into storage.Manager calls and
// map errors onto status codes; everything else lives below this layer.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/storage"
)

const defaultMaxUploadBytes = 10 * 1024 * 1024

// Server serves the ragd HTTP API.
type Server struct {
	echo           *echo.Echo
	manager        storage.Manager
	logger         *logging.Logger
	config         config.ServerConfig
	maxUploadBytes int64
}

// NewServer creates the HTTP server. maxUploadBytes caps how much of an
// uploaded file is read; it should match the processor's file size limit.
func NewServer(manager storage.Manager, cfg config.ServerConfig, maxUploadBytes int64, logger *logging.Logger) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("storage manager required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ShutdownTimeout.Duration() <= 0 {
		cfg.ShutdownTimeout = config.Duration(10 * time.Second)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:           e,
		manager:        manager,
		logger:         logger,
		config:         cfg,
		maxUploadBytes: maxUploadBytes,
	}

	metrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestContext())
	e.Use(metrics.Middleware())
	e.Use(s.requestLogger())

	s.registerRoutes()
	return s, nil
}

// requestContext copies the request ID assigned by the RequestID
// middleware into the request context so downstream logs correlate.
// Client-supplied IDs that fail validation are dropped at the edge.
func (s *Server) requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			if logging.ValidID(rid) {
				req := c.Request()
				ctx := logging.WithRequestID(req.Context(), rid)
				c.SetRequest(req.WithContext(ctx))
			}
			return next(c)
		}
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			s.logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.POST("/upload", s.handleUpload)
	s.echo.POST("/retrieve", s.handleRetrieve)
	s.echo.DELETE("/documents/:id", s.handleDelete)
	s.echo.GET("/stats", s.handleStats)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully within the configured timeout. Returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Address()
	s.logger.Info(ctx, "starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout.Duration())
		defer cancel()

		s.logger.Info(shutdownCtx, "shutting down http server")
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}
