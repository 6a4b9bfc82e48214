// Package server exposes a small operational HTTP surface: liveness,
// bridge status, and a manual history flush.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/llamabridge/llamabridge/internal/bridge"
	"github.com/llamabridge/llamabridge/internal/version"
)

type Server struct {
	echo   *echo.Echo
	addr   string
	bridge *bridge.Bridge
	logger *slog.Logger
}

func NewServer(log *slog.Logger, addr string, b *bridge.Bridge) *Server {
	if log == nil {
		log = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		addr:   addr,
		bridge: b,
		logger: log.With(slog.String("service", "server")),
	}

	e.GET("/ping", s.ping)
	e.HEAD("/health", s.pingHead)
	e.GET("/status", s.status)
	e.POST("/flush", s.flush)
	return s
}

func (s *Server) Start() error {
	s.logger.Info("status server listening", slog.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) pingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.bridge.Stats())
}

func (s *Server) flush(c echo.Context) error {
	if err := s.bridge.FlushHistory(); err != nil {
		s.logger.Error("manual flush failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "flush failed",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "flushed"})
}
