package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/vitalpulse/internal/metrics"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.deps.Metrics)))
	}

	// Read-only session listing
	s.echo.GET("/api/sessions", s.handleListSessions)

	// Telemetry stream
	s.echo.GET("/ws", echo.WrapHandler(s.deps.WebSocket), s.rateLimitConnections)

	// Dashboard assets; specific routes above take precedence
	if s.config.StaticDir != "" {
		s.echo.Static("/", s.config.StaticDir)
	}
}
