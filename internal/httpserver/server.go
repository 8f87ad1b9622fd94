package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/platform/config"
)

// SessionLister exposes the registry for the session listing.
type SessionLister interface {
	Snapshot() []domain.Session
	Len() int
	Capacity() int
}

// BroadcastState reports the broadcast toggle.
type BroadcastState interface {
	Enabled() bool
}

// HealthCheck is one named readiness dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	WebSocket http.Handler
	Sessions  SessionLister
	Broadcast BroadcastState
	Readiness []HealthCheck
	Metrics   *prometheus.Registry
	Clock     clockwork.Clock
}

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	deps        Deps
	rateLimiter *ConnectionRateLimiter
	startTime   time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "remote_ip", v.RemoteIP}
			if v.Error != nil {
				slog.WarnContext(c.Request().Context(), "HTTP request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.DebugContext(c.Request().Context(), "HTTP request", attrs...)
			return nil
		},
	}))

	srv := &Server{
		echo:        e,
		config:      cfg,
		deps:        deps,
		rateLimiter: NewConnectionRateLimiter(cfg.ConnectionRatePerIP, cfg.ConnectionRateBurst, deps.Clock),
		startTime:   deps.Clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start blocks serving HTTP, or HTTPS when a certificate is configured.
// It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	if s.config.TLSEnabled() {
		slog.Info("Starting HTTPS server", "addr", addr)
		return s.echo.StartTLS(addr, s.config.TLSCertFile, s.config.TLSKeyFile)
	}
	slog.Info("Starting HTTP server", "addr", addr)
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
