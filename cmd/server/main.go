package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/vitalpulse/internal/broadcast"
	"github.com/pscheid92/vitalpulse/internal/control"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/gateway"
	"github.com/pscheid92/vitalpulse/internal/httpserver"
	"github.com/pscheid92/vitalpulse/internal/liveness"
	"github.com/pscheid92/vitalpulse/internal/metrics"
	"github.com/pscheid92/vitalpulse/internal/platform/config"
	"github.com/pscheid92/vitalpulse/internal/platform/logging"
	"github.com/pscheid92/vitalpulse/internal/platform/version"
	"github.com/pscheid92/vitalpulse/internal/registry"
	"github.com/pscheid92/vitalpulse/internal/telemetry"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupTelemetry returns the Redis-backed source when REDIS_URL is set and the
// synthetic ward otherwise. The returned client is nil for the synthetic source.
func setupTelemetry(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (domain.TelemetrySource, *goredis.Client, []httpserver.HealthCheck) {
	if cfg.RedisURL == "" {
		slog.Info("Using synthetic telemetry source")
		return telemetry.NewSyntheticSource(nil), nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := telemetry.NewRedisClient(connectCtx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	source := telemetry.NewRedisSource(client, cfg.RedisTelemetryKey)
	slog.Info("Using Redis telemetry source", "key", cfg.RedisTelemetryKey)
	return source, client, []httpserver.HealthCheck{{Name: "telemetry", Check: source.Ping}}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port, "max_clients", cfg.MaxClients)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promRegistry := metrics.NewRegistry()
	m := metrics.New(promRegistry)

	source, redisClient, readiness := setupTelemetry(ctx, cfg, m)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	sessions := registry.New(cfg.MaxClients, clock)

	gw := gateway.New(sessions, clock, gateway.Options{
		SendQueueSize:  cfg.SendQueueSize,
		WriteTimeout:   cfg.WriteTimeout,
		AllowedOrigins: cfg.Origins(),
		IsDevelopment:  cfg.AppEnv == "development",
	}, m)

	pump := broadcast.NewPump(sessions, gw, source, clock, cfg.BroadcastInterval, cfg.BroadcastEnabled, m)
	gw.SetControlHandler(control.NewInterpreter(pump, m))

	scheduler := liveness.NewScheduler(sessions, gw, clock, cfg.CheckInterval, cfg.MaxMissedProbes, m)

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		WebSocket: gw,
		Sessions:  sessions,
		Broadcast: pump,
		Readiness: readiness,
		Metrics:   promRegistry,
		Clock:     clock,
	})

	// Timers get their own context so shutdown can stop them before closing sessions.
	timerCtx, stopTimers := context.WithCancel(context.Background())
	defer stopTimers()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Run(timerCtx)
		return nil
	})
	g.Go(func() error {
		pump.Run(timerCtx)
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv, gw, stopTimers)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Application stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Application stopped")
}

func shutdown(srv *httpserver.Server, gw *gateway.Gateway, stopTimers context.CancelFunc) error {
	slog.Info("Shutdown signal received, cleaning up...")

	stopTimers()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := gw.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("session shutdown: %w", err))
	}
	return errors.Join(errs...)
}
