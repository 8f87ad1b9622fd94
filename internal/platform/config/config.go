package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8443"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Engine
	MaxClients        int           `env:"MAX_CLIENTS" default:"4"`
	CheckInterval     time.Duration `env:"CHECK_INTERVAL" default:"5s"`
	MaxMissedProbes   int           `env:"MAX_MISSED_PROBES" default:"3"`
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" default:"1s"`
	BroadcastEnabled  bool          `env:"BROADCAST_ENABLED" default:"false"`
	SendQueueSize     int           `env:"SEND_QUEUE_SIZE" default:"16"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" default:"5s"`

	// Edge
	AllowedOrigins      string  `env:"ALLOWED_ORIGINS"`
	ConnectionRatePerIP float64 `env:"CONNECTION_RATE_PER_IP" default:"5"`
	ConnectionRateBurst int     `env:"CONNECTION_RATE_BURST" default:"10"`
	StaticDir           string  `env:"STATIC_DIR"`
	TLSCertFile         string  `env:"TLS_CERT_FILE"`
	TLSKeyFile          string  `env:"TLS_KEY_FILE"`

	// Telemetry source (synthetic when REDIS_URL is empty)
	RedisURL          string `env:"REDIS_URL"`
	RedisTelemetryKey string `env:"REDIS_TELEMETRY_KEY" default:"vitalpulse:patients"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Origins returns ALLOWED_ORIGINS split on commas with blanks dropped.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func validate(cfg *Config) error {
	if cfg.MaxClients < 1 {
		return errors.New("MAX_CLIENTS must be at least 1")
	}
	if cfg.CheckInterval <= 0 {
		return errors.New("CHECK_INTERVAL must be positive")
	}
	// The scheduler counts a miss at the start of each tick, before the probe
	// goes out. With a limit of 1 the first tick after opening evicts every
	// session, however recently it was touched.
	if cfg.MaxMissedProbes < 2 {
		return errors.New("MAX_MISSED_PROBES must be at least 2")
	}
	if cfg.BroadcastInterval <= 0 {
		return errors.New("BROADCAST_INTERVAL must be positive")
	}
	if cfg.SendQueueSize < 1 {
		return errors.New("SEND_QUEUE_SIZE must be at least 1")
	}
	if cfg.WriteTimeout <= 0 {
		return errors.New("WRITE_TIMEOUT must be positive")
	}
	if cfg.ConnectionRatePerIP <= 0 || cfg.ConnectionRateBurst < 1 {
		return errors.New("CONNECTION_RATE_PER_IP and CONNECTION_RATE_BURST must be positive")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}
