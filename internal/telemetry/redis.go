package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/metrics"
	"github.com/pscheid92/vitalpulse/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

var connectPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// NewRedisClient parses redisURL, installs the circuit breaker hook and waits
// for the server to answer a PING.
func NewRedisClient(ctx context.Context, redisURL string, m *metrics.Metrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	client.AddHook(NewCircuitBreakerHook(m))

	p := connectPolicy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis not reachable yet, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}
	if err := retry.DoVoid(ctx, p, retry.Always, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// hashReader is the part of *goredis.Client the source uses.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *goredis.MapStringStringCmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

// vitalsRecord is the JSON stored per patient field; the field name is the patient name.
type vitalsRecord struct {
	Temperature   float64 `json:"temperature"`
	BloodPressure string  `json:"bloodPressure"`
	HeartRate     int     `json:"heartRate"`
}

// RedisSource reads the current vitals from a Redis hash of
// patient name -> {"temperature":..,"bloodPressure":..,"heartRate":..}.
type RedisSource struct {
	client hashReader
	key    string
}

func NewRedisSource(client hashReader, key string) *RedisSource {
	return &RedisSource{client: client, key: key}
}

func (s *RedisSource) Generate(ctx context.Context) (*domain.TelemetryPayload, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read telemetry hash %q: %w", s.key, err)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	payload := &domain.TelemetryPayload{Patients: make([]domain.PatientVitals, 0, len(names))}
	for _, name := range names {
		var rec vitalsRecord
		if err := json.Unmarshal([]byte(fields[name]), &rec); err != nil {
			slog.WarnContext(ctx, "Skipping malformed telemetry record", "key", s.key, "patient", name, "error", err)
			continue
		}
		payload.Patients = append(payload.Patients, domain.PatientVitals{
			Name:          name,
			Temperature:   rec.Temperature,
			BloodPressure: rec.BloodPressure,
			HeartRate:     rec.HeartRate,
		})
	}
	return payload, nil
}

// Ping reports whether the backing Redis is reachable.
func (s *RedisSource) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
