package telemetry

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/pscheid92/vitalpulse/internal/domain"
)

var defaultPatients = []string{"Peter", "Alex", "Emma", "Max", "Sam", "Dave"}

const (
	baseTemperature   = 36.6
	baseBloodPressure = "120/70"
	minHeartRate      = 60
	heartRateSpread   = 60
)

// SyntheticSource generates plausible vitals for a fixed list of patients.
type SyntheticSource struct {
	patients []string

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSyntheticSource(rng *rand.Rand) *SyntheticSource {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &SyntheticSource{patients: defaultPatients, rng: rng}
}

func (s *SyntheticSource) Generate(_ context.Context) (*domain.TelemetryPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := &domain.TelemetryPayload{Patients: make([]domain.PatientVitals, 0, len(s.patients))}
	for _, name := range s.patients {
		payload.Patients = append(payload.Patients, domain.PatientVitals{
			Name:          name,
			Temperature:   baseTemperature,
			BloodPressure: baseBloodPressure,
			HeartRate:     minHeartRate + s.rng.IntN(heartRateSpread),
		})
	}
	return payload, nil
}
