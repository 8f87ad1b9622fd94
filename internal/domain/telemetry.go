package domain

import "context"

// PatientVitals is one patient's row in a broadcast payload.
type PatientVitals struct {
	Name          string  `json:"name"`
	Temperature   float64 `json:"temperature"`
	BloodPressure string  `json:"bloodPressure"`
	HeartRate     int     `json:"heartRate"`
}

// TelemetryPayload is the document pushed to every open session on a broadcast tick.
// A fresh value is produced per tick and never cached.
type TelemetryPayload struct {
	Patients []PatientVitals `json:"patient"`
}

// TelemetrySource produces the broadcast payload. Called once per broadcast tick.
type TelemetrySource interface {
	Generate(ctx context.Context) (*TelemetryPayload, error)
}
