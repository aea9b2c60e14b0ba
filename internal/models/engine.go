package models

import "time"

// ModelPhase tracks the per-sensor analytics lifecycle.
type ModelPhase string

const (
	PhaseUninitialized ModelPhase = "uninitialized"
	PhaseTraining      ModelPhase = "training"
	PhaseReady         ModelPhase = "ready"
	PhaseDegraded      ModelPhase = "degraded"
)

// ScoreResult is the outcome of scoring one reading against a trained model.
type ScoreResult struct {
	Score      float64
	Severity   Severity
	Confidence float64
}

// Forecast is a k-step-ahead prediction computed from a rolling window.
type Forecast struct {
	SensorID   string    `json:"sensor_id"`
	Steps      int       `json:"steps"`
	Values     []float64 `json:"values"`
	Confidence float64   `json:"confidence"`
	IssuedAt   time.Time `json:"issued_at"`
}

// SensorStatus is the facade's point-in-time view of one sensor.
type SensorStatus struct {
	Reading      Reading    `json:"reading"`
	Severity     Severity   `json:"severity"`
	Phase        ModelPhase `json:"phase"`
	ModelVersion uint64     `json:"model_version"`
	Rejections   uint64     `json:"rejections"`
}
