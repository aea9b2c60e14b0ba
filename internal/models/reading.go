package models

import "time"

// Quality classifies a reading after validation.
type Quality string

const (
	QualityGood       Quality = "good"
	QualityStale      Quality = "stale"
	QualityOutOfRange Quality = "out_of_range"
	QualityMalformed  Quality = "malformed"
)

// SensorType identifies the physical quantity a sensor measures.
type SensorType string

const (
	SensorTemperature SensorType = "temperature"
	SensorPressure    SensorType = "pressure"
	SensorFlow        SensorType = "flow"
	SensorLevel       SensorType = "level"
	SensorPH          SensorType = "ph"
)

// Reading is a single timestamped sensor measurement. Once accepted by the
// validator it is immutable.
type Reading struct {
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	Quality   Quality   `json:"quality"`
}

// ReadingCandidate is a raw measurement as pushed by a source, before
// validation has assigned a quality.
type ReadingCandidate struct {
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// Rejection records why a candidate was refused. It is kept as a liveness
// signal for the query facade; the candidate itself is never persisted.
type Rejection struct {
	SensorID string    `json:"sensor_id"`
	Reason   Quality   `json:"reason"`
	Value    float64   `json:"value"`
	At       time.Time `json:"at"`
}

// SensorConfig carries the alarm bounds and sampling contract for one sensor.
// Snapshots are immutable; updates go through the config store.
type SensorConfig struct {
	SensorID         string        `yaml:"sensor_id"`
	Type             SensorType    `yaml:"type"`
	Unit             string        `yaml:"unit"`
	WarningLow       float64       `yaml:"warning_low"`
	WarningHigh      float64       `yaml:"warning_high"`
	CriticalLow      float64       `yaml:"critical_low"`
	CriticalHigh     float64       `yaml:"critical_high"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	MaxStaleness     time.Duration `yaml:"max_staleness"`
}
