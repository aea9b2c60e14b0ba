package models

import (
	"fmt"
	"time"
)

// Severity orders how far a value or anomaly score deviates from normal.
type Severity string

const (
	SeverityNone      Severity = "none"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Rank returns the ordering position of a severity; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	case SeverityEmergency:
		return 3
	default:
		return 0
	}
}

// RuleSource identifies which engine produced an alert.
type RuleSource string

const (
	SourceThreshold RuleSource = "threshold"
	SourceAnomaly   RuleSource = "anomaly"
	SourceManual    RuleSource = "manual"
)

// DedupKey is the identity used to prevent duplicate active alerts for the
// same condition. At most one unacknowledged AlertEvent exists per key.
type DedupKey struct {
	SensorID string
	Source   RuleSource
	Severity Severity
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.SensorID, k.Source, k.Severity)
}

// AlertEvent is a raised alert. Created by the threshold or anomaly engines
// (or an operator), mutated only through acknowledge/resolve on the alert
// manager.
type AlertEvent struct {
	ID          string     `json:"id"`
	SensorID    string     `json:"sensor_id"`
	Severity    Severity   `json:"severity"`
	RuleSource  RuleSource `json:"rule_source"`
	Message     string     `json:"message"`
	Value       float64    `json:"value"`
	TriggeredAt time.Time  `json:"triggered_at"`

	Acknowledged bool      `json:"acknowledged"`
	AckBy        string    `json:"ack_by,omitempty"`
	AckAt        time.Time `json:"ack_at,omitempty"`
	Resolved     bool      `json:"resolved"`
	ResolvedBy   string    `json:"resolved_by,omitempty"`
	ResolvedAt   time.Time `json:"resolved_at,omitempty"`

	// RateLimited marks events recorded while outbound dispatch was capped.
	RateLimited bool `json:"rate_limited"`
	// Delivered is false when every notification attempt exhausted its
	// retry budget; the event is kept either way.
	Delivered bool `json:"delivered"`
}

// Key returns the dedup identity of the event.
func (a AlertEvent) Key() DedupKey {
	return DedupKey{SensorID: a.SensorID, Source: a.RuleSource, Severity: a.Severity}
}
