package engine

import (
	"fmt"

	"github.com/farandaway89/scada-ai-system/internal/models"
)

// EvaluateThreshold classifies a reading against its sensor's alarm bounds.
// Bounds are inclusive: a value sitting exactly on a boundary breaches it.
// The critical band wins when both bands are crossed.
func EvaluateThreshold(reading models.Reading, sc models.SensorConfig) models.Severity {
	v := reading.Value
	if v <= sc.CriticalLow || v >= sc.CriticalHigh {
		return models.SeverityCritical
	}
	if v <= sc.WarningLow || v >= sc.WarningHigh {
		return models.SeverityWarning
	}
	return models.SeverityNone
}

// ThresholdMessage names the breached boundary for alert text.
func ThresholdMessage(reading models.Reading, sc models.SensorConfig, severity models.Severity) string {
	v := reading.Value
	switch severity {
	case models.SeverityCritical:
		if v <= sc.CriticalLow {
			return fmt.Sprintf("%s value %.2f %s at or below critical low %.2f", reading.SensorID, v, reading.Unit, sc.CriticalLow)
		}
		return fmt.Sprintf("%s value %.2f %s at or above critical high %.2f", reading.SensorID, v, reading.Unit, sc.CriticalHigh)
	case models.SeverityWarning:
		if v <= sc.WarningLow {
			return fmt.Sprintf("%s value %.2f %s at or below warning low %.2f", reading.SensorID, v, reading.Unit, sc.WarningLow)
		}
		return fmt.Sprintf("%s value %.2f %s at or above warning high %.2f", reading.SensorID, v, reading.Unit, sc.WarningHigh)
	default:
		return fmt.Sprintf("%s value %.2f %s within bounds", reading.SensorID, v, reading.Unit)
	}
}
