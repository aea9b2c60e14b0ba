package engine

import (
	"errors"
	"math"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/models"
)

var (
	// ErrInsufficientSamples is returned when a window is too small to fit.
	ErrInsufficientSamples = errors.New("insufficient samples to train")
	// ErrDegenerateWindow is returned when a window has zero variance.
	ErrDegenerateWindow = errors.New("window has zero variance")
	// ErrModelNotReady is returned when predictions are requested before a
	// model has been trained.
	ErrModelNotReady = errors.New("model not trained")
)

// OutlierModel scores readings by distance from a reference distribution
// fitted over the rolling window.
type OutlierModel struct {
	Mean    float64
	StdDev  float64
	Samples int
}

// TrainOutlier fits the reference distribution. A window with no variance
// cannot produce meaningful z-scores and is rejected.
func TrainOutlier(values []float64) (*OutlierModel, error) {
	if len(values) < 2 {
		return nil, ErrInsufficientSamples
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += math.Pow(v-mean, 2)
	}
	variance /= float64(len(values))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return nil, ErrDegenerateWindow
	}

	return &OutlierModel{Mean: mean, StdDev: stdDev, Samples: len(values)}, nil
}

// Score returns the absolute z-score of a value with severity mapped against
// the configured cutoffs.
func (m *OutlierModel) Score(value, warnZ, critZ float64) models.ScoreResult {
	z := math.Abs((value - m.Mean) / m.StdDev)
	severity := models.SeverityNone
	switch {
	case z >= critZ:
		severity = models.SeverityCritical
	case z >= warnZ:
		severity = models.SeverityWarning
	}
	return models.ScoreResult{Score: z, Severity: severity, Confidence: 1}
}

// ForecastModel extrapolates a short-term linear trend fitted by least
// squares over the rolling window.
type ForecastModel struct {
	Intercept   float64
	Slope       float64
	ResidualMAE float64
	Samples     int
}

// TrainForecast fits the trend line and records the in-sample residual error
// used for confidence.
func TrainForecast(values []float64) (*ForecastModel, error) {
	n := len(values)
	if n < 2 {
		return nil, ErrInsufficientSamples
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return nil, ErrDegenerateWindow
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	mae := 0.0
	for i, v := range values {
		mae += math.Abs(v - (intercept + slope*float64(i)))
	}
	mae /= fn

	return &ForecastModel{Intercept: intercept, Slope: slope, ResidualMAE: mae, Samples: n}, nil
}

// At returns the fitted value at window index i. Indexes at or beyond
// Samples are extrapolations.
func (m *ForecastModel) At(i int) float64 {
	return m.Intercept + m.Slope*float64(i)
}

// Predict extrapolates the next steps values past the training window.
func (m *ForecastModel) Predict(steps int) []float64 {
	if steps <= 0 {
		return nil
	}
	out := make([]float64, steps)
	for k := 0; k < steps; k++ {
		out[k] = m.At(m.Samples + k)
	}
	return out
}

// Model is the closed pair of fitted variants serving one sensor: the
// outlier detector scores each reading, the forecaster supplies predictions
// and the drift signal. Once trained it is never mutated; retraining builds
// a replacement and swaps it in whole.
type Model struct {
	Outlier   *OutlierModel
	Forecast  *ForecastModel
	WindowStd float64
	TrainedAt time.Time
}

// TrainModel fits both variants over the same window.
func TrainModel(values []float64, now time.Time) (*Model, error) {
	outlier, err := TrainOutlier(values)
	if err != nil {
		return nil, err
	}
	forecast, err := TrainForecast(values)
	if err != nil {
		return nil, err
	}
	return &Model{
		Outlier:   outlier,
		Forecast:  forecast,
		WindowStd: outlier.StdDev,
		TrainedAt: now,
	}, nil
}

// Confidence derives prediction confidence from the residual error of the
// trend fit, normalised by the window's spread. A perfect fit approaches 1.
func (m *Model) Confidence() float64 {
	if m.WindowStd == 0 {
		return 1
	}
	return 1 / (1 + m.Forecast.ResidualMAE/m.WindowStd)
}

// Score dispatches over the variants: the reading is scored against the
// reference distribution and against the trend prediction at window offset
// observed; the worse severity wins. observed counts readings seen since
// training.
func (m *Model) Score(value float64, observed int, warnZ, critZ float64) models.ScoreResult {
	result := m.Outlier.Score(value, warnZ, critZ)

	predicted := m.Forecast.At(m.Forecast.Samples + observed)
	residualZ := math.Abs(value-predicted) / m.WindowStd
	if residualZ > result.Score {
		result.Score = residualZ
		switch {
		case residualZ >= critZ:
			result.Severity = models.SeverityCritical
		case residualZ >= warnZ:
			if result.Severity.Rank() < models.SeverityWarning.Rank() {
				result.Severity = models.SeverityWarning
			}
		}
	}

	result.Confidence = m.Confidence()
	return result
}
