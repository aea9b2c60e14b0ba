package engine

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/config"
	"github.com/farandaway89/scada-ai-system/internal/metrics"
	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/utils"
)

// degradedConfidenceCap is the ceiling applied to confidence while a model
// serves stale predictions awaiting retraining.
const degradedConfidenceCap = 0.45

// ModelState tracks one sensor's analytics lifecycle
// (Uninitialized→Training→Ready→Degraded). The sensor's pipeline worker and
// the retrain loop mutate it; the facade reads it, so access goes through a
// lock and the fitted model is swapped whole.
type ModelState struct {
	sensorID string

	mu              sync.RWMutex
	phase           models.ModelPhase
	model           *Model
	anomalyVersion  uint64
	forecastVersion uint64
	lastTrainedAt   time.Time

	observed   int // readings scored since the last training
	driftErrs  []float64
	driftHead  int
	driftCount int
}

// NewModelState creates the lifecycle tracker for a sensor.
func NewModelState(sensorID string) *ModelState {
	s := &ModelState{sensorID: sensorID, phase: models.PhaseUninitialized}
	metrics.SetModelPhase(sensorID, phaseOrdinal(s.phase))
	return s
}

// Phase returns the current lifecycle phase.
func (s *ModelState) Phase() models.ModelPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Version returns the anomaly model version; zero until first training.
func (s *ModelState) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anomalyVersion
}

// LastTrainedAt returns when the active model was fitted.
func (s *ModelState) LastTrainedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTrainedAt
}

// Observe advances the state machine with one accepted reading. The window
// is the sensor's current rolling window including the reading. While the
// model is below MinSamples nothing is scored. The returned bool requests an
// event-triggered retrain (entering Degraded).
func (s *ModelState) Observe(value float64, window []float64, tuning config.EngineConfig, logger *slog.Logger) (models.ScoreResult, bool) {
	if logger == nil {
		logger = slog.Default()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case models.PhaseUninitialized:
		s.setPhase(models.PhaseTraining)
		fallthrough
	case models.PhaseTraining:
		if len(window) < tuning.MinSamples {
			return models.ScoreResult{}, false
		}
		model, err := TrainModel(window, time.Now().UTC())
		if err != nil {
			// Degenerate window: keep accumulating samples.
			logger.Warn("model training deferred",
				slog.String("sensor", s.sensorID),
				slog.Int("samples", len(window)),
				slog.Any("error", err))
			return models.ScoreResult{}, false
		}
		s.install(model)
		s.setPhase(models.PhaseReady)
		return models.ScoreResult{}, false
	}

	result := s.model.Score(value, s.observed, tuning.WarningZScore, tuning.CriticalZScore)

	predicted := s.model.Forecast.At(s.model.Forecast.Samples + s.observed)
	s.observed++
	s.pushDriftError(math.Abs(value-predicted), tuning.DriftWindow)

	retrain := false
	if s.phase == models.PhaseReady && s.driftCount >= tuning.DriftWindow &&
		s.meanDriftError() > tuning.DriftSigma*s.model.WindowStd {
		s.setPhase(models.PhaseDegraded)
		logger.Warn("forecast drift detected, retrain scheduled",
			slog.String("sensor", s.sensorID),
			slog.Float64("mean_abs_error", s.meanDriftError()),
			slog.Float64("window_stddev", s.model.WindowStd))
		retrain = true
	}
	if s.phase == models.PhaseDegraded {
		result.Confidence = math.Min(result.Confidence, degradedConfidenceCap)
	}
	return result, retrain
}

// Retrain fits a replacement model over the full current window and swaps it
// in. On failure the active model keeps serving and the phase is unchanged.
func (s *ModelState) Retrain(window []float64, now time.Time) error {
	model, err := TrainModel(window, now)
	if err != nil {
		return utils.NewAppError("engine.Retrain", utils.KindModelTraining, "retrain failed for "+s.sensorID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(model)
	s.setPhase(models.PhaseReady)
	return nil
}

// Predict extrapolates steps values beyond the most recent observation.
// Degraded models still answer but carry capped confidence.
func (s *ModelState) Predict(steps int, now time.Time) (models.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.model == nil {
		return models.Forecast{}, ErrModelNotReady
	}

	base := s.model.Forecast.Samples + s.observed
	values := make([]float64, steps)
	for k := 0; k < steps; k++ {
		values[k] = s.model.Forecast.At(base + k)
	}

	confidence := s.model.Confidence()
	if s.phase == models.PhaseDegraded {
		confidence = math.Min(confidence, degradedConfidenceCap)
	}

	return models.Forecast{
		SensorID:   s.sensorID,
		Steps:      steps,
		Values:     values,
		Confidence: confidence,
		IssuedAt:   now,
	}, nil
}

// Status reports phase and model version together under one lock.
func (s *ModelState) Status() (models.ModelPhase, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase, s.anomalyVersion
}

func (s *ModelState) install(model *Model) {
	s.model = model
	s.anomalyVersion++
	s.forecastVersion++
	s.lastTrainedAt = model.TrainedAt
	s.observed = 0
	s.driftErrs = nil
	s.driftHead = 0
	s.driftCount = 0
}

func (s *ModelState) setPhase(phase models.ModelPhase) {
	s.phase = phase
	metrics.SetModelPhase(s.sensorID, phaseOrdinal(phase))
}

func (s *ModelState) pushDriftError(absErr float64, window int) {
	if window <= 0 {
		return
	}
	if len(s.driftErrs) != window {
		s.driftErrs = make([]float64, window)
		s.driftHead = 0
		s.driftCount = 0
	}
	s.driftErrs[s.driftHead] = absErr
	s.driftHead = (s.driftHead + 1) % window
	if s.driftCount < window {
		s.driftCount++
	}
}

func (s *ModelState) meanDriftError() float64 {
	if s.driftCount == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < s.driftCount; i++ {
		sum += s.driftErrs[i]
	}
	return sum / float64(s.driftCount)
}

func phaseOrdinal(phase models.ModelPhase) int {
	switch phase {
	case models.PhaseTraining:
		return 1
	case models.PhaseReady:
		return 2
	case models.PhaseDegraded:
		return 3
	default:
		return 0
	}
}
