package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/farandaway89/scada-ai-system/internal/config"
	"github.com/farandaway89/scada-ai-system/internal/models"
)

func testTuning() config.EngineConfig {
	return config.EngineConfig{
		MinSamples:      10,
		WarningZScore:   3.0,
		CriticalZScore:  4.5,
		ForecastSteps:   3,
		RetrainInterval: time.Hour,
		DriftWindow:     3,
		DriftSigma:      3.0,
	}
}

// linearWindow returns 0, 1, ..., n-1: a varied window the trend fit
// recovers exactly.
func linearWindow(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestStateStaysTrainingBelowMinSamples(t *testing.T) {
	state := NewModelState("T001")
	tuning := testTuning()

	window := []float64{}
	for i := 0; i < tuning.MinSamples-1; i++ {
		window = append(window, float64(i))
		result, retrain := state.Observe(float64(i), window, tuning, nil)
		require.Equal(t, models.SeverityNone, result.Severity)
		require.Zero(t, result.Score)
		require.False(t, retrain)
	}
	require.Equal(t, models.PhaseTraining, state.Phase())
	require.Zero(t, state.Version())
}

func TestStateDegenerateWindowStaysTraining(t *testing.T) {
	state := NewModelState("L001")
	tuning := testTuning()

	window := make([]float64, tuning.MinSamples+5)
	for i := range window {
		window[i] = 42.0
	}
	result, retrain := state.Observe(42.0, window, tuning, nil)

	require.Equal(t, models.PhaseTraining, state.Phase())
	require.Equal(t, models.SeverityNone, result.Severity)
	require.False(t, retrain)
	require.Zero(t, state.Version())
}

func TestStateBecomesReadyAndScores(t *testing.T) {
	state := NewModelState("P001")
	tuning := testTuning()
	window := linearWindow(tuning.MinSamples)

	_, _ = state.Observe(window[len(window)-1], window, tuning, nil)
	require.Equal(t, models.PhaseReady, state.Phase())
	require.Equal(t, uint64(1), state.Version())

	// Mean 4.5, σ ≈ 2.87: a value of 50 is far beyond the critical cutoff.
	result, _ := state.Observe(50, append(window, 50), tuning, nil)
	require.Equal(t, models.SeverityCritical, result.Severity)
	require.Greater(t, result.Score, tuning.CriticalZScore)
}

func TestStateDriftDegradesAndRetrainRecovers(t *testing.T) {
	state := NewModelState("F001")
	tuning := testTuning()
	window := linearWindow(tuning.MinSamples)

	_, _ = state.Observe(window[len(window)-1], window, tuning, nil)
	require.Equal(t, models.PhaseReady, state.Phase())

	// The trend predicts 10, 11, 12...; feeding a constant far below keeps
	// the mean forecast error above DriftSigma times the window spread.
	retrainRequested := false
	for i := 0; i < tuning.DriftWindow; i++ {
		_, retrain := state.Observe(-100, window, tuning, nil)
		retrainRequested = retrainRequested || retrain
	}
	require.True(t, retrainRequested)
	require.Equal(t, models.PhaseDegraded, state.Phase())

	result, _ := state.Observe(-100, window, tuning, nil)
	require.LessOrEqual(t, result.Confidence, 0.5)

	forecast, err := state.Predict(3, time.Now())
	require.NoError(t, err)
	require.LessOrEqual(t, forecast.Confidence, 0.5)

	require.NoError(t, state.Retrain(linearWindow(tuning.MinSamples*2), time.Now()))
	require.Equal(t, models.PhaseReady, state.Phase())
	require.Equal(t, uint64(2), state.Version())
}

func TestStatePredictBeforeTraining(t *testing.T) {
	state := NewModelState("PH001")
	_, err := state.Predict(3, time.Now())
	require.ErrorIs(t, err, ErrModelNotReady)
}

func TestStatePredictExtrapolatesTrend(t *testing.T) {
	state := NewModelState("T001")
	tuning := testTuning()
	window := linearWindow(tuning.MinSamples)

	_, _ = state.Observe(window[len(window)-1], window, tuning, nil)
	require.Equal(t, models.PhaseReady, state.Phase())

	forecast, err := state.Predict(3, time.Now())
	require.NoError(t, err)
	require.Len(t, forecast.Values, 3)
	require.InDelta(t, float64(tuning.MinSamples), forecast.Values[0], 1e-9)
	require.InDelta(t, float64(tuning.MinSamples+2), forecast.Values[2], 1e-9)
	require.Greater(t, forecast.Confidence, 0.9)
}
