package ingest

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/config"
	"github.com/farandaway89/scada-ai-system/internal/models"
)

// archetype shapes the synthetic signal for one sensor type: a sine wave
// around a base level with gaussian noise.
type archetype struct {
	base      float64
	amplitude float64
	period    time.Duration
	noise     float64
}

var archetypes = map[models.SensorType]archetype{
	models.SensorTemperature: {base: 45, amplitude: 12, period: 10 * time.Minute, noise: 0.8},
	models.SensorPressure:    {base: 4.5, amplitude: 1.5, period: 7 * time.Minute, noise: 0.15},
	models.SensorFlow:        {base: 90, amplitude: 35, period: 12 * time.Minute, noise: 3.0},
	models.SensorLevel:       {base: 55, amplitude: 18, period: 20 * time.Minute, noise: 1.2},
	models.SensorPH:          {base: 7.0, amplitude: 0.4, period: 15 * time.Minute, noise: 0.05},
}

// spikeProbability injects an occasional off-trend excursion so downstream
// anomaly detection has something to find during demos.
const spikeProbability = 0.005

// Simulator generates synthetic readings for every configured sensor and
// pushes them through the validator like any external source.
type Simulator struct {
	logger    *slog.Logger
	cfg       *config.Store
	validator *Validator
	rng       *rand.Rand
	epoch     time.Time
}

// NewSimulator creates the synthetic source.
func NewSimulator(logger *slog.Logger, cfg *config.Store, validator *Validator) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		logger:    logger,
		cfg:       cfg,
		validator: validator,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		epoch:     time.Now(),
	}
}

// Run emits one candidate per sensor every scan tick until the context is
// cancelled.
func (s *Simulator) Run(ctx context.Context) {
	scanRate := s.cfg.Current().Config.Ingest.Simulator.ScanRate
	if scanRate <= 0 {
		scanRate = time.Second
	}

	ticker := time.NewTicker(scanRate)
	defer ticker.Stop()

	s.logger.Info("simulator started", slog.Duration("scan_rate", scanRate))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return
		case now := <-ticker.C:
			s.scan(now)
		}
	}
}

func (s *Simulator) scan(now time.Time) {
	snapshot := s.cfg.Current()
	for _, sensorID := range snapshot.SensorIDs() {
		sc, _ := snapshot.Sensor(sensorID)
		candidate := models.ReadingCandidate{
			SensorID:  sensorID,
			Value:     s.sample(sc, now),
			Unit:      sc.Unit,
			Timestamp: now.UTC(),
		}
		// Rejections are already counted by the validator.
		_, _ = s.validator.Ingest(candidate)
	}
}

func (s *Simulator) sample(sc models.SensorConfig, now time.Time) float64 {
	shape, ok := archetypes[sc.Type]
	if !ok {
		shape = archetype{base: (sc.WarningLow + sc.WarningHigh) / 2, amplitude: 1, period: 10 * time.Minute, noise: 0.1}
	}

	phase := 2 * math.Pi * float64(now.Sub(s.epoch)) / float64(shape.period)
	value := shape.base + shape.amplitude*math.Sin(phase) + s.rng.NormFloat64()*shape.noise

	if s.rng.Float64() < spikeProbability {
		value += shape.amplitude * 3 * (s.rng.Float64()*2 - 1)
	}
	return value
}
