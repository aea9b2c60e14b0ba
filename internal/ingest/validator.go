package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/config"
	"github.com/farandaway89/scada-ai-system/internal/metrics"
	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/stream"
)

var (
	// ErrMalformed marks candidates with non-finite values, unknown sensors,
	// or future timestamps beyond the skew tolerance.
	ErrMalformed = errors.New("malformed reading")
	// ErrOutOfRange marks values outside the sensor type's physical envelope.
	ErrOutOfRange = errors.New("reading out of physical range")
	// ErrStale marks readings older than the sensor's staleness limit.
	ErrStale = errors.New("reading stale")
)

// physicalRange is the per-type sanity envelope, independent of alarm
// bounds. A pH of 17 is not an alarm, it is a broken sensor.
var physicalRange = map[models.SensorType][2]float64{
	models.SensorTemperature: {-273.15, 2000},
	models.SensorPressure:    {0, 1000},
	models.SensorFlow:        {0, 100000},
	models.SensorLevel:       {0, 100},
	models.SensorPH:          {0, 14},
}

// Submitter accepts validated readings; the pipeline implements it.
type Submitter interface {
	Submit(models.Reading) error
}

// Validator is the single admission point for raw reading candidates. Every
// source pushes through Ingest; rejected candidates are counted and recorded
// but never forwarded.
type Validator struct {
	logger *slog.Logger
	cfg    *config.Store
	next   Submitter
	now    func() time.Time

	mu     sync.Mutex
	counts map[string]uint64
	recent *stream.Ring[models.Rejection]
}

// NewValidator wires a validator in front of the pipeline.
func NewValidator(logger *slog.Logger, cfg *config.Store, next Submitter) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		logger: logger,
		cfg:    cfg,
		next:   next,
		now:    time.Now,
		counts: make(map[string]uint64),
		recent: stream.NewRing[models.Rejection](128),
	}
}

// Validate classifies a candidate without forwarding it. On success the
// returned reading carries QualityGood and is immutable from here on.
func (v *Validator) Validate(candidate models.ReadingCandidate) (models.Reading, error) {
	snapshot := v.cfg.Current()

	sc, ok := snapshot.Sensor(candidate.SensorID)
	if !ok {
		return models.Reading{}, fmt.Errorf("%w: unknown sensor %s", ErrMalformed, candidate.SensorID)
	}

	if math.IsNaN(candidate.Value) || math.IsInf(candidate.Value, 0) {
		return models.Reading{}, fmt.Errorf("%w: non-finite value for %s", ErrMalformed, candidate.SensorID)
	}
	if candidate.Timestamp.IsZero() {
		return models.Reading{}, fmt.Errorf("%w: zero timestamp for %s", ErrMalformed, candidate.SensorID)
	}

	now := v.now().UTC()
	if candidate.Timestamp.After(now.Add(snapshot.Config.Ingest.SkewTolerance)) {
		return models.Reading{}, fmt.Errorf("%w: timestamp %s ahead of pipeline clock", ErrMalformed, candidate.Timestamp.Format(time.RFC3339))
	}
	if now.Sub(candidate.Timestamp) > sc.MaxStaleness {
		return models.Reading{}, fmt.Errorf("%w: %s reading aged %s beyond limit %s",
			ErrStale, candidate.SensorID, now.Sub(candidate.Timestamp).Truncate(time.Millisecond), sc.MaxStaleness)
	}

	if bounds, ok := physicalRange[sc.Type]; ok {
		if candidate.Value < bounds[0] || candidate.Value > bounds[1] {
			return models.Reading{}, fmt.Errorf("%w: %s value %.2f outside [%.2f, %.2f]",
				ErrOutOfRange, candidate.SensorID, candidate.Value, bounds[0], bounds[1])
		}
	}

	return models.Reading{
		SensorID:  candidate.SensorID,
		Value:     candidate.Value,
		Unit:      candidate.Unit,
		Timestamp: candidate.Timestamp,
		Quality:   models.QualityGood,
	}, nil
}

// Ingest validates a candidate and forwards it to the pipeline. Rejections
// are recorded as liveness signals and dropped.
func (v *Validator) Ingest(candidate models.ReadingCandidate) (models.Reading, error) {
	reading, err := v.Validate(candidate)
	if err != nil {
		v.reject(candidate, err)
		return models.Reading{}, err
	}

	if err := v.next.Submit(reading); err != nil {
		v.reject(candidate, fmt.Errorf("%w: %v", ErrMalformed, err))
		return models.Reading{}, err
	}
	metrics.ReadingAccepted(reading.SensorID)
	return reading, nil
}

// RejectionCount reports how many candidates a sensor has had refused.
func (v *Validator) RejectionCount(sensorID string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[sensorID]
}

// RecentRejections drains the buffer of recent rejection events, oldest
// first.
func (v *Validator) RecentRejections(max int) []models.Rejection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.recent.PopBatch(max)
}

func (v *Validator) reject(candidate models.ReadingCandidate, err error) {
	reason := rejectionReason(err)
	metrics.ReadingRejected(candidate.SensorID, string(reason))

	v.mu.Lock()
	v.counts[candidate.SensorID]++
	v.recent.Push(models.Rejection{
		SensorID: candidate.SensorID,
		Reason:   reason,
		Value:    candidate.Value,
		At:       v.now().UTC(),
	})
	v.mu.Unlock()

	v.logger.Debug("reading rejected",
		slog.String("sensor", candidate.SensorID),
		slog.String("reason", string(reason)),
		slog.Float64("value", candidate.Value),
		slog.Any("error", err))
}

func rejectionReason(err error) models.Quality {
	switch {
	case errors.Is(err, ErrStale):
		return models.QualityStale
	case errors.Is(err, ErrOutOfRange):
		return models.QualityOutOfRange
	default:
		return models.QualityMalformed
	}
}
