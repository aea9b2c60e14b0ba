package ingest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/config"
	"github.com/farandaway89/scada-ai-system/internal/models"
)

type recordingSubmitter struct {
	readings []models.Reading
	err      error
}

func (r *recordingSubmitter) Submit(reading models.Reading) error {
	if r.err != nil {
		return r.err
	}
	r.readings = append(r.readings, reading)
	return nil
}

func newTestValidator(t *testing.T) (*Validator, *recordingSubmitter, time.Time) {
	t.Helper()

	cfg := &config.Config{
		Queue:    config.QueueConfig{Capacity: 16, WindowSize: 16},
		Engine:   config.EngineConfig{MinSamples: 5, WarningZScore: 3, CriticalZScore: 4.5},
		Alerting: config.AlertingConfig{RateLimitPerHour: 100},
		Ingest:   config.IngestConfig{SkewTolerance: 5 * time.Second},
		Sensors: []models.SensorConfig{
			{SensorID: "PH001", Type: models.SensorPH, Unit: "pH",
				WarningLow: 6, WarningHigh: 8, CriticalLow: 5.5, CriticalHigh: 8.5,
				SamplingInterval: time.Second, MaxStaleness: 10 * time.Second},
		},
	}
	cfgStore, err := config.NewStore(cfg)
	if err != nil {
		t.Fatalf("config store: %v", err)
	}

	next := &recordingSubmitter{}
	v := NewValidator(nil, cfgStore, next)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }
	return v, next, now
}

func TestValidatorAcceptsGoodReading(t *testing.T) {
	v, next, now := newTestValidator(t)

	reading, err := v.Ingest(models.ReadingCandidate{SensorID: "PH001", Value: 7.2, Unit: "pH", Timestamp: now})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if reading.Quality != models.QualityGood {
		t.Fatalf("expected quality good, got %s", reading.Quality)
	}
	if len(next.readings) != 1 {
		t.Fatalf("expected 1 forwarded reading, got %d", len(next.readings))
	}
}

func TestValidatorRejectsUnknownSensor(t *testing.T) {
	v, next, now := newTestValidator(t)

	_, err := v.Ingest(models.ReadingCandidate{SensorID: "GHOST", Value: 1, Timestamp: now})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if len(next.readings) != 0 {
		t.Fatal("rejected reading must not be forwarded")
	}
	if got := v.RejectionCount("GHOST"); got != 1 {
		t.Fatalf("expected rejection count 1, got %d", got)
	}
}

func TestValidatorRejectsNonFiniteValues(t *testing.T) {
	v, _, now := newTestValidator(t)

	for _, value := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := v.Ingest(models.ReadingCandidate{SensorID: "PH001", Value: value, Timestamp: now})
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("value %v: expected ErrMalformed, got %v", value, err)
		}
	}
}

func TestValidatorRejectsPhysicallyImplausibleValue(t *testing.T) {
	v, _, now := newTestValidator(t)

	// pH 17 is not an alarm condition, it is a broken probe.
	_, err := v.Ingest(models.ReadingCandidate{SensorID: "PH001", Value: 17, Timestamp: now})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}

	rejections := v.RecentRejections(10)
	if len(rejections) != 1 || rejections[0].Reason != models.QualityOutOfRange {
		t.Fatalf("expected one out_of_range rejection, got %+v", rejections)
	}
}

func TestValidatorRejectsStaleReading(t *testing.T) {
	v, _, now := newTestValidator(t)

	_, err := v.Ingest(models.ReadingCandidate{SensorID: "PH001", Value: 7, Timestamp: now.Add(-time.Minute)})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestValidatorRejectsFutureTimestamp(t *testing.T) {
	v, _, now := newTestValidator(t)

	// Within skew tolerance passes.
	if _, err := v.Ingest(models.ReadingCandidate{SensorID: "PH001", Value: 7, Timestamp: now.Add(3 * time.Second)}); err != nil {
		t.Fatalf("reading within skew tolerance should pass: %v", err)
	}

	_, err := v.Ingest(models.ReadingCandidate{SensorID: "PH001", Value: 7, Timestamp: now.Add(time.Minute)})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for future timestamp, got %v", err)
	}
}

func TestValidatorCountsPerSensor(t *testing.T) {
	v, _, now := newTestValidator(t)

	for i := 0; i < 3; i++ {
		v.Ingest(models.ReadingCandidate{SensorID: "PH001", Value: math.NaN(), Timestamp: now})
	}
	if got := v.RejectionCount("PH001"); got != 3 {
		t.Fatalf("expected 3 rejections, got %d", got)
	}
	if got := v.RejectionCount("T001"); got != 0 {
		t.Fatalf("expected 0 rejections for other sensor, got %d", got)
	}
}
