package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/alerting"
	"github.com/farandaway89/scada-ai-system/internal/cache"
	"github.com/farandaway89/scada-ai-system/internal/config"
	"github.com/farandaway89/scada-ai-system/internal/engine"
	"github.com/farandaway89/scada-ai-system/internal/ingest"
	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/repo"
)

// Facade is the narrow surface outer layers (HTTP, websocket, reports) call
// into. Everything here reads from the cache, the engine, or the stores;
// nothing touches the hot path.
type Facade struct {
	logger    *slog.Logger
	cfg       *config.Store
	cache     *cache.Cache
	store     repo.ReadingStore
	alerts    *alerting.Manager
	pipeline  *engine.Pipeline
	validator *ingest.Validator
	feed      *Feed
}

// NewFacade wires the query/subscription surface.
func NewFacade(
	logger *slog.Logger,
	cfg *config.Store,
	c *cache.Cache,
	store repo.ReadingStore,
	alerts *alerting.Manager,
	pipeline *engine.Pipeline,
	validator *ingest.Validator,
	feed *Feed,
) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		logger:    logger,
		cfg:       cfg,
		cache:     c,
		store:     store,
		alerts:    alerts,
		pipeline:  pipeline,
		validator: validator,
		feed:      feed,
	}
}

// Current returns the sensor's latest accepted reading with its severity
// classification and model state. Served from memory in O(1).
func (f *Facade) Current(sensorID string) (models.SensorStatus, error) {
	reading, ok := f.cache.Latest(sensorID)
	if !ok {
		return models.SensorStatus{}, fmt.Errorf("no reading for sensor %s", sensorID)
	}

	severity := models.SeverityNone
	if sc, configured := f.cfg.Current().Sensor(sensorID); configured {
		severity = engine.EvaluateThreshold(reading, sc)
	}

	phase, version, _ := f.pipeline.Status(sensorID)
	return models.SensorStatus{
		Reading:      reading,
		Severity:     severity,
		Phase:        phase,
		ModelVersion: version,
		Rejections:   f.validator.RejectionCount(sensorID),
	}, nil
}

// Sensors lists the sensors the cache currently holds readings for.
func (f *Facade) Sensors() []string {
	return f.cache.Sensors()
}

// History returns persisted readings for a sensor within [from, to].
func (f *Facade) History(ctx context.Context, sensorID string, from, to time.Time) ([]models.Reading, error) {
	return f.store.History(ctx, sensorID, from, to)
}

// Window returns the sensor's in-memory rolling window, oldest first.
func (f *Facade) Window(sensorID string) []models.Reading {
	return f.cache.Window(sensorID)
}

// RateOfChange reports the short-term trend over the rolling window.
func (f *Facade) RateOfChange(sensorID string) (float64, bool) {
	return f.cache.RateOfChange(sensorID)
}

// Forecast extrapolates steps values ahead for a sensor.
func (f *Facade) Forecast(sensorID string, steps int) (models.Forecast, error) {
	return f.pipeline.Forecast(sensorID, steps)
}

// StageLatencyP95 reports the 95th-percentile in-memory stage latency.
func (f *Facade) StageLatencyP95() time.Duration {
	return f.pipeline.StageLatency(95)
}

// ActiveAlerts lists unresolved alerts.
func (f *Facade) ActiveAlerts(ctx context.Context) ([]models.AlertEvent, error) {
	return f.alerts.Active(ctx)
}

// AlertHistory lists alerts triggered within a time range.
func (f *Facade) AlertHistory(ctx context.Context, from, to time.Time) ([]models.AlertEvent, error) {
	return f.alerts.History(ctx, from, to)
}

// Acknowledge marks an alert acknowledged on behalf of an operator.
func (f *Facade) Acknowledge(ctx context.Context, id, actor string) error {
	return f.alerts.Acknowledge(ctx, id, actor)
}

// Resolve closes an alert on behalf of an operator.
func (f *Facade) Resolve(ctx context.Context, id, actor string) error {
	return f.alerts.Resolve(ctx, id, actor)
}

// RaiseManual records an operator-initiated alert.
func (f *Facade) RaiseManual(ctx context.Context, sensorID string, severity models.Severity, value float64, message string) (models.AlertEvent, bool) {
	return f.alerts.RaiseManual(ctx, sensorID, severity, value, message)
}

// Subscribe attaches a live consumer to the reading/alert feed.
func (f *Facade) Subscribe(buffer int) *Subscription {
	return f.feed.Subscribe(buffer)
}

// Unsubscribe detaches a consumer.
func (f *Facade) Unsubscribe(sub *Subscription) {
	f.feed.Unsubscribe(sub)
}

// RecentRejections drains the buffer of recent rejection events.
func (f *Facade) RecentRejections(max int) []models.Rejection {
	return f.validator.RecentRejections(max)
}
