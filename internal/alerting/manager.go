package alerting

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farandaway89/scada-ai-system/internal/config"
	"github.com/farandaway89/scada-ai-system/internal/metrics"
	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/repo"
	"github.com/farandaway89/scada-ai-system/internal/utils"
)

const dedupShards = 16

// AlertSink receives every raised alert for live subscribers.
type AlertSink interface {
	PublishAlert(models.AlertEvent)
}

type dedupShard struct {
	mu     sync.Mutex
	active map[models.DedupKey]string // dedup key -> unacknowledged alert id
}

// Manager owns the alert lifecycle: deduplicated raising, rate-limited
// dispatch, acknowledge and resolve. At most one unacknowledged event exists
// per (sensor, source, severity) key.
type Manager struct {
	logger     *slog.Logger
	cfg        *config.Store
	store      repo.AlertStore
	limiter    *rateLimiter
	dispatcher *Dispatcher
	sink       AlertSink

	shards [dedupShards]dedupShard
	wg     sync.WaitGroup
}

// NewManager wires the alert manager. sink may be nil.
func NewManager(logger *slog.Logger, cfg *config.Store, store repo.AlertStore, dispatcher *Dispatcher, sink AlertSink) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:     logger,
		cfg:        cfg,
		store:      store,
		limiter:    newRateLimiter(cfg.Current().Config.Alerting.RateLimitPerHour, time.Hour),
		dispatcher: dispatcher,
		sink:       sink,
	}
	for i := range m.shards {
		m.shards[i].active = make(map[models.DedupKey]string)
	}
	return m
}

// Wait blocks until in-flight dispatches finish. Called on shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Raise records an alert condition. A second raise for the same dedup key
// while the first event is unacknowledged refreshes that event in place and
// does not dispatch again. The bool reports whether a new event was created.
func (m *Manager) Raise(ctx context.Context, sensorID string, severity models.Severity, source models.RuleSource, value float64, message string) (models.AlertEvent, bool) {
	key := models.DedupKey{SensorID: sensorID, Source: source, Severity: severity}
	shard := m.shardFor(key)
	now := time.Now().UTC()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if activeID, ok := shard.active[key]; ok {
		existing, err := m.store.GetAlert(ctx, activeID)
		if err == nil && !existing.Acknowledged && !existing.Resolved {
			existing.Value = value
			existing.Message = message
			existing.TriggeredAt = now
			if err := m.store.SaveAlert(ctx, existing); err != nil {
				m.logger.Error("alert refresh persist failed", slog.String("alert_id", existing.ID), slog.Any("error", err))
			}
			metrics.AlertRaised(string(severity), string(source), true)
			return existing, false
		}
		// The slot went stale (acked, resolved, or lost); fall through and
		// create a fresh event.
		delete(shard.active, key)
	}

	event := models.AlertEvent{
		ID:          uuid.NewString(),
		SensorID:    sensorID,
		Severity:    severity,
		RuleSource:  source,
		Message:     message,
		Value:       value,
		TriggeredAt: now,
	}

	dispatch := m.limiter.Allow(now)
	if dispatch {
		event.Delivered = true // optimistic; cleared if dispatch exhausts retries
	} else {
		event.RateLimited = true
		metrics.DispatchObserved("all", metrics.OutcomeSuppressed)
		m.logger.Warn("alert dispatch rate-limited",
			slog.String("alert_id", event.ID),
			slog.String("sensor", sensorID),
			slog.String("severity", string(severity)))
	}

	if err := m.store.SaveAlert(ctx, event); err != nil {
		m.logger.Error("alert persist failed", slog.String("alert_id", event.ID), slog.Any("error", err))
	}
	shard.active[key] = event.ID
	metrics.AlertRaised(string(severity), string(source), false)

	if dispatch {
		m.dispatch(event)
	}

	if m.sink != nil {
		m.sink.PublishAlert(event)
	}
	return event, true
}

// RaiseManual records an operator-initiated alert. It shares dedup and
// rate-limit semantics with engine-raised alerts.
func (m *Manager) RaiseManual(ctx context.Context, sensorID string, severity models.Severity, value float64, message string) (models.AlertEvent, bool) {
	return m.Raise(ctx, sensorID, severity, models.SourceManual, value, message)
}

// Acknowledge marks an alert acknowledged and frees its dedup slot so the
// next occurrence creates a fresh event. Acknowledging twice is a no-op.
func (m *Manager) Acknowledge(ctx context.Context, id, actor string) error {
	event, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if event.Acknowledged {
		return nil
	}

	event.Acknowledged = true
	event.AckBy = actor
	event.AckAt = time.Now().UTC()
	if err := m.store.SaveAlert(ctx, event); err != nil {
		return utils.NewAppError("alerting.Acknowledge", utils.KindPersistence, "save acknowledged alert", err)
	}

	m.releaseSlot(event)
	m.logger.Info("alert acknowledged", slog.String("alert_id", id), slog.String("actor", actor))
	return nil
}

// Resolve closes an alert and frees its dedup slot. Resolving twice is a
// no-op.
func (m *Manager) Resolve(ctx context.Context, id, actor string) error {
	event, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if event.Resolved {
		return nil
	}

	event.Resolved = true
	event.ResolvedBy = actor
	event.ResolvedAt = time.Now().UTC()
	if err := m.store.SaveAlert(ctx, event); err != nil {
		return utils.NewAppError("alerting.Resolve", utils.KindPersistence, "save resolved alert", err)
	}

	m.releaseSlot(event)
	m.logger.Info("alert resolved", slog.String("alert_id", id), slog.String("actor", actor))
	return nil
}

// Active lists unresolved alerts.
func (m *Manager) Active(ctx context.Context) ([]models.AlertEvent, error) {
	return m.store.ListActive(ctx)
}

// History lists alerts triggered within a time range.
func (m *Manager) History(ctx context.Context, from, to time.Time) ([]models.AlertEvent, error) {
	return m.store.AlertHistory(ctx, from, to)
}

// dispatch runs notification fan-out off the hot path. When the retry budget
// is exhausted the stored event is updated with Delivered=false.
func (m *Manager) dispatch(event models.AlertEvent) {
	if m.dispatcher == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if m.dispatcher.Dispatch(ctx, event) {
			return
		}
		stored, err := m.store.GetAlert(ctx, event.ID)
		if err != nil {
			stored = event
		}
		stored.Delivered = false
		if err := m.store.SaveAlert(ctx, stored); err != nil {
			m.logger.Error("undelivered alert persist failed", slog.String("alert_id", event.ID), slog.Any("error", err))
		}
	}()
}

func (m *Manager) releaseSlot(event models.AlertEvent) {
	key := event.Key()
	shard := m.shardFor(key)
	shard.mu.Lock()
	if shard.active[key] == event.ID {
		delete(shard.active, key)
	}
	shard.mu.Unlock()
}

func (m *Manager) shardFor(key models.DedupKey) *dedupShard {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return &m.shards[h.Sum32()%dedupShards]
}
