package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/models"
)

// MemoryStore is an in-process Store used in tests and when running without
// a Redis backend. Readings are kept per sensor in arrival order.
type MemoryStore struct {
	mu       sync.RWMutex
	readings map[string][]models.Reading
	alerts   map[string]models.AlertEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		readings: make(map[string][]models.Reading),
		alerts:   make(map[string]models.AlertEvent),
	}
}

// AppendReading appends to the sensor's in-memory log.
func (m *MemoryStore) AppendReading(_ context.Context, reading models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[reading.SensorID] = append(m.readings[reading.SensorID], reading)
	return nil
}

// History returns readings within [from, to], oldest first.
func (m *MemoryStore) History(_ context.Context, sensorID string, from, to time.Time) ([]models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Reading
	for _, r := range m.readings[sensorID] {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// SaveAlert upserts the alert record.
func (m *MemoryStore) SaveAlert(_ context.Context, event models.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[event.ID] = event
	return nil
}

// GetAlert fetches a single alert record by id.
func (m *MemoryStore) GetAlert(_ context.Context, id string) (models.AlertEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	event, ok := m.alerts[id]
	if !ok {
		return models.AlertEvent{}, ErrNotFound
	}
	return event, nil
}

// ListActive returns all unresolved alerts.
func (m *MemoryStore) ListActive(_ context.Context) ([]models.AlertEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.AlertEvent
	for _, event := range m.alerts {
		if !event.Resolved {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.Before(out[j].TriggeredAt) })
	return out, nil
}

// AlertHistory returns alerts triggered within [from, to], oldest first.
func (m *MemoryStore) AlertHistory(_ context.Context, from, to time.Time) ([]models.AlertEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.AlertEvent
	for _, event := range m.alerts {
		if event.TriggeredAt.Before(from) || event.TriggeredAt.After(to) {
			continue
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.Before(out[j].TriggeredAt) })
	return out, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }
