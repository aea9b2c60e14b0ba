// Package cache holds the hot-path view of the plant: the latest accepted
// reading per sensor plus a fixed-capacity rolling window feeding short-term
// statistics and the anomaly engine. Reads never observe a torn write.
package cache

import (
	"sync"

	"github.com/farandaway89/scada-ai-system/internal/models"
)

// Cache is the in-memory latest-value store.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	windowSize int
}

// entry owns one sensor's hot state. The window is a circular buffer
// indexed by head/size; it never reallocates after creation.
type entry struct {
	mu        sync.RWMutex
	latest    models.Reading
	hasLatest bool
	window    []models.Reading
	head      int
	size      int
}

// New creates a cache whose rolling windows hold windowSize readings.
func New(windowSize int) *Cache {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &Cache{
		entries:    make(map[string]*entry),
		windowSize: windowSize,
	}
}

func (c *Cache) entryFor(sensorID string) *entry {
	c.mu.RLock()
	e, ok := c.entries[sensorID]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[sensorID]; ok {
		return e
	}
	e = &entry{window: make([]models.Reading, c.windowSize)}
	c.entries[sensorID] = e
	return e
}

// Publish atomically installs a new accepted reading as the sensor's latest
// value and appends it to the rolling window.
func (c *Cache) Publish(reading models.Reading) {
	e := c.entryFor(reading.SensorID)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.latest = reading
	e.hasLatest = true

	e.window[e.head] = reading
	e.head = (e.head + 1) % len(e.window)
	if e.size < len(e.window) {
		e.size++
	}
}

// Latest returns the most recently accepted reading for a sensor.
func (c *Cache) Latest(sensorID string) (models.Reading, bool) {
	c.mu.RLock()
	e, ok := c.entries[sensorID]
	c.mu.RUnlock()
	if !ok {
		return models.Reading{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest, e.hasLatest
}

// Window returns a copy of the rolling window in arrival order.
func (c *Cache) Window(sensorID string) []models.Reading {
	c.mu.RLock()
	e, ok := c.entries[sensorID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.size == 0 {
		return nil
	}
	out := make([]models.Reading, e.size)
	start := (e.head - e.size + len(e.window)) % len(e.window)
	for i := 0; i < e.size; i++ {
		out[i] = e.window[(start+i)%len(e.window)]
	}
	return out
}

// RateOfChange returns the value delta per second across the window's span.
// It reports false with fewer than two samples or a zero time span.
func (c *Cache) RateOfChange(sensorID string) (float64, bool) {
	window := c.Window(sensorID)
	if len(window) < 2 {
		return 0, false
	}

	first := window[0]
	last := window[len(window)-1]
	span := last.Timestamp.Sub(first.Timestamp).Seconds()
	if span <= 0 {
		return 0, false
	}
	return (last.Value - first.Value) / span, true
}

// Remove releases a sensor's cache entry on stream teardown.
func (c *Cache) Remove(sensorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sensorID)
}

// Sensors lists the sensors with cached state.
func (c *Cache) Sensors() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}
