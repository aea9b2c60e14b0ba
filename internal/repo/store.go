// Package repo implements the durable persistence sink: an append-only
// reading log keyed by (sensor, timestamp) and an alert table indexed by
// dedup key. The hot path never blocks on it; writes go through an async
// worker and failures are retried with backoff while live queries keep
// serving from cache.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/models"
)

// ErrNotFound signals that a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ReadingStore is the append-only durable log of accepted readings.
type ReadingStore interface {
	AppendReading(ctx context.Context, reading models.Reading) error
	History(ctx context.Context, sensorID string, from, to time.Time) ([]models.Reading, error)
	Close() error
}

// AlertStore keeps the full alert record, including acknowledged, resolved,
// rate-limited and undelivered events; retention here is compliance-driven
// and independent of the hot-path dedup table.
type AlertStore interface {
	SaveAlert(ctx context.Context, event models.AlertEvent) error
	GetAlert(ctx context.Context, id string) (models.AlertEvent, error)
	ListActive(ctx context.Context) ([]models.AlertEvent, error)
	AlertHistory(ctx context.Context, from, to time.Time) ([]models.AlertEvent, error)
	Close() error
}

// Store bundles both sinks behind one backend handle.
type Store interface {
	ReadingStore
	AlertStore
}
