package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/models"
)

func TestMemoryStoreHistoryRange(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		r := models.Reading{
			SensorID:  "T001",
			Value:     20.0 + float64(i),
			Unit:      "°C",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Quality:   models.QualityGood,
		}
		if err := store.AppendReading(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.History(ctx, "T001", base.Add(2*time.Minute), base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 readings in range, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("history out of order at %d", i)
		}
	}
	if got[0].Value != 22.0 {
		t.Fatalf("expected first value 22.0, got %v", got[0].Value)
	}
}

func TestMemoryStoreHistoryUnknownSensor(t *testing.T) {
	store := NewMemoryStore()
	got, err := store.History(context.Background(), "missing", time.Time{}, time.Now())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
}

func TestMemoryStoreAlertLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	event := models.AlertEvent{
		ID:          "a-1",
		SensorID:    "PH001",
		Severity:    models.SeverityCritical,
		RuleSource:  models.SourceThreshold,
		Message:     "pH above critical limit",
		Value:       8.6,
		TriggeredAt: now,
	}
	if err := store.SaveAlert(ctx, event); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetAlert(ctx, "a-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SensorID != "PH001" || got.Severity != models.SeverityCritical {
		t.Fatalf("unexpected alert %+v", got)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(active))
	}

	event.Resolved = true
	event.ResolvedBy = "operator"
	event.ResolvedAt = now.Add(time.Minute)
	if err := store.SaveAlert(ctx, event); err != nil {
		t.Fatalf("resolve save: %v", err)
	}

	active, err = store.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active after resolve: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active alerts, got %d", len(active))
	}

	history, err := store.AlertHistory(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("alert history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 alert in history, got %d", len(history))
	}
}

func TestMemoryStoreGetAlertNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetAlert(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
