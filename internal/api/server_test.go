package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/alerting"
	"github.com/farandaway89/scada-ai-system/internal/cache"
	"github.com/farandaway89/scada-ai-system/internal/config"
	"github.com/farandaway89/scada-ai-system/internal/engine"
	"github.com/farandaway89/scada-ai-system/internal/ingest"
	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/repo"
	"github.com/farandaway89/scada-ai-system/internal/services"
)

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()

	cfg := &config.Config{
		Queue:  config.QueueConfig{Capacity: 64, WindowSize: 64},
		Engine: config.EngineConfig{MinSamples: 5, WarningZScore: 3, CriticalZScore: 4.5, ForecastSteps: 3, RetrainInterval: time.Hour, DriftWindow: 3, DriftSigma: 3},
		Alerting: config.AlertingConfig{
			RateLimitPerHour: 100,
			DispatchRetries:  2,
			DispatchBackoff:  time.Millisecond,
			DispatchTimeout:  time.Second,
		},
		Ingest: config.IngestConfig{SkewTolerance: 5 * time.Second},
		Sensors: []models.SensorConfig{
			{SensorID: "T001", Type: models.SensorTemperature, Unit: "°C",
				WarningLow: 10, WarningHigh: 85, CriticalLow: 5, CriticalHigh: 95,
				SamplingInterval: time.Second, MaxStaleness: time.Minute},
		},
	}
	cfgStore, err := config.NewStore(cfg)
	if err != nil {
		t.Fatalf("config store: %v", err)
	}

	store := repo.NewMemoryStore()
	c := cache.New(cfg.Queue.WindowSize)
	feed := services.NewFeed()

	dispatcher := alerting.NewDispatcher(nil, nil, 2, time.Millisecond, time.Second)
	manager := alerting.NewManager(nil, cfgStore, store, dispatcher, feed)
	pipeline := engine.NewPipeline(nil, cfgStore, c, store, manager, feed)
	pipeline.Start(context.Background())

	validator := ingest.NewValidator(nil, cfgStore, pipeline)
	facade := services.NewFacade(nil, cfgStore, c, store, manager, pipeline, validator, feed)

	return NewServer(nil, "127.0.0.1:0", facade), func() {
		pipeline.Stop()
		feed.Close()
	}
}

func TestRaiseManualRejectsUnknownSeverity(t *testing.T) {
	srv, teardown := newTestServer(t)
	defer teardown()

	for _, raw := range []string{"none", "sever", "WARNING"} {
		body := `{"sensor_id":"T001","severity":"` + raw + `","value":42,"message":"check pump"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.server.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("severity %q: status = %d, want %d", raw, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestRaiseManualDefaultsAndCreates(t *testing.T) {
	srv, teardown := newTestServer(t)
	defer teardown()

	body := `{"sensor_id":"T001","value":42,"message":"check pump"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var event models.AlertEvent
	if err := json.NewDecoder(rec.Body).Decode(&event); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if event.Severity != models.SeverityWarning {
		t.Fatalf("severity = %s, want %s", event.Severity, models.SeverityWarning)
	}
	if event.RuleSource != models.SourceManual {
		t.Fatalf("rule source = %s, want %s", event.RuleSource, models.SourceManual)
	}
}

func TestRaiseManualExplicitCritical(t *testing.T) {
	srv, teardown := newTestServer(t)
	defer teardown()

	body := `{"sensor_id":"T001","severity":"critical","value":97,"message":"vessel overpressure"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var event models.AlertEvent
	if err := json.NewDecoder(rec.Body).Decode(&event); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if event.Severity != models.SeverityCritical {
		t.Fatalf("severity = %s, want %s", event.Severity, models.SeverityCritical)
	}
}
