package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Queue.Capacity != 256 || cfg.Queue.WindowSize != 120 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.Engine.MinSamples != 30 {
		t.Fatalf("expected 30 min samples, got %d", cfg.Engine.MinSamples)
	}
	if len(cfg.Sensors) != 5 {
		t.Fatalf("expected 5 default sensors, got %d", len(cfg.Sensors))
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  address: ":9999"
queue:
  capacity: 512
engine:
  minSamples: 12
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Fatalf("expected address :9999, got %s", cfg.Server.Address)
	}
	if cfg.Queue.Capacity != 512 {
		t.Fatalf("expected capacity 512, got %d", cfg.Queue.Capacity)
	}
	if cfg.Engine.MinSamples != 12 {
		t.Fatalf("expected min samples 12, got %d", cfg.Engine.MinSamples)
	}
	// Untouched sections keep their defaults.
	if cfg.Alerting.RateLimitPerHour != 100 {
		t.Fatalf("expected default rate limit, got %d", cfg.Alerting.RateLimitPerHour)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCADA_SERVER_ADDRESS", ":7070")
	t.Setenv("SCADA_QUEUE_CAPACITY", "128")
	t.Setenv("SCADA_RATE_LIMIT_PER_HOUR", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Fatalf("expected :7070, got %s", cfg.Server.Address)
	}
	if cfg.Queue.Capacity != 128 {
		t.Fatalf("expected 128, got %d", cfg.Queue.Capacity)
	}
	if cfg.Alerting.RateLimitPerHour != 42 {
		t.Fatalf("expected 42, got %d", cfg.Alerting.RateLimitPerHour)
	}
}

func TestValidateRejectsWarningOutsideCritical(t *testing.T) {
	cfg := defaultConfig()
	cfg.Sensors[0].WarningHigh = cfg.Sensors[0].CriticalHigh + 1
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for warning band outside critical band")
	}
}

func TestValidateRejectsDuplicateSensorIDs(t *testing.T) {
	cfg := defaultConfig()
	cfg.Sensors = append(cfg.Sensors, cfg.Sensors[0])
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for duplicate sensor id")
	}
}

func TestStoreReloadSwapsSnapshot(t *testing.T) {
	cfg := defaultConfig()
	store, err := NewStore(&cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	first := store.Current()
	if first.Version != 1 {
		t.Fatalf("expected version 1, got %d", first.Version)
	}

	next := defaultConfig()
	next.Queue.Capacity = 1024
	if err := store.Reload(&next); err != nil {
		t.Fatalf("reload: %v", err)
	}

	current := store.Current()
	if current.Version != 2 {
		t.Fatalf("expected version 2, got %d", current.Version)
	}
	if current.Config.Queue.Capacity != 1024 {
		t.Fatalf("expected capacity 1024, got %d", current.Config.Queue.Capacity)
	}
	// The old snapshot is immutable; readers holding it are unaffected.
	if first.Config.Queue.Capacity != 256 {
		t.Fatalf("previous snapshot mutated: %d", first.Config.Queue.Capacity)
	}
}

func TestStoreRejectsInvalidReload(t *testing.T) {
	cfg := defaultConfig()
	store, err := NewStore(&cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	bad := defaultConfig()
	bad.Queue.Capacity = -1
	if err := store.Reload(&bad); err == nil {
		t.Fatal("expected reload rejection")
	}

	current := store.Current()
	if current.Version != 1 || current.Config.Queue.Capacity != 256 {
		t.Fatalf("previous snapshot should remain active, got version %d capacity %d",
			current.Version, current.Config.Queue.Capacity)
	}
}

func TestSnapshotSensorLookup(t *testing.T) {
	cfg := defaultConfig()
	store, err := NewStore(&cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	snap := store.Current()
	sc, ok := snap.Sensor("PH001")
	if !ok {
		t.Fatal("expected PH001 to be configured")
	}
	if sc.Type != models.SensorPH || sc.CriticalHigh != 8.5 {
		t.Fatalf("unexpected sensor config %+v", sc)
	}
	if _, ok := snap.Sensor("GHOST"); ok {
		t.Fatal("unknown sensor should not resolve")
	}
	if len(snap.SensorIDs()) != 5 {
		t.Fatalf("expected 5 sensors, got %d", len(snap.SensorIDs()))
	}
	if sc.SamplingInterval != time.Second {
		t.Fatalf("unexpected sampling interval %s", sc.SamplingInterval)
	}
}
