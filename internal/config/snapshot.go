package config

import (
	"fmt"
	"sync/atomic"

	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/utils"
)

// Snapshot is an immutable, versioned view of the full configuration.
// Components hold a *Store and call Current on each use; they never see a
// half-updated snapshot because reloads swap the pointer atomically.
type Snapshot struct {
	Version uint64
	Config  Config
	sensors map[string]models.SensorConfig
}

// Sensor returns the configuration for a sensor id.
func (s *Snapshot) Sensor(sensorID string) (models.SensorConfig, bool) {
	sc, ok := s.sensors[sensorID]
	return sc, ok
}

// SensorIDs lists all configured sensors.
func (s *Snapshot) SensorIDs() []string {
	ids := make([]string, 0, len(s.sensors))
	for id := range s.sensors {
		ids = append(ids, id)
	}
	return ids
}

// Store is the configuration authority handle: single writer, many readers.
type Store struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewStore seeds a store with an already-validated configuration.
func NewStore(cfg *Config) (*Store, error) {
	st := &Store{}
	if err := st.swap(cfg); err != nil {
		return nil, err
	}
	return st, nil
}

// Current returns the active snapshot. Never nil after NewStore succeeds.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// Reload validates the candidate and, only on success, publishes it as the
// new snapshot. On failure the previous snapshot stays active.
func (st *Store) Reload(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return utils.NewAppError("config.Reload", utils.KindConfiguration, "reload rejected", err)
	}
	return st.swap(cfg)
}

func (st *Store) swap(cfg *Config) error {
	sensors := make(map[string]models.SensorConfig, len(cfg.Sensors))
	for _, sc := range cfg.Sensors {
		sensors[sc.SensorID] = sc
	}
	snap := &Snapshot{
		Version: st.version.Add(1),
		Config:  *cfg,
		sensors: sensors,
	}
	st.current.Store(snap)
	return nil
}

// Validate rejects configurations that would misclassify readings.
func Validate(cfg *Config) error {
	if cfg.Queue.Capacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", cfg.Queue.Capacity)
	}
	if cfg.Queue.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %d", cfg.Queue.WindowSize)
	}
	if cfg.Engine.MinSamples <= 1 {
		return fmt.Errorf("engine minSamples must exceed 1, got %d", cfg.Engine.MinSamples)
	}
	if cfg.Engine.CriticalZScore < cfg.Engine.WarningZScore {
		return fmt.Errorf("criticalZScore %.2f below warningZScore %.2f", cfg.Engine.CriticalZScore, cfg.Engine.WarningZScore)
	}
	if cfg.Alerting.RateLimitPerHour <= 0 {
		return fmt.Errorf("rateLimitPerHour must be positive, got %d", cfg.Alerting.RateLimitPerHour)
	}

	seen := make(map[string]struct{}, len(cfg.Sensors))
	for _, sc := range cfg.Sensors {
		if sc.SensorID == "" {
			return fmt.Errorf("sensor with empty id")
		}
		if _, dup := seen[sc.SensorID]; dup {
			return fmt.Errorf("duplicate sensor id %s", sc.SensorID)
		}
		seen[sc.SensorID] = struct{}{}

		if sc.WarningLow >= sc.WarningHigh {
			return fmt.Errorf("sensor %s: warning_low %.2f not below warning_high %.2f", sc.SensorID, sc.WarningLow, sc.WarningHigh)
		}
		if sc.CriticalLow >= sc.CriticalHigh {
			return fmt.Errorf("sensor %s: critical_low %.2f not below critical_high %.2f", sc.SensorID, sc.CriticalLow, sc.CriticalHigh)
		}
		if sc.WarningLow < sc.CriticalLow || sc.WarningHigh > sc.CriticalHigh {
			return fmt.Errorf("sensor %s: warning bounds must sit inside critical bounds", sc.SensorID)
		}
		if sc.SamplingInterval <= 0 {
			return fmt.Errorf("sensor %s: sampling_interval must be positive", sc.SensorID)
		}
		if sc.MaxStaleness <= 0 {
			return fmt.Errorf("sensor %s: max_staleness must be positive", sc.SensorID)
		}
	}
	return nil
}
