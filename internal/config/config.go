package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/farandaway89/scada-ai-system/internal/models"
)

// Config captures the settings required to boot the pipeline engine.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Logging   LoggingConfig         `yaml:"logging"`
	Queue     QueueConfig           `yaml:"queue"`
	Store     StoreConfig           `yaml:"store"`
	Ingest    IngestConfig          `yaml:"ingest"`
	Engine    EngineConfig          `yaml:"engine"`
	Alerting  AlertingConfig        `yaml:"alerting"`
	Sensors   []models.SensorConfig `yaml:"sensors"`
}

// ServerConfig controls the HTTP/websocket listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// QueueConfig sizes the per-sensor ingest queues and the rolling window.
type QueueConfig struct {
	Capacity   int `yaml:"capacity"`
	WindowSize int `yaml:"windowSize"`
}

// StoreConfig selects and configures the persistence sink.
type StoreConfig struct {
	Backend      string        `yaml:"backend"` // "redis" or "memory"
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	ReadingTTL   time.Duration `yaml:"readingTTL"`
	MaxRetries   int           `yaml:"maxRetries"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

// IngestConfig configures reading sources.
type IngestConfig struct {
	SkewTolerance time.Duration   `yaml:"skewTolerance"`
	Simulator     SimulatorConfig `yaml:"simulator"`
	NATS          NATSConfig      `yaml:"nats"`
}

// SimulatorConfig controls the built-in reading generator.
type SimulatorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	ScanRate time.Duration `yaml:"scanRate"`
}

// NATSConfig controls the NATS reading source.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// EngineConfig tunes the anomaly/prediction engine.
type EngineConfig struct {
	MinSamples      int           `yaml:"minSamples"`
	WarningZScore   float64       `yaml:"warningZScore"`
	CriticalZScore  float64       `yaml:"criticalZScore"`
	ForecastSteps   int           `yaml:"forecastSteps"`
	RetrainInterval time.Duration `yaml:"retrainInterval"`
	DriftWindow     int           `yaml:"driftWindow"`
	DriftSigma      float64       `yaml:"driftSigma"`
}

// AlertingConfig carries routing policy for the alert manager.
type AlertingConfig struct {
	RateLimitPerHour int           `yaml:"rateLimitPerHour"`
	DispatchRetries  int           `yaml:"dispatchRetries"`
	DispatchBackoff  time.Duration `yaml:"dispatchBackoff"`
	DispatchTimeout  time.Duration `yaml:"dispatchTimeout"`
	WebhookURLs      []string      `yaml:"webhookURLs"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SCADA_PIPELINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8090",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Queue:   QueueConfig{Capacity: 256, WindowSize: 120},
		Store: StoreConfig{
			Backend:      "memory",
			ReadingTTL:   72 * time.Hour,
			MaxRetries:   3,
			RetryBackoff: 50 * time.Millisecond,
		},
		Ingest: IngestConfig{
			SkewTolerance: 5 * time.Second,
			Simulator:     SimulatorConfig{Enabled: true, ScanRate: time.Second},
		},
		Engine: EngineConfig{
			MinSamples:      30,
			WarningZScore:   3.0,
			CriticalZScore:  4.5,
			ForecastSteps:   5,
			RetrainInterval: 10 * time.Minute,
			DriftWindow:     10,
			DriftSigma:      3.0,
		},
		Alerting: AlertingConfig{
			RateLimitPerHour: 100,
			DispatchRetries:  3,
			DispatchBackoff:  250 * time.Millisecond,
			DispatchTimeout:  10 * time.Second,
		},
		Sensors: defaultSensors(),
	}
}

// defaultSensors mirrors the canonical five-point demo plant.
func defaultSensors() []models.SensorConfig {
	return []models.SensorConfig{
		{SensorID: "T001", Type: models.SensorTemperature, Unit: "°C", WarningLow: 10, WarningHigh: 85, CriticalLow: 5, CriticalHigh: 95, SamplingInterval: time.Second, MaxStaleness: 10 * time.Second},
		{SensorID: "P001", Type: models.SensorPressure, Unit: "bar", WarningLow: 1, WarningHigh: 8, CriticalLow: 0.5, CriticalHigh: 10, SamplingInterval: time.Second, MaxStaleness: 10 * time.Second},
		{SensorID: "F001", Type: models.SensorFlow, Unit: "L/min", WarningLow: 20, WarningHigh: 160, CriticalLow: 5, CriticalHigh: 200, SamplingInterval: time.Second, MaxStaleness: 10 * time.Second},
		{SensorID: "L001", Type: models.SensorLevel, Unit: "%", WarningLow: 15, WarningHigh: 90, CriticalLow: 5, CriticalHigh: 98, SamplingInterval: time.Second, MaxStaleness: 10 * time.Second},
		{SensorID: "PH001", Type: models.SensorPH, Unit: "pH", WarningLow: 6.0, WarningHigh: 8.0, CriticalLow: 5.5, CriticalHigh: 8.5, SamplingInterval: time.Second, MaxStaleness: 10 * time.Second},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCADA_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SCADA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCADA_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SCADA_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SCADA_REDIS_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := os.Getenv("SCADA_REDIS_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("SCADA_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.DB = db
		}
	}
	if v := os.Getenv("SCADA_NATS_URL"); v != "" {
		cfg.Ingest.NATS.Enabled = true
		cfg.Ingest.NATS.URL = v
	}
	if v := os.Getenv("SCADA_SIMULATOR_ENABLED"); v != "" {
		cfg.Ingest.Simulator.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SCADA_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.Capacity = n
		}
	}
	if v := os.Getenv("SCADA_RATE_LIMIT_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Alerting.RateLimitPerHour = n
		}
	}
	if v := os.Getenv("SCADA_RETRAIN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.RetrainInterval = d
		}
	}
	if v := os.Getenv("SCADA_WEBHOOK_URLS"); v != "" {
		cfg.Alerting.WebhookURLs = strings.Split(v, ",")
	}
}
