package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/cache"
	"github.com/farandaway89/scada-ai-system/internal/config"
	"github.com/farandaway89/scada-ai-system/internal/metrics"
	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/repo"
	"github.com/farandaway89/scada-ai-system/internal/stream"
	"github.com/farandaway89/scada-ai-system/internal/utils"
)

// Raiser is the alerting behaviour the pipeline depends on.
type Raiser interface {
	Raise(ctx context.Context, sensorID string, severity models.Severity, source models.RuleSource, value float64, message string) (models.AlertEvent, bool)
}

// ReadingSink receives each accepted reading after it clears the in-memory
// stages; the subscription feed implements it.
type ReadingSink interface {
	PublishReading(models.Reading)
}

// sensorStream bundles one sensor's queue, worker wiring, and model state.
type sensorStream struct {
	sensorID string
	queue    *stream.Ring[models.Reading]
	notify   chan struct{}
	state    *ModelState
	cancel   context.CancelFunc
}

// Pipeline drives per-sensor workers from ingest queues through cache,
// threshold evaluation, anomaly scoring, alert raising, and async
// persistence. Per-sensor ordering is strict; sensors run in parallel.
type Pipeline struct {
	logger  *slog.Logger
	cfg     *config.Store
	cache   *cache.Cache
	store   repo.ReadingStore
	alerts  Raiser
	sink    ReadingSink
	tracker *utils.LatencyTracker

	mu      sync.RWMutex
	streams map[string]*sensorStream

	persistCh chan models.Reading
	retrainCh chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPipeline wires the pipeline. sink may be nil when no live feed is
// attached.
func NewPipeline(logger *slog.Logger, cfg *config.Store, c *cache.Cache, store repo.ReadingStore, alerts Raiser, sink ReadingSink) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:    logger,
		cfg:       cfg,
		cache:     c,
		store:     store,
		alerts:    alerts,
		sink:      sink,
		tracker:   utils.NewLatencyTracker(4096),
		streams:   make(map[string]*sensorStream),
		persistCh: make(chan models.Reading, 1024),
		retrainCh: make(chan string, 64),
	}
}

// Start spawns one worker per configured sensor plus the persistence worker
// and the retrain loop.
func (p *Pipeline) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	snapshot := p.cfg.Current()
	for _, sensorID := range snapshot.SensorIDs() {
		p.ensureStream(sensorID, snapshot.Config.Queue.Capacity)
	}

	p.wg.Add(2)
	go p.persistWorker()
	go p.retrainLoop()

	p.logger.Info("pipeline started",
		slog.Int("sensors", len(snapshot.SensorIDs())),
		slog.Int("queue_capacity", snapshot.Config.Queue.Capacity))
}

// Stop cancels all workers and waits for them to exit. Queued readings that
// were not yet processed are dropped.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("pipeline stopped")
}

// Submit enqueues an accepted reading onto its sensor's queue. When the
// queue is full the oldest reading is evicted; Submit itself never blocks.
func (p *Pipeline) Submit(reading models.Reading) error {
	if p.ctx == nil {
		return fmt.Errorf("pipeline not started")
	}

	p.mu.RLock()
	s, ok := p.streams[reading.SensorID]
	p.mu.RUnlock()
	if !ok {
		snapshot := p.cfg.Current()
		if _, configured := snapshot.Sensor(reading.SensorID); !configured {
			return fmt.Errorf("sensor %s not configured", reading.SensorID)
		}
		s = p.ensureStream(reading.SensorID, snapshot.Config.Queue.Capacity)
	}

	if s.queue.Push(reading) {
		metrics.QueueDropped(reading.SensorID, 1)
	}
	metrics.SetQueueDepth(reading.SensorID, s.queue.Len())

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// RemoveSensor tears down one sensor's stream: its worker stops, the queue
// is released, and the cache entry and model state are discarded.
func (p *Pipeline) RemoveSensor(sensorID string) {
	p.mu.Lock()
	s, ok := p.streams[sensorID]
	if ok {
		delete(p.streams, sensorID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	s.cancel()
	s.queue.Clear()
	p.cache.Remove(sensorID)
	metrics.SetQueueDepth(sensorID, 0)
	p.logger.Info("sensor stream removed", slog.String("sensor", sensorID))
}

// Status reports the lifecycle phase and model version for a sensor.
func (p *Pipeline) Status(sensorID string) (models.ModelPhase, uint64, bool) {
	p.mu.RLock()
	s, ok := p.streams[sensorID]
	p.mu.RUnlock()
	if !ok {
		return models.PhaseUninitialized, 0, false
	}
	phase, version := s.state.Status()
	return phase, version, true
}

// Forecast extrapolates steps values ahead for a sensor.
func (p *Pipeline) Forecast(sensorID string, steps int) (models.Forecast, error) {
	p.mu.RLock()
	s, ok := p.streams[sensorID]
	p.mu.RUnlock()
	if !ok {
		return models.Forecast{}, fmt.Errorf("sensor %s not configured", sensorID)
	}
	if steps <= 0 {
		steps = p.cfg.Current().Config.Engine.ForecastSteps
	}
	return s.state.Predict(steps, time.Now().UTC())
}

// StageLatency reports the given percentile of in-memory stage latency.
func (p *Pipeline) StageLatency(percentile float64) time.Duration {
	return p.tracker.Percentile(percentile)
}

func (p *Pipeline) ensureStream(sensorID string, capacity int) *sensorStream {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.streams[sensorID]; ok {
		return s
	}

	workerCtx, cancel := context.WithCancel(p.ctx)
	s := &sensorStream{
		sensorID: sensorID,
		queue:    stream.NewRing[models.Reading](capacity),
		notify:   make(chan struct{}, 1),
		state:    NewModelState(sensorID),
		cancel:   cancel,
	}
	p.streams[sensorID] = s

	p.wg.Add(1)
	go p.worker(workerCtx, s)
	return s
}

// worker drains one sensor's queue in arrival order.
func (p *Pipeline) worker(ctx context.Context, s *sensorStream) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}

		for {
			batch := s.queue.PopBatch(32)
			if len(batch) == 0 {
				break
			}
			for _, reading := range batch {
				p.process(ctx, s, reading)
			}
			metrics.SetQueueDepth(s.sensorID, s.queue.Len())
		}
	}
}

// process runs the in-memory stages for one reading: cache publish,
// threshold evaluation, anomaly scoring, alert raising, async persist.
func (p *Pipeline) process(ctx context.Context, s *sensorStream, reading models.Reading) {
	start := time.Now()
	snapshot := p.cfg.Current()

	p.cache.Publish(reading)

	if sc, ok := snapshot.Sensor(reading.SensorID); ok {
		if severity := EvaluateThreshold(reading, sc); severity != models.SeverityNone {
			p.alerts.Raise(ctx, reading.SensorID, severity, models.SourceThreshold,
				reading.Value, ThresholdMessage(reading, sc, severity))
		}
	}

	window := p.cache.Window(reading.SensorID)
	values := make([]float64, len(window))
	for i, w := range window {
		values[i] = w.Value
	}
	score, retrain := s.state.Observe(reading.Value, values, snapshot.Config.Engine, p.logger)
	if score.Severity != models.SeverityNone {
		message := fmt.Sprintf("%s anomaly score %.2f (confidence %.2f)", reading.SensorID, score.Score, score.Confidence)
		p.alerts.Raise(ctx, reading.SensorID, score.Severity, models.SourceAnomaly, reading.Value, message)
	}
	if retrain {
		select {
		case p.retrainCh <- reading.SensorID:
		default:
		}
	}

	if p.sink != nil {
		p.sink.PublishReading(reading)
	}

	select {
	case p.persistCh <- reading:
	default:
		// Persistence lag never blocks the hot path.
		metrics.PersistObserved(metrics.OutcomeError)
		p.logger.Warn("persist queue full, reading not persisted", slog.String("sensor", reading.SensorID))
	}

	elapsed := time.Since(start)
	metrics.ObserveProcess(elapsed)
	p.tracker.Observe(elapsed)
	if count := p.tracker.Count(); count >= 100 && count%100 == 0 {
		p.logger.Info("pipeline stage latency",
			slog.Duration("p95", p.tracker.Percentile(95)),
			slog.Int("samples", count))
	}
}

// persistWorker drains the persist channel into the reading store. Failures
// are counted and logged; readings stay available from the cache.
func (p *Pipeline) persistWorker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case reading := <-p.persistCh:
			ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
			err := p.store.AppendReading(ctx, reading)
			cancel()
			if err != nil {
				metrics.PersistObserved(metrics.OutcomeError)
				p.logger.Error("reading persist failed",
					slog.String("sensor", reading.SensorID),
					slog.Any("error", err))
				continue
			}
			metrics.PersistObserved(metrics.OutcomeSuccess)
		}
	}
}

// retrainLoop serves periodic and event-triggered retrain requests.
func (p *Pipeline) retrainLoop() {
	defer p.wg.Done()

	interval := p.cfg.Current().Config.Engine.RetrainInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case sensorID := <-p.retrainCh:
			p.retrain(sensorID)
		case <-ticker.C:
			p.mu.RLock()
			ids := make([]string, 0, len(p.streams))
			for id := range p.streams {
				ids = append(ids, id)
			}
			p.mu.RUnlock()
			for _, id := range ids {
				p.retrain(id)
			}
		}
	}
}

func (p *Pipeline) retrain(sensorID string) {
	p.mu.RLock()
	s, ok := p.streams[sensorID]
	p.mu.RUnlock()
	if !ok {
		return
	}

	window := p.cache.Window(sensorID)
	if len(window) < p.cfg.Current().Config.Engine.MinSamples {
		return
	}
	values := make([]float64, len(window))
	for i, w := range window {
		values[i] = w.Value
	}

	if err := s.state.Retrain(values, time.Now().UTC()); err != nil {
		p.logger.Warn("retrain failed, serving previous model",
			slog.String("sensor", sensorID),
			slog.Any("error", err))
		return
	}
	p.logger.Info("model retrained",
		slog.String("sensor", sensorID),
		slog.Uint64("version", s.state.Version()))
}
