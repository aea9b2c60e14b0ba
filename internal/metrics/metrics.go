package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels deliveries and writes that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels deliveries and writes that failed after retries.
	OutcomeError = "error"
	// OutcomeSuppressed labels dispatches withheld by the rate limiter.
	OutcomeSuppressed = "suppressed"
)

var (
	readingsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scada_pipeline",
			Name:      "readings_accepted_total",
			Help:      "Accepted readings, partitioned by sensor.",
		},
		[]string{"sensor"},
	)

	readingsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scada_pipeline",
			Name:      "readings_rejected_total",
			Help:      "Rejected readings, partitioned by sensor and reason.",
		},
		[]string{"sensor", "reason"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scada_pipeline",
			Name:      "queue_depth",
			Help:      "Current per-sensor ingest queue depth.",
		},
		[]string{"sensor"},
	)

	queueDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scada_pipeline",
			Name:      "queue_drops_total",
			Help:      "Readings evicted from a full ingest queue (drop-oldest).",
		},
		[]string{"sensor"},
	)

	modelPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scada_pipeline",
			Name:      "model_phase",
			Help:      "Per-sensor model lifecycle phase (0=uninitialized 1=training 2=ready 3=degraded).",
		},
		[]string{"sensor"},
	)

	alertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scada_pipeline",
			Name:      "alerts_raised_total",
			Help:      "Alert raise calls, partitioned by severity, source, and whether the call refreshed an existing event.",
		},
		[]string{"severity", "source", "refresh"},
	)

	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scada_pipeline",
			Name:      "dispatches_total",
			Help:      "Notification dispatch attempts, partitioned by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	persistWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scada_pipeline",
			Name:      "persist_writes_total",
			Help:      "Durable reading writes, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	processSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scada_pipeline",
			Name:      "process_seconds",
			Help:      "In-memory pipeline stage latency per reading (validate, cache, score, raise).",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	subscriberDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scada_pipeline",
			Name:      "subscriber_drops_total",
			Help:      "Feed items dropped because a subscriber queue was full.",
		},
	)
)

// Register attaches pipeline collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		readingsAccepted,
		readingsRejected,
		queueDepth,
		queueDrops,
		modelPhase,
		alertsRaised,
		dispatches,
		persistWrites,
		processSeconds,
		subscriberDrops,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ReadingAccepted counts one accepted reading.
func ReadingAccepted(sensor string) {
	readingsAccepted.WithLabelValues(sensor).Inc()
}

// ReadingRejected counts one rejection with its reason.
func ReadingRejected(sensor, reason string) {
	readingsRejected.WithLabelValues(sensor, reason).Inc()
}

// SetQueueDepth publishes the current depth of a sensor queue.
func SetQueueDepth(sensor string, depth int) {
	queueDepth.WithLabelValues(sensor).Set(float64(depth))
}

// QueueDropped counts evicted readings for a sensor queue.
func QueueDropped(sensor string, n int) {
	queueDrops.WithLabelValues(sensor).Add(float64(n))
}

// SetModelPhase publishes the lifecycle phase ordinal for a sensor.
func SetModelPhase(sensor string, ordinal int) {
	modelPhase.WithLabelValues(sensor).Set(float64(ordinal))
}

// AlertRaised counts a raise call.
func AlertRaised(severity, source string, refresh bool) {
	label := "new"
	if refresh {
		label = "refresh"
	}
	alertsRaised.WithLabelValues(severity, source, label).Inc()
}

// DispatchObserved counts one dispatch attempt outcome per channel.
func DispatchObserved(channel, outcome string) {
	dispatches.WithLabelValues(channel, outcome).Inc()
}

// PersistObserved counts one durable write outcome.
func PersistObserved(outcome string) {
	persistWrites.WithLabelValues(outcome).Inc()
}

// ObserveProcess records the in-memory stage latency for one reading.
func ObserveProcess(d time.Duration) {
	if d < 0 {
		d = 0
	}
	processSeconds.Observe(d.Seconds())
}

// SubscriberDropped counts a feed item dropped for a slow subscriber.
func SubscriberDropped() {
	subscriberDrops.Inc()
}
