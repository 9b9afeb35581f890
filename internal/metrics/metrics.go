// Package metrics exposes Prometheus collectors for the event pipeline and
// the version store.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	eventsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "pipeline",
			Name:      "events_recorded_total",
			Help:      "Number of events accepted into the queue.",
		},
	)
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "pipeline",
			Name:      "events_dropped_total",
			Help:      "Number of events dropped before queueing.",
		}, []string{"reason"},
	)
	queueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "telemetry",
			Subsystem: "pipeline",
			Name:      "queue_length",
			Help:      "Events currently waiting in the queue.",
		},
	)
	drains = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "pipeline",
			Name:      "drains_total",
			Help:      "Number of drain attempts by outcome.",
		}, []string{"outcome"},
	)
	batchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "telemetry",
			Subsystem: "pipeline",
			Name:      "batch_size",
			Help:      "Events per transmitted batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)
	shutdownFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "pipeline",
			Name:      "shutdown_flushes_total",
			Help:      "Shutdown flushes by delivery mode (beacon or request).",
		}, []string{"mode"},
	)

	versionsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "versions",
			Name:      "captured_total",
			Help:      "Number of versions captured by content type.",
		}, []string{"content_type"},
	)
	captureFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "versions",
			Name:      "capture_failures_total",
			Help:      "Number of captures that failed to persist.",
		},
	)
	versionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "versions",
			Name:      "evicted_total",
			Help:      "Number of versions evicted from stream history.",
		},
	)
	reverts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "versions",
			Name:      "reverts_total",
			Help:      "Number of successful revert lookups.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		eventsRecorded, eventsDropped, queueLength, drains, batchSize, shutdownFlushes,
		versionsCaptured, captureFailures, versionsEvicted, reverts,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncRecorded() {
	if regOK.Load() {
		eventsRecorded.Inc()
	}
}

func IncDropped(reason string) {
	if regOK.Load() {
		eventsDropped.WithLabelValues(reason).Inc()
	}
}

func SetQueueLength(n int) {
	if regOK.Load() {
		queueLength.Set(float64(n))
	}
}

func ObserveDrain(outcome string, size int) {
	if regOK.Load() {
		drains.WithLabelValues(outcome).Inc()
		if outcome == "success" {
			batchSize.Observe(float64(size))
		}
	}
}

func IncShutdownFlush(mode string) {
	if regOK.Load() {
		shutdownFlushes.WithLabelValues(mode).Inc()
	}
}

func IncCaptured(contentType string) {
	if regOK.Load() {
		versionsCaptured.WithLabelValues(contentType).Inc()
	}
}

func IncCaptureFailure() {
	if regOK.Load() {
		captureFailures.Inc()
	}
}

func AddEvicted(n int) {
	if regOK.Load() && n > 0 {
		versionsEvicted.Add(float64(n))
	}
}

func IncRevert() {
	if regOK.Load() {
		reverts.Inc()
	}
}
