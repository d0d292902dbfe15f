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

	executionsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meterdock",
			Subsystem: "execution",
			Name:      "submitted_total",
			Help:      "Number of execution requests accepted into the queue.",
		},
	)
	executionsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meterdock",
			Subsystem: "execution",
			Name:      "completed_total",
			Help:      "Number of executions that finished with exit code 0.",
		},
	)
	executionsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meterdock",
			Subsystem: "execution",
			Name:      "failed_total",
			Help:      "Number of executions that ended in FAILED state.",
		},
	)
	executionsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "meterdock",
			Subsystem: "execution",
			Name:      "running",
			Help:      "Executions currently holding an admission slot.",
		},
	)
	executionsQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "meterdock",
			Subsystem: "execution",
			Name:      "queued",
			Help:      "Executions waiting for a free admission slot.",
		},
	)
	executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "meterdock",
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of finished executions.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
	installs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meterdock",
			Subsystem: "installation",
			Name:      "installs_total",
			Help:      "Number of successful distribution installs.",
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
		executionsSubmitted, executionsCompleted, executionsFailed,
		executionsRunning, executionsQueued, executionDuration, installs,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler returns an http.Handler serving Prometheus metrics from the
// default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncSubmitted() {
	if regOK.Load() {
		executionsSubmitted.Inc()
	}
}
func IncCompleted() {
	if regOK.Load() {
		executionsCompleted.Inc()
	}
}
func IncFailed() {
	if regOK.Load() {
		executionsFailed.Inc()
	}
}
func SetRunning(n int) {
	if regOK.Load() {
		executionsRunning.Set(float64(n))
	}
}
func SetQueued(n int) {
	if regOK.Load() {
		executionsQueued.Set(float64(n))
	}
}
func ObserveDuration(seconds float64) {
	if regOK.Load() {
		executionDuration.Observe(seconds)
	}
}
func IncInstall() {
	if regOK.Load() {
		installs.Inc()
	}
}
