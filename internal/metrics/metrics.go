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

	operationsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procstream",
			Subsystem: "operation",
			Name:      "started_total",
			Help:      "Number of operations whose subprocess was spawned.",
		},
	)
	operationsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procstream",
			Subsystem: "operation",
			Name:      "finished_total",
			Help:      "Number of finished operations by terminal state (completed, timed_out, killed, spawn_failed).",
		}, []string{"state", "success"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "procstream",
			Subsystem: "operation",
			Name:      "duration_seconds",
			Help:      "Wall time from spawn to completion event.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"state"},
	)
	operationRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procstream",
			Subsystem: "operation",
			Name:      "running",
			Help:      "1 while a subprocess is tracked for cancellation.",
		},
	)
	linesEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procstream",
			Subsystem: "stream",
			Name:      "lines_total",
			Help:      "Line events emitted per origin stream.",
		}, []string{"origin"},
	)
	linesSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procstream",
			Subsystem: "stream",
			Name:      "duplicates_suppressed_total",
			Help:      "Lines dropped because the same text was already emitted in the operation.",
		},
	)
	busBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procstream",
			Subsystem: "bus",
			Name:      "backlog",
			Help:      "Events queued for slow subscribers.",
		},
	)
	kills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procstream",
			Subsystem: "process",
			Name:      "kills_total",
			Help:      "Termination signals sent, by reason (timeout, cancel).",
		}, []string{"reason"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		operationsStarted, operationsFinished, operationDuration, operationRunning,
		linesEmitted, linesSuppressed, busBacklog, kills,
		toolCPUPercent, toolMemoryRSS,
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
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStarted() {
	if regOK.Load() {
		operationsStarted.Inc()
		operationRunning.Set(1)
	}
}

func ObserveFinished(state string, success bool, seconds float64) {
	if regOK.Load() {
		s := "false"
		if success {
			s = "true"
		}
		operationsFinished.WithLabelValues(state, s).Inc()
		if seconds > 0 {
			operationDuration.WithLabelValues(state).Observe(seconds)
		}
		operationRunning.Set(0)
	}
}

func IncLine(origin string) {
	if regOK.Load() {
		linesEmitted.WithLabelValues(origin).Inc()
	}
}

func AddSuppressed(n int) {
	if regOK.Load() && n > 0 {
		linesSuppressed.Add(float64(n))
	}
}

func AddBusBacklog(delta int) {
	if regOK.Load() && delta != 0 {
		busBacklog.Add(float64(delta))
	}
}

func IncKill(reason string) {
	if regOK.Load() {
		kills.WithLabelValues(reason).Inc()
	}
}
