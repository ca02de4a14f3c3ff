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

	renders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procbuilder",
			Subsystem: "builder",
			Name:      "renders_total",
			Help:      "Number of rendered invocations per dialect.",
		}, []string{"dialect"},
	)
	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procbuilder",
			Subsystem: "launcher",
			Name:      "launches_total",
			Help:      "Number of launch attempts by outcome (started, failed).",
		}, []string{"name", "outcome"},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procbuilder",
			Subsystem: "launcher",
			Name:      "exits_total",
			Help:      "Number of finished processes by result (ok, error, timeout, canceled).",
		}, []string{"name", "result"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "procbuilder",
			Subsystem: "launcher",
			Name:      "run_duration_seconds",
			Help:      "Wall time between start and exit of launched processes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procbuilder",
			Subsystem: "launcher",
			Name:      "running",
			Help:      "Processes started and not yet reaped.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{renders, launches, exits, runDuration, running}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// already registered with this registerer: keep the existing one
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

// The helpers update the collectors whether or not Register has run, so
// values gathered after a late Register stay consistent.

// IncRender counts one rendered invocation for dialect.
func IncRender(dialect string) {
	renders.WithLabelValues(dialect).Inc()
}

func IncLaunch(name string, ok bool) {
	outcome := "started"
	if !ok {
		outcome = "failed"
	}
	launches.WithLabelValues(name, outcome).Inc()
	if ok {
		running.Inc()
	}
}

func ObserveExit(name, result string, seconds float64) {
	exits.WithLabelValues(name, result).Inc()
	runDuration.WithLabelValues(name).Observe(seconds)
	running.Dec()
}
