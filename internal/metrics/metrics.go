package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "gambit"
	subsystem = "engine"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	engineStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "starts_total",
			Help:      "Number of successful engine starts.",
		}, []string{"name"},
	)
	engineStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stops_total",
			Help:      "Number of engine session shutdowns.",
		}, []string{"name"},
	)
	engineFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Number of engine failures by reason.",
		}, []string{"name", "reason"},
	)
	engineCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_total",
			Help:      "Number of protocol commands sent to engines.",
		}, []string{"name", "command"},
	)
	engineMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "moves_total",
			Help:      "Number of moves received from engines.",
		}, []string{"name"},
	)
	engineResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "results_total",
			Help:      "Number of game results reported by engines.",
		}, []string{"name", "kind"},
	)
	livenessProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "liveness_probes_total",
			Help:      "Number of liveness probes by outcome.",
		}, []string{"name", "alive"},
	)
	registeredEngines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "registered",
			Help:      "Number of engines registered with the manager.",
		},
	)
	cpuPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of the engine process.",
		}, []string{"name"},
	)
	memoryRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the engine process.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		engineStarts, engineStops, engineFailures, engineCommands, engineMoves,
		engineResults, livenessProbes, registeredEngines, cpuPercent, memoryRSS,
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

// HandlerFor serves the metrics of a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		engineStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		engineStops.WithLabelValues(name).Inc()
	}
}

func IncFailure(name, reason string) {
	if regOK.Load() {
		engineFailures.WithLabelValues(name, reason).Inc()
	}
}

func IncCommand(name, command string) {
	if regOK.Load() {
		engineCommands.WithLabelValues(name, command).Inc()
	}
}

func IncMove(name string) {
	if regOK.Load() {
		engineMoves.WithLabelValues(name).Inc()
	}
}

func IncResult(name, kind string) {
	if regOK.Load() {
		engineResults.WithLabelValues(name, kind).Inc()
	}
}

func IncProbe(name string, alive bool) {
	if regOK.Load() {
		livenessProbes.WithLabelValues(name, strconv.FormatBool(alive)).Inc()
	}
}

func SetRegistered(n int) {
	if regOK.Load() {
		registeredEngines.Set(float64(n))
	}
}

func SetResourceUsage(name string, cpu float64, rss uint64) {
	if regOK.Load() {
		cpuPercent.WithLabelValues(name).Set(cpu)
		memoryRSS.WithLabelValues(name).Set(float64(rss))
	}
}

// DeleteResourceUsage drops the gauges of an engine that is no longer running.
func DeleteResourceUsage(name string) {
	if regOK.Load() {
		cpuPercent.DeleteLabelValues(name)
		memoryRSS.DeleteLabelValues(name)
	}
}
