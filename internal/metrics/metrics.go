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

	serverStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "srvkeeper",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server spawns.",
		},
	)
	serverStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srvkeeper",
			Subsystem: "server",
			Name:      "start_failures_total",
			Help:      "Number of failed start attempts by error code.",
		}, []string{"kind"},
	)
	serverStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "srvkeeper",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of stops that cleared a running server.",
		},
	)
	terminateFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "srvkeeper",
			Subsystem: "server",
			Name:      "terminate_failures_total",
			Help:      "Number of stops whose termination failed. Each one may be a leaked process.",
		},
	)
	staleRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "srvkeeper",
			Subsystem: "server",
			Name:      "stale_records_total",
			Help:      "Number of recorded servers found dead on start.",
		},
	)
	warmupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "srvkeeper",
			Subsystem: "server",
			Name:      "warmup_seconds",
			Help:      "Observed spawn plus warm-up duration of successful starts.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 2.5, 5, 10, 30},
		},
	)
	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "srvkeeper",
			Subsystem: "server",
			Name:      "running",
			Help:      "1 while a server is recorded as running, 0 otherwise.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStartFailures, serverStops, terminateFailures, staleRecords, warmupDuration, running}
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves the metrics of a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Helpers below no-op until Register has succeeded.

func IncStart() {
	if regOK.Load() {
		serverStarts.Inc()
	}
}

func IncStartFailure(kind string) {
	if regOK.Load() {
		serverStartFailures.WithLabelValues(kind).Inc()
	}
}

func IncStop() {
	if regOK.Load() {
		serverStops.Inc()
	}
}

func IncTerminateFailure() {
	if regOK.Load() {
		terminateFailures.Inc()
	}
}

func IncStaleRecord() {
	if regOK.Load() {
		staleRecords.Inc()
	}
}

func ObserveWarmup(seconds float64) {
	if regOK.Load() {
		warmupDuration.Observe(seconds)
	}
}

func SetRunning(on bool) {
	if regOK.Load() {
		var v float64
		if on {
			v = 1
		}
		running.Set(v)
	}
}
