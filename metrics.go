package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// frameMetrics are the assembler's Prometheus collectors.
type frameMetrics struct {
	ticks            prometheus.Counter
	tickDuration     prometheus.Histogram
	reallocations    prometheus.Counter
	dispatchFailures prometheus.Counter
	packedSamples    prometheus.Gauge
	quads            prometheus.Gauge
	tableBuilds      prometheus.Counter
}

// newFrameMetrics registers the collectors with reg. A nil reg gives
// unregistered collectors, which tests use.
func newFrameMetrics(reg prometheus.Registerer) *frameMetrics {
	m := &frameMetrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shipwake", Name: "ticks_total",
			Help: "Frames assembled.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shipwake", Name: "tick_duration_seconds",
			Help:    "Time spent assembling and dispatching one frame.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		reallocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shipwake", Name: "grid_allocations_total",
			Help: "Surface grid storage allocations.",
		}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shipwake", Name: "dispatch_failures_total",
			Help: "Frames whose evaluator dispatch failed and kept the previous surface.",
		}),
		packedSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shipwake", Name: "packed_trajectory_slots",
			Help: "Trajectory slots staged in the last frame (stride times vessels).",
		}),
		quads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shipwake", Name: "grid_quads",
			Help: "Quads in the current surface topology.",
		}),
		tableBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shipwake", Name: "phase_table_builds_total",
			Help: "Full stationary phase table rebuilds.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ticks, m.tickDuration, m.reallocations, m.dispatchFailures, m.packedSamples, m.quads, m.tableBuilds)
	}
	return m
}

func (m *frameMetrics) observeTick(d time.Duration) {
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

// newMetricsServer exposes g on /metrics.
func newMetricsServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}
