// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package metrics exposes the Prometheus collectors reachmap registers for
// its own operation: catalog admission outcomes, per-phase build
// durations, eviction counts, graph sizes, and BFS queue depth. Collectors
// are lazily registered on first use so importing this package never
// double-registers against a process that never calls it.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	once sync.Once

	admissionOutcomes *prometheus.CounterVec
	phaseDuration     *prometheus.HistogramVec
	phaseFailures     *prometheus.CounterVec
	evictions         *prometheus.CounterVec

	graphFunctions prometheus.Gauge
	graphEdges     prometheus.Gauge
	graphFuzzers   prometheus.Gauge

	bfsQueueDepth prometheus.Histogram
}

var m collectors

func (c *collectors) init() {
	c.once.Do(func() {
		c.admissionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reachmap_admission_outcomes_total",
			Help: "Catalog admission outcomes by type (hit, wait, own)",
		}, []string{"outcome"})

		buckets := []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800}
		c.phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reachmap_phase_duration_seconds",
			Help:    "Duration of each build phase",
			Buckets: buckets,
		}, []string{"phase"})

		c.phaseFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reachmap_phase_failures_total",
			Help: "Build phase failures by phase",
		}, []string{"phase"})

		c.evictions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reachmap_evictions_total",
			Help: "Snapshots evicted by policy (disk_pressure, retention_cap, ttl)",
		}, []string{"reason"})

		c.graphFunctions = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reachmap_graph_functions",
			Help: "Function+External nodes imported by the most recent commit",
		})
		c.graphEdges = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reachmap_graph_edges",
			Help: "CALLS edges imported by the most recent commit",
		})
		c.graphFuzzers = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reachmap_graph_fuzzers",
			Help: "Fuzzer nodes imported by the most recent commit",
		})

		c.bfsQueueDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reachmap_reaches_bfs_queue_depth",
			Help:    "Queue depth sampled during ReachesComputer's BFS",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		})

		prometheus.MustRegister(
			c.admissionOutcomes, c.phaseDuration, c.phaseFailures, c.evictions,
			c.graphFunctions, c.graphEdges, c.graphFuzzers,
			c.bfsQueueDepth,
		)
	})
}

// RecordAdmission increments the admission-outcome counter for outcome,
// one of "hit", "wait", or "own" (catalog.Outcome.String()'s values).
func RecordAdmission(outcome string) {
	m.init()
	m.admissionOutcomes.WithLabelValues(outcome).Inc()
}

// ObservePhaseDuration records how long a named build phase ("probe",
// "build_cmd", "bitcode", "svf", "fuzzer_parse", "ai_refine", "import")
// took.
func ObservePhaseDuration(phase string, seconds float64) {
	m.init()
	m.phaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordPhaseFailure increments the failure counter for a named build
// phase.
func RecordPhaseFailure(phase string) {
	m.init()
	m.phaseFailures.WithLabelValues(phase).Inc()
}

// RecordEviction increments the eviction counter for reason, one of
// "disk_pressure", "retention_cap", or "ttl".
func RecordEviction(reason string) {
	m.init()
	m.evictions.WithLabelValues(reason).Inc()
}

// SetGraphSize sets the most-recent-commit graph-size gauges.
func SetGraphSize(functions, edges, fuzzers int) {
	m.init()
	m.graphFunctions.Set(float64(functions))
	m.graphEdges.Set(float64(edges))
	m.graphFuzzers.Set(float64(fuzzers))
}

// ObserveBFSQueueDepth records a single BFS queue-depth sample.
func ObserveBFSQueueDepth(depth int) {
	m.init()
	m.bfsQueueDepth.Observe(float64(depth))
}
