// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A Registerer is taken
// explicitly so tests can use a private registry.
type Metrics struct {
	Temperature     *prometheus.GaugeVec
	Utilization     *prometheus.GaugeVec
	Transitions     *prometheus.CounterVec
	FallbackActive  *prometheus.GaugeVec
	TickDuration    prometheus.Histogram
	TelemetryErrors prometheus.Counter
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "pstated"
	}
	m := &Metrics{
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "gpu_temperature_celsius",
			Help: "Last observed GPU core temperature.",
		}, []string{"gpu"}),
		Utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "gpu_utilization_percent",
			Help: "Last observed GPU utilization.",
		}, []string{"gpu"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pstate_transitions_total",
			Help: "Performance state transitions commanded, by target state.",
		}, []string{"gpu", "state"}),
		FallbackActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "clock_fallback_active",
			Help: "1 once a GPU has permanently switched to direct clock control.",
		}, []string{"gpu"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "control_tick_duration_seconds",
			Help:    "Duration of one control-loop pass over all devices.",
			Buckets: prometheus.DefBuckets,
		}),
		TelemetryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "telemetry_read_errors_total",
			Help: "Temperature or utilization reads that failed mid-loop.",
		}),
	}
	reg.MustRegister(m.Temperature, m.Utilization, m.Transitions, m.FallbackActive, m.TickDuration, m.TelemetryErrors)
	return m
}
