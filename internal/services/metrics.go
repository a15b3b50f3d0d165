// Package services – metrics
//
// Prometheus collectors for the dispatch engine. Labels are bounded by the
// number of configured barriers and fixed outcome strings.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// ingestTotal counts detections by outcome (saved|suppressed|rejected|failed).
	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barrier_ingest_total",
			Help: "Camera detections processed by outcome.",
		},
		[]string{"outcome"},
	)

	// pulseTotal counts actuation decisions per barrier and trigger source.
	pulseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barrier_pulse_total",
			Help: "Barrier pulse attempts by barrier, source, and outcome.",
		},
		[]string{"barrier", "source", "outcome"},
	)

	// pulseLatency records the full HTTP pulse duration including retries.
	pulseLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "barrier_pulse_duration_seconds",
			Help:    "Duration of barrier pulses including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"barrier"},
	)

	// barrierUp mirrors the last probe result (1 up, 0 down, -1 unknown).
	barrierUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "barrier_up",
			Help: "Last liveness probe result per barrier (1 up, 0 down, -1 unknown).",
		},
		[]string{"barrier"},
	)

	// whitelistRefreshTotal counts refresh attempts per source by outcome.
	whitelistRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whitelist_refresh_total",
			Help: "Whitelist source fetches by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	// whitelistEntries gauges the size of the current whitelist snapshot.
	whitelistEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "whitelist_entries",
			Help: "Number of plates in the current whitelist snapshot.",
		},
	)
)

func init() {
	prometheus.MustRegister(ingestTotal, pulseTotal, pulseLatency, barrierUp, whitelistRefreshTotal, whitelistEntries)
}
