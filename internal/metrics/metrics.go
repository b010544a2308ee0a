// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aegis"

var (
	// Rule store
	RulesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_active",
			Help:      "Number of rules in the active rule set",
		},
	)

	RuleReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_reloads_total",
			Help:      "Rule set reloads and appends by result",
		},
		[]string{"result"},
	)

	// Anomaly scoring
	Anomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Anomalies emitted by highest matched severity",
		},
		[]string{"severity"},
	)

	EventsAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_analyzed_total",
			Help:      "Log events scored",
		},
	)

	// Upstream collaborators
	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_failures_total",
			Help:      "Failed or timed out calls to external collaborators",
		},
		[]string{"service"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Latency of calls to external collaborators",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"service"},
	)

	// Risk pipeline
	RiskReasons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_reasons_total",
			Help:      "Risk reasons raised per query",
		},
		[]string{"reason"},
	)

	AskConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ask_confidence",
			Help:      "Blended answer confidence",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	// Telemetry
	TelemetryDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_dropped_total",
			Help:      "Telemetry rows dropped because the queue was full",
		},
	)

	TelemetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_sink_failures_total",
			Help:      "Telemetry rows a sink failed to write",
		},
		[]string{"sink"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
