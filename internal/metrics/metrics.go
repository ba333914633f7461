package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Runtime metrics for production monitoring
var (
	// Investigation metrics
	InvestigationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquest_investigations_total",
			Help: "Total number of investigations started",
		},
		[]string{"status"}, // completed, failed, cancelled
	)

	InvestigationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inquest_investigation_duration_seconds",
			Help:    "Investigation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
	)

	TurnsPerInvestigation = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inquest_investigation_turns",
			Help:    "Decision/execution turns per investigation",
			Buckets: prometheus.LinearBuckets(0, 2, 11), // 0 to 20
		},
	)

	// Tool metrics
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquest_tool_calls_total",
			Help: "Total tool executions by tool and outcome",
		},
		[]string{"tool", "status"}, // ok, error, timeout, blocked
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inquest_tool_call_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"tool"},
	)

	// Safety metrics
	SafetyChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquest_safety_checks_total",
			Help: "Harness checks by mode and result",
		},
		[]string{"mode", "result"},
	)

	PIIRedactionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquest_pii_redactions_total",
			Help: "PII detections replaced at the publication boundary",
		},
	)

	// Transport metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inquest_ws_connections_active",
			Help: "Currently open WebSocket connections",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquest_http_requests_total",
			Help: "HTTP requests by path and status code",
		},
		[]string{"path", "code"},
	)
)
