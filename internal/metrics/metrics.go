package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chattour_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chattour_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chattour_ws_connections",
			Help: "Open websocket connections",
		},
	)

	QueryEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chattour_query_evaluations_total",
			Help: "Live query evaluations",
		},
		[]string{"query"},
	)

	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chattour_mutations_total",
			Help: "Mutations by command and outcome",
		},
		[]string{"command", "status"}, // "ok" or "error"
	)

	// Auth metrics
	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chattour_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"status"},
	)
)
