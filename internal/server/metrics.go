package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "genbi_api_build_info",
		Help: "Build information of the genbi API server",
	},
		[]string{"version", "commit", "date"},
	)

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbi_api_requests_total",
		Help: "Total number of HTTP requests by path and status code",
	},
		[]string{"path", "code"},
	)

	WebSocketSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "genbi_api_websocket_sessions",
		Help: "Number of open websocket connections",
	})

	WebSocketMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbi_api_websocket_messages_total",
		Help: "Total number of websocket questions by outcome",
	},
		[]string{"outcome"},
	)
)
