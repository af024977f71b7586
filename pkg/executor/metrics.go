package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbi_executor_executions_total",
		Help: "Total number of SQL executions",
	},
		[]string{"dialect", "status"},
	)

	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genbi_executor_execution_duration_seconds",
		Help:    "Duration of SQL executions",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"dialect"},
	)

	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "genbi_executor_open_connections",
		Help: "Number of cached database connection pools",
	})
)
