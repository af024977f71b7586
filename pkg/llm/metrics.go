package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbi_llm_requests_total",
		Help: "Total number of language model requests",
	},
		[]string{"backend", "mode", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genbi_llm_request_duration_seconds",
		Help:    "Duration of language model requests until the response or stream is established",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
		[]string{"backend", "mode"},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
