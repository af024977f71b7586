package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbi_retrieval_search_requests_total",
		Help: "Total number of retrieval searches",
	},
		[]string{"kind", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genbi_retrieval_search_duration_seconds",
		Help:    "Duration of retrieval searches",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"kind"},
	)

	SamplesWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbi_retrieval_samples_written_total",
		Help: "Total number of samples written to the retrieval index",
	},
		[]string{"kind", "status"},
	)
)
