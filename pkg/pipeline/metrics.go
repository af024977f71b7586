package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AsksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbi_pipeline_asks_total",
		Help: "Total number of questions answered, by route and mode",
	},
		[]string{"intent", "mode"},
	)

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genbi_pipeline_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
		[]string{"stage"},
	)

	RetrievalFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbi_pipeline_retrieval_failures_total",
		Help: "Retrieval calls that failed and were treated as no augmentation",
	},
		[]string{"kind"},
	)

	FeedbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbi_pipeline_feedback_total",
		Help: "Feedback records, by intent and outcome",
	},
		[]string{"intent", "status"},
	)
)
