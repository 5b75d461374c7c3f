package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type collectors struct {
	executions         *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	qualityScore       *prometheus.HistogramVec
	parallelEfficiency prometheus.Histogram
	cacheHits          prometheus.Counter
	fallbacks          *prometheus.CounterVec
	inFlight           prometheus.Gauge
	queueDepth         prometheus.Gauge
	healthy            prometheus.Gauge
}

func newCollectors(reg prometheus.Registerer, namespace string) *collectors {
	factory := promauto.With(reg)
	return &collectors{
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Completed executions by serving strategy and outcome.",
			},
			[]string{"strategy", "status"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Wall time of completed executions.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"strategy"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall time of individual stages.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"stage"},
		),
		qualityScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "quality_score",
				Help:      "Quality score of successful executions.",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"strategy"},
		),
		parallelEfficiency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "parallel_efficiency_ratio",
				Help:      "Share of stages that ran concurrently with another stage.",
				Buckets:   prometheus.LinearBuckets(0, 0.25, 5),
			},
		),
		cacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Stages served from cache.",
			},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Fallbacks taken, by stage or by strategy.",
			},
			[]string{"kind"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_executions",
				Help:      "Executions currently admitted.",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Requests waiting for admission.",
			},
		),
		healthy: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "healthy",
				Help:      "1 when the last health evaluation was healthy.",
			},
		),
	}
}
