package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	DecodeTier      *prometheus.CounterVec
	DecodeFailures  prometheus.Counter
	Decisions       *prometheus.CounterVec
	ScorerFailures  prometheus.Counter
	QueueRejections prometheus.Counter
	Duration        prometheus.Histogram
}

// NewMetrics builds the pipeline collectors and registers them with reg when
// it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecodeTier: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "affect",
			Name:      "decode_tier_total",
			Help:      "Successful decodes by tier.",
		}, []string{"tier"}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "affect",
			Name:      "decode_failures_total",
			Help:      "Uploads no decode tier could read.",
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "affect",
			Name:      "decisions_total",
			Help:      "Emotion decisions by coarse label and outcome.",
		}, []string{"label", "outcome"}),
		ScorerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "affect",
			Name:      "scorer_failures_total",
			Help:      "Failed scorer invocations.",
		}),
		QueueRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "affect",
			Name:      "queue_rejections_total",
			Help:      "Jobs rejected because the worker queue was full.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "affect",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end pipeline latency per job.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.DecodeTier, m.DecodeFailures, m.Decisions, m.ScorerFailures, m.QueueRejections, m.Duration)
	}
	return m
}
