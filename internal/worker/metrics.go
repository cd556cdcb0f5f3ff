package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for a single worker process.
type Metrics struct {
	PendingCount       prometheus.Gauge
	ProcessedTotal     prometheus.Counter
	RetriedTotal       prometheus.Counter
	ProcessingDuration prometheus.Histogram
	BatchSize          prometheus.Histogram
}

// NewMetrics creates and registers worker metrics against reg. A nil
// reg is valid and yields metrics that are tracked but never exposed
// (the admin surface reports /metrics as 501 in that case).
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "dispatchbox"
	}
	factory := promauto.With(reg)

	return &Metrics{
		PendingCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_count",
			Help:      "Number of pending/retry events observed on the last poll",
		}),
		ProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processed_total",
			Help:      "Total events committed to done",
		}),
		RetriedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retried_total",
			Help:      "Total events handed to mark_retry (retry or dead outcome)",
		}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing a batch of events",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of events claimed per poll cycle",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 500},
		}),
	}
}
