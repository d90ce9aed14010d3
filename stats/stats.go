// Package stats exposes prometheus counters/histograms for the
// dispatch, batching, and fan-out paths, matching aistore's own
// stats package (stats.ListCount/stats.ListLatency in ais/prxs3.go)
// reapplied to this domain's request lifecycle (SPEC_FULL.md §11).
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DispatchCount counts Master.Dispatch calls by servable and outcome.
	DispatchCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "msserve",
		Subsystem: "master",
		Name:      "dispatch_total",
		Help:      "Total Dispatch calls, labeled by servable name and outcome.",
	}, []string{"servable", "outcome"})

	// DispatchLatency observes Master.Dispatch call duration.
	DispatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "msserve",
		Subsystem: "master",
		Name:      "dispatch_latency_seconds",
		Help:      "Dispatch call latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"servable"})

	// BatchFillRatio observes how full a predict batch was (N/model_batch_size).
	BatchFillRatio = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "msserve",
		Subsystem: "batch",
		Name:      "fill_ratio",
		Help:      "Fraction of model_batch_size occupied by real instances per predict call.",
		Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
	})

	// AgentFanoutLatency observes the wall-clock duration of one
	// distributed predict fan-out across all ranks.
	AgentFanoutLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "msserve",
		Subsystem: "distrib",
		Name:      "fanout_latency_seconds",
		Help:      "Distributed predict fan-out latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(DispatchCount, DispatchLatency, BatchFillRatio, AgentFanoutLatency)
}

// ObserveDispatch records one Dispatch call's outcome and latency.
func ObserveDispatch(servable string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	DispatchCount.WithLabelValues(servable, outcome).Inc()
	DispatchLatency.WithLabelValues(servable).Observe(time.Since(start).Seconds())
}

// ObserveBatchFill records a predict batch's fill ratio.
func ObserveBatchFill(n, modelBatchSize int) {
	if modelBatchSize <= 0 {
		return
	}
	BatchFillRatio.Observe(float64(n) / float64(modelBatchSize))
}

// ObserveFanout records one distributed predict fan-out's outcome and
// latency.
func ObserveFanout(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	AgentFanoutLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
