package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sync engine and queue Prometheus metrics. These live in a standalone package so
// the engine, the queue and the HTTP layer can share them without import cycles.

var (
	OperationsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_operations_enqueued_total",
		Help: "Operations accepted into the local queue",
	})

	OperationsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_operations_processed_total",
		Help: "Operations acknowledged by the remote endpoint",
	})

	OperationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_operations_failed_total",
		Help: "Operation delivery failures, by whether the failure was terminal",
	}, []string{"terminal"})

	PushBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_push_batch_size",
		Help:    "Operations sent per push request",
		Buckets: prometheus.LinearBuckets(5, 5, 10),
	})

	PulledChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_pulled_changes_total",
		Help: "Remote changes received by pull requests",
	})

	Cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_cycles_total",
		Help: "Sync cycles by result: success, error, offline, skipped",
	}, []string{"result"})

	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_cycle_duration_seconds",
		Help:    "Duration of sync cycles that reached the network",
		Buckets: prometheus.DefBuckets,
	})

	PendingOperations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sync_pending_operations",
		Help: "Operations waiting to be pushed",
	})
)

// Register registers the sync metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		OperationsEnqueued,
		OperationsProcessed,
		OperationsFailed,
		PushBatchSize,
		PulledChanges,
		Cycles,
		CycleDuration,
		PendingOperations,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// ObserveFailure counts a delivery failure.
func ObserveFailure(terminal bool) {
	label := "false"
	if terminal {
		label = "true"
	}
	OperationsFailed.WithLabelValues(label).Inc()
}
