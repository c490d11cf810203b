package db

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	locationsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locationsync_locations_persisted_total",
		Help: "Location records written to the store, by source tag.",
	}, []string{"source"})

	batchPagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locationsync_batch_pages_failed_total",
		Help: "Batch pages whose atomic write was rejected by the store.",
	})

	backfillRowsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locationsync_backfill_rows_updated_total",
		Help: "Historical rows retrofitted with H3 indexes.",
	})
)
