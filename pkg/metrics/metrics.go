package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_events_received_total",
			Help: "Total number of events accepted into the inbound queue (count)",
		},
	)

	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_processed_total",
			Help: "Total number of drained events by outcome (count)",
		},
		[]string{"status"},
	)

	InsertDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_insert_duration_ms",
			Help:    "Ledger admission attempt duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_ms",
			Help:    "Downstream processing step duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Number of events waiting in the inbound queue (count)",
		},
	)

	LedgerSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_size",
			Help: "Number of records in the deduplication ledger (count)",
		},
	)

	RateLimitRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_rate_limit_rejections_total",
			Help: "Total number of publish requests rejected by rate limiting (count)",
		},
	)
)

func RegisterIngestMetrics() {
	prometheus.MustRegister(
		EventsReceivedTotal,
		EventsProcessedTotal,
		InsertDuration,
		ProcessingDuration,
		QueueDepth,
		LedgerSize,
		RateLimitRejectionsTotal,
	)
}

func ObserveInsertDuration(d time.Duration, status string) {
	InsertDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func ObserveProcessingDuration(d time.Duration) {
	ProcessingDuration.Observe(float64(d.Milliseconds()))
}

func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}

func SetLedgerSize(n int) {
	LedgerSize.Set(float64(n))
}
