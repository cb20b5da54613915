// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Snapshot pipeline metrics
	SnapshotRunsTotal    *prometheus.CounterVec
	SnapshotRunDuration  *prometheus.HistogramVec
	SnapshotsComputed    prometheus.Counter
	SnapshotRowsInserted *prometheus.CounterVec
	SnapshotChunksFailed *prometheus.CounterVec
	VaultComputeRetries  prometheus.Counter

	// Backfill metrics
	BackfillRunsTotal      *prometheus.CounterVec
	DepositRecordsFetched  prometheus.Counter
	DepositRecordsStored   prometheus.Counter
	DepositorEventsFetched prometheus.Counter
	DepositorEventsStored  prometheus.Counter

	// Oracle price metrics
	PriceFetchesTotal  *prometheus.CounterVec
	PriceFetchLatency  prometheus.Histogram
	PriceNotFoundTotal prometheus.Counter
	PriceRateLimited   prometheus.Counter

	// Solana metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCErrors       *prometheus.CounterVec
	WSReconnects    prometheus.Counter
	AccountUpdates  prometheus.Counter
	HighestSlotSeen prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// API metrics
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
	CronUnauthorized   prometheus.Counter

	// Health metrics
	LastSuccessfulSnapshot prometheus.Gauge
	LastSuccessfulBackfill prometheus.Gauge
	APYCacheAge            prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "circuit_vaults"
	}

	return &Metrics{
		// Snapshot pipeline metrics
		SnapshotRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "runs_total",
			Help:      "Total number of per-vault snapshot computations by status",
		}, []string{"status"}),
		SnapshotRunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "run_duration_seconds",
			Help:      "Per-vault snapshot computation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"vault"}),
		SnapshotsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "computed_total",
			Help:      "Total number of vault snapshots computed",
		}),
		SnapshotRowsInserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "rows_inserted_total",
			Help:      "Total number of snapshot rows inserted by table",
		}, []string{"table"}),
		SnapshotChunksFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "chunks_failed_total",
			Help:      "Total number of skipped insert chunks by table",
		}, []string{"table"}),
		VaultComputeRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "compute_retries_total",
			Help:      "Total number of per-vault fetch-and-compute retries",
		}),

		// Backfill metrics
		BackfillRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "runs_total",
			Help:      "Total number of backfill runs by status",
		}, []string{"status"}),
		DepositRecordsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "deposit_records_fetched_total",
			Help:      "Total number of deposit records fetched from the history server",
		}),
		DepositRecordsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "deposit_records_stored_total",
			Help:      "Total number of deposit records stored to database",
		}),
		DepositorEventsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "depositor_events_fetched_total",
			Help:      "Total number of depositor events fetched from the history server",
		}),
		DepositorEventsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "depositor_events_stored_total",
			Help:      "Total number of depositor events stored to database",
		}),

		// Oracle price metrics
		PriceFetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "fetches_total",
			Help:      "Total number of oracle price fetches by status",
		}, []string{"status"}),
		PriceFetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "fetch_latency_seconds",
			Help:      "Oracle price fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PriceNotFoundTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "not_found_total",
			Help:      "Total number of price lookups missing even after the shifted retry",
		}),
		PriceRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "rate_limited_total",
			Help:      "Total number of rate-limited price fetches",
		}),

		// Solana metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_errors_total",
			Help:      "Total number of RPC errors by classified reason",
		}, []string{"reason"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnects",
		}),
		AccountUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "account_updates_total",
			Help:      "Total number of account update notifications received",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		CronUnauthorized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "cron_unauthorized_total",
			Help:      "Total number of cron trigger requests with a bad secret",
		}),

		// Health metrics
		LastSuccessfulSnapshot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_snapshot_timestamp",
			Help:      "Unix timestamp of last successful snapshot run",
		}),
		LastSuccessfulBackfill: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_backfill_timestamp",
			Help:      "Unix timestamp of last successful backfill run",
		}),
		APYCacheAge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "apy_cache_age_seconds",
			Help:      "Age of the cached APY computation in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSnapshotRun records one per-vault snapshot computation.
func RecordSnapshotRun(vault, status string, durationSeconds float64) {
	DefaultMetrics.SnapshotRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.SnapshotRunDuration.WithLabelValues(vault).Observe(durationSeconds)
}

// RecordSnapshotInserts records insert results for one table.
func RecordSnapshotInserts(table string, rows, failedChunks int) {
	DefaultMetrics.SnapshotRowsInserted.WithLabelValues(table).Add(float64(rows))
	DefaultMetrics.SnapshotChunksFailed.WithLabelValues(table).Add(float64(failedChunks))
}

// RecordPriceFetch records one oracle price fetch.
func RecordPriceFetch(status string, seconds float64) {
	DefaultMetrics.PriceFetchesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.PriceFetchLatency.Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError records a classified RPC error.
func RecordRPCError(reason string) {
	DefaultMetrics.RPCErrors.WithLabelValues(reason).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest records one served API request.
func RecordHTTPRequest(route, code string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, code).Inc()
	DefaultMetrics.HTTPRequestLatency.WithLabelValues(route).Observe(seconds)
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}
