// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest outcomes used as label values.
const (
	OutcomeApplied   = "applied"
	OutcomeStale     = "stale"
	OutcomeMalformed = "malformed"
	OutcomeUnknown   = "unknown_instrument"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	QuotesIngested  *prometheus.CounterVec
	FeedConnected   prometheus.Gauge
	FeedDisconnects prometheus.Counter
	QuotesTracked   prometheus.Gauge

	// Archive metrics
	ArchiveWrites      prometheus.Counter
	ArchiveWriteErrors prometheus.Counter
	ArchiveBufferSize  prometheus.Gauge

	// Screening metrics
	ActiveSessions  prometheus.Gauge
	PassDuration    *prometheus.HistogramVec
	DirtyBatchSize  prometheus.Histogram
	CriteriaRejects prometheus.Counter

	// Projection metrics
	FullRefreshes prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil registerer uses the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "quote_screener"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		QuotesIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "quotes_total",
			Help:      "Total number of raw quote events by outcome",
		}, []string{"source", "outcome"}),
		FeedConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "feed_connected",
			Help:      "1 while the push feed is connected, 0 otherwise",
		}),
		FeedDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "feed_disconnects_total",
			Help:      "Total number of push feed disconnects",
		}),
		QuotesTracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "quotes",
			Help:      "Number of instruments with a stored quote",
		}),

		// Archive metrics
		ArchiveWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "quotes_written_total",
			Help:      "Total number of quotes written to the tick archive",
		}),
		ArchiveWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "write_errors_total",
			Help:      "Total number of failed tick archive flushes",
		}),
		ArchiveBufferSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "buffer_size",
			Help:      "Quotes waiting for the next archive flush",
		}),

		// Screening metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "active_sessions",
			Help:      "Number of open screening sessions",
		}),
		PassDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "pass_duration_seconds",
			Help:      "Screening pass duration in seconds by kind",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"kind"}),
		DirtyBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "dirty_batch_size",
			Help:      "Instruments per incremental update",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		CriteriaRejects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "criteria_rejected_total",
			Help:      "Total number of rejected criteria edits",
		}),

		// Projection metrics
		FullRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "full_refresh_required_total",
			Help:      "Total number of diff requests answered with a full refresh",
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngestion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last applied quote",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordIngest counts one raw event by source and outcome.
func RecordIngest(source, outcome string) {
	DefaultMetrics.QuotesIngested.WithLabelValues(source, outcome).Inc()
}

// RecordApplied marks a successful quote application at unix time ts.
func RecordApplied(ts int64, tracked int) {
	DefaultMetrics.LastSuccessfulIngestion.Set(float64(ts))
	DefaultMetrics.QuotesTracked.Set(float64(tracked))
}

// SetFeedConnected updates the feed connection gauge.
func SetFeedConnected(connected bool) {
	if connected {
		DefaultMetrics.FeedConnected.Set(1)
		return
	}
	DefaultMetrics.FeedConnected.Set(0)
	DefaultMetrics.FeedDisconnects.Inc()
}

// RecordArchiveFlush records a tick archive flush.
func RecordArchiveFlush(quotes int, err error) {
	if err != nil {
		DefaultMetrics.ArchiveWriteErrors.Inc()
		return
	}
	DefaultMetrics.ArchiveWrites.Add(float64(quotes))
}

// SetArchiveBuffer updates the archive buffer gauge.
func SetArchiveBuffer(n int) {
	DefaultMetrics.ArchiveBufferSize.Set(float64(n))
}

// SetActiveSessions updates the open session gauge.
func SetActiveSessions(n int) {
	DefaultMetrics.ActiveSessions.Set(float64(n))
}

// RecordPass records a screening pass ("scan", "update", "rerank").
func RecordPass(kind string, seconds float64) {
	DefaultMetrics.PassDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordDirtyBatch records the size of one dirty fan-out.
func RecordDirtyBatch(n int) {
	DefaultMetrics.DirtyBatchSize.Observe(float64(n))
}

// RecordCriteriaRejected counts a rejected criteria edit.
func RecordCriteriaRejected() {
	DefaultMetrics.CriteriaRejects.Inc()
}

// RecordFullRefresh counts a diff answered with a full refresh.
func RecordFullRefresh() {
	DefaultMetrics.FullRefreshes.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
